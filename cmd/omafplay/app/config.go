// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/omafstream/viewport-engine/pkg/logging"
)

const (
	defaultPort                   = 8989
	defaultTickIntervalMs         = 200
	defaultTimeoutS               = 10
	defaultDeviceMaxTiles         = 16
	defaultMaxDecodedPixelsPerSec = 8_300_000.0 * 30 // ~4K30 decoder budget
	defaultBaseLayerPixelsPerSec  = 0.0
	defaultViewportWidthDeg       = 100.0
	defaultViewportHeightDeg      = 90.0
)

// Config is the player's command-line/config-file/environment
// configuration, grounded on livesim2's koanf+pflag loading sequence
// (defaults -> config file -> flags -> environment).
type Config struct {
	LogFormat string `json:"logformat"`
	LogLevel  string `json:"loglevel"`
	Port      int    `json:"port"`

	// MPDURL is the manifest this instance streams. Required.
	MPDURL string `json:"mpdurl"`

	TickIntervalMs int `json:"tickintervalms"`
	TimeoutS       int `json:"timeouts"`

	DeviceMaxConcurrentTiles int     `json:"devicemaxtiles"`
	MaxDecodedPixelsPerSec   float64 `json:"maxdecodedpixelspersec"`
	BaseLayerPixelsPerSec    float64 `json:"baselayerpixelspersec"`

	// InitialViewportAzimuth/Elevation/WidthDeg/HeightDeg seed the tile
	// picker before any real head-tracking input arrives, spec §4.8's
	// initial-viewport barrier.
	InitialViewportAzimuth   float64 `json:"viewportazimuth"`
	InitialViewportElevation float64 `json:"viewportelevation"`
	ViewportWidthDeg         float64 `json:"viewportwidthdeg"`
	ViewportHeightDeg        float64 `json:"viewportheightdeg"`
}

var defaultConfig = Config{
	LogFormat:                "text",
	LogLevel:                 "INFO",
	Port:                     defaultPort,
	TickIntervalMs:           defaultTickIntervalMs,
	TimeoutS:                 defaultTimeoutS,
	DeviceMaxConcurrentTiles: defaultDeviceMaxTiles,
	MaxDecodedPixelsPerSec:   defaultMaxDecodedPixelsPerSec,
	BaseLayerPixelsPerSec:    defaultBaseLayerPixelsPerSec,
	ViewportWidthDeg:         defaultViewportWidthDeg,
	ViewportHeightDeg:        defaultViewportHeightDeg,
}

// LoadConfig loads defaults, an optional JSON config file, command-line
// flags, and finally OMAFPLAY_-prefixed environment variables, in that
// order of increasing precedence.
func LoadConfig(args []string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig, "json"), nil); err != nil {
		return nil, err
	}

	f := pflag.NewFlagSet("omafplay", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.String("mpdurl", k.String("mpdurl"), "URL of the OMAF/DASH manifest to stream (required)")
	f.Int("port", k.Int("port"), "debug/health HTTP port")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.Int("tickintervalms", k.Int("tickintervalms"), "service-loop tick cadence in milliseconds")
	f.Int("timeouts", k.Int("timeouts"), "per-request timeout in seconds")
	f.Int("devicemaxtiles", k.Int("devicemaxtiles"), "device concurrent-tile cap")
	f.Float64("maxdecodedpixelspersec", k.Float64("maxdecodedpixelspersec"), "device decoder pixel/sec budget")
	f.Float64("baselayerpixelspersec", k.Float64("baselayerpixelspersec"), "pixel/sec reserved for a base layer")
	f.Float64("viewportazimuth", k.Float64("viewportazimuth"), "initial viewport center azimuth (degrees)")
	f.Float64("viewportelevation", k.Float64("viewportelevation"), "initial viewport center elevation (degrees)")
	f.Float64("viewportwidthdeg", k.Float64("viewportwidthdeg"), "initial viewport width (degrees)")
	f.Float64("viewportheightdeg", k.Float64("viewportheightdeg"), "initial viewport height (degrees)")
	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	if *cfgFile != "" {
		if err := k.Load(file.Provider(*cfgFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %w", err)
	}

	if err := k.Load(env.Provider("OMAFPLAY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "OMAFPLAY_")), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.MPDURL == "" {
		return nil, fmt.Errorf("mpdurl is required")
	}
	return cfg, nil
}
