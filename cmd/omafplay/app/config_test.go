// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresMPDURL(t *testing.T) {
	_, err := LoadConfig([]string{"/path/omafplay"})
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]string{"/path/omafplay", "--mpdurl", "https://example.test/stream.mpd"})
	require.NoError(t, err)
	c := defaultConfig
	c.MPDURL = "https://example.test/stream.mpd"
	assert.Equal(t, c, *cfg)
}

func TestLoadConfigCommandLineOverridesDefaults(t *testing.T) {
	cfg, err := LoadConfig([]string{
		"/path/omafplay",
		"--mpdurl", "https://example.test/stream.mpd",
		"--loglevel", "debug",
		"--tickintervalms", "100",
		"--devicemaxtiles", "8",
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 100, cfg.TickIntervalMs)
	assert.Equal(t, 8, cfg.DeviceMaxConcurrentTiles)
}

func TestLoadConfigEnvOverridesCommandLine(t *testing.T) {
	t.Setenv("OMAFPLAY_LOGLEVEL", "warn")
	cfg, err := LoadConfig([]string{
		"/path/omafplay",
		"--mpdurl", "https://example.test/stream.mpd",
		"--loglevel", "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
