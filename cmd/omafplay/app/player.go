// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/downloadmgr"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/metrics"
	"github.com/omafstream/viewport-engine/pkg/tilepicker"
)

// Player drives one downloadmgr.Manager against a live MPD URL on a fixed
// tick cadence, the headless equivalent of the renderer+provider threads
// spec §5 describes: this process plays both roles since there is no real
// decoder pool to feed.
type Player struct {
	cfg     *Config
	logger  *slog.Logger
	client  httpclient.Client
	clk     clock.Clock
	mgr     *downloadmgr.Manager
	metrics *metrics.Metrics
}

// NewPlayer constructs a Player and its Manager, wiring the device budget
// from cfg into the tile picker, spec §4.5.
func NewPlayer(cfg *Config, logger *slog.Logger, reg prometheus.Registerer) *Player {
	client := httpclient.NewNetHTTPClient()
	clk := clock.System{}
	budget := tilepicker.Budget{
		DeviceMaxConcurrentTiles: cfg.DeviceMaxConcurrentTiles,
		MaxDecodedPixelsPerSec:   cfg.MaxDecodedPixelsPerSec,
		BaseLayerPixelsPerSec:    cfg.BaseLayerPixelsPerSec,
		ViewportWidthDeg:         cfg.ViewportWidthDeg,
		ViewportHeightDeg:        cfg.ViewportHeightDeg,
	}
	return &Player{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		clk:     clk,
		mgr:     downloadmgr.New(client, clk, budget),
		metrics: metrics.New(reg),
	}
}

// Manager exposes the underlying orchestrator for the debug HTTP surface.
func (p *Player) Manager() *downloadmgr.Manager { return p.mgr }

// fetchMPD performs one blocking GET of cfg.MPDURL.
func (p *Player) fetchMPD(ctx context.Context) ([]byte, error) {
	start := time.Now()
	resp, err := p.client.Get(ctx, httpclient.Request{
		URL:       p.cfg.MPDURL,
		TimeoutMs: int64(p.cfg.TimeoutS) * 1000,
	})
	if err != nil {
		p.metrics.ObserveMPDRequest("error", time.Since(start))
		return nil, fmt.Errorf("fetch mpd: %w", err)
	}
	if resp.HTTPStatus >= 400 {
		p.metrics.ObserveMPDRequest(fmt.Sprintf("http-%d", resp.HTTPStatus), time.Since(start))
		return nil, fmt.Errorf("fetch mpd: http status %d", resp.HTTPStatus)
	}
	p.metrics.ObserveMPDRequest("ok", time.Since(start))
	return resp.Body, nil
}

// Run fetches the initial MPD, starts the download manager, and services
// the six-step loop on cfg.TickIntervalMs until ctx is cancelled or the
// manager reaches a terminal state.
func (p *Player) Run(ctx context.Context) error {
	data, err := p.fetchMPD(ctx)
	if err != nil {
		return err
	}
	if err := p.mgr.LoadMPD(data); err != nil {
		return fmt.Errorf("load mpd: %w", err)
	}
	p.mgr.RefreshMPD = p.fetchMPD

	p.mgr.SetInitialViewport(tilepicker.Viewport{
		CenterAzimuth:   p.cfg.InitialViewportAzimuth,
		CenterElevation: p.cfg.InitialViewportElevation,
		WidthDeg:        p.cfg.ViewportWidthDeg,
		HeightDeg:       p.cfg.ViewportHeightDeg,
	})
	if p.mgr.State() != downloadmgr.StateInitialized {
		return fmt.Errorf("manager did not reach Initialized after the initial viewport was set (state=%s)", p.mgr.State())
	}
	if err := p.mgr.StartDownload(); err != nil {
		return fmt.Errorf("start download: %w", err)
	}
	p.logger.Info("playback started", "mpdurl", p.cfg.MPDURL)

	ticker := time.NewTicker(time.Duration(p.cfg.TickIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mgr.Stop()
			return ctx.Err()
		case <-ticker.C:
			state, err := p.mgr.Tick(ctx)
			p.metrics.SetBandwidthEstimate(float64(p.mgr.BandwidthMonitor().EstimatedBandwidthBps()))
			if err != nil {
				p.logger.Error("tick failed", "state", state.String(), "error", err.Error())
				return err
			}
			switch state {
			case downloadmgr.StateEndOfStream:
				p.logger.Info("playback reached end of stream")
				return nil
			case downloadmgr.StateStreamError, downloadmgr.StateConnectionError:
				return fmt.Errorf("playback entered %s", state)
			}
		}
	}
}
