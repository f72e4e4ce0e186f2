// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omafstream/viewport-engine/cmd/omafplay/app"
	"github.com/omafstream/viewport-engine/pkg/logging"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	cfg, err := app.LoadConfig(os.Args)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err.Error())
		return 1
	}

	if err := logging.InitSlog(cfg.LogLevel, cfg.LogFormat); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %s\n", err.Error())
		return 1
	}
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stopSignal
		logger.Info("shutting down")
		cancel()
	}()

	reg := prometheus.NewRegistry()
	player := app.NewPlayer(cfg, logger, reg)
	router := app.NewRouter(player, reg, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("debug server listening", "addr", addr)
		if err := http.ListenAndServe(addr, router); err != nil && err != http.ErrServerClosed {
			logger.Error("debug server failed", "error", err.Error())
		}
	}()

	if err := player.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("playback failed", "error", err.Error())
		return 1
	}
	return 0
}
