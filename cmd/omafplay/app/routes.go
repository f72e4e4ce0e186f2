// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omafstream/viewport-engine/internal"
	"github.com/omafstream/viewport-engine/pkg/logging"
)

// debugState is the JSON shape served by /debug/state, a diagnostic
// surface in place of livesim2's asset/route listing.
type debugState struct {
	Version string `json:"version"`
	MPDURL  string `json:"mpdUrl"`
	State   string `json:"state"`
}

// NewRouter builds the player's HTTP surface: health, debug state, and
// prometheus metrics, grounded on livesim2's SetupServer chi wiring.
func NewRouter(p *Player, reg *prometheus.Registry, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.SlogMiddleWare(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		st := debugState{
			Version: internal.GetVersion(),
			MPDURL:  p.cfg.MPDURL,
			State:   p.Manager().State().String(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})

	r.Mount("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}
