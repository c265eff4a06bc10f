// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport is the HTTP surface (spec.md §4.D "HTTP surface"):
// it adapts net/http onto the Request Pipeline, mirroring
// internal/ratelimiter/api.Server's RegisterRoutes(mux)/ListenAndServe(addr)
// shape. TLS termination and ALPN/HTTP2 negotiation stay external: callers
// set Server.TLSConfig to an already-built *tls.Config before calling
// ListenAndServe rather than this package loading certificates itself.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/pipeline"
	"daogate/internal/gateway/telemetry"
)

// Server wires the Request Pipeline, metrics, and liminal introspection
// onto an http.ServeMux.
type Server struct {
	Pipeline *pipeline.Pipeline
	Metrics  *telemetry.Metrics
	Liminal  *liminal.Controller

	// ReadTimeout/WriteTimeout/IdleTimeout mirror api.Server.ListenAndServe's
	// explicit *http.Server timeouts (5s/10s/120s there); daogate's
	// defaults are longer since a hedged or shadow-compare request can
	// legitimately run for a route's full deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TLSConfig, when non-nil, is used by ListenAndServe to terminate TLS.
	// Building it (certificate loading, ALPN protocol list) is the caller's
	// responsibility.
	TLSConfig *tls.Config

	httpServer *http.Server
}

// RegisterRoutes installs the proxy handler plus operational endpoints on
// mux: "/" for proxied traffic, "/metrics" for Prometheus scraping,
// "/healthz" for liveness, and "/debug/liminal" for adaptive-state
// introspection (spec.md §4.D "[EXPANDED] Process shape").
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/debug/liminal", s.handleDebugLiminal)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	mux.HandleFunc("/", s.handleProxy)
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	rv := requestView(r)
	resp, pipeErr := s.Pipeline.Handle(r.Context(), rv)
	if pipeErr != nil {
		writeError(w, pipeErr)
		return
	}
	writeResponse(w, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.Liminal != nil && !s.Liminal.IsProductionReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "ritual_phase": s.Liminal.CurrentRitual().String()})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// debugLiminalView is the /debug/liminal JSON body: a snapshot of the
// process-wide adaptive posture (spec.md §3).
type debugLiminalView struct {
	ConsciousnessLevel string `json:"consciousness_level"`
	TemporalProfile    string `json:"temporal_profile"`
	RitualPhase        string `json:"ritual_phase"`
	ProductionReady    bool   `json:"production_ready"`
	TimeUntilProdMs    int64  `json:"time_until_production_ms,omitempty"`
}

func (s *Server) handleDebugLiminal(w http.ResponseWriter, r *http.Request) {
	if s.Liminal == nil {
		http.NotFound(w, r)
		return
	}
	view := debugLiminalView{
		ConsciousnessLevel: s.Liminal.CurrentLevel().String(),
		TemporalProfile:    s.Liminal.CurrentTemporal().String(),
		RitualPhase:        s.Liminal.CurrentRitual().String(),
		ProductionReady:    s.Liminal.IsProductionReady(),
	}
	if !view.ProductionReady {
		view.TimeUntilProdMs = s.Liminal.TimeUntilProduction().Milliseconds()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// ListenAndServe builds an *http.Server with explicit timeouts (grounded on
// api.Server.ListenAndServe) and serves addr, using s.TLSConfig when set.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	readTimeout, writeTimeout, idleTimeout := s.ReadTimeout, s.WriteTimeout, s.IdleTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		TLSConfig:    s.TLSConfig,
	}

	fmt.Printf("daogate: listening on %s\n", addr)
	if s.TLSConfig != nil {
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains the listener started by ListenAndServe. A nil
// receiver server (ListenAndServe never called) is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
