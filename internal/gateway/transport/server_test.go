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

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/pipeline"
	"daogate/internal/gateway/pool"
	"daogate/internal/gateway/registry"
)

func newProductionServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	reg := registry.NewRegistry()
	err := reg.Reload(registry.ReloadSpec{
		Routes:    []registry.Route{{Name: "r", PathPrefix: "/", UpstreamNames: []string{"a"}}},
		Upstreams: []registry.UpstreamSpec{{Name: "a", URL: upstreamURL, Weight: 1}},
	}, registry.PresenceOptions{})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	u, _ := reg.Upstream("a")
	for i := 0; i < 20; i++ {
		u.Stats.Record(time.Millisecond, true)
	}

	ctrl := liminal.NewControllerStartedAt(time.Now().Add(-time.Hour))
	ctrl.Update(liminal.AwarenessFactors{})
	if !ctrl.IsProductionReady() {
		t.Fatal("controller not production ready")
	}

	p := pool.New(2, time.Minute, 0)
	fwd := NewHTTPForwarder(p)
	pl := pipeline.New(reg, ctrl, fwd, NewHeaderIntentClassifier(""), FakeFilterChain{}, pipeline.NewDispatchPool(pipeline.DispatchPoolOptions{Buffer: 4, Workers: 1}), pipeline.Options{})

	return &Server{Pipeline: pl, Liminal: ctrl}
}

func TestServer_HandleProxy_ForwardsToUpstream(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("from upstream"))
	}))
	defer up.Close()

	s := newProductionServer(t, up.URL)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest("GET", "http://example.com/anything", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Code = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "from upstream" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "from upstream")
	}
	if rec.Header().Get("X-Dao-Upstream") != "a" {
		t.Errorf("X-Dao-Upstream = %q, want a", rec.Header().Get("X-Dao-Upstream"))
	}
}

func TestServer_HandleProxy_NoRouteReturns404(t *testing.T) {
	s := newProductionServer(t, "http://127.0.0.1:1")
	reg := registry.NewRegistry() // empty: no routes at all
	s.Pipeline.Registry = reg

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	req := httptest.NewRequest("GET", "http://example.com/x", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Errorf("Code = %d, want 404", rec.Code)
	}
}

func TestServer_HandleHealthz_OKWhenProductionReady(t *testing.T) {
	s := newProductionServer(t, "http://127.0.0.1:1")
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("Code = %d, want 200", rec.Code)
	}
}

func TestServer_HandleHealthz_ServiceUnavailableBeforeProduction(t *testing.T) {
	s := newProductionServer(t, "http://127.0.0.1:1")
	s.Liminal = liminal.NewController() // fresh: still in Preparation

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != 503 {
		t.Errorf("Code = %d, want 503", rec.Code)
	}
}

func TestServer_HandleDebugLiminal_ReportsState(t *testing.T) {
	s := newProductionServer(t, "http://127.0.0.1:1")
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest("GET", "/debug/liminal", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Code = %d, want 200", rec.Code)
	}
	var view debugLiminalView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if view.RitualPhase != "production" {
		t.Errorf("RitualPhase = %q, want production", view.RitualPhase)
	}
	if !view.ProductionReady {
		t.Error("ProductionReady = false, want true")
	}
}
