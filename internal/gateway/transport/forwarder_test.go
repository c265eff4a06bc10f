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
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"daogate/internal/gateway/pipeline"
	"daogate/internal/gateway/pool"
	"daogate/internal/gateway/registry"
)

func testUpstream(t *testing.T, rawURL string) *registry.Upstream {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	presence := registry.NewPresence(registry.PresenceOptions{})
	return &registry.Upstream{Name: "u", URL: u, Stats: registry.NewStats(presence), Presence: presence}
}

func TestHTTPForwarder_Forward_RoundTripsMethodPathAndBody(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		buf := make([]byte, 5)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Header().Set("X-Up", "yes")
		w.WriteHeader(201)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := pool.New(2, time.Minute, 0)
	f := NewHTTPForwarder(p)
	up := testUpstream(t, srv.URL)

	req := &pipeline.BufferedRequest{Method: "POST", Path: "/api/x?q=1", Header: http.Header{}, Body: []byte("hello")}
	resp, err := f.Forward(context.Background(), up, req)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotMethod != "POST" {
		t.Errorf("upstream saw method %q, want POST", gotMethod)
	}
	if gotPath != "/api/x?q=1" {
		t.Errorf("upstream saw path %q, want /api/x?q=1", gotPath)
	}
	if gotBody != "hello" {
		t.Errorf("upstream saw body %q, want hello", gotBody)
	}
	if resp.Status != 201 {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	if resp.Header.Get("X-Up") != "yes" {
		t.Errorf("missing upstream response header")
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Body = %q, want ok", resp.Body)
	}
}

func TestHTTPForwarder_Forward_PropagatesDialError(t *testing.T) {
	p := pool.New(2, time.Minute, 0)
	f := NewHTTPForwarder(p)
	up := testUpstream(t, "http://127.0.0.1:1")

	req := &pipeline.BufferedRequest{Method: "GET", Path: "/", Header: http.Header{}}
	_, err := f.Forward(context.Background(), up, req)
	if err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
}
