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

package registry

import (
	"testing"
	"time"
)

func newTestSpec() ReloadSpec {
	return ReloadSpec{
		Routes: []Route{
			{Name: "search", Host: "", PathPrefix: "/search", UpstreamNames: []string{"a", "b"}},
		},
		Upstreams: []UpstreamSpec{
			{Name: "a", URL: "http://a.internal", Weight: 1},
			{Name: "b", URL: "http://b.internal", Weight: 2},
		},
	}
}

func TestRegistry_GetRoute(t *testing.T) {
	r := NewRegistry()
	if err := r.Reload(newTestSpec(), PresenceOptions{}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if _, err := r.GetRoute("any-host", "/search/products"); err != nil {
		t.Errorf("GetRoute() error = %v, want match", err)
	}
	if _, err := r.GetRoute("any-host", "/checkout"); err != ErrNoRoute {
		t.Errorf("GetRoute() error = %v, want ErrNoRoute", err)
	}
}

func TestRegistry_UpstreamsFor(t *testing.T) {
	r := NewRegistry()
	if err := r.Reload(newTestSpec(), PresenceOptions{}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	route, err := r.GetRoute("h", "/search")
	if err != nil {
		t.Fatalf("GetRoute() error = %v", err)
	}
	ups := r.UpstreamsFor(route)
	if len(ups) != 2 {
		t.Fatalf("UpstreamsFor() len = %d, want 2", len(ups))
	}
}

func TestRegistry_ReloadPreservesStatsAndDrainsRemoved(t *testing.T) {
	r := NewRegistry()
	if err := r.Reload(newTestSpec(), PresenceOptions{}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	a, ok := r.Upstream("a")
	if !ok {
		t.Fatal("Upstream(a) not found")
	}
	a.Stats.Record(time.Millisecond, true)

	next := ReloadSpec{
		Routes: []Route{
			{Name: "search", PathPrefix: "/search", UpstreamNames: []string{"a"}},
		},
		Upstreams: []UpstreamSpec{
			{Name: "a", URL: "http://a.internal", Weight: 1},
		},
	}
	if err := r.Reload(next, PresenceOptions{}); err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}

	a2, ok := r.Upstream("a")
	if !ok {
		t.Fatal("Upstream(a) not found after reload")
	}
	if a2.Stats.Snapshot().SuccessCount != 1 {
		t.Errorf("SuccessCount after reload = %d, want 1 (stats preserved)", a2.Stats.Snapshot().SuccessCount)
	}

	b, ok := r.Upstream("b")
	if !ok {
		t.Fatal("Upstream(b) should still exist (draining), not deleted")
	}
	if !b.Draining {
		t.Error("Upstream(b).Draining = false, want true after removal from spec")
	}

	r.Prune()
	if _, ok := r.Upstream("b"); ok {
		t.Error("Upstream(b) should be gone after Prune()")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	if err := r.Reload(newTestSpec(), PresenceOptions{}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	a, _ := r.Upstream("a")
	a.Stats.Record(time.Millisecond, true)
	a.Stats.Record(time.Millisecond, false)

	snap := r.Snapshot()
	if snap.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", snap.TotalSuccesses)
	}
	if snap.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", snap.TotalErrors)
	}
}

func TestRegistry_Upstreams(t *testing.T) {
	r := NewRegistry()
	if err := r.Reload(newTestSpec(), PresenceOptions{}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	ups := r.Upstreams()
	if len(ups) != 2 {
		t.Fatalf("len(Upstreams()) = %d, want 2", len(ups))
	}
	names := map[string]bool{}
	for _, u := range ups {
		names[u.Name] = true
	}
	if !names["a"] || !names["b"] {
		t.Errorf("Upstreams() = %v, want a and b", names)
	}
}
