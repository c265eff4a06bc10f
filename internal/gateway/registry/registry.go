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
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNoRoute is returned by GetRoute when no route matches (spec.md §7).
var ErrNoRoute = errors.New("registry: no matching route")

// ShadowMode selects how a route's shadow traffic is dispatched (spec.md
// §4.D.1).
type ShadowMode int

const (
	ShadowDisabled ShadowMode = iota
	ShadowAsync
	ShadowSync
	ShadowCompare
)

// ShadowConfig configures shadow traffic duplication for a route.
type ShadowConfig struct {
	Enabled        bool
	ShadowUpstream string
	Rate           float64 // [0,1]
	Mode           ShadowMode
}

// Route binds a host/path match to a weighted set of upstreams plus the
// per-route knobs the Request Pipeline needs (spec.md §4.D).
type Route struct {
	Name          string
	Host          string // exact match, "" matches any host
	PathPrefix    string
	UpstreamNames []string
	Deadline      time.Duration // default 30s, spec.md §4.D step 9
	HedgeAll      bool          // spec.md §9: quantum normally GET/HEAD/OPTIONS only
	Shadow        ShadowConfig
}

func (r Route) matches(host, path string) bool {
	if r.Host != "" && r.Host != host {
		return false
	}
	return strings.HasPrefix(path, r.PathPrefix)
}

// EffectiveDeadline returns the route's forwarding deadline, defaulting to
// 30s when unset (spec.md §4.D step 9).
func (r Route) EffectiveDeadline() time.Duration {
	if r.Deadline <= 0 {
		return 30 * time.Second
	}
	return r.Deadline
}

// Registry owns upstream state, rolling stats, and per-upstream presence
// detectors (spec.md §4.A). It is the exclusive writer of Upstream state;
// readers (the pipeline, the liminal update loop) only ever take the RW
// lock briefly.
type Registry struct {
	mu        sync.RWMutex
	routes    []Route
	upstreams map[string]*Upstream // keyed by upstream name, global across routes
}

// NewRegistry constructs an empty Registry. Use Reload to install a route
// table and upstream set.
func NewRegistry() *Registry {
	return &Registry{upstreams: make(map[string]*Upstream)}
}

// GetRoute resolves the route matching (host, path). Routes are evaluated
// in registration order; the first match wins, mirroring a typical
// longest-registered-prefix-first config convention.
func (r *Registry) GetRoute(host, path string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.routes {
		if route.matches(host, path) {
			return route, nil
		}
	}
	return Route{}, ErrNoRoute
}

// UpstreamsFor returns the live Upstream objects for a route's declared
// upstream names, skipping any that have been removed from the registry
// entirely (as opposed to merely draining).
func (r *Registry) UpstreamsFor(route Route) []*Upstream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Upstream, 0, len(route.UpstreamNames))
	for _, name := range route.UpstreamNames {
		if u, ok := r.upstreams[name]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Upstream looks up a single upstream by name.
func (r *Registry) Upstream(name string) (*Upstream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.upstreams[name]
	return u, ok
}

// Upstreams returns every upstream currently known to the registry,
// including ones marked Draining. Used by reporting/introspection callers
// (telemetry's periodic reporter, the /debug/liminal handler) that need to
// enumerate state rather than resolve a single name.
func (r *Registry) Upstreams() []*Upstream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Upstream, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		out = append(out, u)
	}
	return out
}

// Record atomically updates stats and presence for an upstream. Both
// updates are visible to subsequent readers before Record returns
// (spec.md §4.A).
func (r *Registry) Record(u *Upstream, latency time.Duration, success bool) {
	u.Stats.Record(latency, success)
}

// RecordCancelled records a quantum-hedge loser's latency without affecting
// success/error counters or presence (spec.md §4.D.2).
func (r *Registry) RecordCancelled(u *Upstream, latency time.Duration) {
	u.Stats.RecordCancelled(latency)
}

// ReloadSpec is the blended view of a config snapshot the Registry rebuilds
// itself from on each metamorphic tick (spec.md §4.E): added upstreams
// appear immediately, removed ones are marked draining until progress
// reaches 1 and Prune is called.
type ReloadSpec struct {
	Routes    []Route
	Upstreams []UpstreamSpec
}

// UpstreamSpec is the declarative shape of an upstream as read from config.
type UpstreamSpec struct {
	Name    string
	URL     string
	Intents []string
	Weight  uint
}

// Reload rebuilds the route table and upstream set from spec. Existing
// upstreams keep their live Stats/Presence (so a reload never resets
// health history); new ones are constructed fresh; upstreams no longer
// named anywhere are marked Draining rather than deleted immediately.
func (r *Registry) Reload(spec ReloadSpec, presenceOpts PresenceOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(spec.Upstreams))
	for _, us := range spec.Upstreams {
		seen[us.Name] = struct{}{}
		if existing, ok := r.upstreams[us.Name]; ok {
			existing.Draining = false
			existing.Weight = us.Weight
			continue
		}
		u, err := NewUpstream(us.Name, us.URL, us.Intents, us.Weight, presenceOpts)
		if err != nil {
			return err
		}
		r.upstreams[us.Name] = u
	}
	for name, u := range r.upstreams {
		if _, ok := seen[name]; !ok {
			u.Draining = true
		}
	}
	r.routes = spec.Routes
	return nil
}

// Prune deletes upstreams marked Draining. Called once a metamorphic
// transition that removed them reaches progress 1 (spec.md §4.E).
func (r *Registry) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, u := range r.upstreams {
		if u.Draining {
			delete(r.upstreams, name)
		}
	}
}

// AwarenessSnapshot is the raw aggregate this package can compute on its
// own, without any liminal-specific types, to avoid a registry->liminal
// import cycle's mirror image: liminal.AwarenessFactors is built from this
// by the update-loop caller (cmd/daogate wiring), keeping registry and
// liminal mutually unaware of each other per spec.md §9 "Design Notes".
type AwarenessSnapshot struct {
	TotalRPS       float64
	TotalSuccesses uint64
	TotalErrors    uint64
	MaxP95Micros   int64
}

// Snapshot computes an AwarenessSnapshot by summing/maxing across all
// upstreams under the registry read lock, taking each upstream's stats lock
// briefly and no liminal lock (spec.md §5 lock order: pool < upstream.stats < liminal).
func (r *Registry) Snapshot() AwarenessSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out AwarenessSnapshot
	for _, u := range r.upstreams {
		s := u.Stats.Snapshot()
		out.TotalRPS += s.RPS
		out.TotalSuccesses += s.SuccessCount
		out.TotalErrors += s.ErrorCount
		if s.P95Micros > out.MaxP95Micros {
			out.MaxP95Micros = s.P95Micros
		}
	}
	return out
}
