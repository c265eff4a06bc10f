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

package pipeline

import (
	"context"
	"io"
	"math/rand"
	"time"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/policy"
	"daogate/internal/gateway/registry"
)

// CollapseStrategy selects how a quantum hedge's concurrent attempts
// resolve into a single winner (spec.md §4.D.2).
type CollapseStrategy int

const (
	FirstSuccess CollapseStrategy = iota
	FirstAny
	FastestOfN
)

// QuantumOptions configures hedged routing.
type QuantumOptions struct {
	Enabled      bool
	Factor       int // number of upstreams to hedge across, >= 2
	HedgeTimeout time.Duration
	Collapse     CollapseStrategy
}

// Options bundles the pipeline-wide knobs sourced from config (spec.md §6).
type Options struct {
	MaxBufferBytes      int64
	Quantum             QuantumOptions
	PolicyWeights       policy.Weights
	IncludeShadowInEcho bool
	Zones               []ZoneBand
}

// Pipeline is the Request Pipeline orchestrator (spec.md §4.D): it owns no
// state of its own beyond its collaborators, reading Registry and Liminal
// snapshots fresh on every request.
type Pipeline struct {
	Registry  *registry.Registry
	Liminal   *liminal.Controller
	Forwarder Forwarder
	Intent    IntentClassifier
	Filter    FilterChain
	Dispatch  *DispatchPool
	Opts      Options

	// AnomalySink is optional: when set, every fresh echo anomaly (spec.md
	// §4.B) is also reported to it, feeding the journal's commit/eviction
	// worker. Left nil, anomalies are still tracked by Liminal's echo
	// analyzer but never reach a durability backend.
	AnomalySink AnomalySink

	now    func() time.Time
	random func() float64
}

// New constructs a Pipeline. Filter may be nil (treated as a no-op chain).
func New(reg *registry.Registry, ctrl *liminal.Controller, fwd Forwarder, intent IntentClassifier, filter FilterChain, dispatch *DispatchPool, opts Options) *Pipeline {
	return &Pipeline{
		Registry:  reg,
		Liminal:   ctrl,
		Forwarder: fwd,
		Intent:    intent,
		Filter:    filter,
		Dispatch:  dispatch,
		Opts:      opts,
		now:       time.Now,
		random:    rand.Float64,
	}
}

// outcome is the terminal result of Handle before response headers are
// finalized by the caller (spec.md §6 "Response header contract").
type outcome struct {
	resp       *UpstreamResponse
	upstream   *registry.Upstream
	latency    time.Duration
	success    bool
	pipelineEr *Error
}

// Handle runs the full ten-step pipeline for one request and returns either
// a response (always non-nil on success, possibly a zone-fallback or
// ritual-gate canned response) or a pipeline error the caller renders as
// the error-handling policy table specifies.
func (p *Pipeline) Handle(ctx context.Context, rv *RequestView) (*UpstreamResponse, *Error) {
	// Step 1: ritual gate.
	if !p.Liminal.IsProductionReady() {
		e := newError(KindNotProductionReady, 503, nil)
		e.RetryAfter = p.Liminal.TimeUntilProduction()
		return nil, e
	}

	// Step 2: route match.
	route, err := p.Registry.GetRoute(rv.Host, rv.Path)
	if err != nil {
		return nil, newError(KindNoRoute, 404, err)
	}

	// Step 3: presence filter.
	all := p.Registry.UpstreamsFor(route)
	eligible := make([]*registry.Upstream, 0, len(all))
	for _, u := range all {
		if !u.Draining && u.Presence.CanSendTraffic() {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		e := newError(KindNoEligibleUpstream, 503, nil)
		e.RetryAfter = 5 * time.Second
		return nil, e
	}

	// Step 4: level snapshot.
	level := p.Liminal.CurrentLevel()
	profile := p.Liminal.CurrentTemporal()
	fastLimitMs, slowLimitMs := p.Liminal.AdaptiveThresholds()
	intent := ""
	if p.Intent != nil {
		intent = p.Intent.Classify(rv.Header)
	}

	// Step 5: alignment.
	ranked, err := policy.Rank(p.Opts.PolicyWeights, buildCandidates(eligible, fastLimitMs, slowLimitMs), intent, level, profile)
	if err != nil {
		return nil, newError(KindNoEligibleUpstream, 503, err)
	}
	primary := ranked[0]

	// Step 6: optional buffering.
	shadowTriggers := route.Shadow.Enabled && p.random() < route.Shadow.Rate
	quantumWanted := p.Opts.Quantum.Enabled && level >= liminal.Vigilant && len(ranked) >= 2
	if !route.HedgeAll {
		switch rv.Method {
		case "GET", "HEAD", "OPTIONS":
		default:
			quantumWanted = false
		}
	}
	wantsBuffer := shadowTriggers || quantumWanted

	var buffered *BufferedRequest
	bufferOK := false
	if wantsBuffer {
		if rv.ContentLength > 0 && p.Opts.MaxBufferBytes > 0 && rv.ContentLength > p.Opts.MaxBufferBytes {
			// Buffer too large: proceed without shadow/quantum, single forward only.
		} else {
			body, berr := readBounded(rv.Body, p.Opts.MaxBufferBytes)
			if berr != nil {
				// Treat a body read failure identically to "too large": skip
				// the dependent features rather than failing the request.
			} else {
				buffered = &BufferedRequest{Method: rv.Method, Host: rv.Host, Path: rv.Path, Header: rv.Header, Body: body}
				bufferOK = true
			}
		}
	}
	if buffered == nil {
		body, _ := readBounded(rv.Body, -1)
		buffered = &BufferedRequest{Method: rv.Method, Host: rv.Host, Path: rv.Path, Header: rv.Header, Body: body}
	}
	if p.Filter != nil {
		buffered = p.Filter.ProcessRequest(buffered)
	}

	// Step 7: shadow dispatch. Compare mode needs a shadow response to diff
	// against the primary, which isn't known yet; it is captured here and
	// compared once the primary forward (step 8/9) completes.
	var shadowResp *UpstreamResponse
	compareMode := route.Shadow.Mode == registry.ShadowCompare
	if shadowTriggers && bufferOK && route.Shadow.ShadowUpstream != "" {
		shadowResp = p.dispatchShadow(ctx, route, buffered)
	}

	// Step 8/9: forward (single or quantum hedge) with deadline + zone
	// fallback on timeout.
	deadline := route.EffectiveDeadline()
	reqCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := p.now()
	var oc outcome
	if quantumWanted && bufferOK {
		oc = p.forwardQuantum(reqCtx, ranked, buffered)
	} else {
		oc = p.forwardSingle(reqCtx, primary, buffered)
	}
	elapsed := p.now().Sub(start)

	if oc.pipelineEr != nil && oc.pipelineEr.Kind == KindUpstreamTimeout {
		zr := zoneFor(elapsed, deadline, p.Opts.Zones)
		resp := &UpstreamResponse{Status: zr.Status, Header: make(map[string][]string), Body: []byte(zr.Body)}
		p.record(route, oc.upstream, elapsed, false, oc.pipelineEr.Status)
		return resp, nil
	}
	if oc.pipelineEr != nil {
		p.record(route, oc.upstream, elapsed, false, oc.pipelineEr.Status)
		return nil, oc.pipelineEr
	}

	// Step 10: record.
	p.record(route, oc.upstream, oc.latency, oc.success, oc.resp.Status)
	if compareMode && shadowResp != nil && compareResponses(oc.resp, shadowResp) {
		if p.Opts.IncludeShadowInEcho {
			p.Liminal.RecordEcho(route.Name, shadowResp.Status, oc.latency)
		}
		p.Liminal.Echo().RecordShadowDiff(route.Name, oc.resp.Status, shadowResp.Status)
	}

	resp := oc.resp
	if p.Filter != nil {
		resp = p.Filter.ProcessResponse(resp)
	}
	if resp.Header == nil {
		resp.Header = make(map[string][]string)
	}
	resp.Header.Set("X-Dao-Upstream", oc.upstream.Name)
	resp.Header.Set("X-Dao-Consciousness", level.String())
	return resp, nil
}

func (p *Pipeline) record(route registry.Route, u *registry.Upstream, latency time.Duration, success bool, status int) {
	if u == nil {
		return
	}
	p.Registry.Record(u, latency, success)
	tripped := p.Liminal.RecordEcho(route.Name, status, latency)
	if tripped && p.AnomalySink != nil {
		p.AnomalySink.RecordAnomaly(route.Name, 1, u.Stats.Snapshot().ErrorRate())
	}
}

func buildCandidates(ups []*registry.Upstream, fastLimitMs, slowLimitMs float64) []policy.Candidate {
	fastLimitMicros := int64(fastLimitMs * 1000)
	slowLimitMicros := int64(slowLimitMs * 1000)
	out := make([]policy.Candidate, len(ups))
	for i, u := range ups {
		out[i] = policy.Candidate{
			Upstream: u,
			RPS:      u.Stats.CurrentRPS(),
			Bucket:   u.TemporalBucket(fastLimitMicros, slowLimitMicros),
		}
	}
	return out
}

// readBounded reads r fully, refusing to read past max bytes when max > 0.
// A nil r yields an empty body.
func readBounded(r io.ReadCloser, max int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	defer r.Close()
	if max > 0 {
		return io.ReadAll(io.LimitReader(r, max+1))
	}
	return io.ReadAll(r)
}
