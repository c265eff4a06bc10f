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
	"errors"
	"time"

	"daogate/internal/gateway/registry"
)

// forwardSingle performs an ordinary single forward to one upstream,
// classifying the result into an outcome (spec.md §4.D step 8).
func (p *Pipeline) forwardSingle(ctx context.Context, u *registry.Upstream, req *BufferedRequest) outcome {
	start := p.now()
	resp, err := p.Forwarder.Forward(ctx, u, req)
	latency := p.now().Sub(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return outcome{upstream: u, latency: latency, pipelineEr: newError(KindUpstreamTimeout, 504, err)}
		}
		return outcome{upstream: u, latency: latency, pipelineEr: newError(KindUpstreamIO, 502, err)}
	}
	success := resp.Status < 500
	return outcome{resp: resp, upstream: u, latency: latency, success: success}
}

// attemptResult is one quantum hedge attempt's outcome, used internally to
// feed the collapse strategies.
type attemptResult struct {
	upstream *registry.Upstream
	resp     *UpstreamResponse
	latency  time.Duration
	err      error
}

// forwardQuantum hedges across the top-factor ranked upstreams concurrently
// (spec.md §4.D.2). Losers are cancelled via ctx; their latency is still
// recorded against their own upstream stats as a "cancelled" outcome (no
// error, no success), and record_echo is never invoked for them.
func (p *Pipeline) forwardQuantum(ctx context.Context, ranked []*registry.Upstream, req *BufferedRequest) outcome {
	factor := p.Opts.Quantum.Factor
	if factor < 2 {
		factor = 2
	}
	if factor > len(ranked) {
		factor = len(ranked)
	}
	attempts := ranked[:factor]

	hedgeCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	results := make(chan attemptResult, len(attempts))
	for _, u := range attempts {
		u := u
		attemptCtx := hedgeCtx
		if p.Opts.Quantum.HedgeTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(hedgeCtx, p.Opts.Quantum.HedgeTimeout)
			defer cancel()
		}
		go func() {
			start := p.now()
			resp, err := p.Forwarder.Forward(attemptCtx, u, req.Clone())
			results <- attemptResult{upstream: u, resp: resp, latency: p.now().Sub(start), err: err}
		}()
	}

	switch p.Opts.Quantum.Collapse {
	case FirstAny:
		return p.collapseFirstAny(results, len(attempts), cancelAll)
	case FastestOfN:
		return p.collapseFastestOfN(results, len(attempts))
	default: // FirstSuccess
		return p.collapseFirstSuccess(results, len(attempts), cancelAll)
	}
}

func (p *Pipeline) collapseFirstSuccess(results <-chan attemptResult, n int, cancelAll context.CancelFunc) outcome {
	var lastErr attemptResult
	haveErr := false
	for i := 0; i < n; i++ {
		r := <-results
		if r.err == nil && r.resp != nil && r.resp.Status < 500 {
			cancelAll()
			p.drainCancelledLosers(results, n-i-1)
			return outcome{resp: r.resp, upstream: r.upstream, latency: r.latency, success: true}
		}
		lastErr = r
		haveErr = true
	}
	if haveErr {
		return outcome{upstream: lastErr.upstream, latency: lastErr.latency, pipelineEr: newError(KindQuantumAllFailed, 502, lastErr.err)}
	}
	return outcome{pipelineEr: newError(KindQuantumAllFailed, 502, nil)}
}

func (p *Pipeline) collapseFirstAny(results <-chan attemptResult, n int, cancelAll context.CancelFunc) outcome {
	r := <-results
	cancelAll()
	p.drainCancelledLosers(results, n-1)
	if r.err != nil {
		return outcome{upstream: r.upstream, latency: r.latency, pipelineEr: newError(KindQuantumAllFailed, 502, r.err)}
	}
	return outcome{resp: r.resp, upstream: r.upstream, latency: r.latency, success: r.resp.Status < 500}
}

func (p *Pipeline) collapseFastestOfN(results <-chan attemptResult, n int) outcome {
	var best *attemptResult
	var lastErr attemptResult
	haveErr := false
	for i := 0; i < n; i++ {
		r := <-results
		if r.err == nil && r.resp != nil && r.resp.Status < 500 {
			if best == nil || r.latency < best.latency {
				rr := r
				best = &rr
			}
		} else {
			lastErr = r
			haveErr = true
		}
	}
	if best != nil {
		return outcome{resp: best.resp, upstream: best.upstream, latency: best.latency, success: true}
	}
	if haveErr {
		return outcome{upstream: lastErr.upstream, latency: lastErr.latency, pipelineEr: newError(KindQuantumAllFailed, 502, lastErr.err)}
	}
	return outcome{pipelineEr: newError(KindQuantumAllFailed, 502, nil)}
}

// drainCancelledLosers records the remaining in-flight attempts' stats as
// cancelled outcomes (no success, no error) once a winner has been chosen,
// per spec.md §4.D.2's cancellation contract.
func (p *Pipeline) drainCancelledLosers(results <-chan attemptResult, remaining int) {
	for i := 0; i < remaining; i++ {
		r := <-results
		if r.upstream != nil {
			p.Registry.RecordCancelled(r.upstream, r.latency)
		}
	}
}
