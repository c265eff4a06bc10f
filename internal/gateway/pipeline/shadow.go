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

	"daogate/internal/gateway/registry"
)

const shadowHeader = "X-Dao-Shadow"

// dispatchShadow handles spec.md §4.D.1. Async fires-and-forgets on the
// dispatch pool. Sync blocks the caller on the shadow attempt (the outcome
// is still ignored for the client response). Compare also blocks the
// caller, but returns the shadow response so Handle can diff it against the
// primary once that's known, rather than comparing here with nothing to
// compare against yet. Shadow failures MUST NOT affect the client response
// in any mode — every path here swallows its own forwarding error beyond
// recording it to Registry stats.
func (p *Pipeline) dispatchShadow(ctx context.Context, route registry.Route, req *BufferedRequest) *UpstreamResponse {
	shadowUp, ok := p.Registry.Upstream(route.Shadow.ShadowUpstream)
	if !ok || !shadowUp.Presence.CanSendTraffic() {
		return nil
	}

	clone := req.Clone()
	clone.Header.Set(shadowHeader, "1")

	switch route.Shadow.Mode {
	case registry.ShadowSync:
		p.forwardShadowAttempt(ctx, shadowUp, clone)
		return nil
	case registry.ShadowCompare:
		return p.forwardShadowAttempt(ctx, shadowUp, clone)
	default: // registry.ShadowAsync and any unrecognized mode: fire-and-forget
		// Detached from ctx: spec.md §5 requires async shadow tasks to run
		// to completion or their own deadline, never cancelled by the
		// client disconnecting mid-request.
		detached := context.WithoutCancel(ctx)
		detached, cancel := context.WithTimeout(detached, route.EffectiveDeadline())
		submitted := p.Dispatch.TrySubmit(func() {
			defer cancel()
			p.forwardShadowAttempt(detached, shadowUp, clone)
		})
		if !submitted {
			cancel()
		}
		return nil
	}
}

func (p *Pipeline) forwardShadowAttempt(ctx context.Context, u *registry.Upstream, req *BufferedRequest) *UpstreamResponse {
	start := p.now()
	resp, err := p.Forwarder.Forward(ctx, u, req)
	latency := p.now().Sub(start)
	success := err == nil && resp != nil && resp.Status < 500
	p.Registry.Record(u, latency, success)
	if err != nil {
		return nil
	}
	return resp
}

// compareResponses reports whether a shadow response's status differs from
// the primary's, the minimal "status code diff" spec.md §4.D.1 names.
func compareResponses(primary, shadow *UpstreamResponse) bool {
	if primary == nil || shadow == nil {
		return primary != shadow
	}
	return primary.Status != shadow.Status
}
