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
	"net/http"
	"sync"
	"testing"
	"time"

	"daogate/internal/gateway/registry"
)

// newEligibleUpstream constructs an upstream and fills its presence window
// with clean successes, so CanSendTraffic() reports true the way a
// warmed-up upstream would in production.
func newEligibleUpstream(t *testing.T, name, rawURL string, intents []string) *registry.Upstream {
	t.Helper()
	u, err := registry.NewUpstream(name, rawURL, intents, 1, registry.PresenceOptions{})
	if err != nil {
		t.Fatalf("NewUpstream(%s): %v", name, err)
	}
	for i := 0; i < 20; i++ {
		u.Stats.Record(time.Millisecond, true)
	}
	return u
}

// attemptSpec describes how a stubForwarder should answer a call for one
// upstream name: an optional delay before responding (to exercise timeouts
// and fastest-of-n races), a response, and/or an error.
type attemptSpec struct {
	delay time.Duration
	resp  *UpstreamResponse
	err   error
}

// stubForwarder resolves a Forward call per upstream name, recording every
// call it receives for assertions. Missing names default to a 200 with no
// delay, so tests only need to configure the upstreams whose behavior
// matters.
type stubForwarder struct {
	mu     sync.Mutex
	byName map[string]attemptSpec
	calls  []string
}

func (f *stubForwarder) Forward(ctx context.Context, u *registry.Upstream, req *BufferedRequest) (*UpstreamResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, u.Name)
	spec, ok := f.byName[u.Name]
	f.mu.Unlock()
	if !ok {
		spec = attemptSpec{resp: &UpstreamResponse{Status: 200, Header: http.Header{}, Body: []byte("ok")}}
	}
	if spec.delay > 0 {
		select {
		case <-time.After(spec.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if spec.err != nil {
		return nil, spec.err
	}
	return spec.resp, nil
}

func (f *stubForwarder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixedIntent struct{ intent string }

func (f fixedIntent) Classify(h http.Header) string { return f.intent }

type noopFilter struct{}

func (noopFilter) ProcessRequest(req *BufferedRequest) *BufferedRequest    { return req }
func (noopFilter) ProcessResponse(resp *UpstreamResponse) *UpstreamResponse { return resp }

// stubAnomalySink records every RecordAnomaly call it receives.
type stubAnomalySink struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubAnomalySink) RecordAnomaly(route string, severityDelta int64, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, route)
}

func (s *stubAnomalySink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
