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

	"daogate/internal/gateway/registry"
)

// Forwarder sends a buffered request to one upstream and returns its
// response (spec.md §6 "Connection pool": client_for(url) → Client;
// Client.send(buffered) → Response). Implementations own dial/write/read
// suspension points and MUST respect ctx cancellation.
type Forwarder interface {
	Forward(ctx context.Context, u *registry.Upstream, req *BufferedRequest) (*UpstreamResponse, error)
}

// IntentClassifier infers an intent tag from request headers (spec.md §6).
// An empty string means "no intent" (matches any upstream in Policy).
type IntentClassifier interface {
	Classify(h http.Header) string
}

// FilterChain is the WASM filter-chain collaborator contract (spec.md §6).
// process_request/process_response may rewrite the request/response;
// daogate ships only a no-op FakeFilterChain since WASM execution is out of
// scope (spec.md Non-goals).
type FilterChain interface {
	ProcessRequest(req *BufferedRequest) *BufferedRequest
	ProcessResponse(resp *UpstreamResponse) *UpstreamResponse
}

// AnomalySink receives one echo-anomaly observation per route (spec.md
// §4.B: echo analysis feeding the journal's commit/eviction worker).
// internal/gateway/journal.Worker satisfies this; it is wired onto
// Pipeline.AnomalySink post-construction rather than threaded through New,
// so existing callers that don't care about journaling are unaffected.
type AnomalySink interface {
	RecordAnomaly(route string, severityDelta int64, rate float64)
}
