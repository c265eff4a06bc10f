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

import "daogate/internal/gateway/pipeline"

// FakeFilterChain is the no-op pipeline.FilterChain daogate ships: WASM
// filter execution is out of scope (spec.md Non-goals), so process_request
// and process_response both return their input unchanged.
type FakeFilterChain struct{}

func (FakeFilterChain) ProcessRequest(req *pipeline.BufferedRequest) *pipeline.BufferedRequest {
	return req
}

func (FakeFilterChain) ProcessResponse(resp *pipeline.UpstreamResponse) *pipeline.UpstreamResponse {
	return resp
}
