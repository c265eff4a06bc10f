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
	"io"
	"net/http"
)

// RequestView is the codec-produced request shape the pipeline operates on
// (spec.md §6 "HTTP codec" collaborator). It is deliberately not
// *http.Request so the pipeline never depends on the wire-level transport,
// only on method/host/path/header/body accessors.
type RequestView struct {
	Method        string
	Host          string
	Path          string
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// BufferedRequest is a RequestView with its body fully read into memory, the
// shape shadow dispatch and quantum hedging clone across concurrent
// attempts (spec.md §4.D step 6).
type BufferedRequest struct {
	Method string
	Host   string
	Path   string
	Header http.Header
	Body   []byte
}

// Clone returns a shallow copy safe to hand to a second concurrent
// forwarding attempt (each attempt gets its own Header map so per-attempt
// header mutation, e.g. X-Dao-Shadow, never races).
func (b *BufferedRequest) Clone() *BufferedRequest {
	h := make(http.Header, len(b.Header))
	for k, v := range b.Header {
		vv := make([]string, len(v))
		copy(vv, v)
		h[k] = vv
	}
	return &BufferedRequest{Method: b.Method, Host: b.Host, Path: b.Path, Header: h, Body: b.Body}
}

// UpstreamResponse is what a Forwarder returns for one attempt.
type UpstreamResponse struct {
	Status int
	Header http.Header
	Body   []byte
}
