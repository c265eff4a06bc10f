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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"daogate/internal/gateway/pipeline"
	"daogate/internal/gateway/pool"
	"daogate/internal/gateway/registry"
)

// HTTPForwarder implements pipeline.Forwarder over net/http, pulling one
// *http.Client per upstream from the connection pool (spec.md §6
// "Connection pool" collaborator).
type HTTPForwarder struct {
	Pool *pool.Pool
}

// NewHTTPForwarder constructs an HTTPForwarder backed by p.
func NewHTTPForwarder(p *pool.Pool) HTTPForwarder {
	return HTTPForwarder{Pool: p}
}

func (f HTTPForwarder) Forward(ctx context.Context, u *registry.Upstream, req *pipeline.BufferedRequest) (*pipeline.UpstreamResponse, error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return nil, fmt.Errorf("transport: parse request path %q: %w", req.Path, err)
	}
	target := u.URL.ResolveReference(ref)
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header = req.Header.Clone()

	client := f.Pool.Client(u.URL.String())
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read upstream body: %w", err)
	}
	return &pipeline.UpstreamResponse{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}
