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
	"net/http"
	"strconv"
	"time"

	"daogate/internal/gateway/pipeline"
)

// requestView adapts an inbound *http.Request into a pipeline.RequestView
// (spec.md §6 "HTTP codec" collaborator). Path carries the full
// request-URI (path + query) so a forwarded request reaches the upstream
// with its query string intact; registry route matching only ever does a
// prefix check against it, so the trailing "?..." never affects matching.
func requestView(r *http.Request) *pipeline.RequestView {
	return &pipeline.RequestView{
		Method:        r.Method,
		Host:          r.Host,
		Path:          r.URL.RequestURI(),
		Header:        r.Header,
		ContentLength: r.ContentLength,
		Body:          r.Body,
	}
}

// writeResponse copies an UpstreamResponse onto w, used on the pipeline
// success path.
func writeResponse(w http.ResponseWriter, resp *pipeline.UpstreamResponse) {
	dst := w.Header()
	for k, v := range resp.Header {
		dst[k] = v
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

// writeError renders a pipeline.Error per the error-handling policy table
// (spec.md §7): status code plus an optional Retry-After header.
func writeError(w http.ResponseWriter, err *pipeline.Error) {
	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", formatRetryAfterSeconds(err.RetryAfter))
	}
	http.Error(w, err.Error(), err.Status)
}

func formatRetryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
