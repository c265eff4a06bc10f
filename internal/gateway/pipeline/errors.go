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

// Package pipeline implements the Request Pipeline orchestrator: the
// per-request sequence of ritual gate, route match, presence filter,
// alignment, optional buffering, shadow dispatch, forward-or-hedge,
// timeout/zone fallback, and recording.
package pipeline

import (
	"fmt"
	"time"
)

// ErrorKind classifies a pipeline failure for the error-handling policy
// table.
type ErrorKind int

const (
	KindNoRoute ErrorKind = iota
	KindNoEligibleUpstream
	KindBufferTooLarge
	KindUpstreamDial
	KindUpstreamIO
	KindUpstreamTimeout
	KindQuantumAllFailed
	KindConfigInvalid
	KindInternal
	// KindNotProductionReady is the ritual-gate rejection (spec.md §4.D step
	// 1), distinct from KindNoEligibleUpstream's fixed Retry-After: this one
	// carries the controller's actual estimated time to Production.
	KindNotProductionReady
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoRoute:
		return "no_route"
	case KindNoEligibleUpstream:
		return "no_eligible_upstream"
	case KindBufferTooLarge:
		return "buffer_too_large"
	case KindUpstreamDial:
		return "upstream_dial"
	case KindUpstreamIO:
		return "upstream_io"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindQuantumAllFailed:
		return "quantum_all_failed"
	case KindConfigInvalid:
		return "config_invalid"
	case KindNotProductionReady:
		return "not_production_ready"
	default:
		return "internal"
	}
}

// Error is the single concrete error type every pipeline stage returns,
// following the teacher's preference for a flat struct over an error
// hierarchy (pkg/vsa's Options/State shape, not a tree of wrapped sentinel
// types per failure site).
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error

	// RetryAfter is set for KindNoEligibleUpstream (fixed 5s, spec.md §7) and
	// KindNotProductionReady (the controller's actual estimated time to
	// Production, spec.md §4.D step 1). Zero means the caller should not
	// emit a Retry-After header.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pipeline: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// newError constructs an *Error, defaulting Status per the policy table in
// spec.md §7 when status is 0.
func newError(kind ErrorKind, status int, err error) *Error {
	if status == 0 {
		status = defaultStatus(kind)
	}
	return &Error{Kind: kind, Status: status, Err: err}
}

func defaultStatus(kind ErrorKind) int {
	switch kind {
	case KindNoRoute:
		return 404
	case KindNoEligibleUpstream:
		return 503
	case KindUpstreamIO, KindQuantumAllFailed:
		return 502
	case KindUpstreamTimeout:
		return 504
	case KindNotProductionReady:
		return 503
	default:
		return 500
	}
}
