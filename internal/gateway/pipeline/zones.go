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
	"math"
	"time"
)

// ZoneResponse is a canned intermediate response the zone fallback table
// returns instead of propagating a raw timeout to the client (spec.md
// §4.D.3).
type ZoneResponse struct {
	Status int
	Body   string
}

var (
	zoneProcessing = ZoneResponse{Status: 202, Body: `{"status":"processing"}`}
	zoneRetry      = ZoneResponse{Status: 503, Body: `{"status":"please retry"}`}
	zoneTimeout    = ZoneResponse{Status: 504, Body: `{"status":"gateway timeout"}`}
)

// ZoneBand is one entry of the configurable elapsed/deadline ratio table
// (spec.md §6 "zones.bands"). Bands are evaluated in order; the first band
// whose MaxRatio is not exceeded wins. The last band in a table should
// carry a MaxRatio of +Inf so every ratio resolves to something.
type ZoneBand struct {
	MaxRatio float64
	Status   int
	Body     string
}

// DefaultZoneBands is the built-in table used when a route/config supplies
// none: 0-80% processing, 80-100% retry, beyond deadline timeout.
var DefaultZoneBands = []ZoneBand{
	{MaxRatio: 0.8, Status: zoneProcessing.Status, Body: zoneProcessing.Body},
	{MaxRatio: 1.0, Status: zoneRetry.Status, Body: zoneRetry.Body},
	{MaxRatio: math.Inf(1), Status: zoneTimeout.Status, Body: zoneTimeout.Body},
}

// zoneFor picks the canned response band for elapsed time against a
// deadline, per spec.md §4.D.3's elapsed-band table. Callers only invoke
// this once a forward has actually timed out or is being abandoned, so the
// 0-50% "not applicable" band is never requested in practice — it exists
// in the spec table only to document that early timeouts don't occur.
// A nil/empty bands slice falls back to DefaultZoneBands.
func zoneFor(elapsed, deadline time.Duration, bands []ZoneBand) ZoneResponse {
	if len(bands) == 0 {
		bands = DefaultZoneBands
	}
	if deadline <= 0 {
		last := bands[len(bands)-1]
		return ZoneResponse{Status: last.Status, Body: last.Body}
	}
	ratio := float64(elapsed) / float64(deadline)
	for _, b := range bands {
		if ratio <= b.MaxRatio {
			return ZoneResponse{Status: b.Status, Body: b.Body}
		}
	}
	last := bands[len(bands)-1]
	return ZoneResponse{Status: last.Status, Body: last.Body}
}
