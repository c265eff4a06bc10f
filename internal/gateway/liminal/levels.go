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

// Package liminal holds the process-wide adaptive posture of the gateway:
// consciousness level, temporal profile, echo anomaly analysis, ritual
// startup phase, and the metamorphic config transitions it ticks forward.
// State here is tagged-variant, not class hierarchies (spec.md §9 "Design
// Notes" — enums over inheritance), so transitions are a flat match on the
// tag and trivially serializable for /debug/liminal.
package liminal

import "time"

// ConsciousnessLevel is a totally ordered four-valued adaptive posture.
type ConsciousnessLevel int

const (
	Dormant ConsciousnessLevel = iota
	Aware
	Vigilant
	Transcendent
)

func (l ConsciousnessLevel) String() string {
	switch l {
	case Aware:
		return "aware"
	case Vigilant:
		return "vigilant"
	case Transcendent:
		return "transcendent"
	default:
		return "dormant"
	}
}

// TemporalProfile is a rolling classification of upstream latency tempo.
type TemporalProfile int

const (
	Fast TemporalProfile = iota
	Medium
	Slow
	Variable
)

func (p TemporalProfile) String() string {
	switch p {
	case Fast:
		return "fast"
	case Slow:
		return "slow"
	case Variable:
		return "variable"
	default:
		return "medium"
	}
}

// RitualPhase is the five-stage startup lifecycle gating traffic admission
// (spec.md §3).
type RitualPhase int

const (
	Preparation RitualPhase = iota
	Invocation
	Resonance
	Alignment
	Production
)

func (p RitualPhase) String() string {
	switch p {
	case Invocation:
		return "invocation"
	case Resonance:
		return "resonance"
	case Alignment:
		return "alignment"
	case Production:
		return "production"
	default:
		return "preparation"
	}
}

// ritualSchedule is the fixed wall-clock schedule the ritual phase advances
// on after process start, in ascending order. The exact cadence is an
// operational choice left open by spec.md; stages of ten to twenty seconds
// (Production one minute after start) keep cold-start tests fast while still
// exercising every 503-with-Retry-After path described in spec.md §4.D step 1.
var ritualSchedule = []time.Duration{
	0,                // Preparation starts immediately
	10 * time.Second,  // -> Invocation
	20 * time.Second,  // -> Resonance
	40 * time.Second,  // -> Alignment
	60 * time.Second,  // -> Production
}

// AwarenessFactors is the aggregate snapshot Update() is driven by (spec.md
// §3): current_rps, baseline_rps (an exponential moving average over 24h
// when available), error_rate, p95_latency_ms, and anomaly_count. It is
// passed by value so the Liminal controller never needs a reference back to
// the Registry (spec.md §9 "Design Notes": cyclic references avoided).
type AwarenessFactors struct {
	CurrentRPS    float64
	BaselineRPS   float64
	ErrorRate     float64
	P95LatencyMs  float64
	AnomalyCount  int
}

// targetLevel computes the level spec.md §3's table entry conditions imply
// for these factors, checking from the top down so the highest satisfied
// tier wins.
func targetLevel(f AwarenessFactors) ConsciousnessLevel {
	baselineExceeded := f.BaselineRPS > 0 && f.CurrentRPS >= 1.5*f.BaselineRPS

	switch {
	case f.ErrorRate >= 0.05 || f.P95LatencyMs >= 1000 || f.AnomalyCount >= 5:
		return Transcendent
	case f.ErrorRate >= 0.02 || f.P95LatencyMs >= 300 || f.AnomalyCount >= 1:
		return Vigilant
	case baselineExceeded || f.P95LatencyMs >= 100:
		return Aware
	case f.ErrorRate < 0.01 && !baselineExceeded && f.P95LatencyMs < 100 && f.AnomalyCount == 0:
		return Dormant
	default:
		// Factors that satisfy none of the named entry conditions exactly
		// (e.g. error_rate between 1% and 2% with low latency) default to
		// Aware, the first tier above the fully-quiet baseline.
		return Aware
	}
}
