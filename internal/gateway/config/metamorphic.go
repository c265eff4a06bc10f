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

package config

import "time"

// MetamorphicTransition blends an old Config into a new one over a fixed
// wall-clock window instead of swapping state in a single step (spec.md
// §4.E). Scalars interpolate linearly; the quantum categoricals and the
// presence history size switch at the halfway point; the route/upstream
// topology and the remaining sections are the new config's own from the
// start of the window. On the registry side, newly-added upstreams are
// usable from progress 0 and removed ones drain until progress reaches 1.
type MetamorphicTransition struct {
	from     *Config
	to       *Config
	start    time.Time
	duration time.Duration
}

// NewMetamorphicTransition starts a transition from from to to beginning at
// start, completing after duration.
func NewMetamorphicTransition(from, to *Config, start time.Time, duration time.Duration) *MetamorphicTransition {
	if duration <= 0 {
		duration = to.Metamorphic.Duration()
	}
	return &MetamorphicTransition{from: from, to: to, start: start, duration: duration}
}

// Progress returns how far through the transition now falls, clamped to
// [0,1].
func (t *MetamorphicTransition) Progress(now time.Time) float64 {
	if t.duration <= 0 {
		return 1
	}
	p := float64(now.Sub(t.start)) / float64(t.duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Done reports whether the transition has fully completed by now.
func (t *MetamorphicTransition) Done(now time.Time) bool {
	return t.Progress(now) >= 1
}

// Blend computes the effective Config at progress p: scalars lerp between
// from and to, the quantum categoricals (collapse, enabled, factor) and
// presence.history_size switch at p >= 0.5, and the route/upstream
// topology and every other section is to's own
// (registry.Reload is responsible for the add-immediately/drain-until-pruned
// semantics on the upstream side; Blend only decides which scalar knobs are
// live at a given moment).
func (t *MetamorphicTransition) Blend(now time.Time) *Config {
	p := t.Progress(now)
	if p <= 0 {
		return t.from
	}
	if p >= 1 {
		return t.to
	}

	out := *t.to
	out.Policy.WLoad = lerp(t.from.Policy.WLoad, t.to.Policy.WLoad, p)
	out.Policy.WIntent = lerp(t.from.Policy.WIntent, t.to.Policy.WIntent, p)
	out.Policy.WTempo = lerp(t.from.Policy.WTempo, t.to.Policy.WTempo, p)

	out.Presence.PresentThreshold = lerp(t.from.Presence.PresentThreshold, t.to.Presence.PresentThreshold, p)
	out.Presence.LiminalThreshold = lerp(t.from.Presence.LiminalThreshold, t.to.Presence.LiminalThreshold, p)
	out.Presence.AbsentTimeoutMs = lerpInt(t.from.Presence.AbsentTimeoutMs, t.to.Presence.AbsentTimeoutMs, p)
	out.Presence.HistorySize = t.pick(p, t.from.Presence.HistorySize, t.to.Presence.HistorySize)

	out.Quantum.TimeoutMs = lerpInt(t.from.Quantum.TimeoutMs, t.to.Quantum.TimeoutMs, p)
	out.Quantum.Factor = t.pick(p, t.from.Quantum.Factor, t.to.Quantum.Factor)
	out.Quantum.Enabled = t.pickBool(p, t.from.Quantum.Enabled, t.to.Quantum.Enabled)
	out.Quantum.Collapse = t.pickString(p, t.from.Quantum.Collapse, t.to.Quantum.Collapse)

	out.MaxBufferBytes = lerpInt(t.from.MaxBufferBytes, t.to.MaxBufferBytes, p)

	// Topology (Routes/Upstreams) and the remaining structural sections
	// (Zones, Liminal, Metamorphic, Journal, Pool) are not blended: they
	// switch atomically to the new config, since interpolating a band
	// table or a journal backend string has no meaningful "halfway" value.
	return &out
}

func (t *MetamorphicTransition) pick(p float64, from, to int) int {
	if p < 0.5 {
		return from
	}
	return to
}

func (t *MetamorphicTransition) pickBool(p float64, from, to bool) bool {
	if p < 0.5 {
		return from
	}
	return to
}

func (t *MetamorphicTransition) pickString(p float64, from, to string) string {
	if p < 0.5 {
		return from
	}
	return to
}

func lerp(from, to, p float64) float64 {
	return from + (to-from)*p
}

func lerpInt(from, to int64, p float64) int64 {
	return from + int64(float64(to-from)*p)
}
