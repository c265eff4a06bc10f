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

package liminal

import (
	"math"
	"sort"
	"sync"
	"time"
)

// MetamorphicTicker is the minimal contract the Liminal controller needs
// to progress config transitions once per update tick (spec.md §4.B step
// 5). internal/gateway/config.Manager satisfies this without either
// package importing the other, keeping the controller decoupled from the
// Registry and from config the way spec.md §9's Design Notes requires.
type MetamorphicTicker interface {
	Tick(now time.Time)
}

// Controller holds the process-wide consciousness level, temporal profile,
// echo analyzer, adaptive thresholds, ritual phase, and the metamorphic
// tickers it drives (spec.md §4.B). It is mutated only by Update,
// RecordEcho and RegisterTicker; read accessors snapshot the relevant field under a short
// critical section (spec.md §5).
type Controller struct {
	mu sync.Mutex

	level    ConsciousnessLevel
	temporal TemporalProfile

	// p95EMA and the rolling sample window back the adaptive fast/slow
	// latency thresholds (spec.md §4.B "Adaptive thresholds").
	p95EMA      float64
	emaInit     bool
	p95Samples  []float64 // most recent samples, capped at 40
	fastLimit   float64
	slowLimit   float64

	ritual    RitualPhase
	startedAt time.Time

	echo *Analyzer

	tickers []MetamorphicTicker

	now func() time.Time
}

// NewController constructs a Controller starting in Dormant/Fast/Preparation.
func NewController() *Controller {
	now := time.Now()
	return &Controller{
		level:     Dormant,
		temporal:  Fast,
		ritual:    Preparation,
		startedAt: now,
		echo:      NewAnalyzer(),
		now:       time.Now,
	}
}

// NewControllerStartedAt constructs a Controller exactly like NewController
// except its ritual clock is backdated to start, so a single Update() call
// can advance straight past the startup ritual (used by callers that warm a
// gateway instance before admitting traffic, and by tests that need a
// Production-ready controller without sleeping real time).
func NewControllerStartedAt(start time.Time) *Controller {
	c := NewController()
	c.startedAt = start
	return c
}

// RegisterTicker adds a MetamorphicTicker that Update() will tick every
// cycle (spec.md §4.B step 5).
func (c *Controller) RegisterTicker(t MetamorphicTicker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers = append(c.tickers, t)
}

// CurrentLevel snapshots the current consciousness level.
func (c *Controller) CurrentLevel() ConsciousnessLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// CurrentTemporal snapshots the current temporal profile.
func (c *Controller) CurrentTemporal() TemporalProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temporal
}

// CurrentRitual snapshots the current ritual phase.
func (c *Controller) CurrentRitual() RitualPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ritual
}

// IsProductionReady reports whether traffic admission is open (spec.md §3:
// "is_production_ready() is true only in the Production phase").
func (c *Controller) IsProductionReady() bool {
	return c.CurrentRitual() == Production
}

// TimeUntilProduction estimates the remaining wall-clock time before the
// ritual schedule reaches Production, used to populate Retry-After on the
// 503 the pipeline returns while not yet ready (spec.md §4.D step 1).
func (c *Controller) TimeUntilProduction() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ritual == Production {
		return 0
	}
	elapsed := c.now().Sub(c.startedAt)
	total := ritualSchedule[len(ritualSchedule)-1]
	remaining := total - elapsed
	if remaining < time.Second {
		return time.Second
	}
	return remaining
}

// Echo exposes the echo analyzer for RecordEcho-adjacent read access (e.g.
// /debug/liminal listing recent shadow diffs).
func (c *Controller) Echo() *Analyzer { return c.echo }

// Update recomputes consciousness level, temporal profile, advances the
// echo analyzer's sliding windows, progresses ritual phase, and ticks every
// registered metamorphic transition — the exact sequence spec.md §4.B
// names for the 10s update job.
func (c *Controller) Update(factors AwarenessFactors) {
	now := c.now()

	c.mu.Lock()
	c.recomputeLevelLocked(factors)
	c.recomputeTemporalLocked(factors.P95LatencyMs)
	c.advanceRitualLocked(now)
	tickers := append([]MetamorphicTicker(nil), c.tickers...)
	c.mu.Unlock()

	c.echo.advance(now)

	for _, t := range tickers {
		t.Tick(now)
	}
}

// recomputeLevelLocked applies spec.md §3's debounce: a level may change at
// most once per tick, dropping more than one level per tick is forbidden,
// rises may skip levels.
func (c *Controller) recomputeLevelLocked(factors AwarenessFactors) {
	target := targetLevel(factors)
	if target > c.level {
		c.level = target
	} else if target < c.level {
		c.level--
	}
}

// recomputeTemporalLocked maintains the EMA (half-life 5 min) and the
// 25th/75th-percentile adaptive thresholds, then classifies the latest
// sample per spec.md §4.B.
func (c *Controller) recomputeTemporalLocked(p95Ms float64) {
	const halfLife = 5 * time.Minute
	const tickInterval = 10 * time.Second
	alpha := 1 - math.Pow(2, -float64(tickInterval)/float64(halfLife))

	if !c.emaInit {
		c.p95EMA = p95Ms
		c.emaInit = true
	} else {
		c.p95EMA = c.p95EMA + alpha*(p95Ms-c.p95EMA)
	}

	c.p95Samples = append(c.p95Samples, c.p95EMA)
	if len(c.p95Samples) > 40 {
		c.p95Samples = c.p95Samples[len(c.p95Samples)-40:]
	}
	c.fastLimit = percentile(c.p95Samples, 25)
	c.slowLimit = percentile(c.p95Samples, 75)

	switch {
	case variance(tail(c.p95Samples, 10)) > 2*mean(tail(c.p95Samples, 10)) && mean(tail(c.p95Samples, 10)) > 0:
		c.temporal = Variable
	case p95Ms < c.fastLimit:
		c.temporal = Fast
	case p95Ms > c.slowLimit:
		c.temporal = Slow
	default:
		c.temporal = Medium
	}
}

// AdaptiveThresholds exposes the current fast/slow p95 limits (ms), used by
// Policy/Aligner for upstream temporal-bucket classification.
func (c *Controller) AdaptiveThresholds() (fastLimitMs, slowLimitMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fastLimit, c.slowLimit
}

// advanceRitualLocked progresses the ritual phase through every schedule
// boundary that elapsed wall-clock time has already crossed (spec.md §3).
// It catches up more than one stage in a single call so a gap between
// Update ticks (a slow update loop, a backdated clock in tests) still
// lands on the correct phase rather than creeping forward one stage per
// call.
func (c *Controller) advanceRitualLocked(now time.Time) {
	elapsed := now.Sub(c.startedAt)
	for c.ritual != Production {
		next := int(c.ritual) + 1
		if next >= len(ritualSchedule) || elapsed < ritualSchedule[next] {
			break
		}
		c.ritual = RitualPhase(next)
	}
}

// RecordEcho feeds one terminal request outcome into the echo analyzer
// (spec.md §4.B). Returning whether this observation tripped a fresh
// anomaly lets callers log loudly without duplicating the analyzer's own
// bookkeeping.
func (c *Controller) RecordEcho(route string, status int, latency time.Duration) bool {
	return c.echo.Record(route, status, latency)
}

// ---- small stats helpers (kept local and tiny rather than pulling a
// stats library for four functions used only by temporal classification) ----

func percentile(samples []float64, p float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(p / 100 * float64(n-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func tail(samples []float64, n int) []float64 {
	if len(samples) <= n {
		return samples
	}
	return samples[len(samples)-n:]
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func variance(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	m := mean(samples)
	var sum float64
	for _, s := range samples {
		d := s - m
		sum += d * d
	}
	return sum / float64(len(samples))
}
