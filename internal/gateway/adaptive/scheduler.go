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

// Package adaptive owns the single background task that bridges the
// Upstream Registry and the Liminal Controller (spec.md §2 "Control flow
// for adaptation" / §9 "Design Notes": neither of those packages imports
// the other, so the thing that reads one and calls the other has to live
// somewhere neutral). Its ticker/stop-channel shape is grounded on
// internal/ratelimiter/core/worker.go's commitLoop, trimmed down to the one
// job this loop actually has: snapshot the Registry, hand the result to
// Liminal.Update every ten seconds.
package adaptive

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/registry"
)

// Snapshotter is the minimal Registry surface the scheduler depends on.
type Snapshotter interface {
	Snapshot() registry.AwarenessSnapshot
}

// Controller is the minimal Liminal surface the scheduler depends on.
type Controller interface {
	Update(liminal.AwarenessFactors)
	Echo() *liminal.Analyzer
}

// Scheduler runs Liminal.Update on a fixed interval, fed by a Registry
// snapshot (spec.md §2). baselineRPS tracks a 24h EMA of current_rps so
// AwarenessFactors.BaselineRPS reflects spec.md §3's definition even though
// the Registry itself has no notion of "baseline".
type Scheduler struct {
	registry Snapshotter
	liminal  Controller
	interval time.Duration

	baselineRPS float64
	haveBase    bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	stopped uint32
}

// NewScheduler constructs a Scheduler. interval defaults to 10s
// (liminal.update_interval_ms in config) when <= 0.
func NewScheduler(reg Snapshotter, ctrl Controller, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		registry: reg,
		liminal:  ctrl,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background ticker goroutine.
func (s *Scheduler) Start() {
	s.once.Do(func() {
		go s.run()
	})
}

// Stop requests the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// tick computes this cycle's AwarenessFactors and drives Liminal.Update.
// The baseline EMA's half-life is 24h, matching spec.md §3's "exponential
// moving average over 24h if available"; with a 10s tick that is
// alpha = 1 - 2^(-10s/24h).
func (s *Scheduler) tick() {
	snap := s.registry.Snapshot()

	const halfLife = 24 * time.Hour
	alpha := 1 - math.Pow(2, -float64(s.interval)/float64(halfLife))
	if !s.haveBase {
		s.baselineRPS = snap.TotalRPS
		s.haveBase = true
	} else {
		s.baselineRPS += alpha * (snap.TotalRPS - s.baselineRPS)
	}

	total := snap.TotalSuccesses + snap.TotalErrors
	var errorRate float64
	if total > 0 {
		errorRate = float64(snap.TotalErrors) / float64(total)
	}

	factors := liminal.AwarenessFactors{
		CurrentRPS:   snap.TotalRPS,
		BaselineRPS:  s.baselineRPS,
		ErrorRate:    errorRate,
		P95LatencyMs: float64(snap.MaxP95Micros) / 1000.0,
		AnomalyCount: s.liminal.Echo().AnomalyCount(),
	}
	s.liminal.Update(factors)
}
