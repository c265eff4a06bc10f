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

// Package registry owns upstream state: identity, rolling stats, and the
// per-upstream presence detector. It is the sole writer of that state;
// pipeline workers only hold short-lived shared references (spec.md §3
// ownership note).
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"daogate/pkg/vsa"
)

// statsWindow holds the striped counter for one wall-clock second of RPS
// accounting. Stats swaps the active window every second instead of trying
// to make vsa.VSA itself time-aware.
type statsWindow struct {
	acc       *vsa.VSA
	epochUnix int64
}

// Stats is the read-mostly rolling-stats block for one Upstream (spec.md
// §3). All fields are protected by a single RWMutex except the RPS
// accounting, which uses the lock-free vsa.VSA counter described in
// pkg/vsa's doc comment.
type Stats struct {
	mu sync.RWMutex

	successCount uint64
	errorCount   uint64
	lastObserved time.Time

	hist *hdrhistogram.Histogram

	curWindow  atomic.Pointer[statsWindow]
	prevWindow atomic.Pointer[statsWindow]

	presence *Presence
}

// NewStats constructs a Stats block with a fresh HDR histogram (1µs..60s
// range, 3 significant figures, matching SPEC_FULL.md §3) and the given
// presence detector.
func NewStats(presence *Presence) *Stats {
	s := &Stats{
		hist:     hdrhistogram.New(1, int64(60*time.Second/time.Microsecond), 3),
		presence: presence,
	}
	now := time.Now().Unix()
	s.curWindow.Store(&statsWindow{acc: vsa.New(0), epochUnix: now})
	return s
}

// Record advances counters and feeds presence. Per spec.md §4.A, both
// updates MUST be visible to subsequent readers before Record returns —
// true here because every mutation happens under mu or through the
// linearizable vsa.VSA primitive before the call returns.
func (s *Stats) Record(latency time.Duration, success bool) {
	s.mu.Lock()
	if success {
		s.successCount++
	} else {
		s.errorCount++
	}
	s.lastObserved = time.Now()
	micros := latency.Microseconds()
	if micros < 1 {
		micros = 1
	}
	_ = s.hist.RecordValue(micros)
	s.mu.Unlock()

	s.bumpRPS()
	s.presence.Record(success)
}

// RecordCancelled records a quantum-hedge loser's latency into the
// histogram without touching success/error counters or presence (spec.md
// §4.D.2: a cancelled attempt is "no error, no success").
func (s *Stats) RecordCancelled(latency time.Duration) {
	s.mu.Lock()
	s.lastObserved = time.Now()
	micros := latency.Microseconds()
	if micros < 1 {
		micros = 1
	}
	_ = s.hist.RecordValue(micros)
	s.mu.Unlock()
}

func (s *Stats) bumpRPS() {
	now := time.Now().Unix()
	for {
		w := s.curWindow.Load()
		if w.epochUnix == now {
			w.acc.Update(1)
			return
		}
		// Roll the window: the previous current becomes prev, a fresh one
		// becomes current. A competing goroutine may race this; only one
		// swap needs to win, the loser just retries against the new window.
		fresh := &statsWindow{acc: vsa.New(0), epochUnix: now}
		if s.curWindow.CompareAndSwap(w, fresh) {
			s.prevWindow.Store(w)
		}
	}
}

// CurrentRPS computes requests/sec over a trailing one-second window
// (spec.md §3): the most recently closed whole second, falling back to the
// in-progress second if no prior window exists yet. It is 0 when no request
// landed in either the current or the previous second.
func (s *Stats) CurrentRPS() float64 {
	now := time.Now().Unix()
	cur := s.curWindow.Load()
	if cur.epochUnix == now {
		if prev := s.prevWindow.Load(); prev != nil && prev.epochUnix == now-1 {
			_, v := prev.acc.State()
			return float64(v)
		}
		// current second is still filling; approximate with what we have.
		_, v := cur.acc.State()
		return float64(v)
	}
	// No request has landed yet this second; the last closed window is cur,
	// provided it is the previous second and not an older one.
	if cur.epochUnix != now-1 {
		return 0
	}
	_, v := cur.acc.State()
	return float64(v)
}

// Snapshot is a point-in-time, immutable view of Stats used for scoring and
// awareness-factor aggregation.
type Snapshot struct {
	SuccessCount uint64
	ErrorCount   uint64
	LastObserved time.Time
	RPS          float64
	P50Micros    int64
	P95Micros    int64
	P99Micros    int64
}

// ErrorRate returns errors / (errors+successes), 0 when no traffic observed.
func (s Snapshot) ErrorRate() float64 {
	total := s.SuccessCount + s.ErrorCount
	if total == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(total)
}

// Snapshot captures a consistent view of the stats block under a single
// read lock (spec.md §5: readers for scoring take read locks, writers are
// short counter bumps).
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SuccessCount: s.successCount,
		ErrorCount:   s.errorCount,
		LastObserved: s.lastObserved,
		RPS:          s.CurrentRPS(),
		P50Micros:    s.hist.ValueAtQuantile(50),
		P95Micros:    s.hist.ValueAtQuantile(95),
		P99Micros:    s.hist.ValueAtQuantile(99),
	}
}
