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

package journal

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// routeState is the in-memory accumulator for one route's pending anomaly
// severity, mirroring the teacher's managedVSA but keyed on anomaly rate
// instead of a raw vector magnitude.
type routeState struct {
	severity     int64
	rate         float64
	armed        atomic.Bool
	lastUpdated  int64 // unix nanos
}

// Worker commits accumulated anomaly severity to a Persister on a fixed
// interval and evicts stale, quiet routes from memory. It is adapted from
// internal/ratelimiter/core's Worker: the same ticker/stop-channel
// lifecycle and high/low-watermark hysteresis, but armed on the route's
// current anomaly rate rather than |vector| so a route only re-commits
// once it has cooled back down below the low watermark.
type Worker struct {
	persister Persister

	mu     sync.Mutex
	routes map[string]*routeState

	highWatermark float64 // rate at/above which a commit is attempted
	lowWatermark  float64 // rate at/below which the route re-arms

	commitInterval   time.Duration
	commitMaxAge     time.Duration
	evictionAge      time.Duration
	evictionInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool

	newCommitID func() string
	now         func() time.Time
}

// NewWorker configures a Worker. highWatermark/lowWatermark are anomaly
// rates in [0,1]; set lowWatermark to 0 to disable hysteresis (every cycle
// above highWatermark commits). commitMaxAge, if > 0, forces a commit of
// any nonzero remainder that has not moved in that long, regardless of
// rate.
func NewWorker(persister Persister, highWatermark, lowWatermark float64, commitInterval, commitMaxAge, evictionAge, evictionInterval time.Duration) *Worker {
	return &Worker{
		persister:        persister,
		routes:           make(map[string]*routeState),
		highWatermark:    highWatermark,
		lowWatermark:     lowWatermark,
		commitInterval:   commitInterval,
		commitMaxAge:     commitMaxAge,
		evictionAge:      evictionAge,
		evictionInterval: evictionInterval,
		stopChan:         make(chan struct{}),
		newCommitID:      func() string { return uuid.NewString() },
		now:              time.Now,
	}
}

// RecordAnomaly accumulates a severity delta for route and records its
// current anomaly rate (e.g. 5xx-over-window ratio from the presence
// ring buffer), refreshing the route's freshness clock.
func (w *Worker) RecordAnomaly(route string, severityDelta int64, rate float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.routes[route]
	if !ok {
		st = &routeState{}
		st.armed.Store(true)
		w.routes[route] = st
	}
	st.severity += severityDelta
	st.rate = rate
	atomic.StoreInt64(&st.lastUpdated, w.now().UnixNano())
}

// Start launches the commit and eviction goroutines.
func (w *Worker) Start() {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.commitLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.evictionLoop()
	}()
}

// Stop halts both goroutines after a final flush of pending severity.
func (w *Worker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) commitLoop() {
	ticker := time.NewTicker(w.commitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.runCommitCycle(false)
		case <-w.stopChan:
			w.runCommitCycle(true)
			return
		}
	}
}

// runCommitCycle decides which routes to flush. final forces every route
// with a nonzero remainder to flush, used on shutdown.
func (w *Worker) runCommitCycle(final bool) {
	type pending struct {
		route string
		st    *routeState
	}
	var due []pending

	now := w.now()
	w.mu.Lock()
	for route, st := range w.routes {
		if st.severity == 0 {
			continue
		}
		if final {
			due = append(due, pending{route, st})
			continue
		}

		byThreshold := st.rate >= w.highWatermark
		byMaxAge := w.commitMaxAge > 0 && now.Sub(time.Unix(0, atomic.LoadInt64(&st.lastUpdated))) >= w.commitMaxAge

		shouldCommit := false
		if byThreshold {
			if w.lowWatermark <= 0 || st.armed.Load() {
				shouldCommit = true
			}
		} else if w.lowWatermark > 0 && !st.armed.Load() && st.rate <= w.lowWatermark {
			st.armed.Store(true)
		}
		if byMaxAge {
			shouldCommit = true
		}
		if shouldCommit {
			due = append(due, pending{route, st})
			st.armed.Store(false)
		}
	}
	w.mu.Unlock()

	if len(due) == 0 {
		return
	}

	entries := make([]CommitEntry, len(due))
	for i, p := range due {
		entries[i] = CommitEntry{Key: p.route, Vector: p.st.severity, CommitID: w.newCommitID()}
	}

	if err := w.persister.CommitBatch(context.Background(), entries); err != nil {
		log.Printf("journal: commit batch failed: %v", err)
		return
	}

	w.mu.Lock()
	for i, p := range due {
		p.st.severity -= entries[i].Vector
	}
	w.mu.Unlock()
}

func (w *Worker) evictionLoop() {
	ticker := time.NewTicker(w.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.runEvictionCycle()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Worker) runEvictionCycle() {
	now := w.now()
	var stale []string

	w.mu.Lock()
	for route, st := range w.routes {
		if now.Sub(time.Unix(0, atomic.LoadInt64(&st.lastUpdated))) > w.evictionAge {
			stale = append(stale, route)
		}
	}
	w.mu.Unlock()

	for _, route := range stale {
		w.mu.Lock()
		st, ok := w.routes[route]
		if !ok {
			w.mu.Unlock()
			continue
		}
		if now.Sub(time.Unix(0, atomic.LoadInt64(&st.lastUpdated))) <= w.evictionAge {
			w.mu.Unlock()
			continue // touched again since the scan
		}
		remainder := st.severity
		w.mu.Unlock()

		if remainder != 0 {
			entry := CommitEntry{Key: route, Vector: remainder, CommitID: w.newCommitID()}
			if err := w.persister.CommitBatch(context.Background(), []CommitEntry{entry}); err != nil {
				log.Printf("journal: final commit before eviction failed for %s: %v", route, err)
				continue
			}
		}

		w.mu.Lock()
		delete(w.routes, route)
		w.mu.Unlock()
	}
}

// Pending returns the current unflushed severity for route, for tests and
// debug introspection.
func (w *Worker) Pending(route string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.routes[route]; ok {
		return st.severity
	}
	return 0
}
