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

package telemetry

import (
	"log"
	"sync"
	"time"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/registry"
)

// Reporter periodically pulls upstream and process-level gauges from the
// registry and liminal controller, pushes them into Metrics, and logs a
// one-line summary. It is a trimmed descendant of
// churn/exporter.go's startOrUpdateExporter ticker loop: the ANSI
// live-console renderer has no place in a headless gateway process, so
// only the periodic-aggregation-and-log half survives.
type Reporter struct {
	metrics    *Metrics
	registry   *registry.Registry
	controller *liminal.Controller
	interval   time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  bool
}

// NewReporter builds a Reporter over reg and ctrl, publishing every
// interval (default 15s if <= 0).
func NewReporter(metrics *Metrics, reg *registry.Registry, ctrl *liminal.Controller, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reporter{
		metrics:    metrics,
		registry:   reg,
		controller: ctrl,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the reporting loop in a background goroutine.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.tick()
			case <-r.stopChan:
				return
			}
		}
	}()
}

// Stop halts the reporting loop. Safe to call more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopChan)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reporter) tick() {
	level := int(r.controller.CurrentLevel())
	phase := int(r.controller.CurrentRitual())
	r.metrics.SetConsciousness(level)
	r.metrics.SetRitualPhase(phase)

	ups := r.registry.Upstreams()
	var totalRPS float64
	for _, u := range ups {
		snap := u.Stats.Snapshot()
		r.metrics.SetUpstreamRPS(u.Name, snap.RPS)
		r.metrics.SetUpstreamPresence(u.Name, int(u.Presence.State()))
		totalRPS += snap.RPS
	}

	log.Printf("telemetry: consciousness=%d ritual=%d upstreams=%d total_rps=%.1f", level, phase, len(ups), totalRPS)
}
