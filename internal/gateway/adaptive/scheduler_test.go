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

package adaptive

import (
	"testing"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/registry"
)

type fakeSnapshotter struct {
	snap registry.AwarenessSnapshot
}

func (f fakeSnapshotter) Snapshot() registry.AwarenessSnapshot { return f.snap }

type fakeController struct {
	calls []liminal.AwarenessFactors
	echo  *liminal.Analyzer
}

func (f *fakeController) Update(factors liminal.AwarenessFactors) {
	f.calls = append(f.calls, factors)
}

func (f *fakeController) Echo() *liminal.Analyzer {
	if f.echo == nil {
		f.echo = liminal.NewAnalyzer()
	}
	return f.echo
}

func TestScheduler_TickComputesErrorRateAndBaseline(t *testing.T) {
	snap := fakeSnapshotter{snap: registry.AwarenessSnapshot{
		TotalRPS:       50,
		TotalSuccesses: 90,
		TotalErrors:    10,
		MaxP95Micros:   200_000,
	}}
	ctrl := &fakeController{}
	s := NewScheduler(snap, ctrl, 0)

	s.tick()
	if len(ctrl.calls) != 1 {
		t.Fatalf("Update() called %d times, want 1", len(ctrl.calls))
	}
	got := ctrl.calls[0]
	if got.ErrorRate != 0.1 {
		t.Errorf("ErrorRate = %v, want 0.1", got.ErrorRate)
	}
	if got.P95LatencyMs != 200 {
		t.Errorf("P95LatencyMs = %v, want 200", got.P95LatencyMs)
	}
	if got.BaselineRPS != 50 {
		t.Errorf("BaselineRPS on first tick = %v, want 50 (seeded from first observation)", got.BaselineRPS)
	}

	s.tick()
	if len(ctrl.calls) != 2 {
		t.Fatalf("Update() called %d times, want 2", len(ctrl.calls))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	snap := fakeSnapshotter{}
	ctrl := &fakeController{}
	s := NewScheduler(snap, ctrl, 0)
	s.Start()
	s.Stop()
	s.Stop() // must be idempotent
}
