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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return newMetrics(reg), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.Metric {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
		return total
	}
	return 0
}

func gaugeValues(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.Metric
		}
	}
	return nil
}

func TestMetrics_RecordRequest_IncrementsCounterAndHistogram(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordRequest("checkout", "success", 5*time.Millisecond)
	m.RecordRequest("checkout", "error", 10*time.Millisecond)

	if got := counterValue(t, reg, "daogate_requests_total"); got != 2 {
		t.Errorf("daogate_requests_total = %v, want 2", got)
	}
}

func TestMetrics_SetConsciousnessAndRitual(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.SetConsciousness(2)
	m.SetRitualPhase(4)

	vals := gaugeValues(t, reg, "daogate_consciousness_level")
	if len(vals) != 1 || vals[0].GetGauge().GetValue() != 2 {
		t.Errorf("consciousness gauge = %+v, want 2", vals)
	}
	vals = gaugeValues(t, reg, "daogate_ritual_phase")
	if len(vals) != 1 || vals[0].GetGauge().GetValue() != 4 {
		t.Errorf("ritual gauge = %+v, want 4", vals)
	}
}

func TestMetrics_UpstreamGauges(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.SetUpstreamPresence("search-a", 1)
	m.SetUpstreamRPS("search-a", 42.5)

	presence := gaugeValues(t, reg, "daogate_upstream_presence")
	if len(presence) != 1 || presence[0].GetGauge().GetValue() != 1 {
		t.Errorf("presence gauge = %+v, want 1", presence)
	}
	rps := gaugeValues(t, reg, "daogate_upstream_rps")
	if len(rps) != 1 || rps[0].GetGauge().GetValue() != 42.5 {
		t.Errorf("rps gauge = %+v, want 42.5", rps)
	}
}

func TestMetrics_QuantumAndShadowAndJournal(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.ObserveQuantumAttempt("first_success", "won")
	m.ObserveQuantumAttempt("first_success", "cancelled")
	m.ObserveShadowDiff()
	m.ObserveJournalCommitError()
	m.SetJournalPending("checkout", 7)

	if got := counterValue(t, reg, "daogate_quantum_attempts_total"); got != 2 {
		t.Errorf("quantum_attempts_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "daogate_shadow_diffs_total"); got != 1 {
		t.Errorf("shadow_diffs_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "daogate_journal_commit_errors_total"); got != 1 {
		t.Errorf("journal_commit_errors_total = %v, want 1", got)
	}
	pending := gaugeValues(t, reg, "daogate_journal_pending_severity")
	if len(pending) != 1 || pending[0].GetGauge().GetValue() != 7 {
		t.Errorf("journal_pending_severity = %+v, want 7", pending)
	}
}

func TestMetrics_Handler_NotNil(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m.Handler() == nil {
		t.Error("Handler() returned nil")
	}
}
