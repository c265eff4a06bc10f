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

// Package telemetry exposes the gateway's Prometheus metrics surface
// (spec.md §6 collaborators: Prometheus). Counters and gauges are
// registered once at process start, matching the global-registration idiom
// of internal/ratelimiter/telemetry/churn/prom_counters.go, retargeted from
// rate-limiter write-reduction KPIs to gateway request/consciousness/
// presence metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every metric the gateway exports. A process constructs
// exactly one and shares it across pipeline, liminal, registry, and
// journal callers.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	consciousness    prometheus.Gauge
	ritualPhase      prometheus.Gauge
	upstreamPresence *prometheus.GaugeVec
	upstreamRPS      *prometheus.GaugeVec
	quantumAttempts  *prometheus.CounterVec
	shadowDiffsTotal prometheus.Counter
	journalErrors    prometheus.Counter
	journalPending   *prometheus.GaugeVec
}

// NewMetrics constructs and registers the metric set against the default
// Prometheus registry. Safe to call once per process; a second call would
// panic on duplicate registration, matching prom_counters.go's MustRegister
// idiom.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// newMetrics registers against an arbitrary registerer so tests can use a
// fresh prometheus.NewRegistry() instead of colliding on the process-wide
// default registry across test functions.
func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daogate_requests_total",
			Help: "Total requests handled by the pipeline, by route and outcome.",
		}, []string{"route", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "daogate_request_duration_seconds",
			Help:    "Request handling latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		consciousness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daogate_consciousness_level",
			Help: "Current consciousness level (0=Dormant, 1=Aware, 2=Vigilant, 3=Transcendent).",
		}),
		ritualPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daogate_ritual_phase",
			Help: "Current startup ritual phase (0=Preparation .. 4=Production).",
		}),
		upstreamPresence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daogate_upstream_presence",
			Help: "Current presence state per upstream (0=Unknown,1=Present,2=Liminal,3=Absent).",
		}, []string{"upstream"}),
		upstreamRPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daogate_upstream_rps",
			Help: "Trailing one-second request rate per upstream.",
		}, []string{"upstream"}),
		quantumAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daogate_quantum_attempts_total",
			Help: "Hedged quantum-dispatch attempts, by collapse strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		shadowDiffsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daogate_shadow_diffs_total",
			Help: "Total shadow/primary response mismatches recorded by the echo analyzer.",
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daogate_journal_commit_errors_total",
			Help: "Total failed echo-journal commit batches.",
		}),
		journalPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daogate_journal_pending_severity",
			Help: "Unflushed anomaly severity currently held in memory, by route.",
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.consciousness, m.ritualPhase,
		m.upstreamPresence, m.upstreamRPS, m.quantumAttempts,
		m.shadowDiffsTotal, m.journalErrors, m.journalPending,
	)
	return m
}

// Handler returns the promhttp handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler { return promhttp.Handler() }

// RecordRequest records one completed request's outcome and latency.
func (m *Metrics) RecordRequest(route, outcome string, latency time.Duration) {
	m.requestsTotal.WithLabelValues(route, outcome).Inc()
	m.requestDuration.WithLabelValues(route).Observe(latency.Seconds())
}

// SetConsciousness publishes the current consciousness level as a gauge.
func (m *Metrics) SetConsciousness(level int) { m.consciousness.Set(float64(level)) }

// SetRitualPhase publishes the current ritual phase as a gauge.
func (m *Metrics) SetRitualPhase(phase int) { m.ritualPhase.Set(float64(phase)) }

// SetUpstreamPresence publishes one upstream's presence state.
func (m *Metrics) SetUpstreamPresence(upstream string, state int) {
	m.upstreamPresence.WithLabelValues(upstream).Set(float64(state))
}

// SetUpstreamRPS publishes one upstream's trailing RPS.
func (m *Metrics) SetUpstreamRPS(upstream string, rps float64) {
	m.upstreamRPS.WithLabelValues(upstream).Set(rps)
}

// ObserveQuantumAttempt records one hedge attempt's terminal outcome
// ("won", "lost", "cancelled") under the given collapse strategy name.
func (m *Metrics) ObserveQuantumAttempt(strategy, outcome string) {
	m.quantumAttempts.WithLabelValues(strategy, outcome).Inc()
}

// ObserveShadowDiff increments the shadow/primary mismatch counter.
func (m *Metrics) ObserveShadowDiff() { m.shadowDiffsTotal.Inc() }

// ObserveJournalCommitError increments the journal commit-error counter.
func (m *Metrics) ObserveJournalCommitError() { m.journalErrors.Inc() }

// SetJournalPending publishes the unflushed severity for one route.
func (m *Metrics) SetJournalPending(route string, pending int64) {
	m.journalPending.WithLabelValues(route).Set(float64(pending))
}
