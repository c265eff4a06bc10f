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

// Package policy implements the Aligner: the scoring function that turns a
// set of presence-eligible upstreams into a single selection, and the
// top-N ranking quantum routing hedges against. Scoring never touches
// Registry or Liminal state directly — callers pass in the already-read
// current_rps, temporal bucket, and consciousness level, so Policy stays a
// pure function over its inputs and is trivial to test in isolation.
package policy

import (
	"errors"
	"sort"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/registry"
)

// ErrNoEligibleUpstream is returned when candidates is empty after presence
// filtering (spec.md §4.C).
var ErrNoEligibleUpstream = errors.New("policy: no eligible upstream")

// Weights are the three scoring coefficients. They need not sum to 1 on
// input; Select renormalizes before scoring so callers can hand-tune
// relative emphasis without worrying about the total.
type Weights struct {
	Load   float64
	Intent float64
	Tempo  float64
}

// DefaultWeights mirrors an even three-way split, a neutral starting point
// absent any config override.
var DefaultWeights = Weights{Load: 1, Intent: 1, Tempo: 1}

// normalize scales weights so they sum to 1, falling back to an equal split
// if all three are zero or negative (a misconfigured weight set should never
// make every candidate score 0).
func (w Weights) normalize() Weights {
	sum := w.Load + w.Intent + w.Tempo
	if sum <= 0 {
		return Weights{Load: 1.0 / 3, Intent: 1.0 / 3, Tempo: 1.0 / 3}
	}
	return Weights{Load: w.Load / sum, Intent: w.Intent / sum, Tempo: w.Tempo / sum}
}

// modulate applies spec.md §4.C's consciousness modulation: at Vigilant and
// above, w_intent and w_tempo are multiplied by 1.5 before renormalizing,
// biasing selection away from loaded or slow upstreams under stress.
func (w Weights) modulate(level liminal.ConsciousnessLevel) Weights {
	if level < liminal.Vigilant {
		return w.normalize()
	}
	boosted := Weights{Load: w.Load, Intent: w.Intent * 1.5, Tempo: w.Tempo * 1.5}
	return boosted.normalize()
}

// Candidate is the read-only view of one upstream Policy scores. It is
// built by the caller (the pipeline) from a registry.Upstream snapshot so
// this package never needs to hold the registry's RW lock itself.
type Candidate struct {
	Upstream *registry.Upstream
	RPS      float64
	Bucket   registry.TemporalBucket
}

// scored pairs a candidate with its computed score for sorting.
type scored struct {
	c     Candidate
	score float64
}

func bucketFromTemporal(p liminal.TemporalProfile) registry.TemporalBucket {
	switch p {
	case liminal.Fast:
		return registry.BucketFast
	case liminal.Slow:
		return registry.BucketSlow
	case liminal.Variable:
		return registry.BucketVariable
	default:
		return registry.BucketMedium
	}
}

func intentMatch(u *registry.Upstream, intent string) float64 {
	if intent == "" {
		return 1
	}
	if u.HasIntent(intent) {
		return 1
	}
	return 0
}

func tempoMatch(bucket registry.TemporalBucket, profile liminal.TemporalProfile) float64 {
	if bucket == bucketFromTemporal(profile) {
		return 1
	}
	return 0.5
}

// Select ranks candidates by spec.md §4.C's score and returns the winner.
// candidates MUST already be presence-filtered by the caller: Select itself
// never inspects Presence and never returns anything beyond what it was
// given, so passing an Absent/Unknown upstream in is a caller bug, not
// something Select guards against redundantly.
func Select(weights Weights, candidates []Candidate, intent string, level liminal.ConsciousnessLevel, profile liminal.TemporalProfile) (*registry.Upstream, error) {
	ranked, err := Rank(weights, candidates, intent, level, profile)
	if err != nil {
		return nil, err
	}
	return ranked[0].Upstream, nil
}

// Rank returns candidates' upstreams ordered best-first by spec.md §4.C:
// score descending, then weight descending, then name lexicographic. Used
// directly by quantum routing to pick the top-factor upstreams to hedge
// across (spec.md §4.D.2).
func Rank(weights Weights, candidates []Candidate, intent string, level liminal.ConsciousnessLevel, profile liminal.TemporalProfile) ([]*registry.Upstream, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEligibleUpstream
	}

	w := weights.modulate(level)

	maxRPS := 0.0
	for _, c := range candidates {
		if c.RPS > maxRPS {
			maxRPS = c.RPS
		}
	}

	scoredSet := make([]scored, len(candidates))
	for i, c := range candidates {
		normalizedLoad := 0.0
		if maxRPS > 0 {
			normalizedLoad = c.RPS / maxRPS
		}
		if normalizedLoad > 1 {
			normalizedLoad = 1
		}
		if normalizedLoad < 0 {
			normalizedLoad = 0
		}
		s := w.Load*(1-normalizedLoad) +
			w.Intent*intentMatch(c.Upstream, intent) +
			w.Tempo*tempoMatch(c.Bucket, profile)
		scoredSet[i] = scored{c: c, score: s}
	}

	sort.Slice(scoredSet, func(i, j int) bool {
		a, b := scoredSet[i], scoredSet[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.c.Upstream.Weight != b.c.Upstream.Weight {
			return a.c.Upstream.Weight > b.c.Upstream.Weight
		}
		return a.c.Upstream.Name < b.c.Upstream.Name
	})

	out := make([]*registry.Upstream, len(scoredSet))
	for i, s := range scoredSet {
		out[i] = s.c.Upstream
	}
	return out, nil
}
