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

package policy

import (
	"testing"

	"daogate/internal/gateway/liminal"
	"daogate/internal/gateway/registry"
)

func newCandidate(t *testing.T, name, intent string, weight uint, rps float64, bucket registry.TemporalBucket) Candidate {
	t.Helper()
	u, err := registry.NewUpstream(name, "http://"+name+".internal", []string{intent}, weight, registry.PresenceOptions{})
	if err != nil {
		t.Fatalf("NewUpstream(%s) error = %v", name, err)
	}
	return Candidate{Upstream: u, RPS: rps, Bucket: bucket}
}

func TestSelect_NoCandidates(t *testing.T) {
	if _, err := Select(DefaultWeights, nil, "", liminal.Dormant, liminal.Fast); err != ErrNoEligibleUpstream {
		t.Fatalf("Select() error = %v, want ErrNoEligibleUpstream", err)
	}
}

func TestSelect_PrefersLowerLoad(t *testing.T) {
	a := newCandidate(t, "a", "search", 1, 10, registry.BucketFast)
	b := newCandidate(t, "b", "search", 1, 90, registry.BucketFast)

	won, err := Select(Weights{Load: 1}, []Candidate{a, b}, "search", liminal.Dormant, liminal.Fast)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if won.Name != "a" {
		t.Errorf("Select() = %s, want a (lower load)", won.Name)
	}
}

func TestSelect_PrefersIntentMatch(t *testing.T) {
	a := newCandidate(t, "a", "checkout", 1, 0, registry.BucketFast)
	b := newCandidate(t, "b", "search", 1, 0, registry.BucketFast)

	won, err := Select(Weights{Intent: 1}, []Candidate{a, b}, "search", liminal.Dormant, liminal.Fast)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if won.Name != "b" {
		t.Errorf("Select() = %s, want b (intent match)", won.Name)
	}
}

func TestRank_TieBreaksByWeightThenName(t *testing.T) {
	// Equal scores (both zero RPS, no intent, same bucket): weight then name.
	a := newCandidate(t, "a", "", 1, 0, registry.BucketFast)
	b := newCandidate(t, "b", "", 3, 0, registry.BucketFast)
	c := newCandidate(t, "c", "", 3, 0, registry.BucketFast)

	ranked, err := Rank(Weights{Load: 1}, []Candidate{a, b, c}, "", liminal.Dormant, liminal.Fast)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("len(Rank()) = %d, want 3", len(ranked))
	}
	if ranked[0].Name != "b" || ranked[1].Name != "c" || ranked[2].Name != "a" {
		names := []string{ranked[0].Name, ranked[1].Name, ranked[2].Name}
		t.Errorf("Rank() order = %v, want [b c a] (weight desc, then name)", names)
	}
}

func TestRank_Deterministic(t *testing.T) {
	build := func() []Candidate {
		return []Candidate{
			newCandidate(t, "a", "search", 2, 20, registry.BucketFast),
			newCandidate(t, "b", "search", 2, 20, registry.BucketSlow),
			newCandidate(t, "c", "checkout", 1, 5, registry.BucketMedium),
		}
	}

	first, err := Rank(DefaultWeights, build(), "search", liminal.Aware, liminal.Fast)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	second, err := Rank(DefaultWeights, build(), "search", liminal.Aware, liminal.Fast)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("Rank() not deterministic: %v vs %v", namesOf(first), namesOf(second))
		}
	}
}

func namesOf(ups []*registry.Upstream) []string {
	out := make([]string, len(ups))
	for i, u := range ups {
		out[i] = u.Name
	}
	return out
}

func TestWeights_ModulateAtVigilant(t *testing.T) {
	base := Weights{Load: 1, Intent: 1, Tempo: 1}
	calm := base.modulate(liminal.Aware)
	stressed := base.modulate(liminal.Vigilant)

	if stressed.Intent <= calm.Intent {
		t.Errorf("Intent weight at Vigilant (%v) should exceed Aware (%v)", stressed.Intent, calm.Intent)
	}
	if stressed.Tempo <= calm.Tempo {
		t.Errorf("Tempo weight at Vigilant (%v) should exceed Aware (%v)", stressed.Tempo, calm.Tempo)
	}

	sum := stressed.Load + stressed.Intent + stressed.Tempo
	if diff := sum - 1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("modulated weights sum = %v, want 1", sum)
	}
}

func TestWeights_NormalizeZeroFallsBackToEvenSplit(t *testing.T) {
	w := Weights{}.normalize()
	if w.Load != w.Intent || w.Intent != w.Tempo {
		t.Errorf("normalize() of zero weights = %+v, want equal split", w)
	}
}
