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

package registry

import (
	"net/url"
)

// TemporalBucket is the coarse historical-median-latency bucket an upstream
// falls into, used by Policy's tempo_match (spec.md §4.C). It mirrors the
// TemporalProfile enum but lives on the upstream rather than the process.
type TemporalBucket int

const (
	BucketFast TemporalBucket = iota
	BucketMedium
	BucketSlow
	BucketVariable
)

// Upstream is identity (name, url), declared intents, weight, mutable
// stats, and a presence detector (spec.md §3). Upstreams are exclusively
// owned by the Registry; the pipeline only holds short-lived shared
// references bounded by the request lifetime.
type Upstream struct {
	Name    string
	URL     *url.URL
	Intents map[string]struct{}
	Weight  uint

	Stats    *Stats
	Presence *Presence

	// Draining marks an upstream removed by a config reload that is still
	// lingering during a metamorphic transition (spec.md §4.E: "removed
	// upstreams linger until progress = 1").
	Draining bool
}

// NewUpstream constructs an Upstream with weight clamped to the invariant
// weight >= 1 (spec.md §3).
func NewUpstream(name string, rawURL string, intents []string, weight uint, presenceOpts PresenceOptions) (*Upstream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if weight < 1 {
		weight = 1
	}
	intentSet := make(map[string]struct{}, len(intents))
	for _, tag := range intents {
		intentSet[tag] = struct{}{}
	}
	presence := NewPresence(presenceOpts)
	return &Upstream{
		Name:     name,
		URL:      u,
		Intents:  intentSet,
		Weight:   weight,
		Stats:    NewStats(presence),
		Presence: presence,
	}, nil
}

// HasIntent reports whether the upstream declares the given intent tag.
func (u *Upstream) HasIntent(intent string) bool {
	if intent == "" {
		return true
	}
	_, ok := u.Intents[intent]
	return ok
}

// TemporalBucket classifies the upstream's historical median latency into
// the coarse bucket Policy uses for tempo_match. It is recomputed from the
// live p50 rather than cached, since Stats already amortizes the histogram
// read.
func (u *Upstream) TemporalBucket(fastLimitMicros, slowLimitMicros int64) TemporalBucket {
	p50 := u.Stats.Snapshot().P50Micros
	switch {
	case p50 <= 0:
		return BucketMedium
	case p50 < fastLimitMicros:
		return BucketFast
	case p50 > slowLimitMicros:
		return BucketSlow
	default:
		return BucketMedium
	}
}
