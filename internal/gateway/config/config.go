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

// Package config is the Memory/Config component (spec.md §4.E): it decodes
// the on-disk YAML configuration, validates it, computes a checksum the
// same way a reload detects a no-op write, and blends an old config into a
// new one over a metamorphic transition window instead of swapping state
// in one step.
package config

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"daogate/internal/gateway/journal"
	"daogate/internal/gateway/pipeline"
	"daogate/internal/gateway/policy"
	"daogate/internal/gateway/registry"
)

// PolicyConfig holds the initial policy weights (spec.md §6
// "policy.w_load/w_intent/w_tempo"), normalized on load by the policy
// package itself.
type PolicyConfig struct {
	WLoad   float64 `yaml:"w_load"`
	WIntent float64 `yaml:"w_intent"`
	WTempo  float64 `yaml:"w_tempo"`
}

// ToWeights converts to policy.Weights, falling back to policy.DefaultWeights
// when every field is zero (an empty "policy:" block should behave like no
// override at all, not like every candidate scoring zero).
func (c PolicyConfig) ToWeights() policy.Weights {
	if c.WLoad == 0 && c.WIntent == 0 && c.WTempo == 0 {
		return policy.DefaultWeights
	}
	return policy.Weights{Load: c.WLoad, Intent: c.WIntent, Tempo: c.WTempo}
}

// PresenceConfig mirrors registry.PresenceOptions with YAML tags matching
// spec.md §6 ("presence.history_size", "presence.present_threshold",
// "presence.liminal_threshold", "presence.absent_timeout_ms").
type PresenceConfig struct {
	HistorySize      int     `yaml:"history_size"`
	PresentThreshold float64 `yaml:"present_threshold"`
	LiminalThreshold float64 `yaml:"liminal_threshold"`
	AbsentTimeoutMs  int64   `yaml:"absent_timeout_ms"`
}

// ToPresenceOptions converts to registry.PresenceOptions. Zero fields fall
// back to registry's own defaults via withDefaults, applied lazily by
// registry.NewUpstream — this conversion only needs to carry values through.
func (c PresenceConfig) ToPresenceOptions() registry.PresenceOptions {
	return registry.PresenceOptions{
		HistorySize:      c.HistorySize,
		PresentThreshold: c.PresentThreshold,
		LiminalThreshold: c.LiminalThreshold,
		AbsentTimeout:    time.Duration(c.AbsentTimeoutMs) * time.Millisecond,
	}
}

// QuantumConfig configures hedged routing (spec.md §6
// "quantum.enabled/factor/timeout_ms/collapse").
type QuantumConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Factor    int    `yaml:"factor"`
	TimeoutMs int64  `yaml:"timeout_ms"`
	Collapse  string `yaml:"collapse"` // "first_success" | "first_any" | "fastest_of_n"
}

// ToOptions converts to pipeline.QuantumOptions. An unrecognized Collapse
// string defaults to FirstSuccess, the conservative choice.
func (c QuantumConfig) ToOptions() pipeline.QuantumOptions {
	return pipeline.QuantumOptions{
		Enabled:      c.Enabled,
		Factor:       c.Factor,
		HedgeTimeout: time.Duration(c.TimeoutMs) * time.Millisecond,
		Collapse:     parseCollapse(c.Collapse),
	}
}

func parseCollapse(s string) pipeline.CollapseStrategy {
	switch s {
	case "first_any":
		return pipeline.FirstAny
	case "fastest_of_n":
		return pipeline.FastestOfN
	default:
		return pipeline.FirstSuccess
	}
}

// ShadowRouteConfig configures shadow traffic duplication for one route
// (spec.md §6 "shadow.enabled/upstream/rate/mode").
type ShadowRouteConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Upstream string  `yaml:"upstream"`
	Rate     float64 `yaml:"rate"`
	Mode     string  `yaml:"mode"` // "async" | "sync" | "compare"
}

func (c ShadowRouteConfig) toShadowConfig() registry.ShadowConfig {
	if !c.Enabled {
		return registry.ShadowConfig{}
	}
	mode := registry.ShadowAsync
	switch c.Mode {
	case "sync":
		mode = registry.ShadowSync
	case "compare":
		mode = registry.ShadowCompare
	}
	return registry.ShadowConfig{
		Enabled:        true,
		ShadowUpstream: c.Upstream,
		Rate:           c.Rate,
		Mode:           mode,
	}
}

// ZoneBandConfig is one entry of the elapsed/deadline ratio table (spec.md
// §6 "zones.bands"). MaxRatio <= 0 means "no upper bound" (the catch-all
// final band); YAML authors write it as 0 or omit it rather than spelling
// out infinity.
type ZoneBandConfig struct {
	MaxRatio float64 `yaml:"max_ratio"`
	Status   int     `yaml:"status"`
	Body     string  `yaml:"body"`
}

// ZonesConfig configures the zone-fallback table.
type ZonesConfig struct {
	Bands []ZoneBandConfig `yaml:"bands"`
}

// ToBands converts to pipeline.ZoneBand, resolving MaxRatio<=0 to +Inf. An
// empty Bands list yields nil, which pipeline.zoneFor interprets as "use
// the built-in default table".
func (c ZonesConfig) ToBands() []pipeline.ZoneBand {
	if len(c.Bands) == 0 {
		return nil
	}
	out := make([]pipeline.ZoneBand, len(c.Bands))
	for i, b := range c.Bands {
		ratio := b.MaxRatio
		if ratio <= 0 {
			ratio = math.Inf(1)
		}
		out[i] = pipeline.ZoneBand{MaxRatio: ratio, Status: b.Status, Body: b.Body}
	}
	return out
}

// LiminalConfig configures the update loop and echo recording (spec.md §6
// "liminal.update_interval_ms", default 10000, and the Open Question
// resolution to expose include_shadow_in_echo as a flag rather than
// hardcoding it — see DESIGN.md).
type LiminalConfig struct {
	UpdateIntervalMs    int64 `yaml:"update_interval_ms"`
	IncludeShadowInEcho bool  `yaml:"include_shadow_in_echo"`
}

// UpdateInterval returns the configured interval, defaulting to 10s.
func (c LiminalConfig) UpdateInterval() time.Duration {
	if c.UpdateIntervalMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.UpdateIntervalMs) * time.Millisecond
}

// MetamorphicConfig configures the config-blend transition window (spec.md
// §6 "metamorphic.duration_ms", default 60000).
type MetamorphicConfig struct {
	DurationMs int64 `yaml:"duration_ms"`
}

// Duration returns the configured transition window, defaulting to 60s.
func (c MetamorphicConfig) Duration() time.Duration {
	if c.DurationMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DurationMs) * time.Millisecond
}

// JournalConfig configures the echo/anomaly commit journal.
type JournalConfig struct {
	Backend     string `yaml:"backend"` // "redis" | "kafka" | "postgres" | "mock"
	FlushMs     int64  `yaml:"flush_interval_ms"`
	RetentionMs int64  `yaml:"retention_ms"`
	Addr        string `yaml:"addr"` // redis address, e.g. "localhost:6379"
	DSN         string `yaml:"dsn"`  // postgres DSN / kafka topic, backend-dependent
}

// FlushInterval defaults to 2s.
func (c JournalConfig) FlushInterval() time.Duration {
	if c.FlushMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.FlushMs) * time.Millisecond
}

// Retention defaults to 1h.
func (c JournalConfig) Retention() time.Duration {
	if c.RetentionMs <= 0 {
		return time.Hour
	}
	return time.Duration(c.RetentionMs) * time.Millisecond
}

// ToJournalOptions converts to journal.Options. RedisMarkerTTL is left at
// journal's own default (24h marker TTL) since no spec.md key surfaces
// it separately.
func (c JournalConfig) ToJournalOptions() journal.Options {
	return journal.Options{
		Backend:     c.Backend,
		RedisAddr:   c.Addr,
		KafkaTopic:  c.DSN,
		PostgresDSN: c.DSN,
	}
}

// PoolConfig configures the upstream connection pool.
type PoolConfig struct {
	IdleTimeoutMs int64 `yaml:"idle_timeout_ms"`
	MaxIdlePerURL int   `yaml:"max_idle_per_url"`
}

// IdleTimeout defaults to 90s, matching net/http.Transport's own default.
func (c PoolConfig) IdleTimeout() time.Duration {
	if c.IdleTimeoutMs <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// RouteConfig is the declarative shape of one route entry.
type RouteConfig struct {
	Name          string            `yaml:"name"`
	Host          string            `yaml:"host"`
	PathPrefix    string            `yaml:"path_prefix"`
	Upstreams     []string          `yaml:"upstreams"`
	DeadlineMs    int64             `yaml:"deadline_ms"`
	HedgeAll      bool              `yaml:"hedge_all"`
	Shadow        ShadowRouteConfig `yaml:"shadow"`
}

func (c RouteConfig) toRoute() registry.Route {
	return registry.Route{
		Name:          c.Name,
		Host:          c.Host,
		PathPrefix:    c.PathPrefix,
		UpstreamNames: append([]string(nil), c.Upstreams...),
		Deadline:      time.Duration(c.DeadlineMs) * time.Millisecond,
		HedgeAll:      c.HedgeAll,
		Shadow:        c.Shadow.toShadowConfig(),
	}
}

// UpstreamConfig is the declarative shape of one upstream entry.
type UpstreamConfig struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Intents []string `yaml:"intents"`
	Weight  uint     `yaml:"weight"`
}

func (c UpstreamConfig) toSpec() registry.UpstreamSpec {
	return registry.UpstreamSpec{
		Name:    c.Name,
		URL:     c.URL,
		Intents: append([]string(nil), c.Intents...),
		Weight:  c.Weight,
	}
}

// defaultMaxBufferBytes is the fallback for Config.MaxBufferBytes (spec.md
// §4.D.1: 10 MiB).
const defaultMaxBufferBytes = 10 << 20

// Config is the full on-disk configuration schema (spec.md §6). It carries
// no checksum field of its own; Checksum() computes one on demand from the
// canonical YAML encoding, so there is nothing self-referential to zero out
// before hashing.
type Config struct {
	Policy         PolicyConfig      `yaml:"policy"`
	Presence       PresenceConfig    `yaml:"presence"`
	Quantum        QuantumConfig     `yaml:"quantum"`
	Zones          ZonesConfig       `yaml:"zones"`
	Liminal        LiminalConfig     `yaml:"liminal"`
	Metamorphic    MetamorphicConfig `yaml:"metamorphic"`
	Journal        JournalConfig     `yaml:"journal"`
	Pool           PoolConfig        `yaml:"pool"`
	MaxBufferBytes int64             `yaml:"max_buffer_bytes"`
	Routes         []RouteConfig     `yaml:"routes"`
	Upstreams      []UpstreamConfig  `yaml:"upstreams"`
}

// Parse decodes YAML bytes into a Config and validates it.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the invariants the rest of the gateway assumes hold:
// every route's upstream references exist, shadow routes name a real
// shadow upstream, and weights/ratios are non-negative.
func (c *Config) Validate() error {
	known := make(map[string]struct{}, len(c.Upstreams))
	for _, u := range c.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("config: upstream with empty name")
		}
		if u.URL == "" {
			return fmt.Errorf("config: upstream %q has no url", u.Name)
		}
		known[u.Name] = struct{}{}
	}
	for _, r := range c.Routes {
		if r.Name == "" {
			return fmt.Errorf("config: route with empty name")
		}
		if len(r.Upstreams) == 0 {
			return fmt.Errorf("config: route %q names no upstreams", r.Name)
		}
		for _, name := range r.Upstreams {
			if _, ok := known[name]; !ok {
				return fmt.Errorf("config: route %q references unknown upstream %q", r.Name, name)
			}
		}
		if r.Shadow.Enabled {
			if r.Shadow.Upstream == "" {
				return fmt.Errorf("config: route %q has shadow.enabled without shadow.upstream", r.Name)
			}
			if _, ok := known[r.Shadow.Upstream]; !ok {
				return fmt.Errorf("config: route %q shadow upstream %q is not declared", r.Name, r.Shadow.Upstream)
			}
			if r.Shadow.Rate < 0 || r.Shadow.Rate > 1 {
				return fmt.Errorf("config: route %q shadow.rate = %v, must be in [0,1]", r.Name, r.Shadow.Rate)
			}
		}
	}
	if c.Presence.PresentThreshold != 0 && c.Presence.LiminalThreshold != 0 &&
		c.Presence.PresentThreshold < c.Presence.LiminalThreshold {
		return fmt.Errorf("config: presence.present_threshold must be >= presence.liminal_threshold")
	}
	if c.Quantum.Enabled && c.Quantum.Factor != 0 && c.Quantum.Factor < 2 {
		return fmt.Errorf("config: quantum.factor must be >= 2 when quantum.enabled")
	}
	if c.Policy.WLoad < 0 || c.Policy.WIntent < 0 || c.Policy.WTempo < 0 {
		return fmt.Errorf("config: policy weights must be non-negative")
	}
	if c.Presence.PresentThreshold < 0 || c.Presence.LiminalThreshold < 0 {
		return fmt.Errorf("config: presence thresholds must be non-negative")
	}
	return nil
}

// Checksum computes a SHA-256 digest over the canonical YAML encoding of c
// (grounded on RuntimeConfigManager.calculateChecksum's zero-then-hash
// pattern), used by the hot-reload watcher to skip no-op writes.
func (c *Config) Checksum() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		// yaml.Marshal on a plain struct of scalars/slices cannot fail; a
		// panic here would indicate a programming error in Config's shape.
		panic(fmt.Sprintf("config: checksum marshal: %v", err))
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// EffectiveMaxBufferBytes defaults to 10 MiB.
func (c *Config) EffectiveMaxBufferBytes() int64 {
	if c.MaxBufferBytes <= 0 {
		return defaultMaxBufferBytes
	}
	return c.MaxBufferBytes
}

// ToReloadSpec converts the route/upstream declarations into the shape
// registry.Reload expects.
func (c *Config) ToReloadSpec() registry.ReloadSpec {
	routes := make([]registry.Route, len(c.Routes))
	for i, r := range c.Routes {
		routes[i] = r.toRoute()
	}
	upstreams := make([]registry.UpstreamSpec, len(c.Upstreams))
	for i, u := range c.Upstreams {
		upstreams[i] = u.toSpec()
	}
	return registry.ReloadSpec{Routes: routes, Upstreams: upstreams}
}

// ToPipelineOptions converts the scalar knobs into pipeline.Options. The
// caller still owns PolicyWeights modulation/assembly of Registry/Liminal
// collaborators; this only carries the config-sourced scalars.
func (c *Config) ToPipelineOptions() pipeline.Options {
	return pipeline.Options{
		MaxBufferBytes:      c.EffectiveMaxBufferBytes(),
		Quantum:             c.Quantum.ToOptions(),
		PolicyWeights:       c.Policy.ToWeights(),
		IncludeShadowInEcho: c.Liminal.IncludeShadowInEcho,
		Zones:               c.Zones.ToBands(),
	}
}
