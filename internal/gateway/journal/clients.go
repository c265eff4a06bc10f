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
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GoRedisEvaler wraps a github.com/redis/go-redis/v9 client to satisfy
// RedisEvaler.
type GoRedisEvaler struct {
	Client *redis.Client
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.Client.Eval(ctx, script, keys, args...).Result()
}

// LoggingRedisEvaler is a demo/dry-run stand-in for GoRedisEvaler: it prints
// what it would have sent instead of touching a real server. Useful for
// local runs of cmd/daogate without a Redis instance.
type LoggingRedisEvaler struct{}

func (LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	fmt.Printf("journal: [dry-run redis] EVAL keys=%v args=%v\n", keys, args)
	return int64(1), nil
}

// LoggingKafkaProducer mirrors LoggingRedisEvaler for the Kafka backend.
type LoggingKafkaProducer struct{}

func (LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	fmt.Printf("journal: [dry-run kafka] topic=%s key=%s value=%s\n", topic, truncate(string(key), 64), truncate(string(value), 200))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// MockPersister is the default in-process backend: it accumulates severity
// totals in memory and de-duplicates by CommitID, matching the same
// idempotency contract the networked backends provide. It is meant for
// tests and for running the gateway with journal.backend=mock.
type MockPersister struct {
	mu       sync.Mutex
	seen     map[string]bool
	totals   map[string]int64
	Batches  int
}

func NewMockPersister() *MockPersister {
	return &MockPersister{seen: map[string]bool{}, totals: map[string]int64{}}
}

func (m *MockPersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches++
	for _, e := range entries {
		marker := e.Key + "|" + e.CommitID
		if m.seen[marker] {
			continue
		}
		m.seen[marker] = true
		m.totals[e.Key] += e.Vector
	}
	return nil
}

// Total returns the accumulated severity for a route, for test assertions.
func (m *MockPersister) Total(route string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[route]
}
