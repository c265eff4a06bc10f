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

// Package journal is the echo journal: an idempotent-commit durability
// layer for the Liminal Controller's anomaly and shadow-diff events (spec.md
// §4.B "record_echo"). It is adapted wholesale from
// internal/ratelimiter/persistence's CommitEntry/IdempotentPersister shape
// and its Redis/Kafka/Postgres adapters, retargeted so Key is a route name
// and Vector is an anomaly severity delta instead of a rate-limiter scalar.
package journal

import "context"

// CommitEntry is one durable write: Key names the route, Vector is the
// signed anomaly-severity delta to apply, and CommitID is a per-event
// idempotency token (a UUID) so a retried flush after a crash mid-batch
// cannot double-count the same anomaly twice.
type CommitEntry struct {
	Key      string
	Vector   int64
	CommitID string
}

// Persister is the minimal contract every backend adapter satisfies.
// Implementations must apply each entry's effect atomically with respect to
// its CommitID: re-applying the same CommitID for the same Key must be a
// no-op.
type Persister interface {
	CommitBatch(ctx context.Context, entries []CommitEntry) error
}
