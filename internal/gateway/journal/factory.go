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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures BuildPersister. It is deliberately decoupled from the
// config package's types (as config.JournalConfig is decoupled from this
// package) so journal has no import-cycle risk and can be exercised
// directly from tests without a YAML round trip.
type Options struct {
	Backend       string // "mock", "redis", "kafka", "postgres"
	RedisAddr     string
	RedisMarkerTTL time.Duration
	KafkaTopic    string
	PostgresDSN   string
}

// BuildPersister constructs the backend named by opts.Backend. An empty
// backend name falls back to "mock" so a gateway with no journal config
// still runs; an unknown backend name is an error.
func BuildPersister(opts Options) (Persister, error) {
	switch opts.Backend {
	case "", "mock":
		return NewMockPersister(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		return NewRedisPersister(&GoRedisEvaler{Client: client}, opts.RedisMarkerTTL), nil
	case "kafka":
		return nil, fmt.Errorf("journal: kafka backend requires a caller-supplied KafkaProducer; use NewKafkaPersister directly")
	case "postgres":
		return nil, fmt.Errorf("journal: postgres backend requires a caller-supplied *sql.DB (with a driver registered); use NewPostgresPersister directly")
	default:
		return nil, fmt.Errorf("journal: unknown backend %q", opts.Backend)
	}
}
