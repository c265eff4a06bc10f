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
	"errors"
	"fmt"
	"time"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client.
// GoRedisEvaler wraps github.com/redis/go-redis/v9's Cmdable.Eval.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisPersister applies anomaly commits idempotently with a Lua script:
//  1. SETNX commit:<route>:<commit_id> 1
//  2. if set -> HINCRBY severity:<route> total vector
//  3. EXPIRE the marker for leak protection
//
// If SETNX fails (already applied), the script is a no-op, reused verbatim
// from the teacher's RedisPersister.
type RedisPersister struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisPersister returns a persister with the given client and marker
// TTL. markerTTL bounds the commit-marker key set; choose something larger
// than the worst-case retry window.
func NewRedisPersister(client RedisEvaler, markerTTL time.Duration) *RedisPersister {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisPersister{client: client, markerTTL: markerTTL}
}

const redisLuaScript = `
local counterKey = KEYS[1]
local markerKey = KEYS[2]
local vector = tonumber(ARGV[1])
local ttlSeconds = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HINCRBY', counterKey, 'total', vector)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// RedisSeverityKey and RedisCommitMarkerKey are exported for interoperability
// with anything else reading the journal's Redis keyspace directly.
func RedisSeverityKey(route string) string { return fmt.Sprintf("daogate:severity:%s", route) }
func RedisCommitMarkerKey(route, commitID string) string {
	return fmt.Sprintf("daogate:commit:%s:%s", route, commitID)
}

// CommitBatch applies entries one EVAL at a time; callers wanting pipelined
// batching can wrap a RedisEvaler that pipelines internally.
func (r *RedisPersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("journal: CommitEntry.CommitID must be set")
		}
		keys := []string{RedisSeverityKey(e.Key), RedisCommitMarkerKey(e.Key, e.CommitID)}
		args := []interface{}{e.Vector, int(r.markerTTL.Seconds())}
		if _, err := r.client.Eval(ctx, redisLuaScript, keys, args...); err != nil {
			return fmt.Errorf("journal: redis eval route=%s commit=%s: %w", e.Key, e.CommitID, err)
		}
	}
	return nil
}
