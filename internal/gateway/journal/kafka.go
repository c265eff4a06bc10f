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
	"encoding/json"
	"fmt"
	"time"
)

// KafkaProducer is the minimal surface the journal needs from a Kafka
// client. We intentionally avoid importing a specific Kafka library here;
// callers wire in whichever client they already depend on (sarama,
// confluent-kafka-go, segmentio/kafka-go, ...) behind this interface.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// CommitMessage is the JSON payload written to the configured topic. The
// consumer side is expected to apply entries idempotently keyed on CommitID,
// exactly like RedisPersister's marker scheme.
type CommitMessage struct {
	Key       string `json:"key"`
	Vector    int64  `json:"vector"`
	CommitID  string `json:"commit_id"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}

// KafkaPersister publishes each entry as its own message; it does not
// itself guarantee idempotent application, that responsibility belongs to
// the consumer reading CommitMessage.CommitID.
type KafkaPersister struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewKafkaPersister returns a persister that publishes to topic via
// producer, bounding each Produce call with defaultTimeout if the caller's
// context has no deadline of its own.
func NewKafkaPersister(producer KafkaProducer, topic string, defaultTimeout time.Duration) *KafkaPersister {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &KafkaPersister{producer: producer, topic: topic, defaultTimeout: defaultTimeout, now: time.Now}
}

func (k *KafkaPersister) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	for _, e := range entries {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
			defer cancel()
		}
		msg := CommitMessage{Key: e.Key, Vector: e.Vector, CommitID: e.CommitID, TsUnixMs: k.now().UnixMilli()}
		value, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("journal: marshal commit message: %w", err)
		}
		if err := k.producer.Produce(ctx, k.topic, []byte(e.Key), value, nil); err != nil {
			return fmt.Errorf("journal: kafka produce route=%s commit=%s: %w", e.Key, e.CommitID, err)
		}
	}
	return nil
}
