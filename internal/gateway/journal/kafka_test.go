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
	"errors"
	"testing"
	"time"
)

type fakeProducer struct {
	topic   string
	key     []byte
	value   []byte
	failErr error
	calls   int
}

func (f *fakeProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	f.calls++
	if f.failErr != nil {
		return f.failErr
	}
	f.topic, f.key, f.value = topic, key, value
	return nil
}

func TestKafkaPersister_CommitBatch_PublishesJSONMessage(t *testing.T) {
	fp := &fakeProducer{}
	p := NewKafkaPersister(fp, "anomalies", time.Second)

	err := p.CommitBatch(context.Background(), []CommitEntry{{Key: "checkout", Vector: 7, CommitID: "c1"}})
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if fp.topic != "anomalies" {
		t.Errorf("topic = %q, want anomalies", fp.topic)
	}

	var msg CommitMessage
	if err := json.Unmarshal(fp.value, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Key != "checkout" || msg.Vector != 7 || msg.CommitID != "c1" {
		t.Errorf("message = %+v, want Key=checkout Vector=7 CommitID=c1", msg)
	}
}

func TestKafkaPersister_CommitBatch_PropagatesProducerError(t *testing.T) {
	fp := &fakeProducer{failErr: errors.New("broker unreachable")}
	p := NewKafkaPersister(fp, "anomalies", time.Second)

	err := p.CommitBatch(context.Background(), []CommitEntry{{Key: "checkout", Vector: 1, CommitID: "c1"}})
	if err == nil {
		t.Fatal("expected error from producer failure")
	}
}
