// Copyright 2025 FleetPulse
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

package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// fakeRouter records routed notifications.
type fakeRouter struct {
	calls []routedCall
	err   error
}

type routedCall struct {
	userID  string
	payload string
}

func (f *fakeRouter) Route(ctx context.Context, userID string, payload json.RawMessage) error {
	f.calls = append(f.calls, routedCall{userID: userID, payload: string(payload)})
	return f.err
}

// TestRoutingKey tests the fallback chain for resolving the
// destination user of a record.
func TestRoutingKey(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
		body string
		want string
	}{
		{
			name: "record key wins",
			key:  []byte("user-key"),
			body: `{"userId":"user-body","restMetadata":{"userId":"user-meta"}}`,
			want: "user-key",
		},
		{
			name: "body userId when key absent",
			key:  nil,
			body: `{"userId":"user-body","restMetadata":{"userId":"user-meta"}}`,
			want: "user-body",
		},
		{
			name: "nested metadata as last resort",
			key:  nil,
			body: `{"restMetadata":{"userId":"user-meta"}}`,
			want: "user-meta",
		},
		{
			name: "nothing resolvable",
			key:  nil,
			body: `{"kind":"broadcast"}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec eventRecord
			if err := json.Unmarshal([]byte(tt.body), &rec); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if got := routingKey(tt.key, rec); got != tt.want {
				t.Errorf("routingKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestProcessRecord tests skip-and-continue handling of inbound records.
func TestProcessRecord(t *testing.T) {
	tests := []struct {
		name      string
		key       []byte
		value     string
		wantCalls int
		wantUser  string
	}{
		{
			name:      "valid record routed by key",
			key:       []byte("user-1"),
			value:     `{"kind":"order_update"}`,
			wantCalls: 1,
			wantUser:  "user-1",
		},
		{
			name:      "valid record routed by body",
			value:     `{"userId":"user-2","kind":"chat"}`,
			wantCalls: 1,
			wantUser:  "user-2",
		},
		{
			name:      "empty body skipped",
			value:     "",
			wantCalls: 0,
		},
		{
			name:      "malformed body skipped",
			value:     `{"userId":`,
			wantCalls: 0,
		},
		{
			name:      "no routing key skipped",
			value:     `{"kind":"broadcast"}`,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{}
			c := NewConsumer(KafkaConfig{}, router, testLogger())

			c.processRecord(context.Background(), kafka.Message{
				Topic: "notifications",
				Key:   tt.key,
				Value: []byte(tt.value),
			})

			if len(router.calls) != tt.wantCalls {
				t.Fatalf("expected %d route calls, got %d", tt.wantCalls, len(router.calls))
			}
			if tt.wantCalls > 0 {
				if router.calls[0].userID != tt.wantUser {
					t.Errorf("routed to %s, want %s", router.calls[0].userID, tt.wantUser)
				}
				if router.calls[0].payload != tt.value {
					t.Errorf("payload mismatch: %s", router.calls[0].payload)
				}
			}
		})
	}
}

// TestProcessRecordRouterError tests that a routing failure is contained
// to the record.
func TestProcessRecordRouterError(t *testing.T) {
	router := &fakeRouter{err: errors.New("bus down")}
	c := NewConsumer(KafkaConfig{}, router, testLogger())

	// Must not panic or escalate.
	c.processRecord(context.Background(), kafka.Message{
		Topic: "notifications",
		Key:   []byte("user-1"),
		Value: []byte(`{"kind":"order_update"}`),
	})

	if len(router.calls) != 1 {
		t.Fatalf("expected the record to reach the router, got %d calls", len(router.calls))
	}
}

// TestReaderConfig tests the mapping from service configuration to the
// log client: offset reset and the commit mode.
func TestReaderConfig(t *testing.T) {
	tests := []struct {
		name           string
		cfg            KafkaConfig
		wantOffset     int64
		wantCommitEach bool
	}{
		{
			name: "earliest with auto-commit",
			cfg: KafkaConfig{
				Brokers:          []string{"localhost:9092"},
				Topics:           []string{"notifications"},
				GroupID:          "g",
				AutoOffsetReset:  "earliest",
				EnableAutoCommit: true,
			},
			wantOffset: kafka.FirstOffset,
		},
		{
			name: "latest with synchronous commits",
			cfg: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topics:          []string{"notifications"},
				GroupID:         "g",
				AutoOffsetReset: "latest",
			},
			wantOffset:     kafka.LastOffset,
			wantCommitEach: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(tt.cfg, &fakeRouter{}, testLogger())
			rc := c.readerConfig()

			if rc.StartOffset != tt.wantOffset {
				t.Errorf("StartOffset = %d, want %d", rc.StartOffset, tt.wantOffset)
			}
			if tt.wantCommitEach && rc.CommitInterval != 0 {
				t.Errorf("expected synchronous commits, got interval %v", rc.CommitInterval)
			}
			if !tt.wantCommitEach && rc.CommitInterval != time.Second {
				t.Errorf("expected 1s commit interval, got %v", rc.CommitInterval)
			}
			if len(rc.GroupTopics) != 1 || rc.GroupTopics[0] != "notifications" {
				t.Errorf("unexpected GroupTopics: %v", rc.GroupTopics)
			}
		})
	}
}
