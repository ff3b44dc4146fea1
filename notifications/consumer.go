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
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"fleetpulse/realtime/shared/logger"
)

const (
	// Missing topics are created with this layout so consumption never
	// fails hard on a topic that does not exist yet.
	topicPartitions  = 2
	topicReplication = 1

	// maxPollWait bounds each fetch so the loop stays responsive to
	// shutdown even when the log is idle.
	maxPollWait = 500 * time.Millisecond

	// errorBackoff is the short delay after an unexpected consume
	// error, preventing a tight failure loop.
	errorBackoff = time.Second
)

// notificationRouter is the consumer's view of the Router.
type notificationRouter interface {
	Route(ctx context.Context, userID string, payload json.RawMessage) error
}

// eventRecord is the set of optional routing-key candidates probed in
// an inbound event body. Upstream services put the user identity either
// at the top level or nested in the REST ingestion metadata.
type eventRecord struct {
	UserID       string `json:"userId"`
	RestMetadata struct {
		UserID string `json:"userId"`
	} `json:"restMetadata"`
}

// Consumer sources notifications from the partitioned event log. It
// reconciles the configured topic set at startup, then polls records,
// extracts a routing key per record, and hands the decoded body to the
// Router. One malformed record never stalls or crashes the loop.
type Consumer struct {
	cfg    KafkaConfig
	router notificationRouter
	log    *logger.Logger
	reader *kafka.Reader
}

// NewConsumer creates a consumer for the configured topics. Call
// EnsureTopics before Run.
func NewConsumer(cfg KafkaConfig, router notificationRouter, log *logger.Logger) *Consumer {
	return &Consumer{cfg: cfg, router: router, log: log}
}

// EnsureTopics reconciles the configured topic set against the broker:
// any missing topic is created with the fixed partition count. An error
// here is fatal to startup; the caller must not proceed to consume
// topics in an unknown state.
func (c *Consumer) EnsureTopics(ctx context.Context) error {
	client := &kafka.Client{
		Addr:    kafka.TCP(c.cfg.Brokers...),
		Timeout: 10 * time.Second,
	}

	meta, err := client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return fmt.Errorf("failed to fetch broker metadata: %w", err)
	}

	existing := make(map[string]bool, len(meta.Topics))
	for _, t := range meta.Topics {
		existing[t.Name] = true
	}

	var missing []kafka.TopicConfig
	var missingNames []string
	for _, topic := range c.cfg.Topics {
		if !existing[topic] {
			missing = append(missing, kafka.TopicConfig{
				Topic:             topic,
				NumPartitions:     topicPartitions,
				ReplicationFactor: topicReplication,
			})
			missingNames = append(missingNames, topic)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	c.log.Warn("", "creating missing topics", map[string]interface{}{
		"topics":     strings.Join(missingNames, ", "),
		"partitions": topicPartitions,
	})

	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: missing})
	if err != nil {
		return fmt.Errorf("failed to create topics %s: %w", strings.Join(missingNames, ", "), err)
	}
	for topic, topicErr := range resp.Errors {
		if topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("failed to create topic %s: %w", topic, topicErr)
		}
	}

	c.log.Info("", "created missing topics", map[string]interface{}{
		"topics": strings.Join(missingNames, ", "),
	})
	return nil
}

// readerConfig maps the service configuration onto the log client.
// enable_auto_commit=true batches offset commits asynchronously on an
// interval; false commits synchronously after each processed record.
func (c *Consumer) readerConfig() kafka.ReaderConfig {
	startOffset := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		startOffset = kafka.LastOffset
	}

	commitInterval := time.Duration(0)
	if c.cfg.EnableAutoCommit {
		commitInterval = time.Second
	}

	return kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		GroupID:        c.cfg.GroupID,
		GroupTopics:    c.cfg.Topics,
		StartOffset:    startOffset,
		CommitInterval: commitInterval,
		MaxWait:        maxPollWait,
	}
}

// Run consumes records until ctx is cancelled. Per-record failures are
// contained to that record; only the shutdown signal exits the loop.
func (c *Consumer) Run(ctx context.Context) {
	c.reader = kafka.NewReader(c.readerConfig())
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.ErrorWithErr("", "failed to close Kafka reader", err, nil)
		}
	}()

	c.log.Info("", "consumer started", map[string]interface{}{
		"topics": strings.Join(c.cfg.Topics, ", "),
		"group":  c.cfg.GroupID,
	})

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("", "consumer stopping", nil)
				return
			}
			c.log.ErrorWithErr("", "consume error", err, nil)
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		promEventsConsumed.WithLabelValues(msg.Topic).Inc()
		c.processRecord(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.ErrorWithErr("", "offset commit failed", err, map[string]interface{}{
				"topic":  msg.Topic,
				"offset": msg.Offset,
			})
		}
	}
}

// processRecord decodes one record and routes it. All failure modes are
// skip-and-continue: malformed bodies and unresolvable routing keys are
// logged, never retried, never escalated.
func (c *Consumer) processRecord(ctx context.Context, msg kafka.Message) {
	if len(msg.Value) == 0 {
		promEventsSkipped.WithLabelValues("empty_body").Inc()
		return
	}

	var rec eventRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		c.log.ErrorWithErr("", "malformed event body, skipping record", err, map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		})
		promEventsSkipped.WithLabelValues("decode_error").Inc()
		return
	}

	userID := routingKey(msg.Key, rec)
	if userID == "" {
		c.log.Warn("", "no resolvable routing key, skipping record", map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		})
		promEventsSkipped.WithLabelValues("no_routing_key").Inc()
		return
	}

	if err := c.router.Route(ctx, userID, msg.Value); err != nil {
		// Best effort: the notification is dropped, the loop continues.
		c.log.ErrorWithErr(userID, "routing failed, notification dropped", err, map[string]interface{}{
			"topic": msg.Topic,
		})
	}
}

// routingKey resolves the destination user with a fixed fallback chain:
// the record's own key, then the body's userId, then the nested REST
// ingestion metadata.
func routingKey(key []byte, rec eventRecord) string {
	if len(key) > 0 {
		return string(key)
	}
	if rec.UserID != "" {
		return rec.UserID
	}
	return rec.RestMetadata.UserID
}
