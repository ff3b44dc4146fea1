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

package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"fleetpulse/realtime/shared/logger"
)

const (
	maxPollWait  = 500 * time.Millisecond
	insertWait   = 10 * time.Second
	errorBackoff = time.Second
)

// store is the slice of Repository the consumer needs.
type store interface {
	Insert(ctx context.Context, rec *Record) (int64, error)
}

// Consumer drains the telemetry topic into the repository. Offsets are
// committed only after a record is durably stored, so an insert failure
// replays the record instead of losing it. Malformed records are logged
// and committed past.
type Consumer struct {
	cfg    KafkaConfig
	repo   store
	log    *logger.Logger
	reader *kafka.Reader
}

func NewConsumer(cfg KafkaConfig, repo store, log *logger.Logger) *Consumer {
	return &Consumer{cfg: cfg, repo: repo, log: log}
}

func (c *Consumer) readerConfig() kafka.ReaderConfig {
	startOffset := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		startOffset = kafka.LastOffset
	}
	return kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		GroupTopics: c.cfg.Topics,
		StartOffset: startOffset,
		MaxWait:     maxPollWait,
		// Commits stay synchronous: an offset is only ever committed
		// after the insert succeeded.
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.reader = kafka.NewReader(c.readerConfig())
	defer c.reader.Close()

	c.log.Info("", "Telemetry consumer started", map[string]interface{}{
		"brokers": c.cfg.Brokers,
		"topics":  c.cfg.Topics,
		"groupId": c.cfg.GroupID,
	})

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.ErrorWithErr("", "Failed to fetch message", err, nil)
			time.Sleep(errorBackoff)
			continue
		}

		if !c.processMessage(ctx, msg) {
			// Insert failed: leave the offset uncommitted so the
			// record is redelivered, and back off before refetching.
			time.Sleep(errorBackoff)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.ErrorWithErr("", "Failed to commit offset", err, map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			})
		}
	}
}

// processMessage returns false only when the record was valid but could
// not be stored; skipped records return true so their offset commits.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	if len(msg.Value) == 0 {
		promRecordsSkipped.WithLabelValues("empty_body").Inc()
		return true
	}

	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		promRecordsSkipped.WithLabelValues("decode_error").Inc()
		c.log.ErrorWithErr("", "Skipping undecodable telemetry record", err, map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		})
		return true
	}

	rec := m.ToRecord(json.RawMessage(msg.Value), time.Now().UTC())

	insertCtx, cancel := context.WithTimeout(ctx, insertWait)
	defer cancel()

	start := time.Now()
	id, err := c.repo.Insert(insertCtx, rec)
	if err != nil {
		promInsertFailures.Inc()
		c.log.ErrorWithErr(rec.UserID, "Failed to store telemetry record", err, map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
			"type":   rec.Type,
		})
		return false
	}
	promInsertDuration.Observe(time.Since(start).Seconds())
	promRecordsStored.WithLabelValues(rec.Type).Inc()

	c.log.Debug(rec.UserID, "Telemetry record stored", map[string]interface{}{
		"id":   id,
		"type": rec.Type,
	})
	return true
}
