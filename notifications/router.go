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
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"fleetpulse/realtime/shared/logger"
)

// channelPrefix namespaces the per-instance routing channels on the
// shared Redis bus. Each instance subscribes to exactly one channel:
// channelPrefix + its own instance ID.
const channelPrefix = "ws-notifications:"

// envelope is the cross-instance wire format: one routing hop's worth
// of user identity plus an arbitrary JSON payload. Ephemeral, never
// persisted.
type envelope struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// Router delivers a notification to a user's live connections wherever
// they are in the fleet. Routing is two-tier: direct local dispatch
// when the user is connected to this instance, otherwise a single
// fire-and-forget publish to the owning instance's dedicated channel.
// Bus traffic is O(1) per notification regardless of fleet size;
// delivery is best effort with no acknowledgment.
type Router struct {
	rdb        *redis.Client
	registry   *Registry
	presence   *Presence
	instanceID string
	log        *logger.Logger

	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// NewRouter creates a router for this instance. Call Subscribe before
// routing so cross-instance messages can be received.
func NewRouter(rdb *redis.Client, registry *Registry, presence *Presence, instanceID string, log *logger.Logger) *Router {
	return &Router{
		rdb:        rdb,
		registry:   registry,
		presence:   presence,
		instanceID: instanceID,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Route delivers payload to every open connection of userID, wherever
// in the fleet the user is connected. A user with no connection
// anywhere is a drop, not an error; only directory/bus round-trip
// failures are returned, and the caller should log and move on (the
// notification is already lost either way).
func (r *Router) Route(ctx context.Context, userID string, payload json.RawMessage) error {
	// Fast path: the user is connected here, no directory round-trip.
	if r.registry.HasLocal(userID) {
		if !r.registry.DeliverLocal(userID, payload) {
			// All local sockets raced shut between the check and the write.
			promNotificationsDropped.WithLabelValues("no_local_connection").Inc()
		}
		return nil
	}

	target, ok, err := r.presence.Lookup(ctx, userID)
	if err != nil {
		promNotificationsDropped.WithLabelValues("bus_error").Inc()
		return err
	}
	if !ok {
		r.log.Debug(userID, "user not connected anywhere, dropping notification", nil)
		promNotificationsDropped.WithLabelValues("no_presence").Inc()
		return nil
	}

	return r.publish(ctx, target, userID, payload)
}

// publish sends the envelope to the owning instance's channel.
// Fire-and-forget: there is no delivery acknowledgment.
func (r *Router) publish(ctx context.Context, targetInstance, userID string, payload json.RawMessage) error {
	data, err := json.Marshal(envelope{UserID: userID, Payload: payload})
	if err != nil {
		promNotificationsDropped.WithLabelValues("decode_error").Inc()
		return fmt.Errorf("failed to encode routing envelope for %s: %w", userID, err)
	}

	channel := channelPrefix + targetInstance
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		promNotificationsDropped.WithLabelValues("bus_error").Inc()
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	promNotificationsDelivered.WithLabelValues("remote").Inc()
	r.log.Debug(userID, "routed notification to remote instance", map[string]interface{}{
		"target": targetInstance,
	})
	return nil
}

// Subscribe opens this instance's dedicated routing channel and starts
// the receive loop. Must be called once at startup; messages published
// to channelPrefix+instanceID are decoded and delivered locally.
func (r *Router) Subscribe(ctx context.Context) error {
	channel := channelPrefix + r.instanceID
	r.pubsub = r.rdb.Subscribe(ctx, channel)

	// Receive forces the subscription round-trip so a broken bus fails
	// startup instead of silently never delivering.
	if _, err := r.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go r.receiveLoop()

	r.log.Info("", "subscribed to routing channel", map[string]interface{}{
		"channel": channel,
	})
	return nil
}

// receiveLoop handles envelopes arriving on this instance's channel
// until the subscription is closed.
func (r *Router) receiveLoop() {
	defer close(r.done)

	for msg := range r.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			r.log.ErrorWithErr("", "malformed routing envelope, dropping", err, nil)
			promNotificationsDropped.WithLabelValues("decode_error").Inc()
			continue
		}
		if env.UserID == "" {
			promNotificationsDropped.WithLabelValues("decode_error").Inc()
			continue
		}

		if !r.registry.DeliverLocal(env.UserID, env.Payload) {
			// Race with a just-closed connection; the message is dropped.
			r.log.Warn(env.UserID, "received routed notification but user not connected locally", nil)
			promNotificationsDropped.WithLabelValues("no_local_connection").Inc()
		}
	}
}

// Close shuts down the bus subscription and waits for the receive loop
// to drain. Safe to call more than once.
func (r *Router) Close() error {
	var err error
	r.once.Do(func() {
		if r.pubsub != nil {
			err = r.pubsub.Close()
			<-r.done
		}
	})
	return err
}
