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
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetpulse/realtime/shared/logger"
)

// writeWait bounds a single frame write to one socket so a stalled
// client cannot block fan-out to the user's other connections.
const writeWait = 10 * time.Second

var errConnClosed = errors.New("connection closed")

// socket is the subset of *websocket.Conn used for delivery and close.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one open WebSocket connection, owned exclusively by the
// Gateway handler that accepted it. The registry only ever touches it
// through WriteText and Close; writes are serialized through mu because
// gorilla/websocket supports at most one concurrent writer.
type Conn struct {
	ws     socket
	mu     sync.Mutex
	closed bool
}

// NewConn wraps an accepted WebSocket connection for registry delivery.
func NewConn(ws socket) *Conn {
	return &Conn{ws: ws}
}

// WriteText writes one text frame with a bounded deadline.
func (c *Conn) WriteText(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// writePing sends a ping control frame for liveness checking.
func (c *Conn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close attempts a graceful close handshake and then tears down the
// transport. Safe to call more than once; later calls are no-ops.
func (c *Conn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
	_ = c.ws.Close()
}

// Registry is the per-instance connection registry: an in-memory map
// from user identity to that user's set of open connections. It is the
// only structure mutated by concurrent connection handlers, so all
// access goes through an internal lock; socket writes happen outside
// the lock so one slow client never blocks admission of another.
//
// Register and Unregister also keep the shared presence directory in
// step: the first local connection for a user advertises this instance
// as the user's owner, and closing the last one withdraws the claim.
type Registry struct {
	instanceID string
	presence   *Presence
	log        *logger.Logger

	mu    sync.RWMutex
	users map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry for this instance.
func NewRegistry(instanceID string, presence *Presence, log *logger.Logger) *Registry {
	return &Registry{
		instanceID: instanceID,
		presence:   presence,
		log:        log,
		users:      make(map[string]map[*Conn]struct{}),
	}
}

// Register adds conn to userID's local connection set, creating the set
// if absent, and upserts the presence directory entry for userID.
// Idempotent per connection. A directory error leaves the local
// registration in place (local delivery still works) and is returned
// for the caller to log.
func (r *Registry) Register(ctx context.Context, userID string, conn *Conn) error {
	r.mu.Lock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.users[userID] = set
	}
	set[conn] = struct{}{}
	connCount := len(set)
	r.updateGauges()
	r.mu.Unlock()

	r.log.Info(userID, "connection registered", map[string]interface{}{
		"connections": connCount,
	})

	if err := r.presence.Upsert(ctx, userID); err != nil {
		return err
	}
	return nil
}

// Unregister removes conn from userID's set. When the last connection
// for the user closes, the set is removed entirely (never left empty)
// and the presence entry is deleted if this instance still owns it.
func (r *Registry) Unregister(ctx context.Context, userID string, conn *Conn) error {
	r.mu.Lock()
	last := false
	if set, ok := r.users[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.users, userID)
			last = true
		}
	}
	r.updateGauges()
	r.mu.Unlock()

	if !last {
		r.log.Info(userID, "connection unregistered", nil)
		return nil
	}

	r.log.Info(userID, "last connection unregistered", nil)
	return r.presence.RemoveIfOwner(ctx, userID)
}

// HasLocal reports whether userID has at least one open connection on
// this instance. This is the router's fast path check.
func (r *Registry) HasLocal(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// DeliverLocal writes payload to every open local connection for
// userID. Closed or errored sockets are skipped silently; cleanup is
// the Gateway's responsibility. Returns whether at least one connection
// received the payload.
func (r *Registry) DeliverLocal(userID string, payload []byte) bool {
	r.mu.RLock()
	set := r.users[userID]
	conns := make([]*Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	if len(conns) == 0 {
		return false
	}

	delivered := 0
	for _, c := range conns {
		if err := c.WriteText(payload); err != nil {
			// Socket likely dead; the owning handler will unregister it.
			continue
		}
		delivered++
	}

	if delivered > 0 {
		promNotificationsDelivered.WithLabelValues("local").Add(float64(delivered))
	}
	return delivered > 0
}

// CloseAll gracefully closes every open connection. Used at shutdown;
// each owning handler's read loop then exits and runs its unregister.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	conns := make([]*Conn, 0)
	for _, set := range r.users {
		for c := range set {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close(reason)
	}
}

// ConnectionCount returns the number of open connections on this instance.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.users {
		n += len(set)
	}
	return n
}

// UserCount returns the number of distinct locally connected users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// updateGauges refreshes the connection gauges. Caller holds r.mu.
func (r *Registry) updateGauges() {
	conns := 0
	for _, set := range r.users {
		conns += len(set)
	}
	promActiveConnections.Set(float64(conns))
	promConnectedUsers.Set(float64(len(r.users)))
}
