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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetpulse/realtime/shared/logger"
)

const (
	// pongWait is the keep-alive window: a connection that neither
	// sends frames nor answers pings within it is considered dead.
	pongWait   = 2 * time.Minute
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames; clients have no command
	// protocol, so anything larger is noise.
	maxMessageSize = 4096

	// registryOpTimeout bounds the presence round-trips on the
	// connect/disconnect path.
	registryOpTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Authentication and origin policy are enforced upstream; the
	// gateway trusts the userId it is handed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway accepts WebSocket upgrades and drives each connection's
// lifecycle: validate the upgrade and user identity, register with the
// Registry, read frames until close, then unregister on every exit
// path. One goroutine per connection; a connection failure never
// affects any other connection.
type Gateway struct {
	registry *Registry
	log      *logger.Logger
}

// NewGateway creates a gateway backed by the given registry.
func NewGateway(registry *Registry, log *logger.Logger) *Gateway {
	return &Gateway{registry: registry, log: log}
}

// HandleWS is the connection endpoint handler. Requests that are not
// WebSocket upgrades, or that carry no userId query parameter, are
// rejected with 400 before any upgrade happens.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusBadRequest)
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		g.log.ErrorWithErr(userID, "websocket upgrade failed", err, nil)
		return
	}

	conn := NewConn(ws)

	regCtx, cancel := context.WithTimeout(context.Background(), registryOpTimeout)
	if err := g.registry.Register(regCtx, userID, conn); err != nil {
		// Local delivery still works; only cross-instance routing can
		// miss this user until the next successful upsert.
		g.log.ErrorWithErr(userID, "presence upsert failed", err, nil)
	}
	cancel()
	g.log.Info(userID, "client connected", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
	})

	// Unregister runs unconditionally, whichever path ends the
	// connection: client close, transport error, or server shutdown.
	defer func() {
		conn.Close("")
		unregCtx, cancel := context.WithTimeout(context.Background(), registryOpTimeout)
		defer cancel()
		if err := g.registry.Unregister(unregCtx, userID, conn); err != nil {
			g.log.ErrorWithErr(userID, "presence cleanup failed", err, nil)
		}
		g.log.Info(userID, "client disconnected", nil)
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go g.pingLoop(conn, stopPing)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Warn(userID, "connection closed unexpectedly", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		// No inbound command protocol is defined; frames are logged for
		// liveness only.
		if msgType == websocket.TextMessage && len(data) > 0 {
			g.log.Debug(userID, "inbound frame", map[string]interface{}{
				"bytes": len(data),
			})
		}

		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// pingLoop keeps the connection alive until it closes or stop is closed.
func (g *Gateway) pingLoop(conn *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.writePing(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
