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

/*
Package notifications implements the FleetPulse realtime notification
service: near-real-time delivery of domain events to browser clients
over WebSocket, across a horizontally scaled fleet of stateless server
instances.

# Architecture

Events arrive on a partitioned Kafka log that is not addressed to any
particular server instance, while the destination user may be connected
to any instance in the fleet. Routing is two-tier:

	Kafka record → Consumer → Router ─┬─ local: Registry fan-out to the
	                                  │          user's open sockets
	                                  └─ remote: single publish to the
	                                             owning instance's Redis
	                                             channel

Each instance generates a random identity at startup, subscribes to its
own Redis channel (ws-notifications:<instanceID>), and advertises
ownership of its connected users in a shared Redis hash
(user-instance-mapping). Routing a notification therefore costs at most
one directory lookup and one publish, regardless of fleet size.

Delivery is best effort: a notification for a user with no live
connection anywhere is dropped and logged, never queued.

# Components

  - Registry: per-instance concurrent map of userID → open connections,
    the only structure mutated by concurrent connection handlers.
  - Presence: thin wrapper over the shared Redis hash mapping
    userID → owning instance. Last write wins; no versioning.
  - Router: local fast path plus single-hop cross-instance publish.
  - Consumer: Kafka consumer group that reconciles topics at startup,
    extracts a routing key per record, and feeds the Router.
  - Gateway: WebSocket upgrade endpoint driving each connection's
    lifecycle (register on open, unconditional unregister on close).

Run wires all of this together and blocks until shutdown.
*/
package notifications
