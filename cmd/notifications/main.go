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

// Package main is the entry point for the FleetPulse Notifications service.
//
// The Notifications service delivers realtime events to connected
// browser clients across a horizontally scaled fleet:
// - Serves WebSocket connections at /ws, keyed by userId
// - Consumes the notification event log from Kafka
// - Tracks user presence in a shared Redis directory
// - Routes cross-instance deliveries over per-instance Redis channels
//
// Usage:
//
//	./notifications
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	REDIS_URL - Redis connection string (default: redis://localhost:6379)
//	KAFKA_BROKERS - Kafka bootstrap servers (default: localhost:9092)
//	KAFKA_TOPICS - Topics to consume (default: notifications)
//	KAFKA_GROUP_ID - Consumer group id (default: realtime-notifications)
//	KAFKA_AUTO_OFFSET_RESET - earliest or latest (default: earliest)
//	KAFKA_ENABLE_AUTO_COMMIT - async offset commits (default: true)
package main

import (
	"fleetpulse/realtime/notifications"
)

func main() {
	notifications.Run()
}
