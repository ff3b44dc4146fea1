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

// Package main is the entry point for the FleetPulse Telemetry service.
//
// The Telemetry service drains vehicle telemetry events from Kafka and
// persists them in a PostGIS-enabled Postgres. Offsets commit only
// after a record is durably stored.
//
// Usage:
//
//	./telemetry
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8081)
//	DATABASE_URL - Postgres connection string (required)
//	KAFKA_BROKERS - Kafka bootstrap servers (default: localhost:9092)
//	KAFKA_TOPICS - Topics to consume (default: telemetry)
//	KAFKA_GROUP_ID - Consumer group id (default: car-telemetry)
//	KAFKA_AUTO_OFFSET_RESET - earliest or latest (default: earliest)
package main

import (
	"fleetpulse/realtime/telemetry"
)

func main() {
	telemetry.Run()
}
