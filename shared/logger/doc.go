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
Package logger provides structured JSON logging for FleetPulse services.

# Overview

The logger outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK stack, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (notifications, telemetry, ...)
  - Instance ID and container name (for correlating a horizontally
    scaled fleet of service instances)
  - User ID (the routing identity a log line concerns, when any)
  - Custom fields

# Usage

Create a logger for your component, passing the process-wide instance
identity generated at startup:

	log := logger.New("notifications", instanceID)

Log messages with user context:

	log.Info("alice", "connection registered", map[string]interface{}{
	    "connections": 2,
	})

Log errors with the underlying error attached:

	log.ErrorWithErr("", "redis publish failed", err, nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"notifications","instance_id":"7f3c...","container":"notif-xyz",
	 "user_id":"alice","message":"connection registered",
	 "fields":{"connections":2}}

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
