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
Package telemetry implements the FleetPulse telemetry persistence
service: it consumes vehicle telemetry records from the event log and
durably stores them in a PostGIS-enabled PostgreSQL database.

Unlike the notification service, delivery here is not best effort:
an offset is committed only after the record has been stored, so a
storage failure leads to redelivery rather than data loss. Malformed
records, on the other hand, are logged and skipped past; they would
fail identically on every retry.

Vehicle positions are stored as SRID-4326 geography points with a GIST
index, supporting spatial queries over the fleet's movement history.
*/
package telemetry
