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
	"encoding/json"
	"time"
)

// Message is the wire shape of one telemetry event as produced by the
// ingestion pipeline: the client's own telemetry plus the metadata the
// REST ingestion layer wrapped around it.
type Message struct {
	ClientData   *ClientData   `json:"clientData"`
	RestMetadata *RestMetadata `json:"restMetadata"`
}

// ClientData is the vehicle-reported portion of a telemetry event.
// Every field except Type is optional.
type ClientData struct {
	Type      string                 `json:"type"`
	Action    string                 `json:"action,omitempty"`
	VehicleID string                 `json:"vehicleId,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Location  *Location              `json:"location,omitempty"`
	Speed     *float64               `json:"speed,omitempty"`
	Heading   *float64               `json:"heading,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RestMetadata is attached by the ingestion endpoint.
type RestMetadata struct {
	UserID     string `json:"userId"`
	UserEmail  string `json:"userEmail,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	ReceivedAt string `json:"receivedAt,omitempty"`
}

// Record is one row of the car_telemetry table.
type Record struct {
	ID             int64
	Type           string
	Action         *string
	VehicleID      *string
	Status         *string
	Location       *Location
	Speed          *float64
	Heading        *float64
	EventTimestamp *time.Time
	UserID         string
	UserEmail      *string
	RequestID      *string
	ReceivedAt     time.Time
	ProcessedAt    time.Time
	RawData        json.RawMessage
}

// ToRecord maps a decoded message onto a database record. Unparseable
// timestamps degrade gracefully: the event timestamp is left NULL and
// receivedAt falls back to now.
func (m *Message) ToRecord(raw json.RawMessage, now time.Time) *Record {
	rec := &Record{
		Type:        "unknown",
		UserID:      "unknown",
		ReceivedAt:  now,
		ProcessedAt: now,
		RawData:     raw,
	}

	if cd := m.ClientData; cd != nil {
		if cd.Type != "" {
			rec.Type = cd.Type
		}
		rec.Action = optString(cd.Action)
		rec.VehicleID = optString(cd.VehicleID)
		rec.Status = optString(cd.Status)
		rec.Location = cd.Location
		rec.Speed = cd.Speed
		rec.Heading = cd.Heading
		if ts, err := time.Parse(time.RFC3339, cd.Timestamp); err == nil {
			rec.EventTimestamp = &ts
		}
	}

	if rm := m.RestMetadata; rm != nil {
		if rm.UserID != "" {
			rec.UserID = rm.UserID
		}
		rec.UserEmail = optString(rm.UserEmail)
		rec.RequestID = optString(rm.RequestID)
		if ts, err := time.Parse(time.RFC3339, rm.ReceivedAt); err == nil {
			rec.ReceivedAt = ts
		}
	}

	return rec
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
