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
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"fleetpulse/realtime/shared/logger"
)

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS car_telemetry (
    id              BIGSERIAL PRIMARY KEY,
    type            VARCHAR(50) NOT NULL,
    action          VARCHAR(100),
    vehicle_id      VARCHAR(100),
    status          VARCHAR(50),
    location        GEOGRAPHY(POINT, 4326),
    speed           DOUBLE PRECISION,
    heading         DOUBLE PRECISION,
    event_timestamp TIMESTAMPTZ,
    user_id         VARCHAR(100) NOT NULL,
    user_email      VARCHAR(255),
    request_id      VARCHAR(100),
    received_at     TIMESTAMPTZ NOT NULL,
    processed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    raw_data        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_car_telemetry_location ON car_telemetry USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_car_telemetry_type ON car_telemetry (type);
CREATE INDEX IF NOT EXISTS idx_car_telemetry_vehicle_id ON car_telemetry (vehicle_id);
CREATE INDEX IF NOT EXISTS idx_car_telemetry_action ON car_telemetry (action);
CREATE INDEX IF NOT EXISTS idx_car_telemetry_status ON car_telemetry (status);
CREATE INDEX IF NOT EXISTS idx_car_telemetry_event_timestamp ON car_telemetry (event_timestamp);
CREATE INDEX IF NOT EXISTS idx_car_telemetry_processed_at ON car_telemetry (processed_at);
`

// ST_MakePoint is STRICT, so NULL coordinates yield a NULL geography
// without a separate statement for location-less events.
const insertSQL = `
INSERT INTO car_telemetry (
    type, action, vehicle_id, status, location, speed, heading,
    event_timestamp, user_id, user_email, request_id,
    received_at, processed_at, raw_data
) VALUES (
    $1, $2, $3, $4,
    ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography,
    $7, $8, $9, $10, $11, $12, $13, $14, $15
) RETURNING id`

// Repository persists telemetry records in a PostGIS-enabled Postgres.
type Repository struct {
	db  *sql.DB
	log *logger.Logger
}

// NewRepository opens and pings the database.
func NewRepository(databaseURL string, log *logger.Logger) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, log: log}, nil
}

// InitSchema creates the postgis extension, the car_telemetry table and
// its indexes if they do not exist yet.
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Insert stores one record and returns its generated id.
func (r *Repository) Insert(ctx context.Context, rec *Record) (int64, error) {
	var lng, lat interface{}
	if rec.Location != nil {
		lng, lat = rec.Location.Lng, rec.Location.Lat
	}

	var id int64
	err := r.db.QueryRowContext(ctx, insertSQL,
		rec.Type,
		rec.Action,
		rec.VehicleID,
		rec.Status,
		lng, lat,
		rec.Speed,
		rec.Heading,
		rec.EventTimestamp,
		rec.UserID,
		rec.UserEmail,
		rec.RequestID,
		rec.ReceivedAt,
		rec.ProcessedAt,
		[]byte(rec.RawData),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert telemetry record: %w", err)
	}
	return id, nil
}

// Ping reports database reachability for health checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}
