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
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promNotificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpulse_notifications_delivered_total",
			Help: "Total notifications delivered, by routing path",
		},
		[]string{"path"}, // local, remote
	)
	promNotificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpulse_notifications_dropped_total",
			Help: "Total notifications dropped, by reason",
		},
		[]string{"reason"}, // no_presence, no_local_connection, decode_error, bus_error
	)
	promEventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpulse_events_consumed_total",
			Help: "Total Kafka records consumed, by topic",
		},
		[]string{"topic"},
	)
	promEventsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetpulse_events_skipped_total",
			Help: "Total Kafka records skipped without routing, by reason",
		},
		[]string{"reason"}, // empty_body, decode_error, no_routing_key
	)
	promActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetpulse_active_connections",
			Help: "Open WebSocket connections on this instance",
		},
	)
	promConnectedUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetpulse_connected_users",
			Help: "Distinct users with at least one open connection on this instance",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promNotificationsDelivered)
	prometheus.MustRegister(promNotificationsDropped)
	prometheus.MustRegister(promEventsConsumed)
	prometheus.MustRegister(promEventsSkipped)
	prometheus.MustRegister(promActiveConnections)
	prometheus.MustRegister(promConnectedUsers)
}
