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

import "github.com/prometheus/client_golang/prometheus"

var (
	promRecordsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_records_stored_total",
			Help: "Total number of telemetry records persisted",
		},
		[]string{"type"},
	)

	promRecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_records_skipped_total",
			Help: "Total number of telemetry records skipped",
		},
		[]string{"reason"},
	)

	promInsertFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_insert_failures_total",
			Help: "Total number of failed database inserts (retried, not committed)",
		},
	)

	promInsertDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telemetry_insert_duration_seconds",
			Help:    "Latency of telemetry record inserts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(promRecordsStored)
	prometheus.MustRegister(promRecordsSkipped)
	prometheus.MustRegister(promInsertFailures)
	prometheus.MustRegister(promInsertDuration)
}
