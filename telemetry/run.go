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
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"fleetpulse/realtime/shared/logger"
)

// Run is the exported entry point for the telemetry persistence service.
//
// It connects to Postgres, ensures the PostGIS schema, and drains the
// telemetry topic into car_telemetry until SIGINT/SIGTERM.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8081)
//   - DATABASE_URL: Postgres connection string (required)
//   - KAFKA_BROKERS, KAFKA_TOPICS, KAFKA_GROUP_ID, KAFKA_AUTO_OFFSET_RESET
//   - TELEMETRY_CONFIG_FILE: optional YAML config file
func Run() {
	log.Println("Starting FleetPulse Telemetry...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	instanceID := uuid.NewString()
	lg := logger.New("telemetry", instanceID)
	log.Printf("Instance ID: %s", instanceID)

	repo, err := NewRepository(cfg.DatabaseURL, lg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := repo.InitSchema(schemaCtx); err != nil {
		log.Fatalf("Schema initialization failed: %v", err)
	}
	cancel()
	log.Println("✅ Schema ready")

	consumer := NewConsumer(cfg.Kafka, repo, lg)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx)
	}()

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler(repo, instanceID)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(r),
	}

	go func() {
		log.Printf("FleetPulse Telemetry listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	<-consumerDone
	if err := repo.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
	log.Println("Shutdown complete")
}

func healthHandler(repo *Repository, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbHealthy := true
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			dbHealthy = false
		}

		health := map[string]interface{}{
			"status":      "healthy",
			"service":     "fleetpulse-telemetry",
			"instance_id": instanceID,
			"timestamp":   time.Now().UTC(),
			"components": map[string]bool{
				"postgres": dbHealthy,
			},
		}
		if !dbHealthy {
			health["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			log.Printf("Error encoding response: %v", err)
		}
	}
}
