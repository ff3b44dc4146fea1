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
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"fleetpulse/realtime/shared/logger"
)

// service is the explicitly constructed process-wide context: one
// registry, one directory client, one router per process, wired
// together at startup and torn down at shutdown. No ambient globals.
type service struct {
	cfg        *Config
	instanceID string
	log        *logger.Logger
	rdb        *redis.Client
	registry   *Registry
	presence   *Presence
	router     *Router
	consumer   *Consumer
	gateway    *Gateway
}

// Run is the exported entry point for the notification service.
//
// It connects to Redis, generates the instance identity, subscribes to
// this instance's routing channel, reconciles and starts consuming the
// event log, and serves the WebSocket endpoint. The function blocks
// until SIGINT/SIGTERM, then shuts down gracefully.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8080)
//   - REDIS_URL: Redis connection string (default: redis://localhost:6379)
//   - KAFKA_BROKERS, KAFKA_TOPICS, KAFKA_GROUP_ID,
//     KAFKA_AUTO_OFFSET_RESET, KAFKA_ENABLE_AUTO_COMMIT
//   - NOTIFICATIONS_CONFIG_FILE: optional YAML config file
func Run() {
	log.Println("Starting FleetPulse Notifications...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Process-lifetime instance identity: directory value and routing
	// channel suffix for this instance.
	instanceID := uuid.NewString()
	lg := logger.New("notifications", instanceID)
	log.Printf("Instance ID: %s", instanceID)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	cancel()
	log.Printf("✅ Redis connected: %s", cfg.RedisURL)

	svc := newService(cfg, instanceID, lg, rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.router.Subscribe(ctx); err != nil {
		log.Fatalf("Failed to subscribe to routing channel: %v", err)
	}

	// Topic reconciliation failures are fatal: consuming topics in an
	// unknown state is not safe.
	topicCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := svc.consumer.EnsureTopics(topicCtx); err != nil {
		log.Fatalf("Topic reconciliation failed: %v", err)
	}
	cancel()
	log.Printf("✅ Topics reconciled: %v", cfg.Kafka.Topics)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		svc.consumer.Run(ctx)
	}()

	r := mux.NewRouter()
	r.HandleFunc("/ws", svc.gateway.HandleWS)
	r.HandleFunc("/health", svc.healthHandler).Methods("GET")
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
		log.Printf("FleetPulse Notifications listening on port %s (WebSocket endpoint at /ws)", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Graceful close of every open connection; each handler's
	// unregister still runs on this path.
	svc.registry.CloseAll("server shutting down")

	<-consumerDone
	if err := svc.router.Close(); err != nil {
		log.Printf("Warning: failed to close routing subscription: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("Warning: failed to close Redis client: %v", err)
	}
	log.Println("Shutdown complete")
}

// newService wires the components in dependency order: registry and
// presence first, then the router over both, then the consumer and
// gateway over the router and registry.
func newService(cfg *Config, instanceID string, lg *logger.Logger, rdb *redis.Client) *service {
	presence := NewPresence(rdb, instanceID, lg)
	registry := NewRegistry(instanceID, presence, lg)
	router := NewRouter(rdb, registry, presence, instanceID, lg)

	return &service{
		cfg:        cfg,
		instanceID: instanceID,
		log:        lg,
		rdb:        rdb,
		registry:   registry,
		presence:   presence,
		router:     router,
		consumer:   NewConsumer(cfg.Kafka, router, lg),
		gateway:    NewGateway(registry, lg),
	}
}

func (s *service) healthHandler(w http.ResponseWriter, r *http.Request) {
	redisHealthy := true
	pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		redisHealthy = false
	}

	health := map[string]interface{}{
		"status":      "healthy",
		"service":     "fleetpulse-notifications",
		"instance_id": s.instanceID,
		"timestamp":   time.Now().UTC(),
		"connections": s.registry.ConnectionCount(),
		"users":       s.registry.UserCount(),
		"components": map[string]bool{
			"redis": redisHealthy,
		},
	}
	if !redisHealthy {
		health["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
