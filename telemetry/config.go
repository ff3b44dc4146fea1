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
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the telemetry service configuration. Resolution order
// matches the notification service: defaults, optional YAML file
// (TELEMETRY_CONFIG_FILE), then environment variables.
type Config struct {
	Port        string      `yaml:"port"`
	DatabaseURL string      `yaml:"database_url"`
	Kafka       KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds the telemetry consumer configuration
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topics  []string `yaml:"topics"`
	GroupID string   `yaml:"group_id"`
	// earliest or latest
	AutoOffsetReset string `yaml:"auto_offset_reset"`
}

// LoadConfig resolves the service configuration.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port: "8081",
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			Topics:          []string{"telemetry"},
			GroupID:         "car-telemetry",
			AutoOffsetReset: "earliest",
		},
	}

	if path := os.Getenv("TELEMETRY_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("KAFKA_TOPICS"); v != "" {
		cfg.Kafka.Topics = splitAndTrim(v)
	}
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.AutoOffsetReset = getEnv("KAFKA_AUTO_OFFSET_RESET", cfg.Kafka.AutoOffsetReset)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.Kafka.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return nil, fmt.Errorf("invalid auto_offset_reset %q (want earliest or latest)", cfg.Kafka.AutoOffsetReset)
	}
	if len(cfg.Kafka.Topics) == 0 {
		return nil, fmt.Errorf("no Kafka topics configured")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
