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

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

// TestNew tests logger initialization
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		envInstanceID  string
		expectedComp   string
		expectedInstID string
	}{
		{
			name:           "with explicit instance ID",
			component:      "notifications",
			instanceID:     "instance-123",
			expectedComp:   "notifications",
			expectedInstID: "instance-123",
		},
		{
			name:           "falls back to environment",
			component:      "telemetry",
			instanceID:     "",
			envInstanceID:  "env-instance-456",
			expectedComp:   "telemetry",
			expectedInstID: "env-instance-456",
		},
		{
			name:           "no instance ID anywhere",
			component:      "notifications",
			instanceID:     "",
			expectedComp:   "notifications",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envInstanceID != "" {
				t.Setenv("INSTANCE_ID", tt.envInstanceID)
			} else {
				t.Setenv("INSTANCE_ID", "")
			}

			l := New(tt.component, tt.instanceID)

			if l.Component != tt.expectedComp {
				t.Errorf("expected component %s, got %s", tt.expectedComp, l.Component)
			}
			if l.InstanceID != tt.expectedInstID {
				t.Errorf("expected instance ID %s, got %s", tt.expectedInstID, l.InstanceID)
			}
			if l.Container == "" {
				t.Error("expected non-empty container name")
			}
		})
	}
}

// captureOutput redirects the standard logger to a buffer for the
// duration of fn and returns what was written.
func captureOutput(fn func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	}()

	fn()
	return buf.String()
}

// TestLogOutputIsJSON tests that log entries are valid single-line JSON
func TestLogOutputIsJSON(t *testing.T) {
	l := New("notifications", "test-instance")

	out := captureOutput(func() {
		l.Info("alice", "connection registered", map[string]interface{}{
			"connections": 2,
		})
	})

	line := strings.TrimSpace(out)
	if strings.Contains(line, "\n") {
		t.Errorf("expected single-line output, got: %q", line)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (line: %s)", err, line)
	}

	if entry.Level != INFO {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.Component != "notifications" {
		t.Errorf("expected component notifications, got %s", entry.Component)
	}
	if entry.InstanceID != "test-instance" {
		t.Errorf("expected instance ID test-instance, got %s", entry.InstanceID)
	}
	if entry.UserID != "alice" {
		t.Errorf("expected user ID alice, got %s", entry.UserID)
	}
	if entry.Message != "connection registered" {
		t.Errorf("unexpected message: %s", entry.Message)
	}
	if entry.Fields["connections"] != float64(2) {
		t.Errorf("expected connections field 2, got %v", entry.Fields["connections"])
	}

	// Timestamp must parse as RFC3339Nano
	if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339Nano: %v", err)
	}
}

// TestLogLevels tests each severity helper
func TestLogLevels(t *testing.T) {
	l := New("notifications", "test-instance")

	tests := []struct {
		name  string
		logFn func()
		level LogLevel
	}{
		{"debug", func() { l.Debug("", "dbg", nil) }, DEBUG},
		{"info", func() { l.Info("", "inf", nil) }, INFO},
		{"warn", func() { l.Warn("", "wrn", nil) }, WARN},
		{"error", func() { l.Error("", "err", nil) }, ERROR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(tt.logFn)

			var entry LogEntry
			if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
				t.Fatalf("invalid JSON output: %v", err)
			}
			if entry.Level != tt.level {
				t.Errorf("expected level %s, got %s", tt.level, entry.Level)
			}
		})
	}
}

// TestErrorWithErr tests the error field attachment
func TestErrorWithErr(t *testing.T) {
	l := New("notifications", "test-instance")

	out := captureOutput(func() {
		l.ErrorWithErr("bob", "redis publish failed", os.ErrDeadlineExceeded, nil)
	})

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	if entry.Level != ERROR {
		t.Errorf("expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["error"] != os.ErrDeadlineExceeded.Error() {
		t.Errorf("expected error field, got %v", entry.Fields["error"])
	}
}

// TestEmptyUserIDOmitted tests that user_id is omitted when empty
func TestEmptyUserIDOmitted(t *testing.T) {
	l := New("telemetry", "test-instance")

	out := captureOutput(func() {
		l.Info("", "consumer started", nil)
	})

	if strings.Contains(out, "user_id") {
		t.Errorf("expected user_id to be omitted, got: %s", out)
	}
}
