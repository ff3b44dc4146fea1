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
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging scoped to one service instance.
// The instance ID is the same process-lifetime identifier used for
// cross-instance message routing, so log lines from a fleet of
// notification servers can be correlated with routing decisions.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	UserID     string                 `json:"user_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component and instance.
// Pass the process-wide instance identity generated at startup; an
// empty instanceID falls back to the INSTANCE_ID environment variable.
func New(component, instanceID string) *Logger {
	if instanceID == "" {
		instanceID = os.Getenv("INSTANCE_ID")
	}
	if instanceID == "" {
		instanceID = "unknown"
	}

	// Get container name from hostname
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, userID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		UserID:     userID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	// Write JSON log to stdout (Docker will capture this)
	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(userID, message string, fields map[string]interface{}) {
	l.Log(INFO, userID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(userID, message string, fields map[string]interface{}) {
	l.Log(ERROR, userID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(userID, message string, fields map[string]interface{}) {
	l.Log(WARN, userID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(userID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, userID, message, fields)
}

// ErrorWithErr logs an error message with the underlying error attached
// as a field. A nil err is allowed and adds nothing.
func (l *Logger) ErrorWithErr(userID, message string, err error, fields map[string]interface{}) {
	if err != nil {
		if fields == nil {
			fields = make(map[string]interface{})
		}
		fields["error"] = err.Error()
	}
	l.Error(userID, message, fields)
}
