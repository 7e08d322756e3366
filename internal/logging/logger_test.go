/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %s, want %s", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{"info", INFO},
		{"WARN", WARN},
		{"warn", WARN},
		{"WARNING", WARN},
		{"warning", WARN},
		{"ERROR", ERROR},
		{"error", ERROR},
		{"unknown", INFO}, // default
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%s) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != INFO {
		t.Errorf("Expected default level INFO, got %d", cfg.Level)
	}
	if cfg.JSONMode {
		t.Error("Expected JSONMode to be false by default")
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected non-nil logger")
	}
	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %s", logger.component)
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(DEBUG)
	defer func() {
		SetGlobalLevel(INFO)
	}()

	logger := NewLogger("test")
	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("Expected output to contain '[test]', got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected output to contain 'key=value', got: %s", output)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(WARN)
	defer func() {
		SetGlobalLevel(INFO)
	}()

	logger := NewLogger("test")
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should be filtered")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should be present")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message should be present")
	}
}

func TestLoggerPicksUpGlobalChanges(t *testing.T) {
	var first, second bytes.Buffer
	SetGlobalOutput(&first)
	SetGlobalLevel(INFO)

	logger := NewLogger("test")
	logger.Info("one")

	SetGlobalOutput(&second)
	logger.Info("two")

	if !strings.Contains(first.String(), "one") || strings.Contains(first.String(), "two") {
		t.Errorf("first output = %q", first.String())
	}
	if !strings.Contains(second.String(), "two") {
		t.Errorf("second output = %q", second.String())
	}
}

func TestLoggerJSONMode(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(INFO)
	SetJSONMode(true)
	defer func() {
		SetJSONMode(false)
	}()

	logger := NewLogger("test")
	logger.Info("json test", "foo", "bar", "err", errors.New("boom"))

	output := buf.String()
	if !strings.Contains(output, `"message":"json test"`) {
		t.Errorf("Expected JSON output with message field, got: %s", output)
	}
	if !strings.Contains(output, `"component":"test"`) {
		t.Errorf("Expected JSON output with component field, got: %s", output)
	}
	if !strings.Contains(output, `"foo":"bar"`) {
		t.Errorf("Expected JSON output with foo field, got: %s", output)
	}
	if !strings.Contains(output, `"err":"boom"`) {
		t.Errorf("Expected JSON output with error text, got: %s", output)
	}
}

func TestLoggerAllLevels(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(DEBUG)
	defer func() {
		SetGlobalLevel(INFO)
	}()

	logger := NewLogger("test")
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	output := buf.String()
	for _, want := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %s in output", want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(DEBUG)
	defer func() {
		SetGlobalLevel(INFO)
	}()

	Nop().Error("should not appear", "k", "v")
	if buf.Len() != 0 {
		t.Errorf("Nop logger wrote %q", buf.String())
	}
}

func TestConnectionLogger(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(DEBUG)
	defer func() {
		SetGlobalLevel(INFO)
	}()

	cl := NewConnectionLogger(NewLogger("connection"))
	cl.LogConnected("127.0.0.1:4222", "srv1", 3, 2)
	cl.LogDisconnected("read: EOF", 3, 1500*time.Millisecond)
	cl.LogConnectFailed(errors.New("refused"), 4, time.Second)

	output := buf.String()
	for _, want := range []string{"server_id=srv1", "epoch=3", "replayed_subscriptions=2", "reason=", "attempt=4", "retry_in_ms=1000"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}

func TestMessageLoggerHidesPayload(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(DEBUG)
	defer func() {
		SetGlobalLevel(INFO)
	}()

	NewMessageLogger(NewLogger("connection")).LogOrphan("a.b", "7", 42, 11)

	output := buf.String()
	if !strings.Contains(output, "[11 bytes]") {
		t.Errorf("Expected payload size in output, got: %s", output)
	}
	if !strings.Contains(output, GenerateMessageID("a.b", 42)) {
		t.Errorf("Expected message id in output, got: %s", output)
	}
}

func TestGenerateMessageID(t *testing.T) {
	a := GenerateMessageID("a.b", 1)
	if len(a) != 16 {
		t.Errorf("GenerateMessageID() length = %d, want 16", len(a))
	}
	if a != GenerateMessageID("a.b", 1) {
		t.Error("GenerateMessageID() is not deterministic")
	}
	if a == GenerateMessageID("a.b", 2) {
		t.Error("GenerateMessageID() collided for different sequence numbers")
	}
	if SanitizePayload(0) != "[empty]" {
		t.Errorf("SanitizePayload(0) = %q", SanitizePayload(0))
	}
}
