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

/*
Connection event logging for flynats.

OVERVIEW:
=========
Helpers that log the lifecycle of a broker connection with a consistent
set of fields, so every reconnect epoch can be followed in the logs.

CONNECTION LOGGING:
===================
- Connected: endpoint, server id, epoch, replayed subscriptions
- Disconnected: reason, epoch, connected duration
- Connect attempt failed: endpoint, error, next retry delay

MESSAGE LOGGING:
================
Payloads are never logged. A short message id derived from the topic and
a per-connection sequence number identifies a message instead.
*/
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ConnectionLogger logs transport lifecycle events.
type ConnectionLogger struct {
	logger *Logger
}

// NewConnectionLogger creates a new connection logger.
func NewConnectionLogger(logger *Logger) *ConnectionLogger {
	return &ConnectionLogger{logger: logger}
}

// LogConnected logs a completed handshake and subscription replay.
func (cl *ConnectionLogger) LogConnected(endpoint, serverID string, epoch uint64, replayed int) {
	cl.logger.Info("Connected to broker",
		"endpoint", endpoint,
		"server_id", serverID,
		"epoch", epoch,
		"replayed_subscriptions", replayed,
	)
}

// LogDisconnected logs a transport teardown.
func (cl *ConnectionLogger) LogDisconnected(reason string, epoch uint64, connected time.Duration) {
	cl.logger.Warn("Disconnected from broker",
		"reason", reason,
		"epoch", epoch,
		"connected_seconds", connected.Seconds(),
	)
}

// LogConnectFailed logs a failed connect attempt that will be retried.
func (cl *ConnectionLogger) LogConnectFailed(err error, attempt int, retryIn time.Duration) {
	cl.logger.Warn("Connect attempt failed",
		"error", err,
		"attempt", attempt,
		"retry_in_ms", retryIn.Milliseconds(),
	)
}

// MessageLogger logs message traffic without exposing payloads.
type MessageLogger struct {
	logger *Logger
}

// NewMessageLogger creates a new message logger.
func NewMessageLogger(logger *Logger) *MessageLogger {
	return &MessageLogger{logger: logger}
}

// LogOrphan logs a MSG for a subscription id that is no longer registered.
func (ml *MessageLogger) LogOrphan(topic, sid string, seq uint64, size int) {
	ml.logger.Debug("Message for unknown subscription",
		"message_id", GenerateMessageID(topic, seq),
		"topic", topic,
		"sid", sid,
		"size", SanitizePayload(size),
	)
}

// LogHandlerPanic logs a recovered panic from a subscription handler.
func (ml *MessageLogger) LogHandlerPanic(topic, sid string, seq uint64, recovered interface{}) {
	ml.logger.Error("Subscription handler panicked",
		"message_id", GenerateMessageID(topic, seq),
		"topic", topic,
		"sid", sid,
		"panic", fmt.Sprint(recovered),
	)
}

// GenerateMessageID derives a short id for a message without exposing content.
func GenerateMessageID(topic string, seq uint64) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", topic, seq)))
	return hex.EncodeToString(hash[:8])
}

// SanitizePayload describes a payload by size only.
func SanitizePayload(size int) string {
	if size == 0 {
		return "[empty]"
	}
	return fmt.Sprintf("[%d bytes]", size)
}
