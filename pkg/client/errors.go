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

package client

import (
	"errors"

	"flynats/internal/protocol"
)

// Validation errors. They are returned synchronously, before anything is
// written, and retrying the same call cannot succeed.
var (
	ErrInvalidTopic           = protocol.ErrInvalidTopic
	ErrInvalidName            = protocol.ErrInvalidName
	ErrInvalidPayloadEncoding = protocol.ErrInvalidPayloadEncoding
	ErrInvalidNumber          = protocol.ErrInvalidNumber
)

var (
	// ErrClosed is returned by operations on a closed Connection.
	ErrClosed = errors.New("client: connection closed")

	// ErrRunning is returned when Run is called while a receive loop is active.
	ErrRunning = errors.New("client: receive loop already running")

	// ErrNilHandler is returned by Subscribe without a handler.
	ErrNilHandler = errors.New("client: nil message handler")

	// errTransport marks a failed read or write on the current stream.
	errTransport = errors.New("transport failure")
)

// IsValidationError reports whether err is a caller fault that must not be retried.
func IsValidationError(err error) bool {
	return protocol.IsValidationError(err)
}
