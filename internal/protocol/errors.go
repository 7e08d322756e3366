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

package protocol

import "errors"

// Validation errors returned by the encoder. They are caller faults: the
// frame was not written and retrying the same call cannot succeed.
var (
	// ErrInvalidTopic indicates a topic or topic filter outside the grammar.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidName indicates a subscription id or queue group outside the grammar.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidPayloadEncoding indicates a text payload that is not valid UTF-8.
	ErrInvalidPayloadEncoding = errors.New("invalid payload encoding")

	// ErrInvalidNumber indicates a negative count.
	ErrInvalidNumber = errors.New("invalid number")
)

// ErrProtocol wraps decoder failures. The stream that produced it must be
// discarded together with its decoder.
var ErrProtocol = errors.New("protocol error")

// IsValidationError reports whether err is one of the encoder's caller faults.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTopic) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidPayloadEncoding) ||
		errors.Is(err, ErrInvalidNumber)
}
