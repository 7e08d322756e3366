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
Package connector produces byte-stream transports to a broker.

OVERVIEW:
=========
A Connector knows how to reach one broker endpoint (or a set of them) and
returns a fresh Stream on every successful Open. The connection
orchestrator owns the Stream from then on and closes it when the
transport fails.

IMPLEMENTATIONS:
================

	SocketConnector      plain TCP
	TLSConnector         TCP + TLS handshake
	WebSocketConnector   binary WebSocket frames carrying the same byte stream
	Pooled               randomized failover across several connectors
	DiscoveryConnector   mDNS browse, then Pooled over the answers

REFUSAL:
========
An endpoint that is down is an ordinary outcome, not a fault: connectors
report it with ErrRefused, and Pooled reports "every candidate refused"
with ErrNoConnection. Callers retry after a delay.
*/
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrRefused means the endpoint could not be reached right now.
	ErrRefused = errors.New("connector: connection refused")

	// ErrNoConnection means no candidate produced a stream.
	ErrNoConnection = errors.New("connector: no connection available")
)

// Stream is a bidirectional byte stream to the broker.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Connector opens streams to a broker.
type Connector interface {
	// Open returns a new stream or an error. A nil stream with a nil error
	// is treated as a refusal.
	Open(ctx context.Context) (Stream, error)
}

// Func adapts a function to the Connector interface.
type Func func(ctx context.Context) (Stream, error)

// Open calls f(ctx).
func (f Func) Open(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Describe returns a printable endpoint name for c.
func Describe(c Connector) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}

// refused wraps cause so that errors.Is(err, ErrRefused) holds.
func refused(endpoint string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrRefused, endpoint, cause)
}
