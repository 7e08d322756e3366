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

package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// DefaultDialTimeout bounds a single TCP dial.
const DefaultDialTimeout = 5 * time.Second

// SocketConnector dials a broker over TCP.
type SocketConnector struct {
	// Addr is host:port.
	Addr string

	// Timeout bounds the dial (default: DefaultDialTimeout).
	Timeout time.Duration

	// KeepAlive is the TCP keepalive period; negative disables it.
	KeepAlive time.Duration
}

// NewSocket creates a TCP connector for addr.
func NewSocket(addr string) *SocketConnector {
	return &SocketConnector{Addr: addr, Timeout: DefaultDialTimeout}
}

// Open dials Addr. A refused or unreachable endpoint yields ErrRefused.
func (s *SocketConnector) Open(ctx context.Context) (Stream, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *SocketConnector) dial(ctx context.Context) (net.Conn, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: s.KeepAlive,
		Control:   socketControl,
	}

	conn, err := dialer.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isRefusal(err) {
			return nil, refused(s.Addr, err)
		}
		return nil, fmt.Errorf("connector: dial %s: %w", s.Addr, err)
	}
	return conn, nil
}

// String returns the endpoint.
func (s *SocketConnector) String() string {
	return "tcp://" + s.Addr
}

// isRefusal reports errors meaning "nobody is listening there right now".
func isRefusal(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
