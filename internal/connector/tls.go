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
	"crypto/tls"
	"fmt"
	"net"
)

// TLSConnector dials TCP and completes a TLS handshake before returning.
type TLSConnector struct {
	Socket *SocketConnector
	Config *tls.Config
}

// NewTLS creates a TLS connector for addr. cfg may be nil for defaults.
func NewTLS(addr string, cfg *tls.Config) *TLSConnector {
	return &TLSConnector{Socket: NewSocket(addr), Config: cfg}
}

// Open dials and handshakes. A failed handshake closes the socket.
func (t *TLSConnector) Open(ctx context.Context) (Stream, error) {
	raw, err := t.Socket.dial(ctx)
	if err != nil {
		return nil, err
	}

	cfg := t.clientConfig()
	conn := tls.Client(raw, cfg)

	timeout := t.Socket.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.HandshakeContext(hsCtx); err != nil {
		raw.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("connector: tls handshake with %s: %w", t.Socket.Addr, err)
	}
	return conn, nil
}

// clientConfig fills ServerName from the dialed host when unset.
func (t *TLSConnector) clientConfig() *tls.Config {
	var cfg *tls.Config
	if t.Config != nil {
		cfg = t.Config.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(t.Socket.Addr); err == nil {
			cfg.ServerName = host
		}
	}
	return cfg
}

// String returns the endpoint.
func (t *TLSConnector) String() string {
	return "tls://" + t.Socket.Addr
}
