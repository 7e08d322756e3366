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
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single WebSocket frame write.
const DefaultWriteTimeout = 10 * time.Second

// WebSocketConnector reaches a broker through a WebSocket endpoint. The
// protocol bytes travel in binary messages; message boundaries carry no
// meaning and frames may be split across them arbitrarily.
type WebSocketConnector struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Header is sent with the upgrade request (optional).
	Header http.Header

	// TLS configures wss:// endpoints (optional).
	TLS *tls.Config

	// HandshakeTimeout bounds the upgrade (default: DefaultDialTimeout).
	HandshakeTimeout time.Duration
}

// NewWebSocket creates a WebSocket connector for url.
func NewWebSocket(url string) *WebSocketConnector {
	return &WebSocketConnector{URL: url, HandshakeTimeout: DefaultDialTimeout}
}

// Open performs the WebSocket upgrade.
func (w *WebSocketConnector) Open(ctx context.Context) (Stream, error) {
	timeout := w.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  w.TLS,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, w.URL, w.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isRefusal(err) {
			return nil, refused(w.URL, err)
		}
		return nil, fmt.Errorf("connector: websocket dial %s: %w", w.URL, err)
	}
	return newWSStream(conn), nil
}

// String returns the endpoint.
func (w *WebSocketConnector) String() string {
	return w.URL
}

// wsStream adapts a websocket.Conn to a byte stream.
//
// Reads drain one binary message at a time. Writes are serialized and each
// becomes one binary message.
type wsStream struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.reader == nil {
			kind, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if kind != websocket.BinaryMessage && kind != websocket.TextMessage {
				continue
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame on a best-effort basis and closes the socket.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
