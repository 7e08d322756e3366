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
	"time"

	"flynats/internal/crypto"
	"flynats/internal/logging"
	"flynats/internal/metrics"
	"flynats/internal/protocol"
)

// Connection defaults.
const (
	DefaultReconnectDelay = time.Second
	DefaultRetryDelay     = 200 * time.Millisecond
	DefaultConnectTimeout = 5 * time.Second
)

// Option configures a Connection.
type Option func(*options)

type options struct {
	reconnectDelay time.Duration
	retryDelay     time.Duration
	connectTimeout time.Duration
	connectOptions map[string]interface{}
	waitForInfo    bool
	readSize       int
	logger         *logging.Logger
	metrics        *metrics.Metrics
	sealer         *crypto.Sealer
	decoderOptions []protocol.DecoderOption
}

func defaultOptions() options {
	return options{
		reconnectDelay: DefaultReconnectDelay,
		retryDelay:     DefaultRetryDelay,
		connectTimeout: DefaultConnectTimeout,
		readSize:       protocol.ReadSize,
	}
}

// WithReconnectDelay sets the pause after a failed connect attempt or a
// lost transport.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.reconnectDelay = d
		}
	}
}

// WithRetryDelay sets the pause before an operation retries after a write failure.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithConnectTimeout bounds the wait for the broker's INFO frame.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithConnectOptions sets the options sent in CONNECT, merged over the
// protocol defaults.
func WithConnectOptions(opts map[string]interface{}) Option {
	return func(o *options) {
		o.connectOptions = opts
	}
}

// WithWaitForInfo makes each connect wait for the broker's INFO frame
// before sending CONNECT.
func WithWaitForInfo(wait bool) Option {
	return func(o *options) {
		o.waitForInfo = wait
	}
}

// WithReadSize sets the maximum bytes taken from the transport per read.
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// WithLogger replaces the "connection" component logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records connection activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSealer encrypts every published payload and decrypts every delivered
// one. All parties on a topic must share the key.
func WithSealer(s *crypto.Sealer) Option {
	return func(o *options) {
		o.sealer = s
	}
}

// WithDecoderOptions tunes the frame decoder limits.
func WithDecoderOptions(opts ...protocol.DecoderOption) Option {
	return func(o *options) {
		o.decoderOptions = append(o.decoderOptions, opts...)
	}
}
