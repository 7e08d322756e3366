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
Package metrics provides Prometheus metrics for flynats connections.

METRIC CATEGORIES:
==================
- Connection: connected gauge, reconnects, connect failures, protocol errors
- Traffic: frames written by verb, bytes read, publish duration
- Delivery: messages delivered, orphaned messages, handler panics

PROMETHEUS ENDPOINT:
====================
Server exposes the collectors at /metrics in Prometheus text format.

EXAMPLE METRICS:
================

	flynats_connection_connected 1
	flynats_connection_reconnects_total 3
	flynats_frames_written_total{verb="PUB"} 12345
	flynats_messages_delivered_total 12340

Each Metrics value owns its own registry so several connections in one
process, or several tests, never collide. Default returns a shared
instance for applications with a single connection.
*/
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flynats/internal/config"
	"flynats/internal/logging"
)

const namespace = "flynats"

// Metrics holds the collectors for one connection. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connected       prometheus.Gauge
	reconnects      prometheus.Counter
	connectFailures prometheus.Counter
	protocolErrors  prometheus.Counter
	bytesRead       prometheus.Counter
	framesWritten   *prometheus.CounterVec
	publishDuration prometheus.Histogram
	delivered       prometheus.Counter
	orphaned        prometheus.Counter
	handlerPanics   prometheus.Counter
	subscriptions   prometheus.Gauge
	streamDropped   prometheus.Counter
}

// New creates a Metrics value with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "connected",
			Help:      "1 while the connection is in the CONNECTED state.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Completed handshakes, including the first.",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "connect_failures_total",
			Help:      "Connect attempts that produced no usable transport.",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "protocol_errors_total",
			Help:      "Inbound streams abandoned because of malformed frames.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "bytes_read_total",
			Help:      "Bytes read from the broker.",
		}),
		framesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "written_total",
			Help:      "Frames written to the broker by verb.",
		}, []string{"verb"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "duration_seconds",
			Help:      "Time from Publish call to frame written, including waits for a connection.",
			Buckets:   prometheus.DefBuckets,
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "delivered_total",
			Help:      "Messages handed to a subscription handler.",
		}),
		orphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "orphaned_total",
			Help:      "Messages for subscription ids no longer registered.",
		}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "handler_panics_total",
			Help:      "Subscription handlers that panicked.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "active",
			Help:      "Registered subscriptions.",
		}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_total",
			Help:      "Messages dropped because a stream buffer was full.",
		}),
	}

	m.registry.MustRegister(
		m.connected, m.reconnects, m.connectFailures, m.protocolErrors,
		m.bytesRead, m.framesWritten, m.publishDuration, m.delivered,
		m.orphaned, m.handlerPanics, m.subscriptions, m.streamDropped,
	)
	return m
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide Metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// Registry returns the registry holding this instance's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetConnected records the connected state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// RecordConnect records a completed handshake.
func (m *Metrics) RecordConnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// RecordConnectFailure records a failed connect attempt.
func (m *Metrics) RecordConnectFailure() {
	if m == nil {
		return
	}
	m.connectFailures.Inc()
}

// RecordProtocolError records a decoder protocol error.
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// RecordRead records bytes read from the transport.
func (m *Metrics) RecordRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

// RecordFrame records one frame written.
func (m *Metrics) RecordFrame(verb string) {
	if m == nil {
		return
	}
	m.framesWritten.WithLabelValues(verb).Inc()
}

// RecordPublish records how long a Publish call took to write its frame.
func (m *Metrics) RecordPublish(d time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.Observe(d.Seconds())
}

// RecordDelivered records a message handed to a handler.
func (m *Metrics) RecordDelivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

// RecordOrphan records a message for an unknown subscription id.
func (m *Metrics) RecordOrphan() {
	if m == nil {
		return
	}
	m.orphaned.Inc()
}

// RecordHandlerPanic records a recovered handler panic.
func (m *Metrics) RecordHandlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

// SetSubscriptions records the number of registered subscriptions.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

// RecordStreamDrop records a message dropped by a full stream buffer.
func (m *Metrics) RecordStreamDrop() {
	if m == nil {
		return
	}
	m.streamDropped.Inc()
}

// Handler returns an HTTP handler serving this instance's collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	config  *config.MetricsConfig
	metrics *Metrics
	server  *http.Server
	logger  *logging.Logger
	routes  map[string]http.Handler
}

// NewServer creates a new metrics server.
func NewServer(cfg *config.MetricsConfig, m *Metrics) *Server {
	return &Server{
		config:  cfg,
		metrics: m,
		logger:  logging.NewLogger("metrics"),
		routes:  make(map[string]http.Handler),
	}
}

// Handle serves h at pattern next to /metrics. Call it before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.routes[pattern] = h
}

// Start starts the metrics HTTP server.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Debug("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting metrics server", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
