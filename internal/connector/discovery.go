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
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"flynats/internal/logging"
)

// Discovery defaults.
const (
	DefaultService          = "_nats._tcp"
	DefaultDomain           = "local"
	DefaultDiscoveryTimeout = 2 * time.Second
)

// Endpoint is one broker answer from an mDNS browse.
type Endpoint struct {
	Instance string
	Host     string
	Addr     string // host:port, ready to dial
	Info     []string
}

// lookupFunc browses for endpoints; replaced in tests.
type lookupFunc func(ctx context.Context, service, domain string, timeout time.Duration) ([]Endpoint, error)

// DiscoveryConnector finds brokers with mDNS on every Open and fails over
// across the answers.
type DiscoveryConnector struct {
	Service string
	Domain  string
	Timeout time.Duration

	// Dial builds the connector for one discovered address
	// (default: NewSocket).
	Dial func(addr string) Connector

	lookup lookupFunc
	logger *logging.Logger

	mu      sync.Mutex
	poolKey string
	pool    *Pooled
}

// NewDiscovery creates a discovery connector for service in the local domain.
func NewDiscovery(service string) *DiscoveryConnector {
	if service == "" {
		service = DefaultService
	}
	return &DiscoveryConnector{
		Service: service,
		Domain:  DefaultDomain,
		Timeout: DefaultDiscoveryTimeout,
		lookup:  mdnsLookup,
		logger:  logging.NewLogger("connector"),
	}
}

// Discover browses once and returns the answers sorted by address.
func (d *DiscoveryConnector) Discover(ctx context.Context) ([]Endpoint, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	domain := d.Domain
	if domain == "" {
		domain = DefaultDomain
	}

	endpoints, err := d.lookup(ctx, d.Service, domain, timeout)
	if err != nil {
		return nil, fmt.Errorf("connector: mdns browse %s: %w", d.Service, err)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Addr < endpoints[j].Addr })
	return endpoints, nil
}

// Open browses, then opens a stream through a pool of the answers. The pool
// is kept while the answer set is unchanged so the last-used ordering
// carries across reconnects.
func (d *DiscoveryConnector) Open(ctx context.Context) (Stream, error) {
	endpoints, err := d.Discover(ctx)
	if err != nil {
		d.logger.Warn("Discovery failed", "service", d.Service, "error", err)
		return nil, ErrNoConnection
	}
	if len(endpoints) == 0 {
		d.logger.Debug("No brokers discovered", "service", d.Service)
		return nil, ErrNoConnection
	}
	return d.poolFor(endpoints).Open(ctx)
}

func (d *DiscoveryConnector) poolFor(endpoints []Endpoint) *Pooled {
	addrs := make([]string, len(endpoints))
	for i, e := range endpoints {
		addrs[i] = e.Addr
	}
	key := strings.Join(addrs, ",")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil && d.poolKey == key {
		return d.pool
	}

	dial := d.Dial
	if dial == nil {
		dial = func(addr string) Connector { return NewSocket(addr) }
	}
	connectors := make([]Connector, len(addrs))
	for i, addr := range addrs {
		connectors[i] = dial(addr)
	}
	d.pool = NewPooled(connectors...)
	d.poolKey = key
	d.logger.Info("Discovered brokers", "service", d.Service, "endpoints", key)
	return d.pool
}

// String returns the browsed service.
func (d *DiscoveryConnector) String() string {
	return "mdns://" + d.Service
}

// mdnsLookup runs one mDNS query. The library call is bounded by timeout
// and is not interruptible, so ctx is only checked before it starts.
func mdnsLookup(ctx context.Context, service, domain string, timeout time.Duration) ([]Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var found []Endpoint
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for e := range entries {
			ep, ok := endpointFromEntry(e)
			if !ok || seen[ep.Addr] {
				continue
			}
			seen[ep.Addr] = true
			found = append(found, ep)
		}
	}()

	params := mdns.DefaultParams(service)
	params.Domain = domain
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, err
	}
	return found, nil
}

func endpointFromEntry(e *mdns.ServiceEntry) (Endpoint, bool) {
	if e == nil || e.Port <= 0 {
		return Endpoint{}, false
	}
	ip := e.AddrV4
	if ip == nil {
		ip = e.AddrV6
	}
	if ip == nil {
		return Endpoint{}, false
	}
	return Endpoint{
		Instance: e.Name,
		Host:     e.Host,
		Addr:     net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)),
		Info:     e.InfoFields,
	}, true
}
