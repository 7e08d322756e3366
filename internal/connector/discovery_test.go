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
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

// staticLookup answers every browse with the current endpoint set.
type staticLookup struct {
	mu        sync.Mutex
	endpoints []Endpoint
	err       error
	calls     int
	service   string
	domain    string
	timeout   time.Duration
}

func (l *staticLookup) lookup(ctx context.Context, service, domain string, timeout time.Duration) ([]Endpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.service, l.domain, l.timeout = service, domain, timeout
	out := make([]Endpoint, len(l.endpoints))
	copy(out, l.endpoints)
	return out, l.err
}

func (l *staticLookup) set(addrs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoints = nil
	for _, a := range addrs {
		l.endpoints = append(l.endpoints, Endpoint{Addr: a})
	}
}

func newTestDiscovery(l *staticLookup, dialed map[string]*fakeConnector) *DiscoveryConnector {
	d := NewDiscovery("")
	d.lookup = l.lookup
	d.Dial = func(addr string) Connector {
		f, ok := dialed[addr]
		if !ok {
			f = &fakeConnector{name: addr, refuse: true}
			dialed[addr] = f
		}
		return f
	}
	return d
}

func TestDiscoverSortsAndPassesParams(t *testing.T) {
	l := &staticLookup{}
	l.set("10.0.0.3:4222", "10.0.0.1:4222", "10.0.0.2:4222")
	d := newTestDiscovery(l, map[string]*fakeConnector{})
	d.Timeout = 500 * time.Millisecond

	eps, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	want := []string{"10.0.0.1:4222", "10.0.0.2:4222", "10.0.0.3:4222"}
	for i, ep := range eps {
		if ep.Addr != want[i] {
			t.Errorf("endpoint %d = %s, want %s", i, ep.Addr, want[i])
		}
	}
	if l.service != DefaultService || l.domain != DefaultDomain || l.timeout != 500*time.Millisecond {
		t.Errorf("lookup(%q, %q, %v)", l.service, l.domain, l.timeout)
	}
}

func TestDiscoveryOpen(t *testing.T) {
	l := &staticLookup{}
	l.set("10.0.0.1:4222", "10.0.0.2:4222")
	dialed := map[string]*fakeConnector{
		"10.0.0.1:4222": {name: "one", refuse: true},
		"10.0.0.2:4222": {name: "two"},
	}
	d := newTestDiscovery(l, dialed)

	s, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got := s.(*namedStream).name; got != "two" {
		t.Errorf("Open() used %s, want two", got)
	}
}

func TestDiscoveryNoAnswers(t *testing.T) {
	tests := []struct {
		name string
		l    *staticLookup
	}{
		{"empty browse", &staticLookup{}},
		{"browse error", &staticLookup{err: errors.New("no multicast")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDiscovery(tt.l, map[string]*fakeConnector{})
			s, err := d.Open(context.Background())
			if s != nil || !errors.Is(err, ErrNoConnection) {
				t.Errorf("Open() = %v, %v, want nil, %v", s, err, ErrNoConnection)
			}
		})
	}
}

func TestDiscoveryPoolReuse(t *testing.T) {
	l := &staticLookup{}
	l.set("10.0.0.1:4222", "10.0.0.2:4222")
	d := newTestDiscovery(l, map[string]*fakeConnector{})

	d.Open(context.Background())
	first := d.pool
	d.Open(context.Background())
	if d.pool != first {
		t.Error("pool rebuilt for an unchanged answer set")
	}

	l.set("10.0.0.1:4222", "10.0.0.3:4222")
	d.Open(context.Background())
	if d.pool == first {
		t.Error("pool kept after the answer set changed")
	}
	if d.pool.Len() != 2 {
		t.Errorf("pool Len() = %d, want 2", d.pool.Len())
	}
	if l.calls != 3 {
		t.Errorf("lookup called %d times, want 3", l.calls)
	}
}

func TestDiscoveryDefaultDial(t *testing.T) {
	l := &staticLookup{}
	l.set("10.0.0.1:4222")
	d := NewDiscovery("_flynats._tcp")
	d.lookup = l.lookup

	p := d.poolFor([]Endpoint{{Addr: "10.0.0.1:4222"}})
	if got := p.String(); got != "pool[tcp://10.0.0.1:4222]" {
		t.Errorf("pool = %s", got)
	}
	if got := d.String(); got != "mdns://_flynats._tcp" {
		t.Errorf("String() = %q", got)
	}
}

func TestEndpointFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  string
		ok    bool
	}{
		{"nil", nil, "", false},
		{"no port", &mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1)}, "", false},
		{"no address", &mdns.ServiceEntry{Port: 4222}, "", false},
		{"ipv4", &mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1), Port: 4222}, "10.0.0.1:4222", true},
		{"ipv6 fallback", &mdns.ServiceEntry{AddrV6: net.ParseIP("fe80::1"), Port: 4222}, "[fe80::1]:4222", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, ok := endpointFromEntry(tt.entry)
			if ok != tt.ok || ep.Addr != tt.want {
				t.Errorf("endpointFromEntry() = %q, %v, want %q, %v", ep.Addr, ok, tt.want, tt.ok)
			}
		})
	}
}
