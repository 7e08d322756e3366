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
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// DefaultPort is used when a server URL names no port.
const DefaultPort = "4222"

// ErrInvalidURL is returned for a server URL that cannot be parsed.
var ErrInvalidURL = errors.New("connector: invalid server url")

// URLOptions apply to every connector built by FromURLs.
type URLOptions struct {
	// TLS is used for tls:// and wss:// URLs, and for nats:// URLs when
	// ForceTLS is set.
	TLS *tls.Config

	// ForceTLS upgrades plain TCP URLs to TLS.
	ForceTLS bool

	// Timeout bounds each dial or handshake.
	Timeout time.Duration

	// DiscoveryTimeout bounds each mDNS browse.
	DiscoveryTimeout time.Duration
}

// FromURLs builds one connector per server URL.
//
// Accepted forms:
//
//	host:port, nats://host:port, tcp://host:port   plain TCP
//	tls://host:port                                TCP + TLS
//	ws://host:port/path, wss://host:port/path      WebSocket
//	mdns://_service._tcp                           mDNS discovery
func FromURLs(urls []string, opts URLOptions) ([]Connector, error) {
	var out []Connector
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, err := fromURL(raw, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no servers given", ErrInvalidURL)
	}
	return out, nil
}

// Build returns the single connector for urls, or a Pooled over them.
func Build(urls []string, opts URLOptions) (Connector, error) {
	cs, err := FromURLs(urls, opts)
	if err != nil {
		return nil, err
	}
	if len(cs) == 1 {
		return cs[0], nil
	}
	return NewPooled(cs...), nil
}

func fromURL(raw string, opts URLOptions) (Connector, error) {
	if !strings.Contains(raw, "://") {
		raw = "nats://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "nats", "tcp":
		addr, err := hostPort(u)
		if err != nil {
			return nil, err
		}
		if opts.ForceTLS {
			return newTLS(addr, opts.TLS, opts.Timeout), nil
		}
		return newSocket(addr, opts.Timeout), nil

	case "tls":
		addr, err := hostPort(u)
		if err != nil {
			return nil, err
		}
		return newTLS(addr, opts.TLS, opts.Timeout), nil

	case "ws", "wss":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
		}
		ws := NewWebSocket(u.String())
		if u.Scheme == "wss" {
			ws.TLS = opts.TLS
		}
		if opts.Timeout > 0 {
			ws.HandshakeTimeout = opts.Timeout
		}
		return ws, nil

	case "mdns":
		d := NewDiscovery(u.Host)
		if opts.DiscoveryTimeout > 0 {
			d.Timeout = opts.DiscoveryTimeout
		}
		d.Dial = func(addr string) Connector {
			if opts.ForceTLS {
				return newTLS(addr, opts.TLS, opts.Timeout)
			}
			return newSocket(addr, opts.Timeout)
		}
		return d, nil

	default:
		return nil, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidURL, raw, u.Scheme)
	}
}

func hostPort(u *url.URL) (string, error) {
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrInvalidURL, u.String())
	}
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(host, port), nil
}

func newSocket(addr string, timeout time.Duration) *SocketConnector {
	s := NewSocket(addr)
	if timeout > 0 {
		s.Timeout = timeout
	}
	return s
}

func newTLS(addr string, cfg *tls.Config, timeout time.Duration) *TLSConnector {
	return &TLSConnector{Socket: newSocket(addr, timeout), Config: cfg}
}
