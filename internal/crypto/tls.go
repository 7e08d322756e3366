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
TLS configuration for broker connections.

The TLS connector dials the broker and performs the handshake before any
protocol byte is exchanged, so the wire protocol itself is unaware of
encryption. Mutual TLS is supported by supplying a client certificate.

SECURITY DEFAULTS:
==================
- Minimum TLS version: 1.2
- Server certificate verified against the system pool or CAFile
- ServerName defaults to the host part of the dialed address

CERTIFICATE SETUP:
==================
Generate a client certificate signed by the broker's CA for testing:

	openssl genrsa -out client.key 2048
	openssl req -new -key client.key -out client.csr
	openssl x509 -req -days 365 -in client.csr -CA ca.crt -CAkey ca.key -out client.crt
*/
package crypto

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrCertNotFound is returned when the certificate file cannot be read.
	ErrCertNotFound = errors.New("tls: certificate file not found")

	// ErrKeyNotFound is returned when the key file cannot be read.
	ErrKeyNotFound = errors.New("tls: key file not found")

	// ErrInvalidCertificate is returned when the certificate is invalid.
	ErrInvalidCertificate = errors.New("tls: invalid certificate")

	// ErrCANotFound is returned when the CA certificate file cannot be read.
	ErrCANotFound = errors.New("tls: CA certificate file not found")

	// ErrIncompleteKeyPair is returned when only one of CertFile and KeyFile is set.
	ErrIncompleteKeyPair = errors.New("tls: certificate and key must be given together")
)

// TLSConfig holds client TLS options.
type TLSConfig struct {
	// CertFile is the client certificate for mutual TLS (PEM, optional).
	CertFile string

	// KeyFile is the client private key for mutual TLS (PEM, optional).
	KeyFile string

	// CAFile is the CA bundle used to verify the broker (optional).
	CAFile string

	// ServerName overrides the name checked against the broker certificate.
	ServerName string

	// InsecureSkipVerify disables certificate verification (for testing only).
	InsecureSkipVerify bool
}

// NewClientTLSConfig creates a TLS configuration for dialing a broker.
func NewClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, ErrIncompleteKeyPair
	}
	if cfg.CertFile != "" {
		if err := ValidateTLSFiles(cfg.CertFile, cfg.KeyFile); err != nil {
			return nil, err
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCANotFound, path)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCertificate, path)
	}
	return pool, nil
}

// ValidateTLSFiles checks that the certificate and key files exist.
func ValidateTLSFiles(certFile, keyFile string) error {
	if _, err := os.Stat(certFile); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrCertNotFound, certFile)
	}
	if _, err := os.Stat(keyFile); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, keyFile)
	}
	return nil
}
