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
Package config provides configuration management for flynats clients.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Command-line flags (highest priority)
2. Environment variables (FLYNATS_* prefix)
3. Configuration file (TOML or JSON format)
4. Default values (lowest priority)

CONFIGURATION CATEGORIES:
=========================
- Servers: servers, discovery
- Session: name, verbose, pedantic, user, wait_for_info
- Timing: reconnect_delay_ms, retry_delay_ms, connect_timeout_ms
- Security: TLS, payload sealing key
- Logging: log_level, log_json
- Observability: metrics

EXAMPLE CONFIGURATION FILE:
===========================

	servers = ["nats://broker-1:4222", "tls://broker-2:4443"]
	name = "billing-worker"

	[tls]
	enabled = true
	ca_file = "/etc/flynats/ca.pem"

	[metrics]
	enabled = true
	addr = ":9422"

ENVIRONMENT VARIABLES:
======================
All settings can be configured via environment variables with FLYNATS_ prefix.
Example: FLYNATS_SERVERS="nats://a:4222,nats://b:4222" FLYNATS_LOG_LEVEL="debug"
*/
package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"flynats/internal/connector"
	"flynats/internal/crypto"
	"flynats/internal/logging"
	"flynats/internal/protocol"
)

// Environment variable names
const (
	EnvServers          = "FLYNATS_SERVERS"
	EnvName             = "FLYNATS_NAME"
	EnvVerbose          = "FLYNATS_VERBOSE"
	EnvPedantic         = "FLYNATS_PEDANTIC"
	EnvUser             = "FLYNATS_USER"
	EnvPassword         = "FLYNATS_PASSWORD"
	EnvToken            = "FLYNATS_TOKEN"
	EnvReconnectDelay   = "FLYNATS_RECONNECT_DELAY_MS"
	EnvRetryDelay       = "FLYNATS_RETRY_DELAY_MS"
	EnvConnectTimeout   = "FLYNATS_CONNECT_TIMEOUT_MS"
	EnvReadSize         = "FLYNATS_READ_SIZE"
	EnvWaitForInfo      = "FLYNATS_WAIT_FOR_INFO"
	EnvLogLevel         = "FLYNATS_LOG_LEVEL"
	EnvLogJSON          = "FLYNATS_LOG_JSON"
	EnvTLSEnabled       = "FLYNATS_TLS_ENABLED"
	EnvTLSCertFile      = "FLYNATS_TLS_CERT_FILE"
	EnvTLSKeyFile       = "FLYNATS_TLS_KEY_FILE"
	EnvTLSCAFile        = "FLYNATS_TLS_CA_FILE"
	EnvTLSServerName    = "FLYNATS_TLS_SERVER_NAME"
	EnvTLSInsecure      = "FLYNATS_TLS_INSECURE_SKIP_VERIFY"
	EnvPayloadKey       = "FLYNATS_PAYLOAD_KEY"
	EnvDiscoveryEnabled = "FLYNATS_DISCOVERY_ENABLED"
	EnvDiscoveryService = "FLYNATS_DISCOVERY_SERVICE"
	EnvDiscoveryDomain  = "FLYNATS_DISCOVERY_DOMAIN"
	EnvDiscoveryTimeout = "FLYNATS_DISCOVERY_TIMEOUT_MS"
	EnvMetricsEnabled   = "FLYNATS_METRICS_ENABLED"
	EnvMetricsAddr      = "FLYNATS_METRICS_ADDR"
)

// Default paths
var DefaultConfigPaths = []string{
	"./flynats.toml",
	"$HOME/.config/flynats/flynats.toml",
	"/etc/flynats/flynats.toml",
}

// TLSConfig holds broker TLS settings.
type TLSConfig struct {
	Enabled            bool   `toml:"enabled" json:"enabled"`                           // Upgrade plain server URLs to TLS
	CertFile           string `toml:"cert_file" json:"cert_file"`                       // Client certificate for mutual TLS
	KeyFile            string `toml:"key_file" json:"key_file"`                         // Client private key for mutual TLS
	CAFile             string `toml:"ca_file" json:"ca_file"`                           // CA bundle used to verify the broker
	ServerName         string `toml:"server_name" json:"server_name"`                   // Override the verified host name
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" json:"insecure_skip_verify"` // Testing only
}

// DiscoveryConfig holds mDNS broker discovery settings.
type DiscoveryConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled"`       // Browse for brokers in addition to servers
	Service   string `toml:"service" json:"service"`       // mDNS service type
	Domain    string `toml:"domain" json:"domain"`         // mDNS domain
	TimeoutMs int64  `toml:"timeout_ms" json:"timeout_ms"` // Browse duration
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" json:"addr"`
}

// Config holds client configuration.
type Config struct {
	// Servers
	Servers []string `toml:"servers" json:"servers"`

	// Session
	Name        string `toml:"name" json:"name"`
	Verbose     bool   `toml:"verbose" json:"verbose"`
	Pedantic    bool   `toml:"pedantic" json:"pedantic"`
	User        string `toml:"user" json:"user"`
	Password    string `toml:"-" json:"-"` // Only via FLYNATS_PASSWORD
	Token       string `toml:"-" json:"-"` // Only via FLYNATS_TOKEN
	WaitForInfo bool   `toml:"wait_for_info" json:"wait_for_info"`

	// Timing
	ReconnectDelayMs int64 `toml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
	RetryDelayMs     int64 `toml:"retry_delay_ms" json:"retry_delay_ms"`
	ConnectTimeoutMs int64 `toml:"connect_timeout_ms" json:"connect_timeout_ms"`
	ReadSize         int   `toml:"read_size" json:"read_size"`

	// Logging
	LogLevel string `toml:"log_level" json:"log_level"`
	LogJSON  bool   `toml:"log_json" json:"log_json"`

	// Security
	TLS        TLSConfig `toml:"tls" json:"tls"`
	PayloadKey string    `toml:"-" json:"-"` // AES-256 key; only via FLYNATS_PAYLOAD_KEY

	// Discovery
	Discovery DiscoveryConfig `toml:"discovery" json:"discovery"`

	// Observability
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`

	// Metadata
	ConfigFile string `toml:"-" json:"-"`
}

// DefaultConfig returns defaults.
func DefaultConfig() *Config {
	return &Config{
		Servers:          []string{"nats://localhost:" + connector.DefaultPort},
		Pedantic:         true,
		ReconnectDelayMs: 1000,
		RetryDelayMs:     200,
		ConnectTimeoutMs: 5000,
		ReadSize:         protocol.ReadSize,
		LogLevel:         "info",
		Discovery: DiscoveryConfig{
			Service:   connector.DefaultService,
			Domain:    connector.DefaultDomain,
			TimeoutMs: 2000,
		},
		Metrics: MetricsConfig{
			Addr: ":9422",
		},
	}
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = &Manager{
	config: DefaultConfig(),
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Servers = append([]string(nil), m.config.Servers...)
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a TOML (.toml, .conf) or JSON file.
// Keys missing from the file keep their defaults.
func (m *Manager) LoadFromFile(path string) error {
	cfg := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".conf":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// LoadFromEnv loads configuration from environment variables.
func (m *Manager) LoadFromEnv() {
	cfg := m.Get()

	if v := os.Getenv(EnvServers); v != "" {
		cfg.Servers = splitList(v)
	}
	if v := os.Getenv(EnvName); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv(EnvPedantic); v != "" {
		cfg.Pedantic = parseBool(v)
	}
	if v := os.Getenv(EnvUser); v != "" {
		cfg.User = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvWaitForInfo); v != "" {
		cfg.WaitForInfo = parseBool(v)
	}
	if v := os.Getenv(EnvReconnectDelay); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ReconnectDelayMs = i
		}
	}
	if v := os.Getenv(EnvRetryDelay); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RetryDelayMs = i
		}
	}
	if v := os.Getenv(EnvConnectTimeout); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ConnectTimeoutMs = i
		}
	}
	if v := os.Getenv(EnvReadSize); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.ReadSize = i
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = parseBool(v)
	}

	// Security environment variables
	if v := os.Getenv(EnvTLSEnabled); v != "" {
		cfg.TLS.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvTLSCertFile); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv(EnvTLSKeyFile); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv(EnvTLSCAFile); v != "" {
		cfg.TLS.CAFile = v
	}
	if v := os.Getenv(EnvTLSServerName); v != "" {
		cfg.TLS.ServerName = v
	}
	if v := os.Getenv(EnvTLSInsecure); v != "" {
		cfg.TLS.InsecureSkipVerify = parseBool(v)
	}
	if v := os.Getenv(EnvPayloadKey); v != "" {
		cfg.PayloadKey = v
	}

	// Discovery environment variables
	if v := os.Getenv(EnvDiscoveryEnabled); v != "" {
		cfg.Discovery.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvDiscoveryService); v != "" {
		cfg.Discovery.Service = v
	}
	if v := os.Getenv(EnvDiscoveryDomain); v != "" {
		cfg.Discovery.Domain = v
	}
	if v := os.Getenv(EnvDiscoveryTimeout); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Discovery.TimeoutMs = i
		}
	}

	// Observability environment variables
	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}

	m.Set(cfg)
}

// FindConfigFile returns the first existing file from DefaultConfigPaths,
// or "" when none exists.
func FindConfigFile() string {
	for _, p := range DefaultConfigPaths {
		path := os.ExpandEnv(p)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 && !c.Discovery.Enabled {
		return fmt.Errorf("servers is required unless discovery is enabled")
	}
	if len(c.Servers) > 0 {
		if _, err := connector.FromURLs(c.Servers, connector.URLOptions{}); err != nil {
			return err
		}
	}

	if c.ReconnectDelayMs < 0 {
		return fmt.Errorf("reconnect_delay_ms must be non-negative")
	}
	if c.RetryDelayMs < 0 {
		return fmt.Errorf("retry_delay_ms must be non-negative")
	}
	if c.ConnectTimeoutMs < 0 {
		return fmt.Errorf("connect_timeout_ms must be non-negative")
	}
	if c.ReadSize <= 0 || c.ReadSize > protocol.MaxBuffer {
		return fmt.Errorf("read_size must be between 1 and %d", protocol.MaxBuffer)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error'")
	}

	// Validate TLS configuration
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}

	// SECURITY: the payload key is only accepted from the environment
	if c.PayloadKey != "" {
		if err := crypto.ValidateKey(c.PayloadKey); err != nil {
			return fmt.Errorf("%s: %w\n  Generate a key with: openssl rand -hex 32", EnvPayloadKey, err)
		}
	}

	if c.Discovery.Enabled {
		if c.Discovery.Service == "" {
			return fmt.Errorf("discovery.service is required when discovery is enabled")
		}
		if c.Discovery.TimeoutMs <= 0 {
			return fmt.Errorf("discovery.timeout_ms must be positive")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// ReconnectDelay returns the pause between connection attempts.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// RetryDelay returns the pause between write retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// ConnectTimeout bounds one dial or handshake.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// DiscoveryTimeout bounds one mDNS browse.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutMs) * time.Millisecond
}

// IsTLSEnabled returns true if plain server URLs are upgraded to TLS.
func (c *Config) IsTLSEnabled() bool {
	return c.TLS.Enabled
}

// IsSealingEnabled returns true if a payload key is configured.
func (c *Config) IsSealingEnabled() bool {
	return c.PayloadKey != ""
}

// ConnectOptions returns the CONNECT options derived from the session
// settings. Credentials are passed through untouched.
func (c *Config) ConnectOptions() map[string]interface{} {
	opts := map[string]interface{}{
		"verbose":  c.Verbose,
		"pedantic": c.Pedantic,
	}
	if c.Name != "" {
		opts["name"] = c.Name
	}
	if c.User != "" {
		opts["user"] = c.User
	}
	if c.Password != "" {
		opts["pass"] = c.Password
	}
	if c.Token != "" {
		opts["auth_token"] = c.Token
	}
	if c.TLS.Enabled {
		opts["tls_required"] = true
	}
	return opts
}

// ClientTLS builds the TLS configuration used by tls:// and wss:// servers.
// It returns nil when no TLS settings are present.
func (c *Config) ClientTLS() (*tls.Config, error) {
	t := c.TLS
	if !t.Enabled && t.CAFile == "" && t.CertFile == "" && t.ServerName == "" && !t.InsecureSkipVerify {
		return nil, nil
	}
	return crypto.NewClientTLSConfig(crypto.TLSConfig{
		CertFile:           t.CertFile,
		KeyFile:            t.KeyFile,
		CAFile:             t.CAFile,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	})
}

// BuildConnector returns the connector chain for the configured servers:
// a single connector, or a pool when several servers (or servers plus
// discovery) are configured.
func (c *Config) BuildConnector() (connector.Connector, error) {
	tlsConfig, err := c.ClientTLS()
	if err != nil {
		return nil, err
	}
	opts := connector.URLOptions{
		TLS:              tlsConfig,
		ForceTLS:         c.TLS.Enabled,
		Timeout:          c.ConnectTimeout(),
		DiscoveryTimeout: c.DiscoveryTimeout(),
	}

	var connectors []connector.Connector
	if len(c.Servers) > 0 {
		connectors, err = connector.FromURLs(c.Servers, opts)
		if err != nil {
			return nil, err
		}
	}
	if c.Discovery.Enabled {
		connectors = append(connectors, c.discoveryConnector(opts))
	}

	switch len(connectors) {
	case 0:
		return nil, fmt.Errorf("config: no servers configured")
	case 1:
		return connectors[0], nil
	default:
		return connector.NewPooled(connectors...), nil
	}
}

func (c *Config) discoveryConnector(opts connector.URLOptions) *connector.DiscoveryConnector {
	d := connector.NewDiscovery(c.Discovery.Service)
	if c.Discovery.Domain != "" {
		d.Domain = c.Discovery.Domain
	}
	if opts.DiscoveryTimeout > 0 {
		d.Timeout = opts.DiscoveryTimeout
	}
	d.Dial = func(addr string) connector.Connector {
		if opts.ForceTLS {
			t := connector.NewTLS(addr, opts.TLS)
			if opts.Timeout > 0 {
				t.Socket.Timeout = opts.Timeout
			}
			return t
		}
		s := connector.NewSocket(addr)
		if opts.Timeout > 0 {
			s.Timeout = opts.Timeout
		}
		return s
	}
	return d
}

// LoggingConfig returns the logger settings for this configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.JSONMode = c.LogJSON
	return cfg
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
