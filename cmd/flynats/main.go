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
flynats - Command Line Interface.

COMMANDS:
=========

	pub, publish     Publish a message to a topic
	sub, subscribe   Print messages matching a filter
	req, request     Send a request and print the first reply
	reply            Answer requests on a filter with a fixed message
	discover         Browse the network for brokers with mDNS
	keygen           Generate a payload sealing key

EXAMPLES:
=========

	# Publish a message
	flynats pub orders.created '{"id": 1}'

	# Follow every order event
	flynats sub 'orders.>'

	# Request/reply
	flynats reply time.now "noon" &
	flynats req time.now ""

	# Fail over across two brokers
	flynats -s nats://a:4222 -s nats://b:4222 sub 'orders.*'
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"flynats/internal/banner"
	"flynats/internal/config"
	"flynats/internal/connector"
	"flynats/internal/crypto"
	"flynats/internal/health"
	"flynats/internal/logging"
	"flynats/internal/metrics"
	"flynats/pkg/cli"
	"flynats/pkg/client"
)

// globalOptions holds options that appear before the command.
var globalOptions []string

// Options that take a value, global or per command.
var optionsWithValue = map[string]bool{
	"-s": true, "--server": true,
	"-c": true, "--config": true,
	"-n": true, "--name": true,
	"-u": true, "--user": true,
	"-P": true, "--password": true,
	"--token":   true,
	"--ca-cert": true, "--tls-ca": true,
	"--cert": true, "--tls-cert": true,
	"--key": true, "--tls-key": true,
	"--tls-server-name": true,
	"--metrics-addr":    true,
	"--log-level":       true,
	"--service":         true,
	"--domain":          true,
	// Command options
	"-r": true, "--reply": true,
	"-q": true, "--queue": true,
	"--count":   true,
	"--timeout": true,
	"--serde":   true,
}

// Global boolean flags.
var globalBool = map[string]bool{
	"-T": true, "--tls": true,
	"-k": true, "--insecure": true, "--tls-insecure": true,
	"--discover":  true,
	"--wait-info": true,
	"--log-json":  true,
	"--verbose":   true,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, cmdArgs := extractCommandAndArgs(os.Args[1:])
	if cmd == "" {
		printUsage()
		os.Exit(1)
	}

	// Global options go last so positional arguments come first.
	args := append(cmdArgs, globalOptions...)

	switch cmd {
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		banner.PrintCompact(os.Stdout)
	case "pub", "publish":
		cmdPublish(args)
	case "sub", "subscribe":
		cmdSubscribe(args)
	case "req", "request":
		cmdRequest(args)
	case "reply":
		cmdReply(args)
	case "discover":
		cmdDiscover(args)
	case "keygen":
		cmdKeygen()
	default:
		cli.ErrorWithSuggestion("Unknown command: "+cmd, "flynats help")
		os.Exit(1)
	}
}

// extractCommandAndArgs separates global options from the command and its arguments.
func extractCommandAndArgs(args []string) (string, []string) {
	globalOptions = nil
	i := 0

	for i < len(args) {
		arg := args[i]

		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			globalOptions = append(globalOptions, arg)
			i++
			continue
		}
		if optionsWithValue[arg] {
			globalOptions = append(globalOptions, arg)
			if i+1 < len(args) {
				i++
				globalOptions = append(globalOptions, args[i])
			}
			i++
			continue
		}
		if globalBool[arg] {
			globalOptions = append(globalOptions, arg)
			i++
			continue
		}
		break
	}

	if i >= len(args) {
		return "", nil
	}
	return args[i], args[i+1:]
}

// positionals returns the arguments that are neither options nor option values.
func positionals(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return append(out, args[i+1:]...)
		case strings.HasPrefix(arg, "--") && strings.Contains(arg, "="):
		case optionsWithValue[arg]:
			i++
		case len(arg) > 1 && strings.HasPrefix(arg, "-"):
		default:
			out = append(out, arg)
		}
	}
	return out
}

// getOptions returns every value given for any of names, in order.
func getOptions(args []string, names ...string) []string {
	var values []string
	for i := 0; i < len(args); i++ {
		for _, name := range names {
			if args[i] == name && i+1 < len(args) {
				values = append(values, args[i+1])
			}
			if strings.HasPrefix(args[i], name+"=") {
				values = append(values, strings.TrimPrefix(args[i], name+"="))
			}
		}
	}
	return values
}

// getOption returns the last value given for any of names.
func getOption(args []string, names ...string) string {
	values := getOptions(args, names...)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func hasFlag(args []string, names ...string) bool {
	for _, arg := range args {
		for _, name := range names {
			if arg == name {
				return true
			}
		}
	}
	return false
}

func getInt(args []string, def int, names ...string) int {
	if v := getOption(args, names...); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			cli.Error("Invalid number for %s: %q", names[0], v)
			os.Exit(1)
		}
		return n
	}
	return def
}

func getDuration(args []string, def time.Duration, names ...string) time.Duration {
	if v := getOption(args, names...); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			cli.Error("Invalid duration for %s: %q", names[0], v)
			os.Exit(1)
		}
		return d
	}
	return def
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(args []string) (*config.Config, error) {
	m := config.NewManager()

	path := getOption(args, "-c", "--config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path != "" {
		if err := m.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv()

	cfg := m.Get()
	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with command line options.
func applyFlags(cfg *config.Config, args []string) {
	var servers []string
	for _, v := range getOptions(args, "-s", "--server") {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				servers = append(servers, s)
			}
		}
	}
	if len(servers) > 0 {
		cfg.Servers = servers
	}

	if v := getOption(args, "-n", "--name"); v != "" {
		cfg.Name = v
	}
	if v := getOption(args, "-u", "--user"); v != "" {
		cfg.User = v
	}
	if v := getOption(args, "-P", "--password"); v != "" {
		cfg.Password = v
	}
	if v := getOption(args, "--token"); v != "" {
		cfg.Token = v
	}
	if hasFlag(args, "--verbose") {
		cfg.Verbose = true
	}
	if hasFlag(args, "--wait-info") {
		cfg.WaitForInfo = true
	}

	if hasFlag(args, "-T", "--tls") {
		cfg.TLS.Enabled = true
	}
	if v := getOption(args, "--ca-cert", "--tls-ca"); v != "" {
		cfg.TLS.CAFile = v
	}
	if v := getOption(args, "--cert", "--tls-cert"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := getOption(args, "--key", "--tls-key"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := getOption(args, "--tls-server-name"); v != "" {
		cfg.TLS.ServerName = v
	}
	if hasFlag(args, "-k", "--insecure", "--tls-insecure") {
		cfg.TLS.InsecureSkipVerify = true
	}

	if hasFlag(args, "--discover") {
		cfg.Discovery.Enabled = true
	}
	if v := getOption(args, "--service"); v != "" {
		cfg.Discovery.Service = v
	}
	if v := getOption(args, "--domain"); v != "" {
		cfg.Discovery.Domain = v
	}

	if v := getOption(args, "--metrics-addr"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
	if v := getOption(args, "--log-level"); v != "" {
		cfg.LogLevel = v
	}
	if hasFlag(args, "--log-json") {
		cfg.LogJSON = true
	}
}

// session is a running connection plus its metrics and health endpoints.
type session struct {
	conn    *client.Connection
	metrics *metrics.Server
	health  *health.Checker
	cancel  context.CancelFunc
	done    chan error
}

// connect loads configuration and starts a connection. ctx ends on
// SIGINT or SIGTERM.
func connect(args []string) (context.Context, *session) {
	cfg, err := loadConfig(args)
	if err != nil {
		cli.ErrorWithHint("Invalid configuration: "+err.Error(), "check --server and the FLYNATS_* environment")
		os.Exit(1)
	}
	logging.Configure(cfg.LoggingConfig())

	// hashicorp/mdns logs through the standard logger.
	log.SetOutput(io.Discard)

	m := metrics.New()
	conn, err := client.NewFromConfig(cfg, client.WithMetrics(m))
	if err != nil {
		cli.Error("Failed to create connection: %v", err)
		os.Exit(1)
	}

	checker := health.NewChecker(banner.Version)
	checker.RegisterCheck("connection", health.ConnectionCheck(func() (bool, string) {
		return conn.IsConnected(), conn.State().String()
	}))

	srv := metrics.NewServer(&cfg.Metrics, m)
	srv.Handle("/healthz", checker.LiveHandler())
	srv.Handle("/readyz", checker.ReadyHandler())
	if err := srv.Start(); err != nil {
		cli.Warning("Metrics endpoint unavailable: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s := &session{conn: conn, metrics: srv, health: checker, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- conn.Run(ctx) }()
	return ctx, s
}

func (s *session) Close() {
	s.conn.Close()
	s.cancel()
	<-s.done
	s.metrics.Stop()
}

func cmdPublish(args []string) {
	pos := positionals(args)
	if len(pos) < 2 {
		cli.Error("Usage: flynats pub <topic> <message> [--reply TOPIC] [--count N] [--serde NAME] [--timeout 10s]")
		os.Exit(1)
	}
	topic, message := pos[0], pos[1]
	count := getInt(args, 1, "--count")
	timeout := getDuration(args, 10*time.Second, "--timeout")
	opts := client.PublishOptions{ReplyTo: getOption(args, "-r", "--reply")}

	ctx, s := connect(args)
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var value interface{} = message
	serde := client.StringSerde
	if name := getOption(args, "--serde"); name != "" {
		found, err := client.LookupSerde(name)
		if err != nil {
			cli.Error("%v (known: %s)", err, strings.Join(client.SerdeNames(), ", "))
			os.Exit(1)
		}
		serde = found
		if name == "json" {
			var v interface{}
			if err := json.Unmarshal([]byte(message), &v); err != nil {
				cli.Error("Message is not valid JSON: %v", err)
				os.Exit(1)
			}
			value = v
		}
		if name == "binary" {
			value = []byte(message)
		}
	}

	for i := 0; i < count; i++ {
		if err := s.conn.PublishValue(ctx, topic, value, serde, opts); err != nil {
			if client.IsValidationError(err) {
				cli.Error("Invalid publish: %v", err)
			} else {
				cli.ErrorWithHint("Failed to publish: "+err.Error(), "is a broker reachable at the configured servers?")
			}
			os.Exit(1)
		}
	}

	if count == 1 {
		cli.Success("Published %d bytes to %s", len(message), topic)
	} else {
		cli.Success("Published %d messages to %s", count, topic)
	}
}

func cmdSubscribe(args []string) {
	pos := positionals(args)
	if len(pos) < 1 {
		cli.Error("Usage: flynats sub <filter> [--queue GROUP] [--count N] [--raw] [--quiet]")
		os.Exit(1)
	}
	filter := pos[0]
	limit := getInt(args, 0, "--count")
	raw := hasFlag(args, "--raw")
	quiet := raw || hasFlag(args, "--quiet")

	ctx, s := connect(args)
	defer s.Close()

	stream, err := client.NewStream(ctx, s.conn, filter, client.StreamOptions{QueueGroup: getOption(args, "-q", "--queue")})
	if err != nil {
		cli.Error("Failed to subscribe: %v", err)
		os.Exit(1)
	}
	defer stream.Close()
	s.health.RegisterCheck("stream", health.DropCheck(client.DefaultStreamCapacity, stream.Dropped))

	if !quiet {
		cli.Success("Subscribed to %s", filter)
		cli.Info("Press Ctrl+C to stop...")
		cli.Separator()
	}

	received := 0
	for limit == 0 || received < limit {
		msg, err := stream.Next(ctx)
		if err != nil {
			break
		}
		received++

		switch {
		case raw:
			fmt.Fprintln(cli.Out, string(msg.Payload))
		case msg.ReplyTo != "":
			fmt.Fprintf(cli.Out, "[%s] %s (reply: %s): %s\n", time.Now().Format("15:04:05"), msg.Topic, msg.ReplyTo, cli.Payload(msg.Payload))
		default:
			fmt.Fprintf(cli.Out, "[%s] %s: %s\n", time.Now().Format("15:04:05"), msg.Topic, cli.Payload(msg.Payload))
		}
	}

	if !quiet {
		cli.Separator()
		cli.KeyValue("Received", received)
		if dropped := stream.Dropped(); dropped > 0 {
			cli.Warning("%d messages dropped by a slow consumer", dropped)
		}
	}
}

func cmdRequest(args []string) {
	pos := positionals(args)
	if len(pos) < 1 {
		cli.Error("Usage: flynats req <topic> [payload] [--timeout 5s]")
		os.Exit(1)
	}
	topic := pos[0]
	payload := ""
	if len(pos) > 1 {
		payload = pos[1]
	}
	timeout := getDuration(args, 5*time.Second, "--timeout")

	ctx, s := connect(args)
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	reply, err := client.NewRequester(s.conn).Request(ctx, topic, []byte(payload)).Wait(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			cli.ErrorWithHint(fmt.Sprintf("No reply on %s within %s", topic, timeout), "is anything subscribed to the topic?")
		} else {
			cli.Error("Request failed: %v", err)
		}
		os.Exit(1)
	}

	fmt.Fprintln(cli.Out, cli.Payload(reply))
	if !hasFlag(args, "--quiet") {
		cli.Hint("reply in %s", time.Since(start).Round(time.Microsecond))
	}
}

func cmdReply(args []string) {
	pos := positionals(args)
	if len(pos) < 2 {
		cli.Error("Usage: flynats reply <filter> <message> [--queue GROUP] [--count N]")
		os.Exit(1)
	}
	filter, message := pos[0], pos[1]
	limit := getInt(args, 0, "--count")

	ctx, s := connect(args)
	defer s.Close()

	stream, err := client.NewStream(ctx, s.conn, filter, client.StreamOptions{QueueGroup: getOption(args, "-q", "--queue")})
	if err != nil {
		cli.Error("Failed to subscribe: %v", err)
		os.Exit(1)
	}
	defer stream.Close()

	cli.Success("Answering requests on %s", filter)
	answered := 0
	for limit == 0 || answered < limit {
		msg, err := stream.Next(ctx)
		if err != nil {
			break
		}
		if msg.ReplyTo == "" {
			continue
		}
		if err := s.conn.PublishString(ctx, msg.ReplyTo, message, client.PublishOptions{}); err != nil {
			cli.Warning("Failed to reply on %s: %v", msg.ReplyTo, err)
			continue
		}
		answered++
	}
	cli.KeyValue("Answered", answered)
}

func cmdDiscover(args []string) {
	timeout := getDuration(args, connector.DefaultDiscoveryTimeout, "--timeout")
	jsonOutput := hasFlag(args, "--json")
	quiet := hasFlag(args, "--quiet")

	// hashicorp/mdns logs IPv6 errors that are not critical.
	log.SetOutput(io.Discard)

	d := connector.NewDiscovery(getOption(args, "--service"))
	if v := getOption(args, "--domain"); v != "" {
		d.Domain = v
	}
	d.Timeout = timeout

	if !quiet && !jsonOutput {
		cli.Info("Scanning for %s brokers (timeout: %s)...", d.Service, timeout)
	}

	endpoints, err := d.Discover(context.Background())
	if err != nil {
		if !quiet {
			cli.Error("Discovery failed: %v", err)
		}
		os.Exit(1)
	}

	switch {
	case jsonOutput:
		enc := json.NewEncoder(cli.Out)
		enc.SetIndent("", "  ")
		enc.Encode(endpoints)
	case quiet:
		for _, ep := range endpoints {
			fmt.Fprintln(cli.Out, ep.Addr)
		}
	case len(endpoints) == 0:
		cli.Warning("No brokers found on the network.")
		cli.Hint("mDNS may be blocked by a firewall (UDP port 5353)")
		cli.Example("Increase the timeout", "flynats discover --timeout 10s")
	default:
		cli.Header(fmt.Sprintf("Found %d broker(s):", len(endpoints)))
		for _, ep := range endpoints {
			fmt.Fprintf(cli.Out, "  %s %s\n", cli.IconDot, ep.Addr)
			cli.KeyValue("instance", ep.Instance)
		}
		cli.Separator()
		cli.Example("Connect to all of them", "flynats --discover sub '>'")
	}
}

func cmdKeygen() {
	key, err := crypto.GenerateKey()
	if err != nil {
		cli.Error("Failed to generate key: %v", err)
		os.Exit(1)
	}
	fmt.Fprintln(cli.Out, key)
}

func printUsage() {
	banner.PrintTo(cli.Diag)
	fmt.Fprintln(cli.Diag)
	cli.Header("Usage:")
	fmt.Fprintln(cli.Diag, "  flynats [global options] <command> [options]")
	fmt.Fprintln(cli.Diag)
	cli.Header("Commands:")
	fmt.Fprintln(cli.Diag, "  pub, publish    Publish a message to a topic")
	fmt.Fprintln(cli.Diag, "  sub, subscribe  Print messages matching a filter")
	fmt.Fprintln(cli.Diag, "  req, request    Send a request and print the first reply")
	fmt.Fprintln(cli.Diag, "  reply           Answer requests with a fixed message")
	fmt.Fprintln(cli.Diag, "  discover        Browse for brokers with mDNS")
	fmt.Fprintln(cli.Diag, "  keygen          Generate a payload sealing key")
	fmt.Fprintln(cli.Diag, "  version         Show version information")
	fmt.Fprintln(cli.Diag, "  help            Show this help message")
	fmt.Fprintln(cli.Diag)
	cli.Header("Global Options:")
	fmt.Fprintln(cli.Diag, "  -s, --server URL   Broker URL, repeatable (env: FLYNATS_SERVERS)")
	fmt.Fprintln(cli.Diag, "                     nats://, tcp://, tls://, ws://, wss://, mdns:// or host:port")
	fmt.Fprintln(cli.Diag, "  -c, --config FILE  Config file (.toml or .json)")
	fmt.Fprintln(cli.Diag, "  -n, --name NAME    Client name sent in CONNECT")
	fmt.Fprintln(cli.Diag, "  -u, --user USER    Username (env: FLYNATS_USER)")
	fmt.Fprintln(cli.Diag, "  -P, --password PW  Password (env: FLYNATS_PASSWORD)")
	fmt.Fprintln(cli.Diag, "  --token TOKEN      Auth token (env: FLYNATS_TOKEN)")
	fmt.Fprintln(cli.Diag, "  --discover         Also connect to brokers found with mDNS")
	fmt.Fprintln(cli.Diag, "  --wait-info        Wait for INFO before sending CONNECT")
	fmt.Fprintln(cli.Diag, "  --metrics-addr A   Serve Prometheus metrics on A")
	fmt.Fprintln(cli.Diag, "  --log-level L      debug, info, warn or error")
	fmt.Fprintln(cli.Diag)
	cli.Header("TLS Options:")
	fmt.Fprintln(cli.Diag, "  -T, --tls          Use TLS for plain server URLs")
	fmt.Fprintln(cli.Diag, "  --ca-cert FILE     CA certificate for broker verification")
	fmt.Fprintln(cli.Diag, "  --cert FILE        Client certificate for mTLS")
	fmt.Fprintln(cli.Diag, "  --key FILE         Client key for mTLS")
	fmt.Fprintln(cli.Diag, "  -k, --insecure     Skip certificate verification (testing only)")
	fmt.Fprintln(cli.Diag)
	cli.Header("Examples:")
	cli.Example("Publish a message", "flynats pub orders.created '{\"id\": 1}'")
	cli.Example("Publish JSON through the json serde", "flynats pub orders.created '{\"id\": 1}' --serde json")
	cli.Example("Follow all order events", "flynats sub 'orders.>'")
	cli.Example("Share work in a queue group", "flynats sub jobs --queue workers")
	cli.Example("Request/reply", "flynats req time.now --timeout 2s")
	cli.Example("Fail over across brokers", "flynats -s nats://a:4222 -s nats://b:4222 sub '>'")
	cli.Example("Sealed payloads", "export "+config.EnvPayloadKey+"=$(flynats keygen)")
	fmt.Fprintln(cli.Diag)
}
