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
Package client provides the flynats Go client library.

QUICK START:
============

	conn := client.New(connector.NewSocket("localhost:4222"))
	defer conn.Close()
	go conn.Run(ctx)

	// Publish a message
	err := conn.Publish(ctx, "orders.created", []byte("hello"), client.PublishOptions{})

	// Subscribe with a wildcard filter
	sid, err := conn.Subscribe(ctx, "orders.*", client.SubscribeOptions{},
	    func(topic string, payload []byte, replyTo string) {
	        fmt.Printf("%s: %s\n", topic, payload)
	    })

	// Request/reply
	reply, err := conn.Request(ctx, "pricing.quote", []byte("ABC"))

FAILOVER:
=========
A Connection never gives up. When the transport fails it is torn down,
a new stream is opened through the Connector after a fixed delay, and
every live subscription is replayed before operations resume. Publish and
Subscribe block while disconnected and retry until they succeed or their
context ends.

	conn := client.New(connector.NewPooled(
	    connector.NewSocket("broker-1:4222"),
	    connector.NewSocket("broker-2:4222"),
	))

DELIVERY:
=========
Handlers run on the receive loop goroutine, one message at a time. A
handler that blocks stalls delivery for every subscription; a handler
that publishes while the connection is down blocks until its own context
ends, because reconnecting needs the receive loop.

THREAD SAFETY:
==============
All methods except Run are safe for concurrent use. Run must be called
exactly once at a time.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"flynats/internal/config"
	"flynats/internal/connector"
	"flynats/internal/crypto"
	"flynats/internal/logging"
	"flynats/internal/metrics"
	"flynats/internal/protocol"
	"flynats/internal/subscription"
	"flynats/internal/topic"
)

// Frame options, shared with the encoder.
type (
	PublishOptions   = protocol.PublishOptions
	SubscribeOptions = protocol.SubscribeOptions
)

// MsgHandler receives one delivered message.
type MsgHandler = subscription.MsgHandler

// State is the connection's position in its lifecycle.
type State int32

const (
	// StateDisconnected means no transport is installed.
	StateDisconnected State = iota
	// StateConnecting means a connect attempt is in progress.
	StateConnecting
	// StateConnected means the handshake and subscription replay completed.
	StateConnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// frame is one rendered outbound frame.
type frame struct {
	verb string
	sid  string // SUB frames only
	data []byte
}

// Connection is a self-healing client session with one broker.
type Connection struct {
	connector connector.Connector
	opts      options
	registry  *subscription.Registry
	logger    *logging.Logger
	connLog   *logging.ConnectionLogger
	msgLog    *logging.MessageLogger
	metrics   *metrics.Metrics

	// Receive loop only.
	decoder *protocol.Decoder
	msgSeq  uint64

	// mu guards the transport slot and every write to it.
	mu          sync.Mutex
	stream      connector.Stream
	state       State
	epoch       uint64
	ready       chan struct{} // closed while CONNECTED
	connectedAt time.Time
	replayed    map[string]struct{}
	info        protocol.ServerInfo
	closed      bool

	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
	inboxSeq  atomic.Uint64
}

// New creates a connection that obtains transports from c. Nothing is
// dialed until Run starts.
func New(c connector.Connector, opts ...Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.NewLogger("connection")
	}

	return &Connection{
		connector: c,
		opts:      o,
		registry:  subscription.NewRegistry(),
		logger:    logger,
		connLog:   logging.NewConnectionLogger(logger),
		msgLog:    logging.NewMessageLogger(logger),
		metrics:   o.metrics,
		decoder:   protocol.NewDecoder(o.decoderOptions...),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// NewFromConfig creates a connection from client configuration. extra
// options are applied last.
func NewFromConfig(cfg *config.Config, extra ...Option) (*Connection, error) {
	c, err := cfg.BuildConnector()
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithReconnectDelay(cfg.ReconnectDelay()),
		WithRetryDelay(cfg.RetryDelay()),
		WithConnectTimeout(cfg.ConnectTimeout()),
		WithConnectOptions(cfg.ConnectOptions()),
		WithWaitForInfo(cfg.WaitForInfo),
		WithReadSize(cfg.ReadSize),
	}
	if cfg.IsSealingEnabled() {
		sealer, err := crypto.NewSealer(cfg.PayloadKey)
		if err != nil {
			return nil, fmt.Errorf("payload key: %w", err)
		}
		opts = append(opts, WithSealer(sealer))
	}

	return New(c, append(opts, extra...)...), nil
}

// Run is the receive loop. It connects, reads from the transport, decodes
// frames and dispatches them, and reconnects whenever the transport or the
// decoder fails. It returns ctx.Err() once ctx is done, or ErrClosed after
// Close, and closes the transport on the way out.
func (c *Connection) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	stop := context.AfterFunc(ctx, func() { c.drop(0, "context done") })
	defer stop()
	defer c.drop(0, "receive loop stopped")

	buf := make([]byte, c.opts.readSize)
	for {
		if err := c.stopErr(ctx); err != nil {
			return err
		}

		stream, epoch := c.current()
		if stream == nil {
			if err := c.connect(ctx); err != nil {
				return err
			}
			continue
		}

		n, err := stream.Read(buf)
		if n > 0 {
			c.metrics.RecordRead(n)
			c.decoder.Parse(buf[:n], c.dispatch)
		}

		reason := ""
		switch {
		case c.decoder.Closed():
			reason = "protocol error"
		case err != nil:
			reason = err.Error()
		default:
			continue
		}

		if err := c.stopErr(ctx); err != nil {
			return err
		}
		c.drop(epoch, reason)
		if err := c.sleep(ctx, c.opts.reconnectDelay); err != nil {
			return err
		}
	}
}

// Publish sends payload to subject. It waits while the connection is down
// and retries after transport failures until the frame is written or ctx
// ends. Validation errors return immediately.
func (c *Connection) Publish(ctx context.Context, subject string, payload []byte, opts PublishOptions) error {
	if err := protocol.ValidateTopic(subject); err != nil {
		return err
	}
	payload, err := c.seal(subject, payload)
	if err != nil {
		return err
	}

	data, err := render(func(enc *protocol.Encoder) error {
		return enc.Publish(subject, payload, opts)
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if err := c.send(ctx, frame{verb: "PUB", data: data}); err != nil {
		return err
	}
	c.metrics.RecordPublish(time.Since(start))
	return nil
}

// PublishString is Publish for text payloads, which must be valid UTF-8.
func (c *Connection) PublishString(ctx context.Context, subject, payload string, opts PublishOptions) error {
	if !utf8.ValidString(payload) {
		return fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidPayloadEncoding)
	}
	return c.Publish(ctx, subject, []byte(payload), opts)
}

// Subscribe registers handler for messages matching filter and returns the
// subscription id. The subscription is registered before SUB is sent, so
// a reconnect racing this call replays it. If ctx ends before SUB is
// written the registration is withdrawn.
func (c *Connection) Subscribe(ctx context.Context, filter string, opts SubscribeOptions, handler MsgHandler) (string, error) {
	if handler == nil {
		return "", ErrNilHandler
	}
	return c.subscribe(ctx, filter, opts, func(string) MsgHandler { return handler })
}

// subscribe is Subscribe with the handler built from its own id before the
// entry becomes visible to replay or dispatch.
func (c *Connection) subscribe(ctx context.Context, filter string, opts SubscribeOptions, build func(sid string) MsgHandler) (string, error) {
	if err := protocol.ValidateTopic(filter); err != nil {
		return "", err
	}
	if opts.QueueGroup != "" {
		if err := protocol.ValidateName(opts.QueueGroup); err != nil {
			return "", err
		}
	}

	sid := c.registry.AddFunc(filter, opts.QueueGroup, build)
	c.metrics.SetSubscriptions(c.registry.Len())

	data, err := render(func(enc *protocol.Encoder) error {
		return enc.Subscribe(filter, sid, opts)
	})
	if err == nil {
		err = c.send(ctx, frame{verb: "SUB", sid: sid, data: data})
	}
	if err != nil {
		c.registry.Remove(sid)
		c.metrics.SetSubscriptions(c.registry.Len())
		return "", err
	}

	c.logger.Debug("Subscribed", "filter", filter, "sid", sid, "queue", opts.QueueGroup)
	return sid, nil
}

// Unsubscribe stops delivery for sid, then tells the broker once. A send
// failure is ignored: the broker forgets the subscription with the
// transport, and replay skips it. A message already being dispatched may
// still reach the handler.
func (c *Connection) Unsubscribe(sid string) {
	c.registry.Remove(sid)
	c.metrics.SetSubscriptions(c.registry.Len())

	data, err := render(func(enc *protocol.Encoder) error {
		return enc.Unsubscribe(sid, protocol.UnsubscribeOptions{})
	})
	if err != nil {
		return
	}
	c.tryOnce(frame{verb: "UNSUB", data: data})
}

// Request publishes payload to subject with a fresh inbox as reply-to and
// returns the first reply. It has no timeout of its own: it waits until a
// reply arrives or ctx ends. The inbox subscription removes itself on the
// first reply, and is removed on the way out otherwise.
func (c *Connection) Request(ctx context.Context, subject string, payload []byte) ([]byte, error) {
	if err := protocol.ValidateTopic(subject); err != nil {
		return nil, err
	}
	payload, err := c.seal(subject, payload)
	if err != nil {
		return nil, err
	}

	inbox := c.NewInbox()
	replies := make(chan []byte, 1)
	var once sync.Once
	sid := c.registry.AddFunc(inbox, "", func(id string) MsgHandler {
		return func(_ string, reply []byte, _ string) {
			once.Do(func() {
				c.Unsubscribe(id)
				replies <- reply
			})
		}
	})
	defer once.Do(func() { c.Unsubscribe(sid) })

	var sub, pub []byte
	sub, err = render(func(enc *protocol.Encoder) error {
		return enc.Subscribe(inbox, sid, protocol.SubscribeOptions{})
	})
	if err == nil {
		pub, err = render(func(enc *protocol.Encoder) error {
			return enc.Publish(subject, payload, protocol.PublishOptions{ReplyTo: inbox})
		})
	}
	if err != nil {
		return nil, err
	}

	if err := c.send(ctx, frame{verb: "SUB", sid: sid, data: sub}, frame{verb: "PUB", data: pub}); err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// IsConnected reports whether the connection is currently CONNECTED.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerInfo returns the most recent INFO record, or nil before the first one.
func (c *Connection) ServerInfo() protocol.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Subscriptions returns the number of registered subscriptions.
func (c *Connection) Subscriptions() int {
	return c.registry.Len()
}

// Close tears down the transport and fails every blocked and future
// operation with ErrClosed. A running receive loop returns ErrClosed.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.teardownLocked("closed")
		c.mu.Unlock()
		close(c.done)
		c.logger.Debug("Connection closed")
	})
	return nil
}

// connect retries attempt until it succeeds, waiting the reconnect delay
// between failures.
func (c *Connection) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		c.setConnecting()

		err := c.attempt(ctx)
		if err == nil {
			return nil
		}
		if stopErr := c.stopErr(ctx); stopErr != nil {
			return stopErr
		}

		c.metrics.RecordConnectFailure()
		c.connLog.LogConnectFailed(err, attempt, c.opts.reconnectDelay)
		if err := c.sleep(ctx, c.opts.reconnectDelay); err != nil {
			return err
		}
	}
}

// attempt opens one stream and brings it to CONNECTED: CONNECT, then every
// registered subscription in registration order, in a single write under
// the write lock. Writers waiting for CONNECTED therefore always follow
// the replay.
func (c *Connection) attempt(ctx context.Context) error {
	stream, err := c.connector.Open(ctx)
	if err != nil {
		return err
	}
	if stream == nil {
		return connector.ErrNoConnection
	}

	c.decoder.Reset()
	pong := false
	if c.opts.waitForInfo {
		if err := c.awaitInfo(ctx, stream, &pong); err != nil {
			stream.Close()
			return err
		}
	}

	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)
	verbs := []string{"CONNECT"}
	if err := enc.Connect(c.opts.connectOptions); err != nil {
		stream.Close()
		return err
	}
	if pong {
		enc.Pong()
		verbs = append(verbs, "PONG")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		stream.Close()
		return ErrClosed
	}

	entries := c.registry.Snapshot()
	replayed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := enc.Subscribe(e.Filter, e.ID, protocol.SubscribeOptions{QueueGroup: e.QueueGroup}); err != nil {
			c.logger.Warn("Skipping subscription during replay", "sid", e.ID, "error", err)
			continue
		}
		replayed[e.ID] = struct{}{}
		verbs = append(verbs, "SUB")
	}

	if _, err := stream.Write(buf.Bytes()); err != nil {
		stream.Close()
		return fmt.Errorf("%w: handshake: %v", errTransport, err)
	}
	for _, v := range verbs {
		c.metrics.RecordFrame(v)
	}

	c.stream = stream
	c.epoch++
	c.state = StateConnected
	c.connectedAt = time.Now()
	c.replayed = replayed
	close(c.ready)

	c.metrics.RecordConnect()
	c.metrics.SetConnected(true)
	c.connLog.LogConnected(endpoint(stream, c.connector), c.info.ServerID(), c.epoch, len(replayed))
	return nil
}

// awaitInfo reads until the broker's INFO frame arrives. The stream is
// closed if the connect timeout or ctx expires first.
func (c *Connection) awaitInfo(ctx context.Context, stream connector.Stream, pong *bool) error {
	timer := time.AfterFunc(c.opts.connectTimeout, func() { stream.Close() })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	buf := make([]byte, 4096)
	var (
		got     bool
		failure string
	)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			c.metrics.RecordRead(n)
			c.decoder.Parse(buf[:n], func(ev protocol.Event) {
				switch e := ev.(type) {
				case protocol.InfoReceived:
					c.setInfo(e.Info)
					got = true
				case protocol.PingReceived:
					*pong = true
				case protocol.ProtocolError:
					c.metrics.RecordProtocolError()
					failure = e.Message
				}
			})
		}
		switch {
		case failure != "":
			return fmt.Errorf("%w: %s", protocol.ErrProtocol, failure)
		case got:
			if !timer.Stop() {
				return fmt.Errorf("%w: timed out awaiting INFO", errTransport)
			}
			return nil
		case err != nil:
			return fmt.Errorf("%w: awaiting INFO: %v", errTransport, err)
		}
	}
}

// dispatch handles one decoded event on the receive loop.
func (c *Connection) dispatch(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.InfoReceived:
		c.setInfo(e.Info)
	case protocol.MsgReceived:
		c.deliver(e)
	case protocol.PingReceived:
		c.tryOnce(frame{verb: "PONG", data: pongFrame})
	case protocol.ErrReceived:
		c.logger.Warn("Broker reported an error", "message", e.Message)
	case protocol.ProtocolError:
		c.metrics.RecordProtocolError()
		c.logger.Warn("Protocol error", "message", e.Message)
	}
}

func (c *Connection) deliver(m protocol.MsgReceived) {
	c.msgSeq++
	seq := c.msgSeq

	entry, ok := c.registry.Get(m.SubscriptionID)
	if !ok {
		c.orphan(m, seq)
		return
	}
	if !topic.MatchPattern(entry.Filter, m.Topic) {
		c.logger.Debug("Message topic outside subscription filter",
			"topic", m.Topic, "filter", entry.Filter, "sid", m.SubscriptionID)
	}

	payload := m.Payload
	if c.opts.sealer != nil {
		opened, err := c.opts.sealer.Open(m.Topic, payload)
		if err != nil {
			c.logger.Warn("Dropping message that cannot be opened",
				"message_id", logging.GenerateMessageID(m.Topic, seq), "topic", m.Topic, "error", err)
			return
		}
		payload = opened
	}

	if !c.notify(m.SubscriptionID, m.Topic, payload, m.ReplyTo, seq) {
		c.orphan(m, seq)
		return
	}
	c.metrics.RecordDelivered()
}

// notify runs the handler and recovers a panic so the loop survives it.
func (c *Connection) notify(sid, subject string, payload []byte, replyTo string, seq uint64) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			found = true
			c.metrics.RecordHandlerPanic()
			c.msgLog.LogHandlerPanic(subject, sid, seq, r)
		}
	}()
	return c.registry.Notify(sid, subject, payload, replyTo)
}

// orphan cleans up a broker-side subscription the registry no longer knows.
func (c *Connection) orphan(m protocol.MsgReceived, seq uint64) {
	c.metrics.RecordOrphan()
	c.msgLog.LogOrphan(m.Topic, m.SubscriptionID, seq, m.PayloadLength)

	data, err := render(func(enc *protocol.Encoder) error {
		return enc.Unsubscribe(m.SubscriptionID, protocol.UnsubscribeOptions{})
	})
	if err != nil {
		return
	}
	c.tryOnce(frame{verb: "UNSUB", data: data})
}

// send writes frames as one unit, waiting for CONNECTED and retrying after
// transport failures until it succeeds or ctx ends.
func (c *Connection) send(ctx context.Context, frames ...frame) error {
	for {
		if err := c.lockConnected(ctx); err != nil {
			return err
		}
		err := c.writeLocked(frames...)
		c.mu.Unlock()
		if err == nil {
			return nil
		}

		c.logger.Debug("Write failed, retrying", "verb", frames[0].verb, "error", err)
		if err := c.sleep(ctx, c.opts.retryDelay); err != nil {
			return err
		}
	}
}

// tryOnce writes frames if connected and ignores failures.
func (c *Connection) tryOnce(frames ...frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	if err := c.writeLocked(frames...); err != nil {
		c.logger.Debug("Best-effort write failed", "verb", frames[0].verb, "error", err)
	}
}

// lockConnected blocks until CONNECTED and returns with mu held.
func (c *Connection) lockConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.state == StateConnected {
			return nil
		}
		ready := c.ready
		c.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		}
	}
}

// writeLocked issues one Write for frames. SUB frames already replayed in
// this epoch are skipped. A failed write tears the transport down.
func (c *Connection) writeLocked(frames ...frame) error {
	var data []byte
	verbs := make([]string, 0, len(frames))
	for _, f := range frames {
		if f.sid != "" {
			if _, ok := c.replayed[f.sid]; ok {
				continue
			}
		}
		data = append(data, f.data...)
		verbs = append(verbs, f.verb)
	}
	if len(data) == 0 {
		return nil
	}

	if _, err := c.stream.Write(data); err != nil {
		c.teardownLocked("write failed: " + err.Error())
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	for _, v := range verbs {
		c.metrics.RecordFrame(v)
	}
	return nil
}

// teardownLocked closes and forgets the current transport.
func (c *Connection) teardownLocked(reason string) {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.state == StateConnected {
		c.ready = make(chan struct{})
		c.metrics.SetConnected(false)
		c.connLog.LogDisconnected(reason, c.epoch, time.Since(c.connectedAt))
	}
	c.state = StateDisconnected
	c.replayed = nil
}

// drop tears down the transport of epoch, or whatever is installed when
// epoch is 0. A stale epoch is ignored.
func (c *Connection) drop(epoch uint64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != 0 && epoch != c.epoch {
		return
	}
	c.teardownLocked(reason)
}

func (c *Connection) current() (connector.Stream, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil, 0
	}
	return c.stream, c.epoch
}

func (c *Connection) setConnecting() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.state = StateConnecting
	}
	c.mu.Unlock()
}

func (c *Connection) setInfo(info protocol.ServerInfo) {
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

func (c *Connection) seal(subject string, payload []byte) ([]byte, error) {
	if c.opts.sealer == nil {
		return payload, nil
	}
	return c.opts.sealer.Seal(subject, payload)
}

func (c *Connection) stopErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

// sleep waits d unless ctx ends or the connection is closed first.
func (c *Connection) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return c.stopErr(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

var pongFrame = []byte("PONG\r\n")

// render validates and renders one frame into memory.
func render(fn func(enc *protocol.Encoder) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(protocol.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// endpoint names the peer of stream for logs.
func endpoint(stream connector.Stream, c connector.Connector) string {
	if conn, ok := stream.(interface{ RemoteAddr() net.Addr }); ok && conn.RemoteAddr() != nil {
		return conn.RemoteAddr().String()
	}
	return connector.Describe(c)
}
