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
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"flynats/internal/connector"
	"flynats/internal/topic"
)

// lineBroker is a minimal text-protocol broker on a real TCP listener.
// It routes PUB to every matching SUB on any of its connections.
type lineBroker struct {
	id string
	ln net.Listener

	mu      sync.Mutex
	clients map[*brokerClient]struct{}
}

type brokerClient struct {
	conn net.Conn
	wmu  sync.Mutex
	subs map[string]string // sid -> filter, guarded by lineBroker.mu
}

func startLineBroker(t *testing.T, id string) *lineBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &lineBroker{id: id, ln: ln, clients: make(map[*brokerClient]struct{})}
	go b.serve()
	t.Cleanup(b.stop)
	return b
}

func (b *lineBroker) addr() string { return b.ln.Addr().String() }

func (b *lineBroker) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		c := &brokerClient{conn: conn, subs: make(map[string]string)}
		b.mu.Lock()
		b.clients[c] = struct{}{}
		b.mu.Unlock()
		go b.handle(c)
	}
}

// stop closes the listener and every open connection.
func (b *lineBroker) stop() {
	b.ln.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.conn.Close()
		delete(b.clients, c)
	}
}

func (b *lineBroker) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *lineBroker) subCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.clients {
		n += len(c.subs)
	}
	return n
}

func (c *brokerClient) write(s string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.Write([]byte(s))
}

func (b *lineBroker) handle(c *brokerClient) {
	defer func() {
		c.conn.Close()
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
	}()

	c.write(fmt.Sprintf("INFO {\"server_id\":%q}\r\n", b.id))
	r := bufio.NewReader(c.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "PING":
			c.write("PONG\r\n")
		case "SUB":
			// SUB <filter> [queue] <sid>
			if len(fields) < 3 {
				return
			}
			b.mu.Lock()
			c.subs[fields[len(fields)-1]] = fields[1]
			b.mu.Unlock()
		case "UNSUB":
			if len(fields) < 2 {
				return
			}
			b.mu.Lock()
			delete(c.subs, fields[1])
			b.mu.Unlock()
		case "PUB":
			// PUB <subject> [reply] <n>
			if len(fields) < 3 {
				return
			}
			n, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				return
			}
			payload := make([]byte, n+2)
			if _, err := io.ReadFull(r, payload); err != nil {
				return
			}
			reply := ""
			if len(fields) == 4 {
				reply = fields[2]
			}
			b.route(fields[1], reply, payload[:n])
		}
	}
}

func (b *lineBroker) route(subject, reply string, payload []byte) {
	b.mu.Lock()
	matcher := topic.NewMatcher()
	for c := range b.clients {
		for _, filter := range c.subs {
			matcher.Add(filter)
		}
	}
	matched := make(map[string]bool)
	for _, filter := range matcher.GetMatches(subject) {
		matched[filter] = true
	}

	type delivery struct {
		c     *brokerClient
		frame string
	}
	var out []delivery
	for c := range b.clients {
		for sid, filter := range c.subs {
			if !matched[filter] {
				continue
			}
			head := "MSG " + subject + " " + sid + " "
			if reply != "" {
				head += reply + " "
			}
			out = append(out, delivery{c, head + strconv.Itoa(len(payload)) + "\r\n" + string(payload) + "\r\n"})
		}
	}
	b.mu.Unlock()

	for _, d := range out {
		d.c.write(d.frame)
	}
}

func TestFailoverOverTCP(t *testing.T) {
	a := startLineBroker(t, "broker-a")
	b := startLineBroker(t, "broker-b")

	pool := connector.NewPooled(connector.NewSocket(a.addr()), connector.NewSocket(b.addr()))
	conn := startConn(t, pool)

	got := make(chan string, 8)
	ctx := context.Background()
	if _, err := conn.Subscribe(ctx, "greet.*", SubscribeOptions{}, func(subject string, payload []byte, _ string) {
		got <- subject + "=" + string(payload)
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	receive := func(want string) {
		t.Helper()
		select {
		case m := <-got:
			if m != want {
				t.Fatalf("received %q, want %q", m, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	if err := conn.PublishString(ctx, "greet.one", "hello", PublishOptions{}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	receive("greet.one=hello")

	active, standby := a, b
	if b.clientCount() > 0 {
		active, standby = b, a
	}
	waitFor(t, "server info", func() bool { return conn.ServerInfo().ServerID() == active.id })

	active.stop()
	waitFor(t, "failover", func() bool { return standby.subCount() == 1 })
	waitFor(t, "server info after failover", func() bool { return conn.ServerInfo().ServerID() == standby.id })

	if err := conn.PublishString(ctx, "greet.two", "again", PublishOptions{}); err != nil {
		t.Fatalf("Publish() after failover error: %v", err)
	}
	receive("greet.two=again")

	// Not matched by greet.*.
	if err := conn.PublishString(ctx, "greet.two.deep", "nope", PublishOptions{}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := conn.PublishString(ctx, "greet.three", "last", PublishOptions{}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	receive("greet.three=last")
}

func TestRequestOverTCP(t *testing.T) {
	broker := startLineBroker(t, "broker")

	responder := startConn(t, connector.NewSocket(broker.addr()))
	requester := startConn(t, connector.NewSocket(broker.addr()))

	ctx := context.Background()
	_, err := responder.Subscribe(ctx, "svc.echo", SubscribeOptions{}, func(_ string, payload []byte, replyTo string) {
		go responder.Publish(ctx, replyTo, append([]byte("echo:"), payload...), PublishOptions{})
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	waitFor(t, "responder subscription", func() bool { return broker.subCount() == 1 })

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	reply, err := requester.Request(reqCtx, "svc.echo", []byte("ping"))
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Errorf("Request() payload = %q, want %q", reply, "echo:ping")
	}
	waitFor(t, "inbox unsubscribed", func() bool { return broker.subCount() == 1 })
}
