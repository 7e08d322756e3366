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

package protocol

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

// recorder collects emitted events in order.
type recorder struct {
	events []Event
}

func (r *recorder) emit(e Event) {
	r.events = append(r.events, e)
}

func parseAll(d *Decoder, chunks ...string) []Event {
	rec := &recorder{}
	for _, c := range chunks {
		d.Parse([]byte(c), rec.emit)
	}
	return rec.events
}

func TestDecoderSimple(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []Event
	}{
		{name: "PING", input: []string{"PING\r\n"}, want: []Event{PingReceived{}}},
		{name: "PONG", input: []string{"PONG\r\n"}, want: []Event{PongReceived{}}},
		{name: "lowercase ping", input: []string{"ping\r\n"}, want: []Event{PingReceived{}}},
		{name: "OK", input: []string{"+OK\r\n"}, want: []Event{OKReceived{}}},
		{
			name:  "ERR",
			input: []string{"-ERR 'Unknown Protocol Operation'\r\n"},
			want:  []Event{ErrReceived{Message: "Unknown Protocol Operation"}},
		},
		{
			name:  "INFO",
			input: []string{`INFO {"server_id":"abc","version":"2.10.0","max_payload":1048576}` + "\r\n"},
			want: []Event{InfoReceived{Info: ServerInfo{
				"server_id":   "abc",
				"version":     "2.10.0",
				"max_payload": float64(1048576),
			}}},
		},
		{
			name:  "MSG",
			input: []string{"MSG foo sub1 5\r\nhello\r\n"},
			want: []Event{
				MsgStarted{Topic: "foo", SubscriptionID: "sub1", PayloadLength: 5},
				MsgReceived{Topic: "foo", SubscriptionID: "sub1", PayloadLength: 5, Payload: []byte("hello")},
			},
		},
		{
			name:  "MSG with reply",
			input: []string{"MSG foo.bar 9 INBOX.a.b 2\r\nhi\r\n"},
			want: []Event{
				MsgStarted{Topic: "foo.bar", SubscriptionID: "9", ReplyTo: "INBOX.a.b", PayloadLength: 2},
				MsgReceived{Topic: "foo.bar", SubscriptionID: "9", ReplyTo: "INBOX.a.b", PayloadLength: 2, Payload: []byte("hi")},
			},
		},
		{
			name:  "MSG empty payload",
			input: []string{"MSG foo 1 0\r\n\r\n"},
			want: []Event{
				MsgStarted{Topic: "foo", SubscriptionID: "1", PayloadLength: 0},
				MsgReceived{Topic: "foo", SubscriptionID: "1", PayloadLength: 0, Payload: []byte{}},
			},
		},
		{
			name:  "payload containing CRLF",
			input: []string{"MSG foo 1 4\r\n\r\n\r\n\r\n"},
			want: []Event{
				MsgStarted{Topic: "foo", SubscriptionID: "1", PayloadLength: 4},
				MsgReceived{Topic: "foo", SubscriptionID: "1", PayloadLength: 4, Payload: []byte("\r\n\r\n")},
			},
		},
		{
			name:  "several frames in one chunk",
			input: []string{"PING\r\nMSG a 1 1\r\nx\r\nPONG\r\n"},
			want: []Event{
				PingReceived{},
				MsgStarted{Topic: "a", SubscriptionID: "1", PayloadLength: 1},
				MsgReceived{Topic: "a", SubscriptionID: "1", PayloadLength: 1, Payload: []byte("x")},
				PongReceived{},
			},
		},
		{
			name:  "partial line waits",
			input: []string{"PI", "NG"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAll(NewDecoder(), tt.input...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() events = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecoderMsgStartedBeforePayload(t *testing.T) {
	d := NewDecoder()
	got := parseAll(d, "MSG foo sub1 5\r\nhel")

	want := []Event{MsgStarted{Topic: "foo", SubscriptionID: "sub1", PayloadLength: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() events = %#v, want %#v", got, want)
	}
	if d.State() != StatePayload {
		t.Errorf("State() = %v, want %v", d.State(), StatePayload)
	}

	got = parseAll(d, "lo\r\n")
	want = []Event{MsgReceived{Topic: "foo", SubscriptionID: "sub1", PayloadLength: 5, Payload: []byte("hello")}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() events = %#v, want %#v", got, want)
	}
	if d.State() != StateCommand {
		t.Errorf("State() = %v, want %v", d.State(), StateCommand)
	}
}

func TestDecoderProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unknown verb", input: "HELLO\r\n"},
		{name: "ping with args", input: "PING now\r\n"},
		{name: "msg missing length", input: "MSG foo sub1\r\n"},
		{name: "msg too many args", input: "MSG a b c d e\r\n"},
		{name: "negative length", input: "MSG foo sub1 -5\r\n"},
		{name: "non numeric length", input: "MSG foo sub1 five\r\n"},
		{name: "signed length", input: "MSG foo sub1 +5\r\n"},
		{name: "length beyond 31 bits", input: "MSG foo sub1 9999999999\r\n"},
		{name: "bad info json", input: "INFO {not json\r\n"},
		{name: "missing payload terminator", input: "MSG foo sub1 2\r\nhiXX"},
		{name: "empty line", input: "\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			got := parseAll(d, tt.input, "PING\r\n", "MSG foo 1 1\r\nx\r\n")

			var errs int
			for _, e := range got {
				if _, ok := e.(ProtocolError); ok {
					errs++
				}
			}
			if errs != 1 {
				t.Fatalf("expected exactly one ProtocolError, got %#v", got)
			}
			if _, ok := got[len(got)-1].(ProtocolError); !ok {
				t.Errorf("ProtocolError must be the last event, got %#v", got)
			}
			if !d.Closed() {
				t.Errorf("Closed() = false after protocol error")
			}
		})
	}
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"007", 7, true},
		{"2147483647", 2147483647, true},
		{"2147483648", 0, false},
		{"9999999999", 0, false},
		{"", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1_000", 0, false},
		{"0x10", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseLength(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseLength(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDecoderProtocolErrorCarriesLine(t *testing.T) {
	got := parseAll(NewDecoder(), "BOGUS stuff\r\n")
	if len(got) != 1 {
		t.Fatalf("expected one event, got %#v", got)
	}
	pe, ok := got[0].(ProtocolError)
	if !ok {
		t.Fatalf("expected ProtocolError, got %#v", got[0])
	}
	if !strings.Contains(pe.Message, "BOGUS stuff") {
		t.Errorf("ProtocolError.Message = %q, want it to contain the offending line", pe.Message)
	}
}

func TestDecoderCommandLimit(t *testing.T) {
	d := NewDecoder(WithMaxCommand(16))
	got := parseAll(d, strings.Repeat("x", 17))
	if len(got) != 1 {
		t.Fatalf("expected one event, got %#v", got)
	}
	if _, ok := got[0].(ProtocolError); !ok {
		t.Errorf("expected ProtocolError, got %#v", got[0])
	}

	// The line bound does not apply to payload bytes.
	d = NewDecoder(WithMaxCommand(16))
	payload := strings.Repeat("p", 64)
	got = parseAll(d, "MSG a 1 64\r\n", payload, "\r\n")
	if len(got) != 2 {
		t.Fatalf("expected two events, got %#v", got)
	}
}

func TestDecoderBufferLimit(t *testing.T) {
	d := NewDecoder(WithMaxBuffer(32))
	got := parseAll(d, "MSG a 1 20\r\n", strings.Repeat("p", 40))
	if len(got) != 2 {
		t.Fatalf("expected MsgStarted and ProtocolError, got %#v", got)
	}
	if _, ok := got[1].(ProtocolError); !ok {
		t.Errorf("expected ProtocolError, got %#v", got[1])
	}
	if !d.Closed() || d.Buffered() != 0 {
		t.Errorf("decoder not closed and drained after overflow")
	}

	// A MSG announcing more than the buffer can ever hold is rejected up front.
	d = NewDecoder(WithMaxBuffer(32))
	got = parseAll(d, "MSG a 1 33\r\n")
	if len(got) != 1 {
		t.Fatalf("expected one event, got %#v", got)
	}
	if _, ok := got[0].(ProtocolError); !ok {
		t.Errorf("expected ProtocolError, got %#v", got[0])
	}
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()
	parseAll(d, "garbage\r\n")
	if !d.Closed() {
		t.Fatal("expected closed decoder")
	}
	if got := parseAll(d, "PING\r\n"); len(got) != 0 {
		t.Errorf("closed decoder emitted %#v", got)
	}

	d.Reset()
	if d.State() != StateCommand || d.Buffered() != 0 {
		t.Fatalf("Reset() left state=%v buffered=%d", d.State(), d.Buffered())
	}
	got := parseAll(d, "PING\r\n")
	if !reflect.DeepEqual(got, []Event{PingReceived{}}) {
		t.Errorf("Parse() after Reset = %#v", got)
	}

	// Reset mid-payload drops the partial frame.
	parseAll(d, "MSG a 1 10\r\nabc")
	d.Reset()
	got = parseAll(d, "PONG\r\n")
	if !reflect.DeepEqual(got, []Event{PongReceived{}}) {
		t.Errorf("Parse() after mid-payload Reset = %#v", got)
	}
}

// Re-chunking the same bytes at arbitrary boundaries must not change the
// event sequence.
func TestDecoderChunkBoundaries(t *testing.T) {
	stream := "INFO {\"server_id\":\"x\"}\r\n" +
		"PING\r\n" +
		"MSG foo.bar 1 5\r\nhello\r\n" +
		"+OK\r\n" +
		"MSG foo.baz 22 INBOX.q.r 12\r\nhello\r\nworld\r\n" +
		"-ERR 'Stale Connection'\r\n" +
		"MSG x 3 0\r\n\r\n" +
		"PONG\r\n"

	want := parseAll(NewDecoder(), stream)
	if len(want) != 11 {
		t.Fatalf("reference parse produced %d events: %#v", len(want), want)
	}

	// Every single split point.
	for i := 0; i <= len(stream); i++ {
		got := parseAll(NewDecoder(), stream[:i], stream[i:])
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d: events = %#v, want %#v", i, got, want)
		}
	}

	// Byte at a time.
	chunks := make([]string, len(stream))
	for i := range stream {
		chunks[i] = stream[i : i+1]
	}
	if got := parseAll(NewDecoder(), chunks...); !reflect.DeepEqual(got, want) {
		t.Fatalf("byte-at-a-time events = %#v, want %#v", got, want)
	}

	// Random fragmentations.
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var parts []string
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			if n > 17 {
				n = 1 + rng.Intn(17)
			}
			parts = append(parts, rest[:n])
			rest = rest[n:]
		}
		if got := parseAll(NewDecoder(), parts...); !reflect.DeepEqual(got, want) {
			t.Fatalf("round %d: events = %#v, want %#v", round, got, want)
		}
	}
}

func TestServerInfoAccessors(t *testing.T) {
	info := ServerInfo{"server_id": "abc", "version": "2.10.0", "max_payload": float64(1024)}
	if info.ServerID() != "abc" {
		t.Errorf("ServerID() = %q", info.ServerID())
	}
	if info.Version() != "2.10.0" {
		t.Errorf("Version() = %q", info.Version())
	}
	if info.MaxPayload() != 1024 {
		t.Errorf("MaxPayload() = %d", info.MaxPayload())
	}

	var empty ServerInfo
	if empty.ServerID() != "" || empty.MaxPayload() != 0 {
		t.Error("expected zero values from empty ServerInfo")
	}
}

func TestDecoderStateString(t *testing.T) {
	tests := []struct {
		state DecoderState
		want  string
	}{
		{StateCommand, "command"},
		{StatePayload, "payload"},
		{StateClosed, "closed"},
		{DecoderState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("DecoderState(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
