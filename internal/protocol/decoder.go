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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecoderState is the decoder's position in the frame grammar.
type DecoderState int

const (
	// StateCommand reads a CRLF terminated command line.
	StateCommand DecoderState = iota
	// StatePayload reads the payload block announced by MSG.
	StatePayload
	// StateClosed is terminal until Reset.
	StateClosed
)

// String returns the string representation of the state.
func (s DecoderState) String() string {
	switch s {
	case StateCommand:
		return "command"
	case StatePayload:
		return "payload"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxBuffer bounds the total number of buffered bytes.
func WithMaxBuffer(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxBuffer = n
		}
	}
}

// WithMaxCommand bounds the length of a command line.
func WithMaxCommand(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxCommand = n
		}
	}
}

// Decoder turns an append-only byte stream into protocol events.
//
// Parse may be fed arbitrary chunks; events are emitted in stream order as
// soon as their frame is complete. After a ProtocolError the decoder is
// closed and ignores input until Reset. A Decoder is not safe for concurrent
// use; it belongs to the single receive loop.
type Decoder struct {
	buf        []byte
	state      DecoderState
	pending    MsgStarted
	maxBuffer  int
	maxCommand int
}

// NewDecoder creates a decoder in the command state.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		maxBuffer:  MaxBuffer,
		maxCommand: MaxCommand,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Closed reports whether the decoder hit a protocol error.
func (d *Decoder) Closed() bool {
	return d.state == StateClosed
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards buffered bytes and returns to the command state. Call it
// whenever the underlying stream is replaced.
func (d *Decoder) Reset() {
	d.buf = nil
	d.state = StateCommand
	d.pending = MsgStarted{}
}

// Parse appends chunk to the buffer and emits an event for every complete
// frame now available.
func (d *Decoder) Parse(chunk []byte, emit func(Event)) {
	if d.state == StateClosed {
		return
	}
	if len(d.buf)+len(chunk) > d.maxBuffer {
		d.fail(emit, fmt.Sprintf("buffer length exceeded %d", d.maxBuffer))
		return
	}
	d.buf = append(d.buf, chunk...)

	for d.step(emit) {
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
}

// step consumes at most one frame unit and reports whether to keep going.
func (d *Decoder) step(emit func(Event)) bool {
	switch d.state {
	case StateCommand:
		idx := bytes.Index(d.buf, crlf)
		if idx < 0 {
			if len(d.buf) > d.maxCommand {
				d.fail(emit, fmt.Sprintf("command length exceeded %d", d.maxCommand))
			}
			return false
		}
		if idx > d.maxCommand {
			d.fail(emit, fmt.Sprintf("command length exceeded %d", d.maxCommand))
			return false
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+len(crlf):]
		d.command(line, emit)
		return d.state != StateClosed

	case StatePayload:
		n := d.pending.PayloadLength
		if len(d.buf) < n+len(crlf) {
			return false
		}
		if !bytes.Equal(d.buf[n:n+len(crlf)], crlf) {
			d.fail(emit, fmt.Sprintf("payload for %q not terminated by CRLF", d.pending.Topic))
			return false
		}
		payload := make([]byte, n)
		copy(payload, d.buf[:n])
		d.buf = d.buf[n+len(crlf):]

		msg := d.pending
		d.pending = MsgStarted{}
		d.state = StateCommand
		emit(MsgReceived{
			Topic:          msg.Topic,
			SubscriptionID: msg.SubscriptionID,
			ReplyTo:        msg.ReplyTo,
			PayloadLength:  msg.PayloadLength,
			Payload:        payload,
		})
		return true

	default:
		return false
	}
}

func (d *Decoder) command(line string, emit func(Event)) {
	verb, rest := splitVerb(line)

	switch strings.ToUpper(verb) {
	case verbMsg:
		d.msg(line, rest, emit)
	case verbInfo:
		var info ServerInfo
		if err := json.Unmarshal([]byte(rest), &info); err != nil || info == nil {
			d.fail(emit, fmt.Sprintf("invalid INFO %q", line))
			return
		}
		emit(InfoReceived{Info: info})
	case verbPing:
		if rest != "" {
			d.invalid(line, emit)
			return
		}
		emit(PingReceived{})
	case verbPong:
		if rest != "" {
			d.invalid(line, emit)
			return
		}
		emit(PongReceived{})
	case verbOK:
		if rest != "" {
			d.invalid(line, emit)
			return
		}
		emit(OKReceived{})
	case verbErr:
		emit(ErrReceived{Message: unquote(rest)})
	default:
		d.invalid(line, emit)
	}
}

// msg handles MSG <topic> <sid> [reply-to] <length>.
func (d *Decoder) msg(line, rest string, emit func(Event)) {
	args := strings.Fields(rest)
	var started MsgStarted
	switch len(args) {
	case 3:
		started = MsgStarted{Topic: args[0], SubscriptionID: args[1]}
	case 4:
		started = MsgStarted{Topic: args[0], SubscriptionID: args[1], ReplyTo: args[2]}
	default:
		d.invalid(line, emit)
		return
	}

	n, ok := parseLength(args[len(args)-1])
	if !ok || n > d.maxBuffer {
		d.invalid(line, emit)
		return
	}
	started.PayloadLength = n

	d.pending = started
	d.state = StatePayload
	emit(started)
}

func (d *Decoder) invalid(line string, emit func(Event)) {
	d.fail(emit, fmt.Sprintf("invalid command line %q", line))
}

func (d *Decoder) fail(emit func(Event), message string) {
	d.state = StateClosed
	d.buf = nil
	d.pending = MsgStarted{}
	emit(ProtocolError{Message: message})
}

// splitVerb splits a command line at the first space or tab.
func splitVerb(line string) (string, string) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimLeft(line[idx+1:], " \t")
}

// parseLength parses a non-negative base-10 integer that fits in 31 bits,
// so the result is a valid int on every platform.
func parseLength(s string) (int, bool) {
	n, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
