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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"unicode/utf8"

	"flynats/internal/banner"
	"flynats/internal/topic"
)

// PublishOptions modify a PUB frame.
type PublishOptions struct {
	// ReplyTo is the topic the receiver should answer on (optional).
	ReplyTo string
}

// SubscribeOptions modify a SUB frame.
type SubscribeOptions struct {
	// QueueGroup distributes each message to one member of the group (optional).
	QueueGroup string
}

// UnsubscribeOptions modify an UNSUB frame.
type UnsubscribeOptions struct {
	// MaxMsgs asks the broker to unsubscribe after this many more messages.
	// Zero means immediately; negative values are rejected.
	MaxMsgs int
}

// connectDefault is one default CONNECT option, kept in wire order.
type connectDefault struct {
	key   string
	value interface{}
}

// defaultConnectOptions returns the CONNECT defaults in wire order.
func defaultConnectOptions() []connectDefault {
	return []connectDefault{
		{"verbose", false},
		{"pedantic", true},
		{"lang", Lang},
		{"version", banner.Version},
		{"protocol", Version},
	}
}

// Encoder serializes one operation at a time onto a stream.
//
// Every method validates its arguments and renders the complete frame
// before issuing a single Write, so a validation failure never leaves a
// partial frame behind. An Encoder is not safe for concurrent use; callers
// sharing a stream must serialize access.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Connect writes CONNECT with opts merged over the defaults.
// Default keys keep their order; caller-only keys follow, sorted.
func (e *Encoder) Connect(opts map[string]interface{}) error {
	frame, err := appendConnect(nil, opts)
	if err != nil {
		return err
	}
	return e.write(frame)
}

// Publish writes a PUB frame. The announced length is the byte length of payload.
func (e *Encoder) Publish(subject string, payload []byte, opts PublishOptions) error {
	if err := ValidateTopic(subject); err != nil {
		return err
	}
	if opts.ReplyTo != "" {
		if err := ValidateTopic(opts.ReplyTo); err != nil {
			return err
		}
	}

	buf := make([]byte, 0, len(verbPub)+len(subject)+len(opts.ReplyTo)+len(payload)+24)
	buf = append(buf, verbPub...)
	buf = append(buf, ' ')
	buf = append(buf, subject...)
	buf = append(buf, ' ')
	if opts.ReplyTo != "" {
		buf = append(buf, opts.ReplyTo...)
		buf = append(buf, ' ')
	}
	buf = strconv.AppendInt(buf, int64(len(payload)), 10)
	buf = append(buf, crlf...)
	buf = append(buf, payload...)
	buf = append(buf, crlf...)
	return e.write(buf)
}

// PublishString is Publish for text payloads, which must be valid UTF-8.
func (e *Encoder) PublishString(subject, payload string, opts PublishOptions) error {
	if !utf8.ValidString(payload) {
		return fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidPayloadEncoding)
	}
	return e.Publish(subject, []byte(payload), opts)
}

// Subscribe writes a SUB frame.
func (e *Encoder) Subscribe(filter, sid string, opts SubscribeOptions) error {
	if err := ValidateTopic(filter); err != nil {
		return err
	}
	if err := ValidateName(sid); err != nil {
		return err
	}
	if opts.QueueGroup != "" {
		if err := ValidateName(opts.QueueGroup); err != nil {
			return err
		}
	}

	buf := make([]byte, 0, len(verbSub)+len(filter)+len(opts.QueueGroup)+len(sid)+8)
	buf = append(buf, verbSub...)
	buf = append(buf, ' ')
	buf = append(buf, filter...)
	buf = append(buf, ' ')
	if opts.QueueGroup != "" {
		buf = append(buf, opts.QueueGroup...)
		buf = append(buf, ' ')
	}
	buf = append(buf, sid...)
	buf = append(buf, crlf...)
	return e.write(buf)
}

// Unsubscribe writes an UNSUB frame.
func (e *Encoder) Unsubscribe(sid string, opts UnsubscribeOptions) error {
	if err := ValidateName(sid); err != nil {
		return err
	}
	if opts.MaxMsgs < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidNumber, opts.MaxMsgs)
	}

	buf := make([]byte, 0, len(verbUnsub)+len(sid)+16)
	buf = append(buf, verbUnsub...)
	buf = append(buf, ' ')
	buf = append(buf, sid...)
	if opts.MaxMsgs > 0 {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(opts.MaxMsgs), 10)
	}
	buf = append(buf, crlf...)
	return e.write(buf)
}

// Ping writes PING.
func (e *Encoder) Ping() error {
	return e.write([]byte(verbPing + "\r\n"))
}

// Pong writes PONG.
func (e *Encoder) Pong() error {
	return e.write([]byte(verbPong + "\r\n"))
}

func (e *Encoder) write(frame []byte) error {
	_, err := e.w.Write(frame)
	return err
}

func appendConnect(buf []byte, opts map[string]interface{}) ([]byte, error) {
	defaults := defaultConnectOptions()
	known := make(map[string]bool, len(defaults))

	buf = append(buf, verbConnect...)
	buf = append(buf, ' ', '{')
	first := true
	field := func(key string, value interface{}) error {
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("connect option %q: %w", key, err)
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
		return nil
	}

	for _, d := range defaults {
		known[d.key] = true
		value := d.value
		if override, ok := opts[d.key]; ok {
			value = override
		}
		if err := field(d.key, value); err != nil {
			return nil, err
		}
	}

	extra := make([]string, 0, len(opts))
	for key := range opts {
		if !known[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		if err := field(key, opts[key]); err != nil {
			return nil, err
		}
	}

	buf = append(buf, '}')
	return append(buf, crlf...), nil
}

// ValidateTopic returns ErrInvalidTopic, wrapped with s, unless s is a valid topic or filter.
func ValidateTopic(s string) error {
	if !topic.ValidTopic(s) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	return nil
}

// ValidateName returns ErrInvalidName, wrapped with s, unless s is a valid name.
func ValidateName(s string) error {
	if !topic.ValidName(s) {
		return fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	return nil
}
