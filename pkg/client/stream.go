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
	"context"
	"sync"
	"sync/atomic"
)

// DefaultStreamCapacity is the buffer size of a Stream without an explicit capacity.
const DefaultStreamCapacity = 100

// Msg is one delivered message.
type Msg struct {
	Topic   string
	Payload []byte
	ReplyTo string
	Sub     string
}

// StreamOptions configure a Stream.
type StreamOptions struct {
	// Capacity bounds the number of undelivered messages (default 100).
	Capacity int
	// QueueGroup joins the subscription to a queue group (optional).
	QueueGroup string
}

// Stream turns a subscription into a bounded channel. When the buffer is
// full new messages are dropped and counted; the receive loop never
// blocks on a slow consumer.
type Stream struct {
	conn    *Connection
	sid     string
	ch      chan *Msg
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewStream subscribes to filter and buffers matching messages.
func NewStream(ctx context.Context, conn *Connection, filter string, opts StreamOptions) (*Stream, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultStreamCapacity
	}
	s := &Stream{
		conn: conn,
		ch:   make(chan *Msg, opts.Capacity),
	}

	sid, err := conn.subscribe(ctx, filter, SubscribeOptions{QueueGroup: opts.QueueGroup}, func(sid string) MsgHandler {
		return func(topic string, payload []byte, replyTo string) {
			s.push(sid, topic, payload, replyTo)
		}
	})
	if err != nil {
		return nil, err
	}
	s.sid = sid
	return s, nil
}

func (s *Stream) push(sid, topic string, payload []byte, replyTo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- &Msg{Topic: topic, Payload: payload, ReplyTo: replyTo, Sub: sid}:
	default:
		s.dropped.Add(1)
		s.conn.metrics.RecordStreamDrop()
	}
}

// Messages returns the channel of buffered messages. It is closed by Close.
func (s *Stream) Messages() <-chan *Msg {
	return s.ch
}

// Next returns the next message, or ctx.Err() if ctx ends first, or
// ErrClosed once the stream is closed and drained.
func (s *Stream) Next(ctx context.Context) (*Msg, error) {
	select {
	case m, ok := <-s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped returns the number of messages discarded because the buffer was full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the message channel. Buffered messages
// remain readable.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sid := s.sid
	close(s.ch)
	s.mu.Unlock()

	s.conn.Unsubscribe(sid)
	return nil
}
