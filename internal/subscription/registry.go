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
Package subscription tracks the live subscriptions of one connection.

OVERVIEW:
=========
The registry maps subscription ids to their topic filter, optional queue
group and delivery handler. It is shared between caller goroutines that
subscribe and unsubscribe, the receive loop that dispatches messages, and
the reconnect path that replays every subscription to a fresh transport.

IDS:
====
Ids come from a monotonically increasing counter rendered in base 36, so
they always satisfy the name grammar and are never reused for the
lifetime of a registry.

ORDERING:
=========
Snapshot returns entries in registration order. Replay relies on this to
re-issue SUB frames in the order the application created them.
*/
package subscription

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// MsgHandler receives one delivered message. replyTo is empty unless the
// publisher asked for a response.
type MsgHandler func(topic string, payload []byte, replyTo string)

// Entry is one registered subscription. Entries are immutable once added.
type Entry struct {
	ID         string
	Filter     string
	QueueGroup string
	Handler    MsgHandler

	seq uint64
}

// Registry is a concurrency-safe set of subscriptions.
type Registry struct {
	entries sync.Map // id -> *Entry
	counter atomic.Uint64
	count   atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a handler for filter and returns its new id.
func (r *Registry) Add(filter, queueGroup string, handler MsgHandler) string {
	return r.AddFunc(filter, queueGroup, func(string) MsgHandler { return handler })
}

// AddFunc allocates an id, builds the handler for it with build, and only
// then registers the entry. Handlers that need their own id get it before
// any message can be dispatched to them.
func (r *Registry) AddFunc(filter, queueGroup string, build func(id string) MsgHandler) string {
	seq := r.counter.Add(1)
	id := strconv.FormatUint(seq, 36)
	r.entries.Store(id, &Entry{
		ID:         id,
		Filter:     filter,
		QueueGroup: queueGroup,
		Handler:    build(id),
		seq:        seq,
	})
	r.count.Add(1)
	return id
}

// Remove deletes id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) bool {
	if _, loaded := r.entries.LoadAndDelete(id); loaded {
		r.count.Add(-1)
		return true
	}
	return false
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (*Entry, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Notify invokes the handler registered under id and reports whether one
// was found. The handler runs on the calling goroutine.
func (r *Registry) Notify(id, topic string, payload []byte, replyTo string) bool {
	e, ok := r.Get(id)
	if !ok {
		return false
	}
	if e.Handler != nil {
		e.Handler(topic, payload, replyTo)
	}
	return true
}

// Snapshot returns the current entries in registration order.
func (r *Registry) Snapshot() []*Entry {
	var out []*Entry
	r.entries.Range(func(_, v interface{}) bool {
		out = append(out, v.(*Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}
