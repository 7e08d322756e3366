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
)

// Future is a value that is resolved at most once.
type Future struct {
	once sync.Once
	done chan struct{}
	val  []byte
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve sets the result. Only the first call has an effect; it reports
// whether this call won.
func (f *Future) Resolve(val []byte, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = val, err
		won = true
		close(f.done)
	})
	return won
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx ends.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Requester issues requests without blocking the caller.
type Requester struct {
	conn *Connection
}

// NewRequester creates a requester over conn.
func NewRequester(conn *Connection) *Requester {
	return &Requester{conn: conn}
}

// Request starts a request and returns its future. Cancelling ctx
// abandons the request and resolves the future with ctx.Err().
func (r *Requester) Request(ctx context.Context, subject string, payload []byte) *Future {
	f := NewFuture()
	go func() {
		f.Resolve(r.conn.Request(ctx, subject, payload))
	}()
	return f
}
