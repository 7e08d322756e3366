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

package connector

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"flynats/internal/logging"
)

// Pooled fails over across several connectors.
//
// Every Open shuffles the candidates and returns the first stream any of
// them produces. The connector behind the previous successful stream is
// moved to the end of the order, so a reconnect after that endpoint failed
// tries the others first. Pooled is safe for concurrent use.
type Pooled struct {
	connectors []Connector
	logger     *logging.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	last    int
	shuffle func(n int, swap func(i, j int))
}

// NewPooled creates a pool over connectors.
func NewPooled(connectors ...Connector) *Pooled {
	p := &Pooled{
		connectors: connectors,
		logger:     logging.NewLogger("connector"),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		last:       -1,
	}
	p.shuffle = p.rng.Shuffle
	return p
}

// Len returns the number of candidates.
func (p *Pooled) Len() int {
	return len(p.connectors)
}

// Open tries every candidate once. When none produces a stream it returns
// (nil, ErrNoConnection); the caller is expected to retry later.
func (p *Pooled) Open(ctx context.Context) (Stream, error) {
	for _, idx := range p.order() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := p.connectors[idx]
		stream, err := c.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Debug("Candidate unavailable", "endpoint", Describe(c), "error", err)
			continue
		}
		if stream == nil {
			p.logger.Debug("Candidate refused", "endpoint", Describe(c))
			continue
		}

		p.mu.Lock()
		p.last = idx
		p.mu.Unlock()
		return stream, nil
	}
	return nil, ErrNoConnection
}

// order returns a fresh random permutation with the last used index at the end.
func (p *Pooled) order() []int {
	idx := make([]int, len(p.connectors))
	for i := range idx {
		idx[i] = i
	}

	p.mu.Lock()
	p.shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	last := p.last
	p.mu.Unlock()

	if last < 0 || len(idx) < 2 {
		return idx
	}
	for i, v := range idx {
		if v == last {
			copy(idx[i:], idx[i+1:])
			idx[len(idx)-1] = last
			break
		}
	}
	return idx
}

// String lists the candidates.
func (p *Pooled) String() string {
	names := make([]string, len(p.connectors))
	for i, c := range p.connectors {
		names[i] = Describe(c)
	}
	return "pool[" + strings.Join(names, ",") + "]"
}
