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
Package health reports whether a flynats client is usable.

CHECKS:
=======
A Checker runs named CheckFuncs and folds their results into one status:
any unhealthy check makes the whole report unhealthy, otherwise any
degraded check makes it degraded.

ENDPOINTS:
==========

	/healthz  Liveness. Always 200 while the process serves requests.
	/readyz   Readiness. 200 when healthy or degraded, 503 when unhealthy.

Both respond with the JSON Response document.
*/
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one check's outcome.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckFunc performs one check.
type CheckFunc func() CheckResult

// Response is the aggregated report.
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker runs registered checks. Safe for concurrent use.
type Checker struct {
	version string

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates a checker that reports version.
func NewChecker(version string) *Checker {
	return &Checker{
		version: version,
		checks:  make(map[string]CheckFunc),
	}
}

// RegisterCheck adds or replaces the check called name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RunChecks runs every check in name order and aggregates the results.
func (c *Checker) RunChecks() Response {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()
	sort.Strings(names)

	resp := Response{
		Status:    StatusHealthy,
		Version:   c.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(names)),
	}
	for _, name := range names {
		result := checks[name]()
		resp.Checks[name] = result
		switch {
		case result.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case result.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// IsHealthy reports whether no check is unhealthy.
func (c *Checker) IsHealthy() bool {
	return c.RunChecks().Status != StatusUnhealthy
}

// LiveHandler answers liveness probes.
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{
			Status:    StatusHealthy,
			Version:   c.version,
			Timestamp: time.Now().UTC(),
		})
	})
}

// ReadyHandler answers readiness probes with the full report.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.RunChecks()
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ConnectionCheck is unhealthy while the broker connection is down.
func ConnectionCheck(state func() (connected bool, detail string)) CheckFunc {
	return func() CheckResult {
		connected, detail := state()
		if !connected {
			return CheckResult{Status: StatusUnhealthy, Message: detail}
		}
		return CheckResult{Status: StatusHealthy, Message: detail}
	}
}

// DropCheck is degraded once dropped() reaches threshold.
func DropCheck(threshold uint64, dropped func() uint64) CheckFunc {
	return func() CheckResult {
		n := dropped()
		if threshold > 0 && n >= threshold {
			return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("%d messages dropped", n)}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
