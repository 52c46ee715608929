// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package alertcache keeps the most recent alerts in a fixed-capacity ring
// for the query surface and LLM consumers. The ring is the only state;
// durable alert history lives in the event store, and a central restart
// deliberately starts empty.
package alertcache

import (
	"sync"
	"time"

	"github.com/sidralabs/sidra/pkg/telemetry"
)

// DefaultCapacity is the contract ring size.
const DefaultCapacity = 1000

// Cache is a bounded ring of the most recent alerts; newest wins when full.
// All methods are safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	ring  []telemetry.AlertCacheEntry
	next  int
	count int
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the ingest timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache with the given capacity; non-positive capacity uses
// DefaultCapacity.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		ring: make([]telemetry.AlertCacheEntry, capacity),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add records alert with the current ingest time, evicting the oldest entry
// when the ring is full.
func (c *Cache) Add(alert telemetry.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring[c.next] = telemetry.AlertCacheEntry{
		Alert:      alert,
		IngestedAt: float64(c.now().UnixNano()) / 1e9,
	}
	c.next = (c.next + 1) % len(c.ring)
	if c.count < len(c.ring) {
		c.count++
	}
}

// Recent returns up to n alerts, newest last (insertion order preserved).
func (c *Cache) Recent(n int) []telemetry.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filterLocked(n, func(telemetry.Alert) bool { return true })
}

// BySeverity returns up to n alerts of the given severity, newest last.
func (c *Cache) BySeverity(sev telemetry.Severity, n int) []telemetry.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filterLocked(n, func(a telemetry.Alert) bool { return a.Severity == sev })
}

// Len returns how many alerts are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// filterLocked walks the ring oldest-first, keeps matching alerts, and
// returns the last n of them.
func (c *Cache) filterLocked(n int, match func(telemetry.Alert) bool) []telemetry.Alert {
	if n <= 0 || c.count == 0 {
		return nil
	}

	var out []telemetry.Alert
	start := (c.next - c.count + len(c.ring)) % len(c.ring)
	for i := 0; i < c.count; i++ {
		entry := c.ring[(start+i)%len(c.ring)]
		if match(entry.Alert) {
			out = append(out, entry.Alert)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
