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

// Package aggregator turns a stream of metrics, alerts, and log entries into
// timely, size-bounded, deduplicated telemetry.Batch values.
//
// The aggregator is a single actor: one goroutine owns all mutable state
// (the current batch, the dedup map, the cooldown map) and every caller
// communicates with it over a channel of closures. There is no lock in the
// public API — callers never touch the state directly, so there is nothing
// to race.
package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/sidralabs/sidra/pkg/defaults"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// ErrClosed is returned by any call made after Close.
var ErrClosed = errors.New("aggregator: closed")

// Option configures an Aggregator at construction time.
type Option func(*Aggregator)

// WithMaxBatchSize overrides the default item-count threshold that marks a
// batch ready.
func WithMaxBatchSize(n int) Option {
	return func(a *Aggregator) { a.maxBatchSize = n }
}

// WithMaxBatchAge overrides the default age threshold that marks a batch
// ready regardless of size.
func WithMaxBatchAge(d time.Duration) Option {
	return func(a *Aggregator) { a.maxBatchAge = d }
}

// WithClock overrides the aggregator's notion of "now", for deterministic
// tests of cooldown and age thresholds.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator is the priority-classified in-memory queue feeding the
// sender. Construct with New, which starts the owning goroutine; callers
// must Close it to release that goroutine.
type Aggregator struct {
	maxBatchSize int
	maxBatchAge  time.Duration
	now          func() time.Time

	calls  chan call
	stopCh chan struct{}
	doneCh chan struct{}

	// state, touched only by run().
	host       string
	current    telemetry.Batch
	batchStart time.Time
	lastValues map[string]float64
	cooldowns  map[string]time.Time
}

type call struct {
	fn   func() (telemetry.Batch, bool)
	resp chan callResult
}

type callResult struct {
	batch telemetry.Batch
	ok    bool
}

// New starts an Aggregator for the given host.
func New(host string, opts ...Option) *Aggregator {
	a := &Aggregator{
		maxBatchSize: 100,
		maxBatchAge:  defaults.DefaultMaxBatchAge,
		now:          time.Now,
		calls:        make(chan call),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		host:         host,
		lastValues:   make(map[string]float64),
		cooldowns:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.current = telemetry.Batch{Host: host}
	a.batchStart = a.now()

	go a.run()
	return a
}

// Close stops the owning goroutine. It does not flush; callers that want a
// final batch should call Flush first.
func (a *Aggregator) Close() {
	close(a.stopCh)
	<-a.doneCh
}

func (a *Aggregator) run() {
	defer close(a.doneCh)
	for {
		select {
		case c := <-a.calls:
			b, ok := c.fn()
			c.resp <- callResult{batch: b, ok: ok}
		case <-a.stopCh:
			return
		}
	}
}

func (a *Aggregator) invoke(ctx context.Context, fn func() (telemetry.Batch, bool)) (telemetry.Batch, bool, error) {
	resp := make(chan callResult, 1)
	select {
	case a.calls <- call{fn: fn, resp: resp}:
	case <-ctx.Done():
		return telemetry.Batch{}, false, ctx.Err()
	case <-a.stopCh:
		return telemetry.Batch{}, false, ErrClosed
	}

	select {
	case r := <-resp:
		return r.batch, r.ok, nil
	case <-ctx.Done():
		return telemetry.Batch{}, false, ctx.Err()
	}
}

// AddMetric adds m to the batch under construction. A CRITICAL metric
// bypasses batching entirely and returns a single-element batch. A
// non-critical metric may be dropped by the dedup rule (see shouldSkipMetric)
// or may trigger the current batch to close if it is now full or old enough.
func (a *Aggregator) AddMetric(ctx context.Context, m telemetry.MetricPoint) (telemetry.Batch, bool, error) {
	return a.invoke(ctx, func() (telemetry.Batch, bool) {
		if m.Priority == telemetry.PriorityCritical {
			return a.immediateBatch([]telemetry.MetricPoint{m}, nil), true
		}
		if a.shouldSkipMetric(m) {
			return telemetry.Batch{}, false
		}
		a.current.Metrics = append(a.current.Metrics, m)
		a.lastValues[m.Name] = m.Value
		return a.checkReady()
	})
}

// AddAlert adds alert to the batch under construction, subject to the
// (host, metric) cooldown. Critical and high severity alerts that clear the
// cooldown bypass batching entirely.
func (a *Aggregator) AddAlert(ctx context.Context, alert telemetry.Alert) (telemetry.Batch, bool, error) {
	return a.invoke(ctx, func() (telemetry.Batch, bool) {
		key := alertKey(alert.Metric, alert.Host)
		if a.inCooldown(key, alert.Severity) {
			return telemetry.Batch{}, false
		}
		a.cooldowns[key] = a.now()

		if alert.Severity == telemetry.SeverityCritical || alert.Severity == telemetry.SeverityHigh {
			return a.immediateBatch(nil, []telemetry.Alert{alert}), true
		}
		a.current.Alerts = append(a.current.Alerts, alert)
		return a.checkReady()
	})
}

// AddLogs adds logs to the batch under construction. If any entry is
// critical or error level, those entries are split into their own immediate
// batch; the remaining (non-critical) entries still join the current batch.
func (a *Aggregator) AddLogs(ctx context.Context, logs []telemetry.LogEntry) (telemetry.Batch, bool, error) {
	return a.invoke(ctx, func() (telemetry.Batch, bool) {
		var critical, normal []telemetry.LogEntry
		for _, l := range logs {
			if l.Level == telemetry.LogLevelCritical || l.Level == telemetry.LogLevelError {
				critical = append(critical, l)
			} else {
				normal = append(normal, l)
			}
		}

		if len(critical) > 0 {
			a.current.Logs = append(a.current.Logs, normal...)
			return telemetry.Batch{
				Host:      a.host,
				Timestamp: floatTimestamp(a.now()),
				Priority:  telemetry.PriorityCritical,
				Logs:      critical,
			}, true
		}

		a.current.Logs = append(a.current.Logs, logs...)
		return a.checkReady()
	})
}

// Flush returns the current batch and resets it if non-empty; otherwise it
// returns ok=false.
func (a *Aggregator) Flush(ctx context.Context) (telemetry.Batch, bool, error) {
	return a.invoke(ctx, func() (telemetry.Batch, bool) {
		if a.current.IsEmpty() {
			return telemetry.Batch{}, false
		}
		b := a.current
		a.resetBatch()
		return b, true
	})
}

// SetHost changes the host label stamped on future batches.
func (a *Aggregator) SetHost(ctx context.Context, host string) error {
	_, _, err := a.invoke(ctx, func() (telemetry.Batch, bool) {
		a.host = host
		a.current.Host = host
		return telemetry.Batch{}, false
	})
	return err
}

func (a *Aggregator) checkReady() (telemetry.Batch, bool) {
	age := a.now().Sub(a.batchStart)
	size := len(a.current.Metrics) + len(a.current.Alerts)
	if size >= a.maxBatchSize || age >= a.maxBatchAge {
		b := a.current
		a.resetBatch()
		return b, true
	}
	return telemetry.Batch{}, false
}

func (a *Aggregator) immediateBatch(metrics []telemetry.MetricPoint, alerts []telemetry.Alert) telemetry.Batch {
	return telemetry.Batch{
		Host:      a.host,
		Timestamp: floatTimestamp(a.now()),
		Priority:  telemetry.PriorityCritical,
		Metrics:   metrics,
		Alerts:    alerts,
	}
}

func (a *Aggregator) resetBatch() {
	a.current = telemetry.Batch{Host: a.host}
	a.batchStart = a.now()
}

func alertKey(metric, host string) string {
	return metric + ":" + host
}

func floatTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
