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

// Package sender delivers batches to the central brain over HTTP. It drives
// the pure retry policy in retry.go: transient failures back off
// exponentially and end up in the durable buffer, poison payloads (4xx) are
// surfaced without buffering, and 429 responses honor Retry-After.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sidralabs/sidra/pkg/buffer"
	"github.com/sidralabs/sidra/pkg/defaults"
	cnserrors "github.com/sidralabs/sidra/pkg/errors"
	"github.com/sidralabs/sidra/pkg/serializer"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const userAgent = "SidraEdgeAgent/1.0"

// Endpoint paths on the central brain.
const (
	EndpointMetrics = "/api/v1/ingest/metrics"
	EndpointAlerts  = "/api/v1/ingest/alerts"
	EndpointLogs    = "/api/v1/ingest/logs"
	endpointHealth  = "/health"
)

// Option configures a Sender at construction time.
type Option func(*Sender)

// WithAPIKey forwards key as an Authorization bearer token on every request.
func WithAPIKey(key string) Option {
	return func(s *Sender) { s.apiKey = key }
}

// WithTimeout overrides the total per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) { s.timeout = d }
}

// WithRetryCount overrides how many retries follow the first attempt.
func WithRetryCount(n int) Option {
	return func(s *Sender) { s.retryCount = n }
}

// WithRetryDelay overrides the base delay of the exponential backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Sender) { s.retryDelay = d }
}

// WithBuffer attaches the durable buffer that receives undeliverable batches.
func WithBuffer(b *buffer.Buffer) Option {
	return func(s *Sender) { s.buffer = b }
}

// WithClient overrides the HTTP client (tests).
func WithClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

// Sender is the edge agent's HTTP client to the central brain.
type Sender struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	buffer     *buffer.Buffer
	client     *http.Client
	healthy    atomic.Bool

	// sleep is swapped in tests so backoff is observable, not slow.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Sender for the given central URL.
func New(centralURL string, opts ...Option) *Sender {
	s := &Sender{
		baseURL:    strings.TrimRight(centralURL, "/"),
		timeout:    defaults.HTTPClientTimeout,
		retryCount: defaults.DefaultRetryCount,
		retryDelay: defaults.DefaultRetryDelay,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = serializer.NewHttpReader(
			serializer.WithUserAgent(userAgent),
			serializer.WithTotalTimeout(s.timeout),
		).Client
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healthy reports the result of the last health check.
func (s *Sender) Healthy() bool { return s.healthy.Load() }

// CheckHealth probes the central brain's liveness endpoint.
func (s *Sender) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpointHealth, nil)
	if err != nil {
		s.healthy.Store(false)
		return false
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("central health check failed", "error", err)
		s.healthy.Store(false)
		return false
	}
	resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	s.healthy.Store(ok)
	return ok
}

// SendBatch delivers batch to the endpoint its content selects. On
// transient exhaustion the batch is buffered (priority 0 for critical
// batches, 2 otherwise) and an ErrCodeSenderTransient error is returned; a
// poison response returns ErrCodeSenderTerminal without buffering.
func (s *Sender) SendBatch(ctx context.Context, batch telemetry.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInternal, "marshal batch", err)
	}
	return s.deliver(ctx, batch.Endpoint(), payload, batch.Priority, s.retryCount+1, true)
}

// SendMetrics sends metrics outside the batching path.
func (s *Sender) SendMetrics(ctx context.Context, host string, metrics []telemetry.MetricPoint) error {
	return s.sendAdHoc(ctx, EndpointMetrics, telemetry.Batch{
		Host:      host,
		Timestamp: nowSeconds(),
		Priority:  telemetry.PriorityNormal,
		Metrics:   metrics,
	})
}

// SendAlert sends a single alert immediately.
func (s *Sender) SendAlert(ctx context.Context, alert telemetry.Alert) error {
	return s.sendAdHoc(ctx, EndpointAlerts, telemetry.Batch{
		Host:      alert.Host,
		Timestamp: nowSeconds(),
		Priority:  telemetry.PriorityCritical,
		Alerts:    []telemetry.Alert{alert},
	})
}

// SendLogs sends log entries outside the batching path.
func (s *Sender) SendLogs(ctx context.Context, host string, logs []telemetry.LogEntry) error {
	return s.sendAdHoc(ctx, EndpointLogs, telemetry.Batch{
		Host:      host,
		Timestamp: nowSeconds(),
		Priority:  telemetry.PriorityNormal,
		Logs:      logs,
	})
}

func (s *Sender) sendAdHoc(ctx context.Context, endpoint string, batch telemetry.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInternal, "marshal payload", err)
	}
	return s.deliver(ctx, endpoint, payload, batch.Priority, s.retryCount+1, true)
}

// FlushBuffer drains up to the flush batch limit from the durable buffer,
// oldest criticals first. It only runs when the central brain is healthy;
// each item gets a short retry chain, successes are deleted, failures are
// retry-marked and stay. Returns how many items were delivered.
func (s *Sender) FlushBuffer(ctx context.Context) (int, error) {
	if s.buffer == nil {
		return 0, nil
	}
	if !s.CheckHealth(ctx) {
		slog.Warn("central unhealthy, skipping buffer flush")
		return 0, nil
	}

	items, err := s.buffer.PeekBatch(ctx, defaults.BufferFlushBatchLimit)
	if err != nil {
		return 0, err
	}

	var delivered []uint64
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			break
		}

		// One retry per buffered item; it stays buffered on failure.
		err := s.deliver(ctx, item.Endpoint, item.Payload, item.Priority, 2, false)
		if err == nil {
			delivered = append(delivered, item.ID)
			continue
		}
		if markErr := s.buffer.MarkRetry(ctx, item.ID); markErr != nil {
			slog.Error("mark retry failed", "id", item.ID, "error", markErr)
		}
	}

	if len(delivered) > 0 {
		if err := s.buffer.Delete(ctx, delivered); err != nil {
			return len(delivered), err
		}
	}
	return len(delivered), nil
}

// Close releases pooled connections.
func (s *Sender) Close() {
	s.client.CloseIdleConnections()
}

// deliver runs one attempt chain for payload against endpoint. bufferable
// controls whether exhaustion lands in the durable buffer (flush resends
// must not re-append their own payloads).
func (s *Sender) deliver(ctx context.Context, endpoint string, payload []byte, priority telemetry.Priority, maxAttempts int, bufferable bool) error {
	var last Attempt

	for attempt := 0; attempt < maxAttempts; attempt++ {
		last = s.sendOnce(ctx, endpoint, payload)

		d := Decide(attempt, maxAttempts, last, s.retryDelay)
		switch d.Action {
		case ActionOK:
			return nil

		case ActionFail:
			return cnserrors.NewWithContext(cnserrors.ErrCodeSenderTerminal,
				fmt.Sprintf("central rejected payload with status %d", last.StatusCode),
				map[string]any{"endpoint": endpoint, "status": last.StatusCode})

		case ActionRetry:
			slog.Warn("send attempt failed, retrying",
				"endpoint", endpoint,
				"attempt", attempt+1,
				"status", last.StatusCode,
				"delay", d.Delay,
				"error", last.Err)
			if err := s.sleep(ctx, d.Delay); err != nil {
				return cnserrors.Wrap(cnserrors.ErrCodeSenderTransient, "send cancelled", err)
			}

		case ActionBuffer:
			if bufferable && s.buffer != nil {
				bufPriority := telemetry.PriorityNormal
				if priority == telemetry.PriorityCritical {
					bufPriority = telemetry.PriorityCritical
				}
				if _, err := s.buffer.Append(ctx, telemetry.BufferedItem{
					Endpoint: endpoint,
					Payload:  payload,
					Priority: bufPriority,
				}); err != nil {
					slog.Error("buffering failed batch failed", "error", err)
				} else {
					slog.Info("batch buffered for later delivery", "endpoint", endpoint)
				}
			}
			return cnserrors.WrapWithContext(cnserrors.ErrCodeSenderTransient,
				fmt.Sprintf("all %d attempts failed", maxAttempts), last.Err,
				map[string]any{"endpoint": endpoint, "status": last.StatusCode})
		}
	}

	// Unreachable: Decide always terminates the chain on the last attempt.
	return cnserrors.Wrap(cnserrors.ErrCodeSenderTransient, "send exhausted", last.Err)
}

func (s *Sender) sendOnce(ctx context.Context, endpoint string, payload []byte) Attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return Attempt{Err: err}
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Attempt{Err: err}
	}
	defer resp.Body.Close()

	a := Attempt{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			a.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return a
}

func (s *Sender) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
