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

// Package eventwriter pushes logs and alerts into the downstream event
// store as JSON arrays, one stream per kind, with the store's microsecond
// _timestamp convention.
package eventwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	cnserrors "github.com/sidralabs/sidra/pkg/errors"
	"github.com/sidralabs/sidra/pkg/serializer"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Streams in the event store.
const (
	StreamLogs   = "logs"
	StreamAlerts = "alerts"
)

// Option configures a Writer.
type Option func(*Writer)

// WithClient overrides the HTTP client (tests).
func WithClient(c *http.Client) Option {
	return func(w *Writer) { w.client = c }
}

// WithOrg overrides the event store organization segment of the URL.
func WithOrg(org string) Option {
	return func(w *Writer) {
		if org != "" {
			w.org = org
		}
	}
}

// Writer sends log and alert events to the event store.
type Writer struct {
	baseURL  string
	org      string
	user     string
	password string
	client   *http.Client
}

// New creates a Writer for the event store at baseURL, authenticating with
// HTTP basic auth when user is non-empty.
func New(baseURL, user, password string, opts ...Option) *Writer {
	w := &Writer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		org:      "default",
		user:     user,
		password: password,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.client == nil {
		w.client = serializer.NewHttpReader().Client
	}
	return w
}

// LogEvent is the wire shape of one log record in the event store.
type LogEvent struct {
	Timestamp int64  `json:"_timestamp"` // microseconds
	Level     string `json:"level"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	Host      string `json:"host"`
}

// AlertEvent is the wire shape of one alert record in the event store.
// Value and threshold are stringified; a nil threshold becomes empty.
type AlertEvent struct {
	Timestamp int64  `json:"_timestamp"` // microseconds
	Metric    string `json:"metric"`
	Value     string `json:"value"`
	Threshold string `json:"threshold"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Host      string `json:"host"`
}

// WriteLogs posts log entries to the logs stream, stamping every entry with
// host. An empty slice is a no-op.
func (w *Writer) WriteLogs(ctx context.Context, host string, logs []telemetry.LogEntry) error {
	if len(logs) == 0 {
		return nil
	}

	events := make([]LogEvent, len(logs))
	for i, l := range logs {
		ts := l.Timestamp
		if ts == 0 {
			ts = float64(time.Now().UnixNano()) / 1e9
		}
		events[i] = LogEvent{
			Timestamp: Microseconds(ts),
			Level:     string(l.Level),
			Message:   l.Message,
			Source:    l.Source,
			Host:      host,
		}
	}
	return w.post(ctx, StreamLogs, events)
}

// WriteAlerts posts alerts to the alerts stream.
func (w *Writer) WriteAlerts(ctx context.Context, host string, alerts []telemetry.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	events := make([]AlertEvent, len(alerts))
	for i, a := range alerts {
		alertHost := a.Host
		if alertHost == "" {
			alertHost = host
		}
		events[i] = AlertEvent{
			Timestamp: Microseconds(a.Timestamp),
			Metric:    a.Metric,
			Value:     stringify(a.Value),
			Threshold: stringify(a.Threshold),
			Severity:  string(a.Severity),
			Message:   a.Message,
			Host:      alertHost,
		}
	}
	return w.post(ctx, StreamAlerts, events)
}

func (w *Writer) post(ctx context.Context, stream string, events any) error {
	body, err := json.Marshal(events)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInternal, "marshal events", err)
	}

	url := fmt.Sprintf("%s/api/%s/%s/_json", w.baseURL, w.org, stream)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInternal, "build event store request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.user != "" {
		req.SetBasicAuth(w.user, w.password)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeDownstreamUnavailable, "event store write", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return cnserrors.NewWithContext(cnserrors.ErrCodeDownstreamUnavailable,
			fmt.Sprintf("event store write returned %s", resp.Status),
			map[string]any{"status": resp.StatusCode, "stream": stream})
	}
	return nil
}

// Microseconds converts epoch seconds to the store's integer microseconds.
func Microseconds(seconds float64) int64 {
	return int64(math.Round(seconds * 1e6))
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprintf("%v", t)
	}
}
