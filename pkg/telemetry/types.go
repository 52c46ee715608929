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

// Package telemetry defines the wire-level value types shared by the edge
// agent and the central brain: metrics, alerts, logs, the batches that
// group them, and the records the durable buffer and alert cache persist.
package telemetry

import (
	"fmt"
	"os"
)

// Priority classifies how urgently an item must reach the central brain.
// Lower numeric value means higher urgency; the durable buffer orders on
// this value ascending.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

// String renders the priority the way it appears on the wire (Batch.Priority).
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// ParsePriority parses the wire string form of a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "CRITICAL":
		return PriorityCritical, true
	case "HIGH":
		return PriorityHigh, true
	case "NORMAL":
		return PriorityNormal, true
	case "LOW":
		return PriorityLow, true
	default:
		return 0, false
	}
}

// MarshalJSON emits the wire string form.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON parses the wire string form, rejecting unknown values.
func (p *Priority) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, ok := ParsePriority(s)
	if !ok {
		return fmt.Errorf("telemetry: unknown priority %q", s)
	}
	*p = parsed
	return nil
}

// Severity classifies an Alert. Cooldown duration and immediate-delivery
// eligibility both key off this value (see pkg/aggregator).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// LogLevel classifies a LogEntry. Critical and error levels force an
// immediate flush past the normal batching threshold.
type LogLevel string

const (
	LogLevelCritical LogLevel = "critical"
	LogLevelError    LogLevel = "error"
	LogLevelWarning  LogLevel = "warning"
	LogLevelInfo     LogLevel = "info"
)

// MetricPoint is a single sampled value. Created by a collector at sample
// time, owned by the aggregator until flushed into a Batch, never mutated
// after creation.
type MetricPoint struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp float64           `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
	Priority  Priority          `json:"-"`
}

// Alert is a threshold crossing or other notable condition. Deduplicated by
// the aggregator's cooldown map, keyed on (Host, Metric).
type Alert struct {
	Metric    string            `json:"metric"`
	Value     any               `json:"value"`
	Threshold any               `json:"threshold,omitempty"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Host      string            `json:"host"`
	Timestamp float64           `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// maxLogMessageLen is the truncation bound the log collector enforces
// before a LogEntry is ever constructed (see pkg/collector/logs).
const maxLogMessageLen = 500

// LogEntry is a single classified log line.
type LogEntry struct {
	Timestamp float64  `json:"timestamp"`
	Source    string   `json:"source"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
	Container string   `json:"container,omitempty"`
	Service   string   `json:"service,omitempty"`
}

// TruncateMessage clamps Message to the wire length bound, matching the log
// collector's own truncation so callers assembling a LogEntry by hand (e.g.
// tests, the supervisor's synthetic health logs) get the same contract.
func TruncateMessage(msg string) string {
	if len(msg) <= maxLogMessageLen {
		return msg
	}
	return msg[:maxLogMessageLen]
}

// Batch is a bounded, serializable group of metrics/alerts/logs tagged with
// host and priority. Assembled by the aggregator, consumed at-most-once by
// the sender: a Batch is either delivered or handed to the durable buffer,
// never both.
type Batch struct {
	Host      string        `json:"host"`
	Timestamp float64       `json:"timestamp"`
	Priority  Priority      `json:"priority"`
	Metrics   []MetricPoint `json:"metrics"`
	Alerts    []Alert       `json:"alerts"`
	Logs      []LogEntry    `json:"logs"`
}

// IsEmpty reports whether the batch carries no items at all.
func (b Batch) IsEmpty() bool {
	return len(b.Metrics) == 0 && len(b.Alerts) == 0 && len(b.Logs) == 0
}

// Endpoint returns the ingest path this batch should be POSTed to, per the
// sender's endpoint-selection rule: alerts take priority over logs,
// which take priority over a plain metrics batch.
func (b Batch) Endpoint() string {
	switch {
	case len(b.Alerts) > 0:
		return "/api/v1/ingest/alerts"
	case len(b.Logs) > 0:
		return "/api/v1/ingest/logs"
	default:
		return "/api/v1/ingest/metrics"
	}
}

// BufferedItem is a batch that failed delivery, persisted durably on the
// edge for later flush. ID is assigned by the buffer on Append and is
// monotonically increasing, breaking ties when CreatedAt collides.
type BufferedItem struct {
	ID         uint64   `json:"id"`
	Endpoint   string   `json:"endpoint"`
	Payload    []byte   `json:"payload"`
	Priority   Priority `json:"priority"`
	CreatedAt  float64  `json:"created_at"`
	RetryCount int      `json:"retry_count"`
	LastRetry  float64  `json:"last_retry,omitempty"`
}

// AlertCacheEntry is an Alert plus the time the central brain ingested it.
type AlertCacheEntry struct {
	Alert      Alert   `json:"alert"`
	IngestedAt float64 `json:"ingested_at"`
}

// AgentIdentity carries the edge agent's self-identification for the
// lifetime of the process.
type AgentIdentity struct {
	AgentID      string
	AgentVersion string
	CentralURL   string
	APIKey       string
}

// Hostname returns AgentID, falling back to os.Hostname() when AgentID is
// unset (the configuration default).
func (a AgentIdentity) Hostname() string {
	if a.AgentID != "" {
		return a.AgentID
	}
	return fallbackHostname()
}

// String renders the identity for log correlation.
func (a AgentIdentity) String() string {
	return fmt.Sprintf("agent=%s version=%s central=%s", a.Hostname(), a.AgentVersion, a.CentralURL)
}

func fallbackHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
