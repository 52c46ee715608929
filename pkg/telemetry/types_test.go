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

package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriority_StringAndParse(t *testing.T) {
	cases := []struct {
		p    Priority
		want string
	}{
		{PriorityCritical, "CRITICAL"},
		{PriorityHigh, "HIGH"},
		{PriorityNormal, "NORMAL"},
		{PriorityLow, "LOW"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.p.String())
		parsed, ok := ParsePriority(tc.want)
		require.True(t, ok)
		require.Equal(t, tc.p, parsed)
	}

	_, ok := ParsePriority("BOGUS")
	require.False(t, ok)
}

func TestPriority_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		P Priority `json:"p"`
	}

	for _, p := range []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow} {
		data, err := json.Marshal(wrapper{P: p})
		require.NoError(t, err)

		var out wrapper
		require.NoError(t, json.Unmarshal(data, &out))
		require.Equal(t, p, out.P)
	}
}

func TestPriority_UnmarshalRejectsUnknown(t *testing.T) {
	var p Priority
	err := json.Unmarshal([]byte(`"WAT"`), &p)
	require.Error(t, err)
}

func TestBatch_Endpoint(t *testing.T) {
	require.Equal(t, "/api/v1/ingest/metrics", Batch{Metrics: []MetricPoint{{Name: "x"}}}.Endpoint())
	require.Equal(t, "/api/v1/ingest/logs", Batch{Logs: []LogEntry{{Message: "x"}}}.Endpoint())
	require.Equal(t, "/api/v1/ingest/alerts", Batch{
		Alerts: []Alert{{Metric: "x"}},
		Logs:   []LogEntry{{Message: "y"}},
	}.Endpoint())
}

func TestBatch_IsEmpty(t *testing.T) {
	require.True(t, Batch{}.IsEmpty())
	require.False(t, Batch{Metrics: []MetricPoint{{Name: "x"}}}.IsEmpty())
}

func TestTruncateMessage(t *testing.T) {
	short := "hello"
	require.Equal(t, short, TruncateMessage(short))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	require.Len(t, TruncateMessage(string(long)), maxLogMessageLen)
}

func TestAgentIdentity_Hostname(t *testing.T) {
	id := AgentIdentity{AgentID: "edge-01"}
	require.Equal(t, "edge-01", id.Hostname())

	id2 := AgentIdentity{}
	require.NotEmpty(t, id2.Hostname())
}

func TestBatchBuilder(t *testing.T) {
	b := NewBatch("h1", 100.0, PriorityNormal).
		WithMetric(MetricPoint{Name: "cpu", Value: 50}).
		WithAlert(Alert{Metric: "cpu", Severity: SeverityHigh}).
		WithLog(LogEntry{Message: "boot", Level: LogLevelInfo}).
		Build()

	require.Equal(t, "h1", b.Host)
	require.Len(t, b.Metrics, 1)
	require.Len(t, b.Alerts, 1)
	require.Len(t, b.Logs, 1)
}

func TestBatch_JSONRoundTrip(t *testing.T) {
	in := Batch{
		Host:      "h1",
		Timestamp: 1700000000.25,
		Priority:  PriorityHigh,
		Metrics: []MetricPoint{
			{Name: "sidra_cpu_usage_percent", Value: 42.5, Timestamp: 1700000000.25,
				Labels: map[string]string{"host": "h1"}},
		},
		Alerts: []Alert{
			{Metric: "cpu_usage", Value: 97.5, Threshold: 95.0,
				Severity: SeverityCritical, Message: "hot", Host: "h1", Timestamp: 1700000000.25},
		},
		Logs: []LogEntry{
			{Timestamp: 1700000000.25, Source: "/var/log/syslog",
				Level: LogLevelError, Message: "boom"},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Batch
	require.NoError(t, json.Unmarshal(data, &out))

	require.Equal(t, in.Host, out.Host)
	require.Equal(t, in.Timestamp, out.Timestamp)
	require.Equal(t, in.Priority, out.Priority)
	require.Equal(t, in.Metrics, out.Metrics)
	require.Equal(t, in.Logs, out.Logs)

	// Alert numeric values survive as float64 per the wire contract.
	require.Len(t, out.Alerts, 1)
	require.Equal(t, 97.5, out.Alerts[0].Value)
	require.Equal(t, 95.0, out.Alerts[0].Threshold)
}
