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

// BatchBuilder provides a fluent API for assembling a Batch, mirroring
// pkg/measurement's MeasurementBuilder.
type BatchBuilder struct {
	batch Batch
}

// NewBatch starts a BatchBuilder for the given host, timestamp, and
// priority.
func NewBatch(host string, timestamp float64, priority Priority) *BatchBuilder {
	return &BatchBuilder{batch: Batch{
		Host:      host,
		Timestamp: timestamp,
		Priority:  priority,
	}}
}

// WithMetric appends a metric to the batch under construction.
func (b *BatchBuilder) WithMetric(m MetricPoint) *BatchBuilder {
	b.batch.Metrics = append(b.batch.Metrics, m)
	return b
}

// WithMetrics appends multiple metrics.
func (b *BatchBuilder) WithMetrics(m ...MetricPoint) *BatchBuilder {
	b.batch.Metrics = append(b.batch.Metrics, m...)
	return b
}

// WithAlert appends an alert to the batch under construction.
func (b *BatchBuilder) WithAlert(a Alert) *BatchBuilder {
	b.batch.Alerts = append(b.batch.Alerts, a)
	return b
}

// WithAlerts appends multiple alerts.
func (b *BatchBuilder) WithAlerts(a ...Alert) *BatchBuilder {
	b.batch.Alerts = append(b.batch.Alerts, a...)
	return b
}

// WithLog appends a log entry to the batch under construction.
func (b *BatchBuilder) WithLog(l LogEntry) *BatchBuilder {
	b.batch.Logs = append(b.batch.Logs, l)
	return b
}

// WithLogs appends multiple log entries.
func (b *BatchBuilder) WithLogs(l ...LogEntry) *BatchBuilder {
	b.batch.Logs = append(b.batch.Logs, l...)
	return b
}

// Build constructs and returns the Batch.
func (b *BatchBuilder) Build() Batch {
	return b.batch
}
