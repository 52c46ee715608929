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

package collector

import (
	"context"

	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Collector is the uniform contract every edge sampler implements.
// Collectors are independent; one failing must not stop the others, so a
// Collect error is collector-local and the supervisor only logs it.
type Collector interface {
	// Name identifies the collector in logs and metrics.
	Name() string

	// Available reports whether the collector's data source exists on this
	// host (GPU query tool on PATH, docker socket present, systemd reachable).
	// An unavailable collector is skipped entirely by the supervisor.
	Available() bool

	// Collect takes one snapshot. Implementations must respect ctx and keep
	// blocking work (subprocess invocations, file reads) bounded by it.
	Collect(ctx context.Context) (*measurement.Measurement, error)

	// Metrics converts a snapshot into wire-format metric points.
	Metrics(snap *measurement.Measurement) []telemetry.MetricPoint

	// CheckThresholds evaluates a snapshot against the rule set and returns
	// any alerts it raises.
	CheckThresholds(snap *measurement.Measurement, r rules.Rules) []telemetry.Alert
}

// LogSource is the extra contract of the logs collector: alongside its
// summary snapshot, each Collect accumulates classified log entries that
// flow through the aggregator's AddLogs path instead of AddMetric. Entries
// drains them.
type LogSource interface {
	Entries() []telemetry.LogEntry
}
