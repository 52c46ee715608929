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

// Package convert turns snapshot readings into wire metric points. It holds
// the boilerplate every collector's Metrics method would otherwise repeat:
// base label stamping, reading coercion, and silent skipping of absent keys.
package convert

import (
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Emitter accumulates metric points sharing a timestamp and base labels.
type Emitter struct {
	timestamp float64
	base      map[string]string
	points    []telemetry.MetricPoint
}

// NewEmitter creates an Emitter stamping every point with ts and base labels.
func NewEmitter(ts float64, base map[string]string) *Emitter {
	return &Emitter{timestamp: ts, base: base}
}

// Gauge emits name from the given subtype key, merging extra labels over the
// base set. Absent or non-numeric readings emit nothing.
func (e *Emitter) Gauge(name string, st measurement.Subtype, key string, extra map[string]string) {
	v, ok := measurement.AsFloat64(st.Get(key))
	if !ok {
		return
	}
	e.Value(name, v, extra)
}

// Value emits name with an explicit value.
func (e *Emitter) Value(name string, value float64, extra map[string]string) {
	labels := make(map[string]string, len(e.base)+len(extra))
	for k, v := range e.base {
		labels[k] = v
	}
	for k, v := range extra {
		labels[k] = v
	}
	e.points = append(e.points, telemetry.MetricPoint{
		Name:      name,
		Value:     value,
		Timestamp: e.timestamp,
		Labels:    labels,
		Priority:  telemetry.PriorityNormal,
	})
}

// Points returns everything emitted so far.
func (e *Emitter) Points() []telemetry.MetricPoint {
	return e.points
}
