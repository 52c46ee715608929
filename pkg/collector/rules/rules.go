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

// Package rules holds the threshold rule set every collector's
// CheckThresholds evaluates snapshots against. It is a separate package so
// the collector subpackages can share it without importing their parent.
package rules

import "github.com/sidralabs/sidra/pkg/telemetry"

// Threshold metric names shared between the rule set and the collectors
// that evaluate them.
const (
	MetricCPUUsage    = "cpu_usage"
	MetricMemoryUsage = "memory_usage"
	MetricDiskUsage   = "disk_usage"
	MetricGPUTemp     = "gpu_temp"
	MetricGPUMemory   = "gpu_memory"
)

// Rules maps threshold metric names to the value at which each severity
// tier fires. A metric absent from a map never fires that tier.
type Rules struct {
	Critical map[string]float64 `yaml:"critical_thresholds"`
	High     map[string]float64 `yaml:"high_thresholds"`
	Warning  map[string]float64 `yaml:"warning_thresholds"`
}

// Defaults returns the contract default thresholds.
func Defaults() Rules {
	return Rules{
		Critical: map[string]float64{
			MetricCPUUsage:    95,
			MetricMemoryUsage: 95,
			MetricDiskUsage:   95,
			MetricGPUTemp:     90,
			MetricGPUMemory:   98,
		},
		High: map[string]float64{
			MetricCPUUsage:    85,
			MetricMemoryUsage: 85,
			MetricDiskUsage:   90,
			MetricGPUTemp:     85,
			MetricGPUMemory:   95,
		},
		Warning: map[string]float64{
			MetricCPUUsage:    70,
			MetricMemoryUsage: 80,
			MetricDiskUsage:   80,
		},
	}
}

// Merge overlays non-empty tiers from other onto r, returning the result.
// Config loading uses it so a file-provided tier replaces the default tier
// wholesale.
func (r Rules) Merge(other Rules) Rules {
	if len(other.Critical) > 0 {
		r.Critical = other.Critical
	}
	if len(other.High) > 0 {
		r.High = other.High
	}
	if len(other.Warning) > 0 {
		r.Warning = other.Warning
	}
	return r
}

// Evaluate returns the highest severity tier value crosses for metric,
// along with the threshold that fired. ok is false when no tier fires.
func (r Rules) Evaluate(metric string, value float64) (sev telemetry.Severity, threshold float64, ok bool) {
	if t, has := r.Critical[metric]; has && value >= t {
		return telemetry.SeverityCritical, t, true
	}
	if t, has := r.High[metric]; has && value >= t {
		return telemetry.SeverityHigh, t, true
	}
	if t, has := r.Warning[metric]; has && value >= t {
		return telemetry.SeverityWarning, t, true
	}
	return "", 0, false
}
