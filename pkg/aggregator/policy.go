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

package aggregator

import (
	"math"
	"strings"
	"time"

	"github.com/sidralabs/sidra/pkg/telemetry"
)

// shouldSkipMetric reports whether m should be dropped by the dedup rule:
// for "percent" metrics, a delta under 1.0 is noise; for everything else, a
// relative delta under 1% is noise. A zero last value disables the relative
// check (division by zero would otherwise always skip).
func (a *Aggregator) shouldSkipMetric(m telemetry.MetricPoint) bool {
	last, seen := a.lastValues[m.Name]
	if !seen {
		return false
	}

	if strings.Contains(strings.ToLower(m.Name), "percent") {
		return math.Abs(m.Value-last) < 1.0
	}

	if last != 0 {
		changePct := math.Abs((m.Value-last)/last) * 100
		return changePct < 1.0
	}

	return false
}

// cooldownDuration returns the spam-guard window for a given alert severity.
func cooldownDuration(sev telemetry.Severity) time.Duration {
	switch sev {
	case telemetry.SeverityCritical:
		return 60 * time.Second
	case telemetry.SeverityHigh:
		return 300 * time.Second
	case telemetry.SeverityWarning:
		return 900 * time.Second
	default:
		return 3600 * time.Second
	}
}

// inCooldown reports whether key is still within its cooldown window. A
// subsequent alert of equal or greater severity still drops while in
// cooldown; the window guards against spam, not state change.
func (a *Aggregator) inCooldown(key string, sev telemetry.Severity) bool {
	last, seen := a.cooldowns[key]
	if !seen {
		return false
	}
	return a.now().Sub(last) < cooldownDuration(sev)
}
