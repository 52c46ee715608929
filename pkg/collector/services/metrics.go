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

package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sidralabs/sidra/pkg/collector/internal/convert"
	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Units whose outage is always critical rather than high.
var criticalUnits = map[string]struct{}{
	"docker":     {},
	"sshd":       {},
	"postgresql": {},
}

// restartWarningCount is the restart total at which a unit draws a warning.
const restartWarningCount = 5

// Metrics converts a services snapshot to wire metric points.
func (c *Collector) Metrics(snap *measurement.Measurement) []telemetry.MetricPoint {
	e := convert.NewEmitter(snap.Timestamp, map[string]string{"host": c.host})

	for _, st := range snap.Subtypes {
		switch {
		case st.Name == subtypeSystemd:
			e.Gauge("sidra_services_failed_total", st, keyFailedCount, nil)
		case strings.HasPrefix(st.Name, prefixService):
			name, _ := st.GetString(measurement.KeyServiceName)
			labels := map[string]string{"service": name}

			e.Value("sidra_service_active", boolGauge(st, measurement.KeyActive), labels)
			e.Value("sidra_service_running", boolGauge(st, measurement.KeyRunning), labels)
			e.Gauge("sidra_service_memory_bytes", st, measurement.KeyMemoryBytes, labels)
			e.Gauge("sidra_service_restarts_total", st, measurement.KeyRestartCount, labels)
		case strings.HasPrefix(st.Name, prefixProcess):
			name, _ := st.GetString(measurement.KeyName)
			pid, _ := st.GetInt64(measurement.KeyPID)
			labels := map[string]string{"process": name, "pid": strconv.FormatInt(pid, 10)}

			e.Gauge("sidra_process_cpu_percent", st, measurement.KeyCPUPercent, labels)
			e.Gauge("sidra_process_memory_bytes", st, measurement.KeyRSSBytes, labels)
		}
	}

	return e.Points()
}

func boolGauge(st measurement.Subtype, key string) float64 {
	if v, err := st.GetBool(key); err == nil && v {
		return 1
	}
	return 0
}

// CheckThresholds raises alerts for failed units, enabled-but-stopped
// services, and restart churn. These rules are fixed contract, independent
// of the numeric rule maps.
func (c *Collector) CheckThresholds(snap *measurement.Measurement, _ rules.Rules) []telemetry.Alert {
	var alerts []telemetry.Alert

	for _, st := range snap.Subtypes {
		switch {
		case st.Name == subtypeSystemd:
			failed, err := st.GetString(keyFailedUnits)
			if err != nil || failed == "" {
				continue
			}
			for _, unit := range strings.Split(failed, ",") {
				alerts = append(alerts, telemetry.Alert{
					Metric:    "service_failed",
					Value:     unit,
					Severity:  telemetry.SeverityCritical,
					Message:   fmt.Sprintf("Service %s has failed", unit),
					Host:      c.host,
					Timestamp: snap.Timestamp,
					Labels:    map[string]string{"service": unit},
				})
			}
		case strings.HasPrefix(st.Name, prefixService):
			name, _ := st.GetString(measurement.KeyServiceName)
			state, _ := st.GetString(measurement.KeyServiceState)
			enabled, _ := st.GetBool(measurement.KeyEnabled)
			running, _ := st.GetBool(measurement.KeyRunning)

			if enabled && !running {
				sev := telemetry.SeverityHigh
				if _, critical := criticalUnits[name]; critical {
					sev = telemetry.SeverityCritical
				}
				alerts = append(alerts, telemetry.Alert{
					Metric:    "service_down",
					Value:     state,
					Severity:  sev,
					Message:   fmt.Sprintf("Service %s is not running (status: %s)", name, state),
					Host:      c.host,
					Timestamp: snap.Timestamp,
					Labels:    map[string]string{"service": name},
				})
			}

			if restarts, err := st.GetUint64(measurement.KeyRestartCount); err == nil && restarts >= restartWarningCount {
				alerts = append(alerts, telemetry.Alert{
					Metric:    "service_restarts",
					Value:     restarts,
					Severity:  telemetry.SeverityWarning,
					Message:   fmt.Sprintf("Service %s has restarted %d times", name, restarts),
					Host:      c.host,
					Timestamp: snap.Timestamp,
					Labels:    map[string]string{"service": name},
				})
			}
		}
	}

	return alerts
}
