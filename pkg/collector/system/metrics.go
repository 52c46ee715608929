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

package system

import (
	"fmt"
	"strings"

	"github.com/sidralabs/sidra/pkg/collector/internal/convert"
	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Metrics converts a system snapshot to wire metric points.
func (c *Collector) Metrics(snap *measurement.Measurement) []telemetry.MetricPoint {
	e := convert.NewEmitter(snap.Timestamp, map[string]string{"host": c.host})

	for _, st := range snap.Subtypes {
		switch {
		case st.Name == subtypeCPU:
			e.Gauge("sidra_cpu_usage_percent", st, measurement.KeyCPUUsage, nil)
			e.Gauge("sidra_cpu_cores", st, measurement.KeyCPUCores, nil)
			e.Gauge("sidra_load_1m", st, measurement.KeyLoad1, nil)
			e.Gauge("sidra_load_5m", st, measurement.KeyLoad5, nil)
			e.Gauge("sidra_load_15m", st, measurement.KeyLoad15, nil)
			for key := range st.Data {
				if core, ok := strings.CutPrefix(key, prefixCore); ok {
					e.Gauge("sidra_cpu_core_usage_percent", st, key, map[string]string{"core": core})
				}
			}
		case st.Name == subtypeMemory:
			e.Gauge("sidra_memory_total_bytes", st, measurement.KeyMemTotal, nil)
			e.Gauge("sidra_memory_used_bytes", st, measurement.KeyMemUsed, nil)
			e.Gauge("sidra_memory_available_bytes", st, measurement.KeyMemAvailable, nil)
			e.Gauge("sidra_memory_usage_percent", st, measurement.KeyMemUsage, nil)
			e.Gauge("sidra_swap_usage_percent", st, measurement.KeySwapUsage, nil)
		case strings.HasPrefix(st.Name, prefixDisk):
			labels := map[string]string{"path": strings.TrimPrefix(st.Name, prefixDisk)}
			e.Gauge("sidra_disk_total_bytes", st, measurement.KeyTotalBytes, labels)
			e.Gauge("sidra_disk_used_bytes", st, measurement.KeyUsedBytes, labels)
			e.Gauge("sidra_disk_usage_percent", st, measurement.KeyUsagePercent, labels)
			e.Gauge("sidra_disk_read_bytes", st, measurement.KeyReadBytes, labels)
			e.Gauge("sidra_disk_write_bytes", st, measurement.KeyWriteBytes, labels)
		case strings.HasPrefix(st.Name, prefixNet):
			labels := map[string]string{"interface": strings.TrimPrefix(st.Name, prefixNet)}
			e.Gauge("sidra_network_bytes_sent", st, measurement.KeyBytesSent, labels)
			e.Gauge("sidra_network_bytes_recv", st, measurement.KeyBytesRecv, labels)
			errIn, _ := measurement.AsFloat64(st.Get(measurement.KeyErrorsIn))
			errOut, _ := measurement.AsFloat64(st.Get(measurement.KeyErrorsOut))
			e.Value("sidra_network_errors_total", errIn+errOut, labels)
		case st.Name == subtypeHost:
			e.Gauge("sidra_uptime_seconds", st, measurement.KeyUptime, nil)
			e.Gauge("sidra_process_count", st, measurement.KeyProcessCount, nil)
		}
	}

	return e.Points()
}

// CheckThresholds evaluates cpu, memory, and per-disk usage against rules.
func (c *Collector) CheckThresholds(snap *measurement.Measurement, r rules.Rules) []telemetry.Alert {
	var alerts []telemetry.Alert

	for _, st := range snap.Subtypes {
		switch {
		case st.Name == subtypeCPU:
			if v, err := st.GetFloat64(measurement.KeyCPUUsage); err == nil {
				if sev, threshold, ok := r.Evaluate(rules.MetricCPUUsage, v); ok {
					alerts = append(alerts, telemetry.Alert{
						Metric:    rules.MetricCPUUsage,
						Value:     v,
						Threshold: threshold,
						Severity:  sev,
						Message:   fmt.Sprintf("CPU usage at %.1f%%", v),
						Host:      c.host,
						Timestamp: snap.Timestamp,
					})
				}
			}
		case st.Name == subtypeMemory:
			if v, err := st.GetFloat64(measurement.KeyMemUsage); err == nil {
				if sev, threshold, ok := r.Evaluate(rules.MetricMemoryUsage, v); ok {
					alerts = append(alerts, telemetry.Alert{
						Metric:    rules.MetricMemoryUsage,
						Value:     v,
						Threshold: threshold,
						Severity:  sev,
						Message:   fmt.Sprintf("Memory usage at %.1f%%", v),
						Host:      c.host,
						Timestamp: snap.Timestamp,
					})
				}
			}
		case strings.HasPrefix(st.Name, prefixDisk):
			path := strings.TrimPrefix(st.Name, prefixDisk)
			if v, err := st.GetFloat64(measurement.KeyUsagePercent); err == nil {
				if sev, threshold, ok := r.Evaluate(rules.MetricDiskUsage, v); ok {
					alerts = append(alerts, telemetry.Alert{
						Metric:    rules.MetricDiskUsage,
						Value:     v,
						Threshold: threshold,
						Severity:  sev,
						Message:   fmt.Sprintf("Disk %s at %.1f%%", path, v),
						Host:      c.host,
						Timestamp: snap.Timestamp,
						Labels:    map[string]string{"path": path},
					})
				}
			}
		}
	}

	return alerts
}
