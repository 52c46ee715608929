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

// Package gpu samples NVIDIA GPU utilization, temperature, memory, and
// power via nvidia-smi, plus the processes using each GPU. The whole GPU
// state is read in a single --query-gpu invocation per cycle.
//
// When nvidia-smi is not on PATH the collector reports Available() == false
// and the supervisor skips it. If the query fails later (for example a host
// losing its driver mid-flight), Collect returns the error; the supervisor
// logs it and tries again on the next cycle.
package gpu

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sidralabs/sidra/pkg/collector/internal/convert"
	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/defaults"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const nvidiaSMICommand = "nvidia-smi"

// Fields requested from nvidia-smi, in column order. parseGPUQuery depends
// on this ordering.
var queryGPUFields = []string{
	"index",
	"uuid",
	"name",
	"temperature.gpu",
	"utilization.gpu",
	"memory.total",
	"memory.used",
	"memory.free",
	"power.draw",
	"power.limit",
	"fan.speed",
	"driver_version",
	"pcie.link.gen.current",
	"pcie.link.width.current",
}

const (
	subtypeSMI    = "smi"
	prefixGPU     = "gpu:"
	prefixProcess = "proc:"
)

// Collector samples GPU metrics using nvidia-smi.
type Collector struct {
	host    string
	smiPath string

	// runner is swapped in tests to avoid invoking the real tool.
	runner func(ctx context.Context, args ...string) ([]byte, error)
}

// New creates a GPU collector. The nvidia-smi lookup happens once at
// construction; a driver installed later requires an agent restart.
func New(hostname string) *Collector {
	c := &Collector{host: hostname}
	if path, err := exec.LookPath(nvidiaSMICommand); err == nil {
		c.smiPath = path
	}
	c.runner = c.runSMI
	return c
}

// Name implements Collector.
func (c *Collector) Name() string { return "gpu" }

// Available implements Collector.
func (c *Collector) Available() bool { return c.smiPath != "" }

func (c *Collector) runSMI(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaults.CollectorSubprocessTimeout)
	defer cancel()
	return exec.CommandContext(ctx, c.smiPath, args...).Output()
}

// Collect queries all GPUs and their compute processes.
func (c *Collector) Collect(ctx context.Context) (*measurement.Measurement, error) {
	now := float64(time.Now().UnixNano()) / 1e9

	if !c.Available() {
		return measurement.NewMeasurement(measurement.TypeGPU).
			WithTimestamp(now).
			WithSubtypeBuilder(measurement.NewSubtypeBuilder(subtypeSMI).
				SetInt(measurement.KeyGPUCount, 0)).
			Build(), nil
	}

	out, err := c.runner(ctx,
		"--query-gpu="+strings.Join(queryGPUFields, ","),
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("gpu: query failed: %w", err)
	}

	gpus := parseGPUQuery(out)

	b := measurement.NewMeasurement(measurement.TypeGPU).WithTimestamp(now)

	smi := measurement.NewSubtypeBuilder(subtypeSMI).
		SetInt(measurement.KeyGPUCount, len(gpus))
	if len(gpus) > 0 {
		if driver, err := gpus[0].GetString(measurement.KeyGPUDriver); err == nil {
			smi.SetString(measurement.KeyGPUDriver, driver)
		}
	}
	b.WithSubtypeBuilder(smi)

	for _, g := range gpus {
		b.WithSubtype(g)
	}

	// Process enumeration is best-effort; a failure leaves the GPU
	// readings intact.
	if procOut, err := c.runner(ctx,
		"--query-compute-apps=pid,process_name,gpu_uuid,used_memory",
		"--format=csv,noheader,nounits"); err == nil {
		for _, p := range parseProcessQuery(procOut) {
			b.WithSubtype(p)
		}
	}

	return b.Build(), nil
}

// parseGPUQuery parses the CSV rows of the --query-gpu invocation into one
// subtype per GPU, named gpu:<index>.
func parseGPUQuery(out []byte) []measurement.Subtype {
	var gpus []measurement.Subtype
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := splitCSV(line)
		if len(parts) < len(queryGPUFields) {
			continue
		}

		index, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		memTotal := smiInt(parts[5])
		memUsed := smiInt(parts[6])

		b := measurement.NewSubtypeBuilder(fmt.Sprintf("%s%d", prefixGPU, index)).
			SetInt(measurement.KeyGPUIndex, index).
			SetString(measurement.KeyGPUUUID, parts[1]).
			SetString(measurement.KeyGPUModel, parts[2]).
			SetFloat64(measurement.KeyGPUTemp, smiFloat(parts[3])).
			SetFloat64(measurement.KeyGPUUtilization, smiFloat(parts[4])).
			SetInt64(measurement.KeyGPUMemoryTotal, memTotal).
			SetInt64(measurement.KeyGPUMemoryUsed, memUsed).
			SetInt64(measurement.KeyGPUMemoryFree, smiInt(parts[7])).
			SetFloat64(measurement.KeyGPUPower, smiFloat(parts[8])).
			SetFloat64(measurement.KeyGPUPowerLimit, smiFloat(parts[9])).
			SetString(measurement.KeyGPUDriver, parts[11]).
			SetInt64(measurement.KeyGPUPCIeGen, smiInt(parts[12])).
			SetInt64(measurement.KeyGPUPCIeWidth, smiInt(parts[13]))

		if memTotal > 0 {
			b.SetFloat64(measurement.KeyGPUMemoryPct, float64(memUsed)/float64(memTotal)*100)
		} else {
			b.SetFloat64(measurement.KeyGPUMemoryPct, 0)
		}

		// Fan speed is [N/A] on passively cooled boards; omit rather than
		// report zero.
		if parts[10] != notAvailable {
			b.SetFloat64(measurement.KeyGPUFanSpeed, smiFloat(parts[10]))
		}

		gpus = append(gpus, b.Build())
	}
	return gpus
}

// parseProcessQuery parses the --query-compute-apps CSV rows into one
// subtype per process, named proc:<pid>.
func parseProcessQuery(out []byte) []measurement.Subtype {
	var procs []measurement.Subtype
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := splitCSV(line)
		if len(parts) < 4 {
			continue
		}
		pid, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		procs = append(procs, measurement.NewSubtypeBuilder(fmt.Sprintf("%s%d", prefixProcess, pid)).
			SetInt(measurement.KeyPID, pid).
			SetString(measurement.KeyName, parts[1]).
			SetString(measurement.KeyGPUUUID, parts[2]).
			SetInt64(measurement.KeyGPUMemoryUsed, smiInt(parts[3])).
			Build())
	}
	return procs
}

const notAvailable = "[N/A]"

func smiFloat(s string) float64 {
	if s == notAvailable {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func smiInt(s string) int64 {
	if s == notAvailable {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func splitCSV(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Metrics converts a GPU snapshot to wire metric points.
func (c *Collector) Metrics(snap *measurement.Measurement) []telemetry.MetricPoint {
	e := convert.NewEmitter(snap.Timestamp, map[string]string{"host": c.host})

	if !c.Available() {
		e.Value("sidra_gpu_available", 0, nil)
		return e.Points()
	}

	for _, st := range snap.Subtypes {
		switch {
		case st.Name == subtypeSMI:
			e.Gauge("sidra_gpu_count", st, measurement.KeyGPUCount, nil)
		case strings.HasPrefix(st.Name, prefixGPU):
			index, _ := st.GetInt64(measurement.KeyGPUIndex)
			model, _ := st.GetString(measurement.KeyGPUModel)
			labels := map[string]string{
				"gpu":  strconv.FormatInt(index, 10),
				"name": model,
			}
			e.Gauge("sidra_gpu_temperature_celsius", st, measurement.KeyGPUTemp, labels)
			e.Gauge("sidra_gpu_utilization_percent", st, measurement.KeyGPUUtilization, labels)
			e.Gauge("sidra_gpu_memory_total_mb", st, measurement.KeyGPUMemoryTotal, labels)
			e.Gauge("sidra_gpu_memory_used_mb", st, measurement.KeyGPUMemoryUsed, labels)
			e.Gauge("sidra_gpu_memory_percent", st, measurement.KeyGPUMemoryPct, labels)
			e.Gauge("sidra_gpu_power_draw_watts", st, measurement.KeyGPUPower, labels)
			e.Gauge("sidra_gpu_fan_speed_percent", st, measurement.KeyGPUFanSpeed, labels)
		}
	}

	return e.Points()
}

// CheckThresholds evaluates per-GPU temperature and memory pressure.
func (c *Collector) CheckThresholds(snap *measurement.Measurement, r rules.Rules) []telemetry.Alert {
	var alerts []telemetry.Alert

	for _, st := range snap.Subtypes {
		if !strings.HasPrefix(st.Name, prefixGPU) {
			continue
		}
		index, _ := st.GetInt64(measurement.KeyGPUIndex)
		model, _ := st.GetString(measurement.KeyGPUModel)

		if temp, err := st.GetFloat64(measurement.KeyGPUTemp); err == nil {
			if sev, threshold, ok := r.Evaluate(rules.MetricGPUTemp, temp); ok {
				alerts = append(alerts, telemetry.Alert{
					Metric:    rules.MetricGPUTemp,
					Value:     temp,
					Threshold: threshold,
					Severity:  sev,
					Message:   fmt.Sprintf("GPU %d (%s) temperature at %.0f°C", index, model, temp),
					Host:      c.host,
					Timestamp: snap.Timestamp,
					Labels:    map[string]string{"gpu": strconv.FormatInt(index, 10)},
				})
			}
		}

		if memPct, err := st.GetFloat64(measurement.KeyGPUMemoryPct); err == nil {
			if sev, threshold, ok := r.Evaluate(rules.MetricGPUMemory, memPct); ok {
				alerts = append(alerts, telemetry.Alert{
					Metric:    rules.MetricGPUMemory,
					Value:     memPct,
					Threshold: threshold,
					Severity:  sev,
					Message:   fmt.Sprintf("GPU %d (%s) memory at %.1f%%", index, model, memPct),
					Host:      c.host,
					Timestamp: snap.Timestamp,
					Labels:    map[string]string{"gpu": strconv.FormatInt(index, 10)},
				})
			}
		}
	}

	return alerts
}
