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

package gpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const sampleQueryOutput = `0, GPU-aaaa-bbbb, NVIDIA H100 80GB HBM3, 54, 87, 81559, 70234, 11325, 512.3, 700.0, [N/A], 570.86.15, 5, 16
1, GPU-cccc-dddd, NVIDIA H100 80GB HBM3, 41, 0, 81559, 4, 81555, 71.2, 700.0, [N/A], 570.86.15, 5, 16`

const sampleProcessOutput = `12345, python3, GPU-aaaa-bbbb, 70123
9876, trainer, GPU-aaaa-bbbb, 64`

func TestParseGPUQuery(t *testing.T) {
	gpus := parseGPUQuery([]byte(sampleQueryOutput))
	require.Len(t, gpus, 2)

	g0 := gpus[0]
	assert.Equal(t, "gpu:0", g0.Name)

	model, err := g0.GetString(measurement.KeyGPUModel)
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA H100 80GB HBM3", model)

	temp, err := g0.GetFloat64(measurement.KeyGPUTemp)
	require.NoError(t, err)
	assert.Equal(t, 54.0, temp)

	util, err := g0.GetFloat64(measurement.KeyGPUUtilization)
	require.NoError(t, err)
	assert.Equal(t, 87.0, util)

	memUsed, err := g0.GetInt64(measurement.KeyGPUMemoryUsed)
	require.NoError(t, err)
	assert.Equal(t, int64(70234), memUsed)

	memPct, err := g0.GetFloat64(measurement.KeyGPUMemoryPct)
	require.NoError(t, err)
	assert.InDelta(t, 86.1, memPct, 0.1)

	// Fan speed is [N/A] on this board; the reading must be absent.
	assert.False(t, g0.Has(measurement.KeyGPUFanSpeed))

	driver, err := g0.GetString(measurement.KeyGPUDriver)
	require.NoError(t, err)
	assert.Equal(t, "570.86.15", driver)
}

func TestParseGPUQuery_MalformedLines(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want int
	}{
		{"empty", "", 0},
		{"short line", "0, uuid, name", 0},
		{"non-numeric index", "x, uuid, name, 1, 1, 1, 1, 1, 1, 1, 1, d, 1, 1", 0},
		{"one good one bad", sampleQueryOutput + "\ngarbage", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, parseGPUQuery([]byte(tt.out)), tt.want)
		})
	}
}

func TestParseProcessQuery(t *testing.T) {
	procs := parseProcessQuery([]byte(sampleProcessOutput))
	require.Len(t, procs, 2)

	assert.Equal(t, "proc:12345", procs[0].Name)
	name, err := procs[0].GetString(measurement.KeyName)
	require.NoError(t, err)
	assert.Equal(t, "python3", name)

	mem, err := procs[0].GetInt64(measurement.KeyGPUMemoryUsed)
	require.NoError(t, err)
	assert.Equal(t, int64(70123), mem)
}

func TestCollect_WithFakeRunner(t *testing.T) {
	c := &Collector{host: "h1", smiPath: "/usr/bin/nvidia-smi"}
	c.runner = func(_ context.Context, args ...string) ([]byte, error) {
		if args[0] == "--query-compute-apps=pid,process_name,gpu_uuid,used_memory" {
			return []byte(sampleProcessOutput), nil
		}
		return []byte(sampleQueryOutput), nil
	}

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, measurement.TypeGPU, snap.Type)

	smi := snap.GetSubtype(subtypeSMI)
	require.NotNil(t, smi)
	count, err := smi.GetInt64(measurement.KeyGPUCount)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 1 smi + 2 gpus + 2 processes
	assert.Len(t, snap.Subtypes, 5)
}

func TestCollect_Unavailable(t *testing.T) {
	c := &Collector{host: "h1"}

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	smi := snap.GetSubtype(subtypeSMI)
	require.NotNil(t, smi)
	count, err := smi.GetInt64(measurement.KeyGPUCount)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	points := c.Metrics(snap)
	require.Len(t, points, 1)
	assert.Equal(t, "sidra_gpu_available", points[0].Name)
	assert.Equal(t, 0.0, points[0].Value)
}

func TestMetrics(t *testing.T) {
	c := &Collector{host: "h1", smiPath: "/usr/bin/nvidia-smi"}
	snap := measurement.NewMeasurement(measurement.TypeGPU).
		WithTimestamp(100).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder(subtypeSMI).
			SetInt(measurement.KeyGPUCount, 1)).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder("gpu:0").
			SetInt(measurement.KeyGPUIndex, 0).
			SetString(measurement.KeyGPUModel, "H100").
			SetFloat64(measurement.KeyGPUTemp, 61).
			SetFloat64(measurement.KeyGPUUtilization, 99).
			SetFloat64(measurement.KeyGPUMemoryPct, 50)).
		Build()

	points := c.Metrics(snap)

	byName := map[string]float64{}
	for _, p := range points {
		byName[p.Name] = p.Value
		assert.Equal(t, "h1", p.Labels["host"])
		assert.Equal(t, 100.0, p.Timestamp)
	}
	assert.Equal(t, 1.0, byName["sidra_gpu_count"])
	assert.Equal(t, 61.0, byName["sidra_gpu_temperature_celsius"])
	assert.Equal(t, 99.0, byName["sidra_gpu_utilization_percent"])
}

func TestCheckThresholds(t *testing.T) {
	c := &Collector{host: "h1", smiPath: "/usr/bin/nvidia-smi"}

	build := func(temp, memPct float64) *measurement.Measurement {
		return measurement.NewMeasurement(measurement.TypeGPU).
			WithTimestamp(100).
			WithSubtypeBuilder(measurement.NewSubtypeBuilder("gpu:0").
				SetInt(measurement.KeyGPUIndex, 0).
				SetString(measurement.KeyGPUModel, "H100").
				SetFloat64(measurement.KeyGPUTemp, temp).
				SetFloat64(measurement.KeyGPUMemoryPct, memPct)).
			Build()
	}

	t.Run("cool and empty raises nothing", func(t *testing.T) {
		alerts := c.CheckThresholds(build(50, 10), rules.Defaults())
		assert.Empty(t, alerts)
	})

	t.Run("85C is high", func(t *testing.T) {
		alerts := c.CheckThresholds(build(85, 10), rules.Defaults())
		require.Len(t, alerts, 1)
		assert.Equal(t, rules.MetricGPUTemp, alerts[0].Metric)
		assert.Equal(t, telemetry.SeverityHigh, alerts[0].Severity)
	})

	t.Run("90C is critical", func(t *testing.T) {
		alerts := c.CheckThresholds(build(90, 10), rules.Defaults())
		require.Len(t, alerts, 1)
		assert.Equal(t, telemetry.SeverityCritical, alerts[0].Severity)
	})

	t.Run("98 percent memory is critical", func(t *testing.T) {
		alerts := c.CheckThresholds(build(50, 98.5), rules.Defaults())
		require.Len(t, alerts, 1)
		assert.Equal(t, rules.MetricGPUMemory, alerts[0].Metric)
		assert.Equal(t, telemetry.SeverityCritical, alerts[0].Severity)
	})
}
