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

package containers

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const listJSON = `[
  {"Id":"aaaaaaaaaaaaaaaa","Names":["/web"],"Image":"nginx:1.27","State":"running","Status":"Up 2 hours"},
  {"Id":"bbbbbbbbbbbbbbbb","Names":["/worker"],"Image":"app:latest","State":"exited","Status":"Exited (1) 5 minutes ago"}
]`

const inspectRunningJSON = `{"RestartCount":0,"State":{"StartedAt":"2026-01-01T00:00:00Z","Health":{"Status":"healthy"}}}`
const inspectExitedJSON = `{"RestartCount":3,"State":{"StartedAt":"2026-01-01T00:00:00Z"}}`

const statsJSON = `{
  "cpu_stats":{"cpu_usage":{"total_usage":200},"system_cpu_usage":10000,"online_cpus":4},
  "precpu_stats":{"cpu_usage":{"total_usage":100},"system_cpu_usage":8000},
  "memory_stats":{"usage":500000000,"limit":1000000000},
  "networks":{"eth0":{"rx_bytes":1000,"tx_bytes":2000}}
}`

// startFakeDaemon serves canned daemon responses on a unix socket.
func startFakeDaemon(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets required")
	}

	sock := filepath.Join(t.TempDir(), "docker.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/containers/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(listJSON))
	})
	mux.HandleFunc("/containers/aaaaaaaaaaaaaaaa/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(inspectRunningJSON))
	})
	mux.HandleFunc("/containers/bbbbbbbbbbbbbbbb/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(inspectExitedJSON))
	})
	mux.HandleFunc("/containers/aaaaaaaaaaaaaaaa/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(statsJSON))
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return sock
}

func TestCollect(t *testing.T) {
	sock := startFakeDaemon(t)
	c := New("h1", WithSocketPath(sock))

	require.True(t, c.Available())

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, measurement.TypeContainers, snap.Type)

	daemon := snap.GetSubtype(subtypeDaemon)
	require.NotNil(t, daemon)
	total, err := daemon.GetInt64("containers-total")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	running, err := daemon.GetInt64("containers-running")
	require.NoError(t, err)
	assert.Equal(t, int64(1), running)

	web := snap.GetSubtype("container:web")
	require.NotNil(t, web)
	health, err := web.GetString(measurement.KeyContainerHealth)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health)

	cpuPct, err := web.GetFloat64(measurement.KeyCPUPercent)
	require.NoError(t, err)
	// delta 100 over system delta 2000 across 4 cpus
	assert.InDelta(t, 20.0, cpuPct, 0.01)

	memPct, err := web.GetFloat64(measurement.KeyMemUsage)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, memPct, 0.01)

	worker := snap.GetSubtype("container:worker")
	require.NotNil(t, worker)
	restarts, err := worker.GetInt64(measurement.KeyRestartCount)
	require.NoError(t, err)
	assert.Equal(t, int64(3), restarts)
	// Stopped containers are never stats-sampled.
	assert.False(t, worker.Has(measurement.KeyCPUPercent))
}

func TestCheckThresholds(t *testing.T) {
	sock := startFakeDaemon(t)
	c := New("h1", WithSocketPath(sock))

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	alerts := c.CheckThresholds(snap, rules.Defaults())
	require.Len(t, alerts, 1)
	assert.Equal(t, "container_exited", alerts[0].Metric)
	assert.Equal(t, telemetry.SeverityHigh, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "worker")
}

func TestCheckThresholds_MemoryAndHealth(t *testing.T) {
	c := New("h1")
	snap := measurement.NewMeasurement(measurement.TypeContainers).
		WithTimestamp(100).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder("container:db").
			SetString(measurement.KeyContainerName, "db").
			SetString(measurement.KeyContainerState, "running").
			SetString(measurement.KeyContainerHealth, "unhealthy").
			SetFloat64(measurement.KeyMemUsage, 95.5)).
		Build()

	alerts := c.CheckThresholds(snap, rules.Defaults())
	require.Len(t, alerts, 2)
	metrics := []string{alerts[0].Metric, alerts[1].Metric}
	assert.Contains(t, metrics, "container_health")
	assert.Contains(t, metrics, "container_memory")
}

func TestMetrics(t *testing.T) {
	c := New("h1")
	snap := measurement.NewMeasurement(measurement.TypeContainers).
		WithTimestamp(100).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder(subtypeDaemon).
			SetInt("containers-total", 1).
			SetInt("containers-running", 1).
			SetInt("containers-stopped", 0)).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder("container:web").
			SetString(measurement.KeyContainerName, "web").
			SetString(measurement.KeyContainerImage, "nginx:1.27").
			SetString(measurement.KeyContainerState, "running").
			SetFloat64(measurement.KeyCPUPercent, 12.5).
			SetInt(measurement.KeyRestartCount, 0)).
		Build()

	points := c.Metrics(snap)
	byName := map[string]telemetry.MetricPoint{}
	for _, p := range points {
		byName[p.Name] = p
	}

	assert.Equal(t, 1.0, byName["sidra_docker_available"].Value)
	assert.Equal(t, 1.0, byName["sidra_container_running"].Value)
	assert.Equal(t, "web", byName["sidra_container_running"].Labels["container"])
	assert.Equal(t, 12.5, byName["sidra_container_cpu_percent"].Value)
}

func TestAvailable_MissingSocket(t *testing.T) {
	c := New("h1", WithSocketPath(filepath.Join(t.TempDir(), "missing.sock")))
	assert.False(t, c.Available())
}

func TestCPUPercent_BadDeltas(t *testing.T) {
	var s apiStats
	assert.Equal(t, 0.0, s.cpuPercent())

	s.CPUStats.CPUUsage.TotalUsage = 100
	s.PreCPUStats.CPUUsage.TotalUsage = 200 // counter went backwards
	s.CPUStats.SystemUsage = 1000
	assert.Equal(t, 0.0, s.cpuPercent())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "aaaaaaaaaaaa", shortID(strings.Repeat("a", 64)))
	assert.Equal(t, "abc", shortID("abc"))
}
