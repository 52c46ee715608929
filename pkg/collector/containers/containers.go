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

// Package containers samples container state and resource usage from a
// local Docker-compatible daemon socket. All containers (running, stopped,
// paused) are enumerated and inspected; live CPU/memory/network stats are
// sampled for at most ten running containers per cycle so a large fleet
// cannot stretch the collect beyond its period.
package containers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidralabs/sidra/pkg/collector/internal/convert"
	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/defaults"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const (
	defaultSocketPath = "/var/run/docker.sock"

	// statsSampleLimit caps how many running containers get a live stats
	// read per cycle.
	statsSampleLimit = 10

	prefixContainer = "container:"
	subtypeDaemon   = "daemon"
)

// Option defines a configuration option for the containers Collector.
type Option func(*Collector)

// WithSocketPath overrides the daemon socket location.
func WithSocketPath(path string) Option {
	return func(c *Collector) {
		if path != "" {
			c.socketPath = path
		}
	}
}

// Collector samples container metrics via the daemon's HTTP API.
type Collector struct {
	host       string
	socketPath string

	clientOnce sync.Once
	client     *http.Client
}

// New creates a containers collector for the given host.
func New(hostname string, opts ...Option) *Collector {
	c := &Collector{
		host:       hostname,
		socketPath: defaultSocketPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Collector.
func (c *Collector) Name() string { return "containers" }

// Available implements Collector: true when the daemon socket exists.
func (c *Collector) Available() bool {
	info, err := os.Stat(c.socketPath)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

func (c *Collector) httpClient() *http.Client {
	c.clientOnce.Do(func() {
		c.client = &http.Client{
			Timeout: defaults.CollectorSubprocessTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, "unix", c.socketPath)
				},
			},
		}
	})
	return c.client
}

func (c *Collector) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://docker"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("containers: %s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiContainer is the subset of the daemon's list response we read.
type apiContainer struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Status string            `json:"Status"`
	Labels map[string]string `json:"Labels"`
}

func (a apiContainer) name() string {
	if len(a.Names) == 0 {
		return shortID(a.ID)
	}
	return strings.TrimPrefix(a.Names[0], "/")
}

// apiInspect is the subset of the daemon's inspect response we read.
type apiInspect struct {
	RestartCount int `json:"RestartCount"`
	State        struct {
		StartedAt string `json:"StartedAt"`
		Health    *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
}

// apiStats is the subset of the daemon's one-shot stats response we read.
type apiStats struct {
	CPUStats    cpuStats `json:"cpu_stats"`
	PreCPUStats cpuStats `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
	} `json:"memory_stats"`
	Networks map[string]struct {
		RxBytes uint64 `json:"rx_bytes"`
		TxBytes uint64 `json:"tx_bytes"`
	} `json:"networks"`
}

type cpuStats struct {
	CPUUsage struct {
		TotalUsage uint64 `json:"total_usage"`
	} `json:"cpu_usage"`
	SystemUsage uint64 `json:"system_cpu_usage"`
	OnlineCPUs  uint64 `json:"online_cpus"`
}

func (s apiStats) cpuPercent() float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || sysDelta <= 0 {
		return 0
	}
	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = 1
	}
	return cpuDelta / sysDelta * cpus * 100
}

// Collect enumerates containers, inspects each, and samples stats for up
// to statsSampleLimit running ones.
func (c *Collector) Collect(ctx context.Context) (*measurement.Measurement, error) {
	now := float64(time.Now().UnixNano()) / 1e9

	var list []apiContainer
	if err := c.get(ctx, "/containers/json?all=true", &list); err != nil {
		return nil, fmt.Errorf("containers: list: %w", err)
	}

	running, stopped, paused := 0, 0, 0
	subs := make([]measurement.Subtype, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsSampleLimit)

	sampled := 0
	for i, ctr := range list {
		switch ctr.State {
		case "running":
			running++
		case "paused":
			paused++
		default:
			stopped++
		}

		withStats := ctr.State == "running" && sampled < statsSampleLimit
		if withStats {
			sampled++
		}

		i, ctr := i, ctr
		g.Go(func() error {
			subs[i] = c.collectOne(gctx, ctr, withStats)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := measurement.NewMeasurement(measurement.TypeContainers).
		WithTimestamp(now).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder(subtypeDaemon).
			SetInt("containers-total", len(list)).
			SetInt("containers-running", running).
			SetInt("containers-paused", paused).
			SetInt("containers-stopped", stopped))
	for _, st := range subs {
		b.WithSubtype(st)
	}

	return b.Build(), nil
}

func (c *Collector) collectOne(ctx context.Context, ctr apiContainer, withStats bool) measurement.Subtype {
	b := measurement.NewSubtypeBuilder(prefixContainer + ctr.name()).
		SetString(measurement.KeyContainerID, shortID(ctr.ID)).
		SetString(measurement.KeyContainerName, ctr.name()).
		SetString(measurement.KeyContainerImage, ctr.Image).
		SetString(measurement.KeyContainerState, ctr.State).
		SetString(measurement.KeyServiceStatus, ctr.Status)

	var inspect apiInspect
	if err := c.get(ctx, "/containers/"+ctr.ID+"/json", &inspect); err == nil {
		b.SetInt(measurement.KeyRestartCount, inspect.RestartCount).
			SetString(measurement.KeyContainerStarted, inspect.State.StartedAt)
		if inspect.State.Health != nil {
			b.SetString(measurement.KeyContainerHealth, inspect.State.Health.Status)
		}
	}

	// Stats are best-effort: a hung stats read times out with the client
	// deadline and leaves the container entry without usage readings.
	if withStats {
		var stats apiStats
		if err := c.get(ctx, "/containers/"+ctr.ID+"/stats?stream=false&one-shot=true", &stats); err == nil {
			var rx, tx uint64
			for _, nic := range stats.Networks {
				rx += nic.RxBytes
				tx += nic.TxBytes
			}
			b.SetFloat64(measurement.KeyCPUPercent, stats.cpuPercent()).
				SetUint64(measurement.KeyMemUsed, stats.MemoryStats.Usage).
				SetUint64(measurement.KeyMemLimitBytes, stats.MemoryStats.Limit).
				SetUint64(measurement.KeyNetRxBytes, rx).
				SetUint64(measurement.KeyNetTxBytes, tx)
			if stats.MemoryStats.Limit > 0 {
				b.SetFloat64(measurement.KeyMemUsage,
					float64(stats.MemoryStats.Usage)/float64(stats.MemoryStats.Limit)*100)
			}
		}
	}

	return b.Build()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Metrics converts a containers snapshot to wire metric points.
func (c *Collector) Metrics(snap *measurement.Measurement) []telemetry.MetricPoint {
	e := convert.NewEmitter(snap.Timestamp, map[string]string{"host": c.host})

	for _, st := range snap.Subtypes {
		switch {
		case st.Name == subtypeDaemon:
			e.Value("sidra_docker_available", 1, nil)
			e.Gauge("sidra_docker_containers_total", st, "containers-total", nil)
			e.Gauge("sidra_docker_containers_running", st, "containers-running", nil)
			e.Gauge("sidra_docker_containers_stopped", st, "containers-stopped", nil)
		case strings.HasPrefix(st.Name, prefixContainer):
			name, _ := st.GetString(measurement.KeyContainerName)
			image, _ := st.GetString(measurement.KeyContainerImage)
			labels := map[string]string{"container": name, "image": image}

			state, _ := st.GetString(measurement.KeyContainerState)
			runningVal := 0.0
			if state == "running" {
				runningVal = 1.0
			}
			e.Value("sidra_container_running", runningVal, labels)
			e.Gauge("sidra_container_cpu_percent", st, measurement.KeyCPUPercent, labels)
			e.Gauge("sidra_container_memory_usage_bytes", st, measurement.KeyMemUsed, labels)
			e.Gauge("sidra_container_memory_percent", st, measurement.KeyMemUsage, labels)
			e.Gauge("sidra_container_restart_count", st, measurement.KeyRestartCount, labels)
		}
	}

	return e.Points()
}

// CheckThresholds raises alerts for unhealthy, crash-looping, and
// memory-pressured containers. The container rules are fixed contract, not
// part of the numeric rule maps.
func (c *Collector) CheckThresholds(snap *measurement.Measurement, _ rules.Rules) []telemetry.Alert {
	var alerts []telemetry.Alert

	for _, st := range snap.Subtypes {
		if !strings.HasPrefix(st.Name, prefixContainer) {
			continue
		}
		name, _ := st.GetString(measurement.KeyContainerName)
		labels := map[string]string{"container": name}

		if health, err := st.GetString(measurement.KeyContainerHealth); err == nil && health == "unhealthy" {
			alerts = append(alerts, telemetry.Alert{
				Metric:    "container_health",
				Value:     "unhealthy",
				Severity:  telemetry.SeverityHigh,
				Message:   fmt.Sprintf("Container %s is unhealthy", name),
				Host:      c.host,
				Timestamp: snap.Timestamp,
				Labels:    labels,
			})
		}

		state, _ := st.GetString(measurement.KeyContainerState)
		restarts, restartErr := st.GetInt64(measurement.KeyRestartCount)
		if state == "exited" && restartErr == nil && restarts > 0 {
			alerts = append(alerts, telemetry.Alert{
				Metric:    "container_exited",
				Value:     restarts,
				Severity:  telemetry.SeverityHigh,
				Message:   fmt.Sprintf("Container %s exited (restarts: %d)", name, restarts),
				Host:      c.host,
				Timestamp: snap.Timestamp,
				Labels:    labels,
			})
		}

		if memPct, err := st.GetFloat64(measurement.KeyMemUsage); err == nil && memPct > 90 {
			alerts = append(alerts, telemetry.Alert{
				Metric:    "container_memory",
				Value:     memPct,
				Threshold: 90.0,
				Severity:  telemetry.SeverityHigh,
				Message:   fmt.Sprintf("Container %s memory at %.1f%%", name, memPct),
				Host:      c.host,
				Timestamp: snap.Timestamp,
				Labels:    labels,
			})
		}
	}

	return alerts
}
