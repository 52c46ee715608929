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

// Package services monitors systemd units over D-Bus and scans for critical
// processes. If D-Bus is not available (minimal containers, non-systemd
// hosts), unit data degrades to an availability flag while the process scan
// still runs.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/sidralabs/sidra/pkg/measurement"
)

// Default units to watch when the config names none.
var defaultWatchServices = []string{
	"docker",
	"sshd",
	"nginx",
	"postgresql",
	"redis",
}

// Process names always worth tracking even when they are not units.
var criticalProcessNames = []string{
	"dockerd",
	"containerd",
	"ollama",
	"python",
	"node",
	"java",
	"postgres",
	"redis-server",
	"nginx",
	"gunicorn",
	"uvicorn",
}

// Unit properties the snapshot keeps; everything else systemd reports is
// noise for monitoring purposes.
var wantedUnitProps = []string{
	"ActiveState",
	"SubState",
	"Description",
	"MainPID",
	"MemoryCurrent",
	"NRestarts",
	"UnitFileState",
	"StateChangeTimestamp",
}

const (
	subtypeSystemd = "systemd"
	prefixService  = "service:"
	prefixProcess  = "proc:"

	keySystemdAvailable = "systemd-available"
	keyFailedUnits      = "failed-units"
	keyFailedCount      = "failed-count"
)

// Option defines a configuration option for the services Collector.
type Option func(*Collector)

// WithWatchServices replaces the default watched unit list.
func WithWatchServices(names []string) Option {
	return func(c *Collector) {
		if len(names) > 0 {
			c.watch = names
		}
	}
}

// Collector samples systemd unit state and critical process info.
type Collector struct {
	host  string
	watch []string

	// newConn is swapped in tests.
	newConn func(ctx context.Context) (systemdConn, error)
}

// systemdConn is the slice of the dbus connection the collector uses.
type systemdConn interface {
	GetAllPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error)
	ListUnitsFilteredContext(ctx context.Context, states []string) ([]dbus.UnitStatus, error)
	Close()
}

// New creates a services collector for the given host.
func New(hostname string, opts ...Option) *Collector {
	c := &Collector{
		host:  hostname,
		watch: defaultWatchServices,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.newConn = func(ctx context.Context) (systemdConn, error) {
		return dbus.NewSystemdConnectionContext(ctx)
	}
	return c
}

// Name implements Collector.
func (c *Collector) Name() string { return "services" }

// Available implements Collector. The process scan always works, so the
// collector as a whole is always available; D-Bus absence degrades inside
// Collect instead.
func (c *Collector) Available() bool { return true }

// Collect gathers unit status for the watched services, the full failed
// unit list, and the critical process scan.
func (c *Collector) Collect(ctx context.Context) (*measurement.Measurement, error) {
	now := float64(time.Now().UnixNano()) / 1e9

	b := measurement.NewMeasurement(measurement.TypeServices).WithTimestamp(now)

	conn, err := c.newConn(ctx)
	if err != nil {
		slog.Warn("D-Bus not available, skipping systemd unit collection",
			slog.String("error", err.Error()))
		b.WithSubtypeBuilder(measurement.NewSubtypeBuilder(subtypeSystemd).
			SetBool(keySystemdAvailable, false).
			SetInt(keyFailedCount, 0))
	} else {
		defer conn.Close()
		c.collectUnits(ctx, conn, b)
	}

	for _, st := range collectProcesses(ctx) {
		b.WithSubtype(st)
	}

	return b.Build(), nil
}

func (c *Collector) collectUnits(ctx context.Context, conn systemdConn, b *measurement.MeasurementBuilder) {
	sysSub := measurement.NewSubtypeBuilder(subtypeSystemd).
		SetBool(keySystemdAvailable, true)

	if failed, err := conn.ListUnitsFilteredContext(ctx, []string{"failed"}); err == nil {
		names := make([]string, 0, len(failed))
		for _, u := range failed {
			names = append(names, u.Name)
		}
		sysSub.SetInt(keyFailedCount, len(names)).
			SetString(keyFailedUnits, strings.Join(names, ","))
	} else {
		sysSub.SetInt(keyFailedCount, 0)
	}
	b.WithSubtypeBuilder(sysSub)

	for _, name := range c.watch {
		unit := name
		if !strings.Contains(unit, ".") {
			unit += ".service"
		}

		props, err := conn.GetAllPropertiesContext(ctx, unit)
		if err != nil {
			slog.Debug("unit properties unavailable", "unit", unit, "error", err)
			continue
		}

		readings := make(map[string]measurement.Reading, len(props))
		for k, v := range props {
			readings[k] = measurement.ToReading(v)
		}
		readings = measurement.FilterIn(readings, wantedUnitProps)

		activeState := readingString(readings["ActiveState"])
		subState := readingString(readings["SubState"])
		unitFileState := readingString(readings["UnitFileState"])

		// A unit systemd has never heard of reports inactive/dead with no
		// unit file; skip it instead of alerting on a service the host
		// simply does not run.
		if activeState == "inactive" && subState == "dead" && unitFileState == "" {
			continue
		}

		sub := measurement.NewSubtypeBuilder(prefixService + name).
			SetString(measurement.KeyServiceName, name).
			SetString(measurement.KeyServiceState, activeState).
			SetString(measurement.KeySubState, subState).
			SetString(measurement.KeyDescription, readingString(readings["Description"])).
			SetBool(measurement.KeyActive, activeState == "active").
			SetBool(measurement.KeyRunning, subState == "running").
			SetBool(measurement.KeyEnabled, unitFileState == "enabled")

		if pid, ok := readingUint64(readings["MainPID"]); ok && pid > 0 {
			sub.SetUint64(measurement.KeyMainPID, pid)
		}
		if mem, ok := readingUint64(readings["MemoryCurrent"]); ok && mem < 1<<62 {
			// systemd reports math.MaxUint64 for "[not set]".
			sub.SetUint64(measurement.KeyMemoryBytes, mem)
		}
		if restarts, ok := readingUint64(readings["NRestarts"]); ok {
			sub.SetUint64(measurement.KeyRestartCount, restarts)
		}

		b.WithSubtypeBuilder(sub)
	}
}

func collectProcesses(ctx context.Context) []measurement.Subtype {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil
	}

	var subs []measurement.Subtype
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !isCriticalProcess(name) {
			continue
		}

		sub := measurement.NewSubtypeBuilder(fmt.Sprintf("%s%d", prefixProcess, p.Pid)).
			SetInt(measurement.KeyPID, int(p.Pid)).
			SetString(measurement.KeyName, name)

		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			sub.SetFloat64(measurement.KeyCPUPercent, cpu)
		}
		if memPct, err := p.MemoryPercentWithContext(ctx); err == nil {
			sub.SetFloat64(measurement.KeyMemPercent, float64(memPct))
		}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			sub.SetUint64(measurement.KeyRSSBytes, mi.RSS)
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil {
			sub.SetFloat64(measurement.KeyCreateTime, float64(created)/1000)
		}
		if user, err := p.UsernameWithContext(ctx); err == nil {
			sub.SetString(measurement.KeyUser, user)
		}
		if cmd, err := p.CmdlineWithContext(ctx); err == nil {
			if len(cmd) > 200 {
				cmd = cmd[:200]
			}
			sub.SetString(measurement.KeyCmdline, cmd)
		}

		subs = append(subs, sub.Build())
	}

	return subs
}

func isCriticalProcess(name string) bool {
	lower := strings.ToLower(name)
	for _, critical := range criticalProcessNames {
		if strings.Contains(lower, critical) {
			return true
		}
	}
	return false
}

func readingString(r measurement.Reading) string {
	if r == nil {
		return ""
	}
	s, _ := r.Any().(string)
	return s
}

func readingUint64(r measurement.Reading) (uint64, bool) {
	v, ok := measurement.AsFloat64(r)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}
