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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/sidralabs/sidra/pkg/measurement"
)

// Filesystem types that carry no capacity signal worth sampling.
var skipFilesystems = map[string]struct{}{
	"squashfs": {},
	"tmpfs":    {},
	"devtmpfs": {},
}

// Interface prefixes for loopback and virtual devices.
var skipInterfacePrefixes = []string{"lo", "veth", "docker", "br-"}

// Subtype name prefixes used in the snapshot.
const (
	subtypeCPU    = "cpu"
	subtypeMemory = "memory"
	subtypeHost   = "host"
	prefixDisk    = "disk:"
	prefixNet     = "net:"
	prefixCore    = "core-"
)

// Option defines a configuration option for the system Collector.
type Option func(*Collector)

// WithDiskPaths restricts disk sampling to the given mount points. Empty
// means every non-special mount found on the host.
func WithDiskPaths(paths []string) Option {
	return func(c *Collector) {
		c.diskPaths = paths
	}
}

// Collector samples CPU, memory, disk, network, and load metrics.
type Collector struct {
	host      string
	diskPaths []string
}

// New creates a system collector stamping metrics with the given host.
func New(hostname string, opts ...Option) *Collector {
	c := &Collector{host: hostname}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Collector.
func (c *Collector) Name() string { return "system" }

// Available implements Collector. System sampling is always possible.
func (c *Collector) Available() bool { return true }

// Collect gathers one snapshot. CPU, memory, disk, and network samples run
// concurrently so a slow device never serializes the whole cycle.
func (c *Collector) Collect(ctx context.Context) (*measurement.Measurement, error) {
	now := time.Now()

	var (
		cpuSub  measurement.Subtype
		memSub  measurement.Subtype
		disks   []measurement.Subtype
		netSubs []measurement.Subtype
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cpuSub, err = c.collectCPU(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		memSub, err = collectMemory(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		disks, err = c.collectDisks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		netSubs, err = collectNetwork(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hostSub := measurement.NewSubtypeBuilder(subtypeHost).
		SetString(measurement.KeyHostname, c.host)
	if boot, err := host.BootTimeWithContext(ctx); err == nil {
		hostSub.SetFloat64(measurement.KeyUptime, now.Sub(time.Unix(int64(boot), 0)).Seconds())
	}
	if pids, err := process.PidsWithContext(ctx); err == nil {
		hostSub.SetInt(measurement.KeyProcessCount, len(pids))
	}

	b := measurement.NewMeasurement(measurement.TypeSystem).
		WithTimestamp(float64(now.UnixNano()) / 1e9).
		WithSubtype(cpuSub).
		WithSubtype(memSub)
	for _, d := range disks {
		b.WithSubtype(d)
	}
	for _, n := range netSubs {
		b.WithSubtype(n)
	}
	b.WithSubtypeBuilder(hostSub)

	return b.Build(), nil
}

func (c *Collector) collectCPU(ctx context.Context) (measurement.Subtype, error) {
	b := measurement.NewSubtypeBuilder(subtypeCPU)

	total, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		return measurement.Subtype{}, fmt.Errorf("cpu percent: %w", err)
	}
	if len(total) > 0 {
		b.SetFloat64(measurement.KeyCPUUsage, total[0])
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		b.SetInt(measurement.KeyCPUCores, cores)
	}

	if perCore, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, true); err == nil {
		for i, v := range perCore {
			b.SetFloat64(fmt.Sprintf("%s%d", prefixCore, i), v)
		}
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		b.SetFloat64(measurement.KeyLoad1, avg.Load1)
		b.SetFloat64(measurement.KeyLoad5, avg.Load5)
		b.SetFloat64(measurement.KeyLoad15, avg.Load15)
	}

	return b.Build(), nil
}

func collectMemory(ctx context.Context) (measurement.Subtype, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return measurement.Subtype{}, fmt.Errorf("virtual memory: %w", err)
	}

	b := measurement.NewSubtypeBuilder(subtypeMemory).
		SetUint64(measurement.KeyMemTotal, vm.Total).
		SetUint64(measurement.KeyMemUsed, vm.Used).
		SetUint64(measurement.KeyMemAvailable, vm.Available).
		SetFloat64(measurement.KeyMemUsage, vm.UsedPercent)

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		b.SetUint64(measurement.KeySwapTotal, swap.Total).
			SetUint64(measurement.KeySwapUsed, swap.Used).
			SetFloat64(measurement.KeySwapUsage, swap.UsedPercent)
	}

	return b.Build(), nil
}

func (c *Collector) collectDisks(ctx context.Context) ([]measurement.Subtype, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("disk partitions: %w", err)
	}

	wanted := make(map[string]struct{}, len(c.diskPaths))
	for _, p := range c.diskPaths {
		wanted[p] = struct{}{}
	}

	var subs []measurement.Subtype
	for _, part := range parts {
		if _, skip := skipFilesystems[part.Fstype]; skip {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[part.Mountpoint]; !ok {
				continue
			}
		}

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			// Unreadable mounts (stale NFS, permissions) are skipped, not fatal.
			slog.Debug("disk usage unavailable", "mount", part.Mountpoint, "error", err)
			continue
		}

		b := measurement.NewSubtypeBuilder(prefixDisk + part.Mountpoint).
			SetString(measurement.KeyPath, part.Mountpoint).
			SetUint64(measurement.KeyTotalBytes, usage.Total).
			SetUint64(measurement.KeyUsedBytes, usage.Used).
			SetUint64(measurement.KeyFreeBytes, usage.Free).
			SetFloat64(measurement.KeyUsagePercent, usage.UsedPercent)

		if part.Mountpoint == "/" {
			if io, err := disk.IOCountersWithContext(ctx); err == nil {
				for name, counters := range io {
					if !strings.HasPrefix(name, "sd") && !strings.HasPrefix(name, "nvme") && !strings.HasPrefix(name, "vd") {
						continue
					}
					b.SetUint64(measurement.KeyReadBytes, counters.ReadBytes).
						SetUint64(measurement.KeyWriteBytes, counters.WriteBytes).
						SetUint64(measurement.KeyReadCount, counters.ReadCount).
						SetUint64(measurement.KeyWriteCount, counters.WriteCount)
					break
				}
			}
		}

		subs = append(subs, b.Build())
	}

	return subs, nil
}

func collectNetwork(ctx context.Context) ([]measurement.Subtype, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("net io counters: %w", err)
	}

	var subs []measurement.Subtype
	for _, nic := range counters {
		if skipInterface(nic.Name) {
			continue
		}
		subs = append(subs, measurement.NewSubtypeBuilder(prefixNet+nic.Name).
			SetString(measurement.KeyInterface, nic.Name).
			SetUint64(measurement.KeyBytesSent, nic.BytesSent).
			SetUint64(measurement.KeyBytesRecv, nic.BytesRecv).
			SetUint64(measurement.KeyPacketsSent, nic.PacketsSent).
			SetUint64(measurement.KeyPacketsRecv, nic.PacketsRecv).
			SetUint64(measurement.KeyErrorsIn, nic.Errin).
			SetUint64(measurement.KeyErrorsOut, nic.Errout).
			SetUint64(measurement.KeyDropsIn, nic.Dropin).
			SetUint64(measurement.KeyDropsOut, nic.Dropout).
			Build())
	}

	return subs, nil
}

func skipInterface(name string) bool {
	for _, prefix := range skipInterfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
