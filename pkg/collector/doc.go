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

// Package collector provides interfaces and implementations for the edge
// agent's five samplers: system, GPU, containers, logs, and services.
//
// # Core Interface
//
// The Collector interface defines the uniform contract:
//
//	type Collector interface {
//	    Name() string
//	    Available() bool
//	    Collect(ctx context.Context) (*measurement.Measurement, error)
//	    Metrics(snap *measurement.Measurement) []telemetry.MetricPoint
//	    CheckThresholds(snap *measurement.Measurement, r rules.Rules) []telemetry.Alert
//	}
//
// Collectors are independent: one failing must not stop the others, and
// every Collect is bounded by its context so a hung subprocess or slow
// system call cannot stall the supervisor's scheduling loop.
//
// # Factory Pattern
//
// The Factory interface enables dependency injection and testing by
// abstracting collector creation:
//
//	factory := collector.NewDefaultFactory(
//	    collector.WithHost("db-01"),
//	    collector.WithWatchServices([]string{"docker", "sshd", "postgresql"}),
//	)
//	sys := factory.CreateSystemCollector()
//
// # Available Collectors
//
// System (system): CPU total/per-core percent, 1/5/15-minute load, memory
// and swap, per-mount disk usage with root I/O counters, network interface
// counters, uptime, process count.
//
// GPU (gpu): nvidia-smi single-invocation CSV query for temperature,
// utilization, memory, power, fan, PCIe link, plus compute process
// enumeration. Degrades gracefully when the tool is absent.
//
// Containers (containers): enumerates all containers via the docker socket,
// inspects health/restart-count/labels, and samples CPU/memory/network
// stats for up to ten running containers per cycle.
//
// Logs (logs): tail-follows configured files and recent container output,
// tracking byte offsets and restarting from zero on rotation; classifies
// lines by level, drops noise, and always retains important patterns.
//
// Services (services): queries systemd over D-Bus for the watched units'
// active/running/enabled/restart-count state and the full failed-unit
// list, and scans for critical processes.
//
// # Threshold Rules
//
// The rules subpackage carries the critical/high/warning threshold maps
// evaluated by CheckThresholds. rules.Defaults returns the contract
// defaults (cpu_usage 95/85/70, memory_usage 95/85/80, disk_usage
// 95/90/80, gpu_temp 90/85, gpu_memory 98/95).
package collector
