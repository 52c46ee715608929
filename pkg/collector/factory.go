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

package collector

import (
	"github.com/sidralabs/sidra/pkg/collector/containers"
	"github.com/sidralabs/sidra/pkg/collector/gpu"
	"github.com/sidralabs/sidra/pkg/collector/logs"
	"github.com/sidralabs/sidra/pkg/collector/services"
	"github.com/sidralabs/sidra/pkg/collector/system"
)

// Factory defines the interface for creating collector instances.
// Implementations of Factory provide configured collectors for the five edge
// samplers. This interface enables dependency injection and facilitates
// testing by allowing mock collectors.
type Factory interface {
	CreateSystemCollector() Collector
	CreateGPUCollector() Collector
	CreateContainersCollector() Collector
	CreateLogsCollector() Collector
	CreateServicesCollector() Collector
}

// Option defines a configuration option for DefaultFactory.
type Option func(*DefaultFactory)

// WithHost sets the host label stamped on every metric and alert the
// collectors emit.
func WithHost(host string) Option {
	return func(f *DefaultFactory) {
		f.Host = host
	}
}

// WithDiskPaths restricts the system collector's disk sampling to the given
// mount points. Empty means all non-special mounts.
func WithDiskPaths(paths []string) Option {
	return func(f *DefaultFactory) {
		f.DiskPaths = paths
	}
}

// WithLogPaths configures the files the log collector tail-follows.
func WithLogPaths(paths []string) Option {
	return func(f *DefaultFactory) {
		f.LogPaths = paths
	}
}

// WithDockerLogs toggles log collection from container stdout/stderr.
func WithDockerLogs(enabled bool) Option {
	return func(f *DefaultFactory) {
		f.DockerLogs = enabled
	}
}

// WithDockerSocket overrides the docker-compatible daemon socket path.
func WithDockerSocket(path string) Option {
	return func(f *DefaultFactory) {
		f.DockerSocket = path
	}
}

// WithWatchServices configures the systemd units the services collector
// monitors, replacing the defaults.
func WithWatchServices(names []string) Option {
	return func(f *DefaultFactory) {
		f.WatchServices = names
	}
}

// DefaultFactory is the standard implementation of Factory that creates
// collectors with production dependencies.
type DefaultFactory struct {
	Host          string
	DiskPaths     []string
	LogPaths      []string
	DockerLogs    bool
	DockerSocket  string
	WatchServices []string
}

// NewDefaultFactory creates a new DefaultFactory with default configuration.
// Additional configuration can be provided via functional options.
func NewDefaultFactory(opts ...Option) *DefaultFactory {
	f := &DefaultFactory{
		LogPaths: []string{
			"/var/log/syslog",
			"/var/log/auth.log",
			"/var/log/kern.log",
		},
		DockerLogs:   true,
		DockerSocket: "/var/run/docker.sock",
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateSystemCollector creates the CPU/memory/disk/network sampler.
func (f *DefaultFactory) CreateSystemCollector() Collector {
	return system.New(f.Host, system.WithDiskPaths(f.DiskPaths))
}

// CreateGPUCollector creates the nvidia-smi-backed GPU sampler.
func (f *DefaultFactory) CreateGPUCollector() Collector {
	return gpu.New(f.Host)
}

// CreateContainersCollector creates the docker-socket container sampler.
func (f *DefaultFactory) CreateContainersCollector() Collector {
	return containers.New(f.Host, containers.WithSocketPath(f.DockerSocket))
}

// CreateLogsCollector creates the tail-follow log sampler.
func (f *DefaultFactory) CreateLogsCollector() Collector {
	return logs.New(f.Host,
		logs.WithPaths(f.LogPaths),
		logs.WithDockerLogs(f.DockerLogs),
	)
}

// CreateServicesCollector creates the systemd unit and process sampler.
func (f *DefaultFactory) CreateServicesCollector() Collector {
	return services.New(f.Host, services.WithWatchServices(f.WatchServices))
}
