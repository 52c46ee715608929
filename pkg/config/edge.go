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

// Package config loads the edge agent's and central brain's configuration:
// defaults, overlaid by an optional YAML file, overlaid by environment
// variables (highest precedence below explicit CLI flags).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sidralabs/sidra/pkg/collector/rules"
)

// Environment variable overrides recognized by the edge agent.
const (
	EnvAgentID    = "SIDRA_AGENT_ID"
	EnvCentralURL = "SIDRA_CENTRAL_URL"
	EnvAPIKey     = "SIDRA_API_KEY"
	EnvLogLevel   = "SIDRA_LOG_LEVEL"
)

// CollectorConfig is the per-collector enablement and cadence.
type CollectorConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds
}

// SystemConfig configures the system collector.
type SystemConfig struct {
	CollectorConfig `yaml:",inline"`
	DiskPaths       []string `yaml:"disk_paths"`
}

// GPUConfig configures the GPU collector.
type GPUConfig struct {
	CollectorConfig `yaml:",inline"`
}

// DockerConfig configures the containers collector.
type DockerConfig struct {
	CollectorConfig `yaml:",inline"`
	SocketPath      string `yaml:"socket_path"`
}

// LogsConfig configures the logs collector.
type LogsConfig struct {
	CollectorConfig `yaml:",inline"`
	Paths           []string `yaml:"paths"`
	DockerLogs      bool     `yaml:"docker_logs"`
	MaxLinesPerBatch int     `yaml:"max_lines_per_batch"`
}

// ServicesConfig configures the services collector.
type ServicesConfig struct {
	CollectorConfig `yaml:",inline"`
	WatchServices   []string `yaml:"watch_services"`
}

// CollectorsConfig groups the five collectors.
type CollectorsConfig struct {
	System   SystemConfig   `yaml:"system"`
	GPU      GPUConfig      `yaml:"gpu"`
	Docker   DockerConfig   `yaml:"docker"`
	Logs     LogsConfig     `yaml:"logs"`
	Services ServicesConfig `yaml:"services"`
}

// BatchingConfig tunes the aggregator.
type BatchingConfig struct {
	BatchInterval     int  `yaml:"batch_interval"` // seconds
	MaxBatchSize      int  `yaml:"max_batch_size"`
	MaxBatchAge       int  `yaml:"max_batch_age"` // seconds
	CriticalImmediate bool `yaml:"critical_immediate"`
}

// BufferConfig tunes the durable buffer.
type BufferConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxSizeMB      int    `yaml:"max_size_mb"`
	RetentionHours int    `yaml:"retention_hours"`
}

// EdgeConfig is the root edge agent configuration.
type EdgeConfig struct {
	AgentID      string `yaml:"agent_id"`
	AgentVersion string `yaml:"-"`

	CentralURL        string `yaml:"central_url"`
	CentralTimeout    int    `yaml:"central_timeout"` // seconds
	CentralRetryCount int    `yaml:"central_retry_count"`
	CentralRetryDelay int    `yaml:"central_retry_delay"` // seconds
	APIKey            string `yaml:"api_key"`

	Collectors CollectorsConfig `yaml:"collectors"`
	Batching   BatchingConfig   `yaml:"batching"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Priority   rules.Rules      `yaml:"priority"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// DefaultEdgeConfig returns the built-in defaults.
func DefaultEdgeConfig() *EdgeConfig {
	hostname, _ := os.Hostname()
	return &EdgeConfig{
		AgentID:           hostname,
		CentralURL:        "http://localhost:8200",
		CentralTimeout:    30,
		CentralRetryCount: 3,
		CentralRetryDelay: 5,
		Collectors: CollectorsConfig{
			System: SystemConfig{
				CollectorConfig: CollectorConfig{Enabled: true, Interval: 10},
				DiskPaths:       []string{"/"},
			},
			GPU: GPUConfig{
				CollectorConfig: CollectorConfig{Enabled: true, Interval: 10},
			},
			Docker: DockerConfig{
				CollectorConfig: CollectorConfig{Enabled: true, Interval: 30},
				SocketPath:      "/var/run/docker.sock",
			},
			Logs: LogsConfig{
				CollectorConfig: CollectorConfig{Enabled: true, Interval: 30},
				Paths: []string{
					"/var/log/syslog",
					"/var/log/auth.log",
					"/var/log/kern.log",
				},
				DockerLogs:       true,
				MaxLinesPerBatch: 1000,
			},
			Services: ServicesConfig{
				CollectorConfig: CollectorConfig{Enabled: true, Interval: 60},
				WatchServices: []string{
					"docker",
					"sshd",
					"nginx",
					"postgresql",
					"redis",
				},
			},
		},
		Batching: BatchingConfig{
			BatchInterval:     30,
			MaxBatchSize:      100,
			MaxBatchAge:       60,
			CriticalImmediate: true,
		},
		Buffer: BufferConfig{
			Enabled:        true,
			Path:           "/var/lib/sidra-agent/buffer.db",
			MaxSizeMB:      100,
			RetentionHours: 24,
		},
		Priority: rules.Defaults(),
		LogLevel: "INFO",
	}
}

// LoadEdge builds the edge configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides.
func LoadEdge(path string) (*EdgeConfig, error) {
	cfg := DefaultEdgeConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		// Unmarshal over the defaults so absent file keys keep them.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
		// A tier the file names replaces that tier; unnamed tiers stay default.
		cfg.Priority = rules.Defaults().Merge(cfg.Priority)
	}

	applyEdgeEnv(cfg)

	if cfg.AgentID == "" {
		cfg.AgentID = "unknown"
	}
	return cfg, nil
}

func applyEdgeEnv(cfg *EdgeConfig) {
	if v := os.Getenv(EnvAgentID); v != "" {
		cfg.AgentID = v
	}
	if v := os.Getenv(EnvCentralURL); v != "" {
		cfg.CentralURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}
