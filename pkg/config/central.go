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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides recognized by the central brain.
const (
	EnvTSDBURL            = "VICTORIAMETRICS_URL"
	EnvEventStoreURL      = "OPENOBSERVE_URL"
	EnvEventStoreUser     = "OPENOBSERVE_USER"
	EnvEventStorePassword = "OPENOBSERVE_PASSWORD"
)

// CentralConfig is the root central brain configuration.
type CentralConfig struct {
	Port int `yaml:"port"`

	TSDBURL string `yaml:"tsdb_url"`

	EventStoreURL      string `yaml:"event_store_url"`
	EventStoreUser     string `yaml:"event_store_user"`
	EventStorePassword string `yaml:"event_store_password"`
	EventStoreOrg      string `yaml:"event_store_org"`

	AlertCacheSize int `yaml:"alert_cache_size"`

	LogLevel string `yaml:"log_level"`
}

// DefaultCentralConfig returns the built-in defaults.
func DefaultCentralConfig() *CentralConfig {
	return &CentralConfig{
		Port:           8200,
		TSDBURL:        "http://localhost:8428",
		EventStoreURL:  "http://localhost:5080",
		EventStoreUser: "admin@sidra.local",
		EventStoreOrg:  "default",
		AlertCacheSize: 1000,
		LogLevel:       "INFO",
	}
}

// LoadCentral builds the central configuration: defaults, then the YAML
// file at path (skipped when empty), then environment overrides.
func LoadCentral(path string) (*CentralConfig, error) {
	cfg := DefaultCentralConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if v := os.Getenv(EnvTSDBURL); v != "" {
		cfg.TSDBURL = v
	}
	if v := os.Getenv(EnvEventStoreURL); v != "" {
		cfg.EventStoreURL = v
	}
	if v := os.Getenv(EnvEventStoreUser); v != "" {
		cfg.EventStoreUser = v
	}
	if v := os.Getenv(EnvEventStorePassword); v != "" {
		cfg.EventStorePassword = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
