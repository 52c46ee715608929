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

// Package defaults provides centralized configuration constants for the
// telemetry pipeline.
//
// This package defines timeout values, retry parameters, and other
// configuration defaults used across the codebase. Centralizing these values
// ensures consistency and makes tuning easier.
//
// # Timeout Categories
//
// Timeouts are organized by component:
//
//   - Collector timeouts: for sampling and subprocess invocations
//   - Server timeouts: for the central brain's HTTP server
//   - HTTP client timeouts: for outbound requests (sender, fan-out writers)
//   - Edge scheduling defaults: batch, flush, and health-report cadences
//   - Buffer retention defaults: durable buffer sweep parameters
//
// # Usage
//
// Import and use constants directly:
//
//	import "github.com/sidralabs/sidra/pkg/defaults"
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.CollectorTimeout)
//	defer cancel()
//
// # Timeout Guidelines
//
// When choosing timeout values:
//
//   - Collectors: 10s per cycle, 5s per subprocess, respects parent deadline
//   - Sender: 30s total per request with exponential retry backoff
//   - Server shutdown: 30s for graceful shutdown
package defaults
