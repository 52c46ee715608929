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

package defaults

import "time"

// Collector timeouts for data collection operations.
const (
	// CollectorTimeout is the default timeout for a single collector cycle.
	// Collectors should respect parent context deadlines when shorter.
	CollectorTimeout = 10 * time.Second

	// CollectorSubprocessTimeout bounds collectors that shell out (nvidia-smi,
	// docker, ps) so a hung child process cannot stall the scheduling loop.
	CollectorSubprocessTimeout = 5 * time.Second
)

// Server timeouts for HTTP server configuration.
const (
	// ServerReadTimeout is the maximum duration for reading request headers.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	ServerWriteTimeout = 30 * time.Second

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// HTTP client timeouts for outbound requests (sender -> central, fan-out writers -> downstream).
const (
	// HTTPClientTimeout is the default total timeout for HTTP requests.
	HTTPClientTimeout = 30 * time.Second

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second

	// HTTPExpectContinueTimeout is the timeout for Expect: 100-continue.
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Edge agent scheduling defaults.
const (
	// DefaultBatchInterval is how often the aggregator's current batch is
	// force-flushed even if it never reached max size.
	DefaultBatchInterval = 30 * time.Second

	// DefaultMaxBatchAge is the aggregator's own age-based flush trigger,
	// checked on every add (see pkg/aggregator).
	DefaultMaxBatchAge = 60 * time.Second

	// DefaultBufferFlushInterval is how often the supervisor attempts to
	// drain the durable buffer back to the central brain.
	DefaultBufferFlushInterval = 5 * time.Minute

	// DefaultHealthReportInterval is how often the agent emits its own
	// health/buffer-depth metrics.
	DefaultHealthReportInterval = 60 * time.Second

	// DefaultRetryDelay is the base delay for the sender's exponential backoff.
	DefaultRetryDelay = 5 * time.Second

	// DefaultRetryCount is the number of retry attempts before a batch is buffered.
	DefaultRetryCount = 3

	// DefaultRateLimitRetryAfter is used when a 429 response carries no
	// Retry-After header.
	DefaultRateLimitRetryAfter = 60 * time.Second
)

// Buffer retention defaults.
const (
	// BufferRetentionAge is how long an item may sit in the durable buffer
	// before the retention sweep discards it as stale.
	BufferRetentionAge = 24 * time.Hour

	// BufferFlushBatchLimit bounds how many items a single flush pass reads.
	BufferFlushBatchLimit = 100
)
