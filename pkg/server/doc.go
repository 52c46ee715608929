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

// Package server provides a reusable HTTP server shell: rate limiting,
// request-ID propagation, panic recovery, structured logging, health/ready
// probes, Prometheus metrics, and graceful shutdown.
//
// # Usage
//
//	s := server.New(
//	    server.WithName("sidra-central"),
//	    server.WithVersion(version),
//	    server.WithHandler(map[string]http.HandlerFunc{
//	        "/api/v1/ingest/metrics": handleIngestMetrics,
//	    }),
//	)
//	if err := s.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Every handler registered via WithHandler is wrapped with the same
// middleware chain: metrics -> version -> request ID -> panic recovery ->
// rate limit -> logging. /health, /ready, and /metrics bypass rate limiting.
//
// # Error Handling
//
// Handlers signal errors through WriteError or WriteErrorFromErr, which
// produce a consistent JSON envelope:
//
//	{
//	  "code": "INVALID_REQUEST",
//	  "message": "missing host label",
//	  "requestId": "...",
//	  "timestamp": "...",
//	  "retryable": false
//	}
package server
