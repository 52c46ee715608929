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

// Package serializer provides encoding of telemetry data to multiple wire
// and display formats, plus a small HTTP client used by outbound senders
// and fan-out writers.
//
// # Overview
//
// Serialize turns a value into JSON, YAML, or a human-readable table. The
// edge agent uses it for diagnostic dumps. The central brain's fan-out
// writers (see pkg/central) take only HttpReader's HTTP client from this
// package and encode their Prometheus-text and OpenObserve-JSON payloads
// themselves, outside the Serializer interface.
//
// # Core Types
//
// Format: enum of output formats (JSON, YAML, Table).
//
// Serializer: the common interface, implemented by Writer.
//
//	type Serializer interface {
//	    Serialize(ctx context.Context, v any) error
//	}
//
// # Usage
//
//	w := serializer.NewStdoutWriter(serializer.FormatYAML)
//	if err := w.Serialize(ctx, batch); err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := serializer.NewFileWriterOrStdout(serializer.FormatJSON, "-")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
// # HttpReader
//
// HttpReader is a functional-options HTTP client used for outbound requests
// (sender -> central, fan-out writers -> downstream store), with separate
// connect, TLS handshake, and total timeouts.
package serializer
