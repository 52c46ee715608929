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

// Package measurement provides the snapshot representation shared by all
// edge collectors: typed key-value readings grouped into named subtypes.
//
// # Core Types
//
// The package defines a hierarchical structure for snapshots:
//   - Type: enum identifying the collector source (system, gpu, containers, logs, services)
//   - Measurement: contains a Type and a slice of Subtypes
//   - Subtype: named collection of key-value data (e.g., "cpu", "disk:/", "gpu:0")
//   - Reading: interface for type-safe scalar values (int, float64, string, bool, etc.)
//
// # Creating Measurements
//
// Use convenience constructors to create readings:
//
//	m := &Measurement{
//	    Type: TypeSystem,
//	    Subtypes: []Subtype{
//	        {
//	            Name: "cpu",
//	            Data: map[string]Reading{
//	                KeyCPUUsage: Float64(42.5),
//	                KeyCPUCores: Int(16),
//	                KeyLoad1:    Float64(1.2),
//	            },
//	        },
//	    },
//	}
//
// Or use the builder pattern for cleaner code:
//
//	m := NewMeasurement(TypeSystem).
//	    WithSubtype(
//	        NewSubtypeBuilder("cpu").
//	            SetFloat64(KeyCPUUsage, 42.5).
//	            SetInt(KeyCPUCores, 16).
//	            Build(),
//	    )
//
// # Accessing Data
//
// Use type-safe getters to retrieve values:
//
//	usage, err := m.GetSubtype("cpu").GetFloat64(KeyCPUUsage)
//	cores, err := m.GetSubtype("cpu").GetInt64(KeyCPUCores)
//
// # Comparing Measurements
//
// Compare two snapshots of the same type to find what changed between
// collect cycles (the supervisor logs these deltas at debug level):
//
//	diffs, err := Compare(previous, current)
//	for _, diff := range diffs {
//	    fmt.Printf("Subtype %s changed\n", diff.Name)
//	}
//
// # Filtering Data
//
// Filter noisy or unwanted keys using wildcard patterns:
//
//	// Remove all keys containing "password" or starting with "secret"
//	filtered := FilterOut(readings, []string{"*password*", "secret*"})
//
//	// Keep only usage and count fields
//	kept := FilterIn(readings, []string{"*-percent", "*-count"})
//
// # Serialization
//
// Measurements support JSON and YAML marshaling/unmarshaling:
//
//	data, _ := json.Marshal(m)
//	yaml, _ := yaml.Marshal(m)
//
// The Reading interface is automatically marshaled to its underlying value,
// avoiding wrapper structures in the output.
package measurement
