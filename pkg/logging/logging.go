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

// Package logging provides structured logging defaults shared by the edge
// agent and the central brain binaries.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewStructuredLogger builds a slog.Logger that writes JSON to stderr, tagging
// every record with the component name and version. Level defaults to INFO
// unless overridden by the LOG_LEVEL environment variable or explicitLevel.
func NewStructuredLogger(name, version string, explicitLevel string) *slog.Logger {
	level := explicitLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: parseLevel(level) == slog.LevelDebug,
	}

	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler).With(
		slog.String("component", name),
		slog.String("version", version),
	)
}

// SetDefaultStructuredLogger installs a structured logger as the slog default,
// deriving its level from LOG_LEVEL.
func SetDefaultStructuredLogger(name, version string) {
	slog.SetDefault(NewStructuredLogger(name, version, ""))
}

// SetDefaultStructuredLoggerWithLevel installs a structured logger with an
// explicit level, ignoring LOG_LEVEL.
func SetDefaultStructuredLoggerWithLevel(name, version, level string) {
	slog.SetDefault(NewStructuredLogger(name, version, level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
