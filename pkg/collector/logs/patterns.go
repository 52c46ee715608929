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

package logs

import (
	"regexp"
	"strings"

	"github.com/sidralabs/sidra/pkg/telemetry"
)

// levelPatterns classify a line by the first matching word set; order is
// most-severe first so a line saying "ERROR ... WARNING" classifies as error.
var levelPatterns = []struct {
	level   telemetry.LogLevel
	pattern *regexp.Regexp
}{
	{telemetry.LogLevelCritical, regexp.MustCompile(`(?i)\b(CRITICAL|FATAL|PANIC|EMERGENCY)\b`)},
	{telemetry.LogLevelError, regexp.MustCompile(`(?i)\b(ERROR|ERR|FAIL|FAILED|EXCEPTION)\b`)},
	{telemetry.LogLevelWarning, regexp.MustCompile(`(?i)\b(WARNING|WARN|ALERT)\b`)},
	{telemetry.LogLevelInfo, regexp.MustCompile(`(?i)\b(INFO|NOTICE|DEBUG)\b`)},
}

// noisePatterns drop lines that carry no signal: blanks, comments,
// healthcheck pings, and successful HTTP requests.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*$`),
	regexp.MustCompile(`^#`),
	regexp.MustCompile(`(?i)healthcheck`),
	regexp.MustCompile(`(?i)GET /health`),
	regexp.MustCompile(`HTTP/1\.[01]" 200`),
}

// importantPatterns force retention regardless of detected level.
var importantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)out of memory`),
	regexp.MustCompile(`(?i)killed process`),
	regexp.MustCompile(`(?i)segfault`),
	regexp.MustCompile(`(?i)kernel panic`),
	regexp.MustCompile(`(?i)disk full`),
	regexp.MustCompile(`(?i)connection refused`),
	regexp.MustCompile(`(?i)permission denied`),
	regexp.MustCompile(`(?i)authentication fail`),
	regexp.MustCompile(`(?i)ssl.*error`),
	regexp.MustCompile(`(?i)certificate.*expir`),
}

func detectLevel(line string) telemetry.LogLevel {
	for _, lp := range levelPatterns {
		if lp.pattern.MatchString(line) {
			return lp.level
		}
	}
	return telemetry.LogLevelInfo
}

func isNoise(line string) bool {
	for _, p := range noisePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func isImportant(line string) bool {
	for _, p := range importantPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// keep reports whether a classified line survives filtering: anything at
// warning or above, plus important lines of any level.
func keep(line string, level telemetry.LogLevel) bool {
	switch level {
	case telemetry.LogLevelCritical, telemetry.LogLevelError, telemetry.LogLevelWarning:
		return true
	default:
		return isImportant(line)
	}
}

// serviceFromPath extracts a service name from a log file path:
// /var/log/nginx/error.log -> nginx. Files directly under the log
// directory have no service.
func serviceFromPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "log" && i+2 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
