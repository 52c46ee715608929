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

// Package logs tail-follows a configured set of files plus recent container
// output, classifying each line by level and dropping noise. Per-file byte
// positions live in memory only; a file shorter than its stored offset is
// treated as rotated and read from the start again.
package logs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sidralabs/sidra/pkg/collector/internal/convert"
	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/defaults"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const (
	defaultMaxLines = 1000

	// dockerContainerLimit bounds how many containers get a log read per cycle.
	dockerContainerLimit = 20
)

// Option defines a configuration option for the logs Collector.
type Option func(*Collector)

// WithPaths sets the files to tail-follow, replacing the defaults.
func WithPaths(paths []string) Option {
	return func(c *Collector) {
		if len(paths) > 0 {
			c.paths = paths
		}
	}
}

// WithDockerLogs toggles reading recent container stdout/stderr.
func WithDockerLogs(enabled bool) Option {
	return func(c *Collector) { c.dockerLogs = enabled }
}

// WithMaxLines overrides the per-cycle line budget.
func WithMaxLines(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxLines = n
		}
	}
}

// Collector reads new log lines from files and container output.
// It is driven from a single supervisor task; offsets and pending entries
// are not guarded for concurrent Collect calls.
type Collector struct {
	host       string
	paths      []string
	dockerLogs bool
	maxLines   int

	positions map[string]int64
	pending   []telemetry.LogEntry

	// runDocker is swapped in tests.
	runDocker func(ctx context.Context, args ...string) ([]byte, error)
}

// New creates a logs collector for the given host.
func New(hostname string, opts ...Option) *Collector {
	c := &Collector{
		host: hostname,
		paths: []string{
			"/var/log/syslog",
			"/var/log/auth.log",
			"/var/log/kern.log",
		},
		dockerLogs: true,
		maxLines:   defaultMaxLines,
		positions:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runDocker = runDockerCommand
	return c
}

func runDockerCommand(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaults.CollectorSubprocessTimeout)
	defer cancel()
	return exec.CommandContext(ctx, "docker", args...).CombinedOutput()
}

// Name implements Collector.
func (c *Collector) Name() string { return "logs" }

// Available implements Collector: true when at least one watched file exists
// or docker log reading is enabled.
func (c *Collector) Available() bool {
	if c.dockerLogs {
		return true
	}
	for _, p := range c.paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Collect reads new lines from every source and returns a summary snapshot.
// The classified entries from this cycle are retrieved with Entries.
func (c *Collector) Collect(ctx context.Context) (*measurement.Measurement, error) {
	now := float64(time.Now().UnixNano()) / 1e9

	var entries []telemetry.LogEntry
	totalLines := 0

	perFile := c.maxLines
	if len(c.paths) > 0 {
		perFile = c.maxLines / len(c.paths)
	}

	for _, path := range c.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		fileEntries, lines := c.collectFromFile(path, perFile, now)
		entries = append(entries, fileEntries...)
		totalLines += lines
	}

	if c.dockerLogs {
		entries = append(entries, c.collectDockerLogs(ctx, c.maxLines/2, now)...)
	}

	errors, warnings := 0, 0
	for _, e := range entries {
		switch e.Level {
		case telemetry.LogLevelCritical, telemetry.LogLevelError:
			errors++
		case telemetry.LogLevelWarning:
			warnings++
		}
	}

	c.pending = append(c.pending, entries...)

	return measurement.NewMeasurement(measurement.TypeLogs).
		WithTimestamp(now).
		WithSubtypeBuilder(measurement.NewSubtypeBuilder("summary").
			SetInt(measurement.KeyLinesProcessed, totalLines).
			SetInt("entries-kept", len(entries)).
			SetInt(measurement.KeyErrorsCount, errors).
			SetInt(measurement.KeyWarningsCount, warnings)).
		Build(), nil
}

// Entries drains the classified log lines accumulated by Collect.
func (c *Collector) Entries() []telemetry.LogEntry {
	entries := c.pending
	c.pending = nil
	return entries
}

func (c *Collector) collectFromFile(path string, maxLines int, now float64) ([]telemetry.LogEntry, int) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0
	}

	pos := c.positions[path]
	if pos > info.Size() {
		// Truncated or rotated in place: start over.
		pos = 0
	}

	f, err := os.Open(path)
	if err != nil {
		return []telemetry.LogEntry{{
			Timestamp: now,
			Source:    path,
			Level:     telemetry.LogLevelError,
			Message:   telemetry.TruncateMessage(fmt.Sprintf("Failed to read log file: %v", err)),
		}}, 0
	}
	defer f.Close()

	if _, err := f.Seek(pos, 0); err != nil {
		return nil, 0
	}

	var entries []telemetry.LogEntry
	lines := 0
	service := serviceFromPath(path)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		pos += int64(len(scanner.Bytes())) + 1
		lines++

		if len(entries) >= maxLines {
			break
		}
		if isNoise(line) {
			continue
		}
		level := detectLevel(line)
		if !keep(line, level) {
			continue
		}
		entries = append(entries, telemetry.LogEntry{
			Timestamp: now,
			Source:    path,
			Level:     level,
			Message:   telemetry.TruncateMessage(strings.TrimSpace(line)),
			Service:   service,
		})
	}

	// A final line without a trailing newline makes pos overshoot by one;
	// clamp so the next cycle does not mistake it for a rotation.
	if pos > info.Size() {
		pos = info.Size()
	}
	c.positions[path] = pos
	return entries, lines
}

func (c *Collector) collectDockerLogs(ctx context.Context, maxLines int, now float64) []telemetry.LogEntry {
	out, err := c.runDocker(ctx, "ps", "--format", "{{.Names}}")
	if err != nil {
		return nil
	}

	names := strings.Fields(strings.TrimSpace(string(out)))
	if len(names) > dockerContainerLimit {
		names = names[:dockerContainerLimit]
	}
	if len(names) == 0 {
		return nil
	}

	perContainer := maxLines / len(names)
	if perContainer < 10 {
		perContainer = 10
	}

	var entries []telemetry.LogEntry
	for _, name := range names {
		logOut, err := c.runDocker(ctx, "logs", name,
			"--since", "1m", "--tail", fmt.Sprint(perContainer))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(logOut), "\n") {
			if line == "" || isNoise(line) {
				continue
			}
			level := detectLevel(line)
			if !keep(line, level) {
				continue
			}
			entries = append(entries, telemetry.LogEntry{
				Timestamp: now,
				Source:    "docker://" + name,
				Level:     level,
				Message:   telemetry.TruncateMessage(strings.TrimSpace(line)),
				Container: name,
			})
		}
	}

	return entries
}

// Metrics converts a logs summary snapshot to wire metric points.
func (c *Collector) Metrics(snap *measurement.Measurement) []telemetry.MetricPoint {
	e := convert.NewEmitter(snap.Timestamp, map[string]string{"host": c.host})
	for _, st := range snap.Subtypes {
		if st.Name != "summary" {
			continue
		}
		e.Gauge("sidra_logs_lines_processed", st, measurement.KeyLinesProcessed, nil)
		e.Gauge("sidra_logs_errors_count", st, measurement.KeyErrorsCount, nil)
		e.Gauge("sidra_logs_warnings_count", st, measurement.KeyWarningsCount, nil)
	}
	return e.Points()
}

// CheckThresholds implements Collector. Log lines alert through the
// aggregator's critical-log path, not through threshold rules.
func (c *Collector) CheckThresholds(*measurement.Measurement, rules.Rules) []telemetry.Alert {
	return nil
}
