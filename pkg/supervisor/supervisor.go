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

// Package supervisor owns the edge agent's long-running tasks: one loop per
// collector, the batch-sender, the buffer-flusher, and the health-reporter,
// all cancelled from a single signal-derived context. No error from any
// task reaches the process exit path; the agent is expected to run forever.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidralabs/sidra/pkg/aggregator"
	"github.com/sidralabs/sidra/pkg/buffer"
	"github.com/sidralabs/sidra/pkg/collector"
	"github.com/sidralabs/sidra/pkg/collector/rules"
	"github.com/sidralabs/sidra/pkg/config"
	"github.com/sidralabs/sidra/pkg/defaults"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/sender"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Entry pairs a collector with its cadence.
type Entry struct {
	Collector collector.Collector
	Interval  time.Duration
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithCollectors replaces the factory-built collector set (tests).
func WithCollectors(entries []Entry) Option {
	return func(s *Supervisor) { s.entries = entries }
}

// WithSender replaces the sender (tests).
func WithSender(snd *sender.Sender) Option {
	return func(s *Supervisor) { s.snd = snd }
}

// WithBufferFlushInterval overrides the buffer flush cadence (tests).
func WithBufferFlushInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.flushInterval = d }
}

// WithHealthReportInterval overrides the health report cadence (tests).
func WithHealthReportInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.healthInterval = d }
}

// Supervisor wires the collectors, aggregator, buffer, and sender together
// and drives them until cancelled.
type Supervisor struct {
	cfg      *config.EdgeConfig
	identity telemetry.AgentIdentity
	rules    rules.Rules

	entries []Entry
	agg     *aggregator.Aggregator
	buf     *buffer.Buffer
	snd     *sender.Sender

	flushInterval  time.Duration
	healthInterval time.Duration

	// previous snapshots per collector, for debug delta logging.
	prevMu   sync.Mutex
	previous map[string]*measurement.Measurement

	// lastAlertCount feeds the per-cycle status line.
	lastAlertCount atomic.Int64
	bufferItems    atomic.Int64
}

// New assembles a Supervisor from configuration. The durable buffer is
// opened here when enabled; Run owns its lifecycle from then on.
func New(cfg *config.EdgeConfig, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		cfg: cfg,
		identity: telemetry.AgentIdentity{
			AgentID:      cfg.AgentID,
			AgentVersion: cfg.AgentVersion,
			CentralURL:   cfg.CentralURL,
			APIKey:       cfg.APIKey,
		},
		rules:          cfg.Priority,
		flushInterval:  defaults.DefaultBufferFlushInterval,
		healthInterval: defaults.DefaultHealthReportInterval,
		previous:       make(map[string]*measurement.Measurement),
	}

	host := s.identity.Hostname()

	s.agg = aggregator.New(host,
		aggregator.WithMaxBatchSize(cfg.Batching.MaxBatchSize),
		aggregator.WithMaxBatchAge(time.Duration(cfg.Batching.MaxBatchAge)*time.Second),
	)

	if cfg.Buffer.Enabled {
		buf, err := buffer.Open(cfg.Buffer.Path,
			buffer.WithMaxSizeBytes(int64(cfg.Buffer.MaxSizeMB)*1024*1024),
			buffer.WithRetentionAge(time.Duration(cfg.Buffer.RetentionHours)*time.Hour),
		)
		if err != nil {
			s.agg.Close()
			return nil, err
		}
		s.buf = buf
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.snd == nil {
		sndOpts := []sender.Option{
			sender.WithTimeout(time.Duration(cfg.CentralTimeout) * time.Second),
			sender.WithRetryCount(cfg.CentralRetryCount),
			sender.WithRetryDelay(time.Duration(cfg.CentralRetryDelay) * time.Second),
		}
		if cfg.APIKey != "" {
			sndOpts = append(sndOpts, sender.WithAPIKey(cfg.APIKey))
		}
		if s.buf != nil {
			sndOpts = append(sndOpts, sender.WithBuffer(s.buf))
		}
		s.snd = sender.New(cfg.CentralURL, sndOpts...)
	}

	if s.entries == nil {
		s.entries = buildEntries(cfg, host)
	}

	return s, nil
}

func buildEntries(cfg *config.EdgeConfig, host string) []Entry {
	factory := collector.NewDefaultFactory(
		collector.WithHost(host),
		collector.WithDiskPaths(cfg.Collectors.System.DiskPaths),
		collector.WithLogPaths(cfg.Collectors.Logs.Paths),
		collector.WithDockerLogs(cfg.Collectors.Logs.DockerLogs),
		collector.WithDockerSocket(cfg.Collectors.Docker.SocketPath),
		collector.WithWatchServices(cfg.Collectors.Services.WatchServices),
	)

	interval := func(seconds, fallback int) time.Duration {
		if seconds <= 0 {
			seconds = fallback
		}
		return time.Duration(seconds) * time.Second
	}

	var entries []Entry
	if cfg.Collectors.System.Enabled {
		entries = append(entries, Entry{factory.CreateSystemCollector(), interval(cfg.Collectors.System.Interval, 10)})
	}
	if cfg.Collectors.GPU.Enabled {
		entries = append(entries, Entry{factory.CreateGPUCollector(), interval(cfg.Collectors.GPU.Interval, 10)})
	}
	if cfg.Collectors.Docker.Enabled {
		entries = append(entries, Entry{factory.CreateContainersCollector(), interval(cfg.Collectors.Docker.Interval, 30)})
	}
	if cfg.Collectors.Logs.Enabled {
		entries = append(entries, Entry{factory.CreateLogsCollector(), interval(cfg.Collectors.Logs.Interval, 30)})
	}
	if cfg.Collectors.Services.Enabled {
		entries = append(entries, Entry{factory.CreateServicesCollector(), interval(cfg.Collectors.Services.Interval, 60)})
	}
	return entries
}

// Run drives all tasks until the context is cancelled or a signal arrives,
// then performs the bounded final flush and closes everything down.
func (s *Supervisor) Run(ctx context.Context) error {
	notifCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting edge agent", "identity", s.identity.String())

	if !s.snd.CheckHealth(notifCtx) {
		slog.Warn("central brain not reachable, data will be buffered")
	}

	g, gctx := errgroup.WithContext(notifCtx)

	for _, entry := range s.entries {
		if !entry.Collector.Available() {
			slog.Info("collector unavailable, skipping", "collector", entry.Collector.Name())
			continue
		}
		entry := entry
		g.Go(func() error {
			s.collectorLoop(gctx, entry)
			return nil
		})
	}

	g.Go(func() error {
		s.batchSenderLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.bufferFlusherLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.healthReporterLoop(gctx)
		return nil
	})

	slog.Info("edge agent started", "collectors", len(s.entries))
	_ = g.Wait()

	s.shutdown()
	return nil
}

// shutdown runs the bounded best-effort final flush and releases resources.
func (s *Supervisor) shutdown() {
	slog.Info("stopping edge agent")

	flushCtx, cancel := context.WithTimeout(context.Background(), defaults.ServerShutdownTimeout)
	defer cancel()

	if batch, ok, err := s.agg.Flush(flushCtx); err == nil && ok {
		if err := s.snd.SendBatch(flushCtx, batch); err != nil {
			slog.Warn("final flush failed", "error", err)
		}
	}

	s.agg.Close()
	s.snd.Close()
	if s.buf != nil {
		if err := s.buf.Close(); err != nil {
			slog.Warn("buffer close failed", "error", err)
		}
	}

	slog.Info("edge agent stopped")
}

// collectorLoop runs one collector on its own cadence. Collector errors are
// logged and the loop continues: one source failing must not stop the rest.
func (s *Supervisor) collectorLoop(ctx context.Context, entry Entry) {
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()

	for {
		s.collectCycle(ctx, entry)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// collectCycle performs one collect → convert → aggregate pass.
func (s *Supervisor) collectCycle(ctx context.Context, entry Entry) {
	name := entry.Collector.Name()

	collectCtx, cancel := context.WithTimeout(ctx, defaults.CollectorTimeout)
	snap, err := entry.Collector.Collect(collectCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("collection failed", "collector", name, "error", err)
		}
		return
	}

	s.logSnapshotDelta(name, snap)

	for _, point := range entry.Collector.Metrics(snap) {
		if batch, ok, err := s.agg.AddMetric(ctx, point); err == nil && ok {
			s.sendAsyncSafe(ctx, batch)
		}
	}

	alerts := entry.Collector.CheckThresholds(snap, s.rules)
	s.lastAlertCount.Store(int64(len(alerts)))
	for _, alert := range alerts {
		if batch, ok, err := s.agg.AddAlert(ctx, alert); err == nil && ok {
			s.sendAsyncSafe(ctx, batch)
		}
	}

	if src, ok := entry.Collector.(collector.LogSource); ok {
		if entries := src.Entries(); len(entries) > 0 {
			if batch, ready, err := s.agg.AddLogs(ctx, entries); err == nil && ready {
				s.sendAsyncSafe(ctx, batch)
			}
		}
	}

	if name == "system" {
		s.printStatus(snap)
	}
}

// sendAsyncSafe delivers a ready batch, logging rather than propagating
// failures (the sender has already buffered what can be buffered).
func (s *Supervisor) sendAsyncSafe(ctx context.Context, batch telemetry.Batch) {
	if err := s.snd.SendBatch(ctx, batch); err != nil && ctx.Err() == nil {
		slog.Warn("batch delivery failed", "endpoint", batch.Endpoint(), "error", err)
	}
}

// logSnapshotDelta logs which readings changed since the previous snapshot
// of the same collector, at debug level only.
func (s *Supervisor) logSnapshotDelta(name string, snap *measurement.Measurement) {
	s.prevMu.Lock()
	prev, ok := s.previous[name]
	s.previous[name] = snap
	s.prevMu.Unlock()
	if !ok || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	diffs, err := measurement.Compare(*prev, *snap)
	if err != nil {
		return
	}
	slog.Debug("snapshot delta", "collector", name, "changed_subtypes", len(diffs))
}

// printStatus emits the one-line per-cycle status the agent prints.
func (s *Supervisor) printStatus(snap *measurement.Measurement) {
	var cpu, mem, disk float64
	if st := snap.GetSubtype("cpu"); st != nil {
		cpu, _ = measurement.AsFloat64(st.Get(measurement.KeyCPUUsage))
	}
	if st := snap.GetSubtype("memory"); st != nil {
		mem, _ = measurement.AsFloat64(st.Get(measurement.KeyMemUsage))
	}
	if st := snap.GetSubtype("disk:/"); st != nil {
		disk, _ = measurement.AsFloat64(st.Get(measurement.KeyUsagePercent))
	}
	fmt.Printf("cpu=%.1f%% mem=%.1f%% disk=%.1f%% alerts=%d buffered=%d\n",
		cpu, mem, disk, s.lastAlertCount.Load(), s.bufferItems.Load())
}

// batchSenderLoop flushes the aggregator on the batching cadence.
func (s *Supervisor) batchSenderLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Batching.BatchInterval) * time.Second
	if interval <= 0 {
		interval = defaults.DefaultBatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if batch, ok, err := s.agg.Flush(ctx); err == nil && ok {
				s.sendAsyncSafe(ctx, batch)
			}
		case <-ctx.Done():
			return
		}
	}
}

// bufferFlusherLoop periodically redelivers buffered batches.
func (s *Supervisor) bufferFlusherLoop(ctx context.Context) {
	if s.buf == nil {
		return
	}
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, err := s.snd.FlushBuffer(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("buffer flush failed", "error", err)
			} else if sent > 0 {
				slog.Info("flushed buffered batches", "count", sent)
			}
		case <-ctx.Done():
			return
		}
	}
}

// healthReporterLoop emits the agent's own liveness metric and buffer depth
// gauge through the normal pipeline.
func (s *Supervisor) healthReporterLoop(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	host := s.identity.Hostname()

	for {
		select {
		case <-ticker.C:
			now := float64(time.Now().UnixNano()) / 1e9

			health := telemetry.MetricPoint{
				Name:      "sidra_agent_health",
				Value:     1,
				Timestamp: now,
				Labels:    map[string]string{"host": host, "version": s.identity.AgentVersion},
				Priority:  telemetry.PriorityLow,
			}
			if batch, ok, err := s.agg.AddMetric(ctx, health); err == nil && ok {
				s.sendAsyncSafe(ctx, batch)
			}

			if s.buf != nil {
				count, err := s.buf.Count(ctx)
				if err != nil {
					continue
				}
				s.bufferItems.Store(int64(count))
				gauge := telemetry.MetricPoint{
					Name:      "sidra_agent_buffer_items",
					Value:     float64(count),
					Timestamp: now,
					Labels:    map[string]string{"host": host},
					Priority:  telemetry.PriorityLow,
				}
				if batch, ok, err := s.agg.AddMetric(ctx, gauge); err == nil && ok {
					s.sendAsyncSafe(ctx, batch)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
