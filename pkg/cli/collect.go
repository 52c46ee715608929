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

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sidralabs/sidra/pkg/collector"
	"github.com/sidralabs/sidra/pkg/config"
	"github.com/sidralabs/sidra/pkg/measurement"
	"github.com/sidralabs/sidra/pkg/serializer"
)

// collectCmd runs every available collector once and dumps the snapshots,
// for diagnosing what an agent would report without shipping anything.
func collectCmd() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Run the collectors once and print their snapshots",
		Description: `Runs each available collector a single time and writes the
raw snapshots to stdout or a file. Nothing is sent to the central brain;
use this to verify what the agent sees on this host.

# Examples

All collectors, YAML to stdout:
  sidra-agent collect --format yaml

One collector, JSON to a file:
  sidra-agent collect --only gpu --format json --output /tmp/gpu.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: fmt.Sprintf("Output format, one of: %s", strings.Join(serializer.SupportedFormats(), ", ")),
				Value: string(serializer.FormatYAML),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (defaults to stdout)",
			},
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "Restrict to the named collectors (can be repeated)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.LoadEdge(cmd.String("config"))
			if err != nil {
				return err
			}

			factory := collector.NewDefaultFactory(
				collector.WithHost(cfg.AgentID),
				collector.WithDiskPaths(cfg.Collectors.System.DiskPaths),
				collector.WithLogPaths(cfg.Collectors.Logs.Paths),
				collector.WithDockerLogs(cfg.Collectors.Logs.DockerLogs),
				collector.WithDockerSocket(cfg.Collectors.Docker.SocketPath),
				collector.WithWatchServices(cfg.Collectors.Services.WatchServices),
			)
			collectors := []collector.Collector{
				factory.CreateSystemCollector(),
				factory.CreateGPUCollector(),
				factory.CreateContainersCollector(),
				factory.CreateLogsCollector(),
				factory.CreateServicesCollector(),
			}

			only := map[string]bool{}
			for _, name := range cmd.StringSlice("only") {
				only[name] = true
			}

			var snapshots []*measurement.Measurement
			for _, col := range collectors {
				if len(only) > 0 && !only[col.Name()] {
					continue
				}
				if !col.Available() {
					slog.Warn("collector unavailable, skipping", "collector", col.Name())
					continue
				}
				collectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				snap, err := col.Collect(collectCtx)
				cancel()
				if err != nil {
					slog.Error("collection failed", "collector", col.Name(), "error", err)
					continue
				}
				snapshots = append(snapshots, snap)
			}

			out, err := serializer.NewFileWriterOrStdout(
				serializer.Format(cmd.String("format")), cmd.String("output"))
			if err != nil {
				return err
			}
			if closer, ok := out.(serializer.Closer); ok {
				defer closer.Close()
			}
			return out.Serialize(ctx, snapshots)
		},
	}
}
