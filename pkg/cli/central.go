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

	"github.com/urfave/cli/v3"

	"github.com/sidralabs/sidra/pkg/central/alertcache"
	"github.com/sidralabs/sidra/pkg/central/eventwriter"
	"github.com/sidralabs/sidra/pkg/central/ingest"
	"github.com/sidralabs/sidra/pkg/central/tsdbwriter"
	"github.com/sidralabs/sidra/pkg/config"
	"github.com/sidralabs/sidra/pkg/logging"
	"github.com/sidralabs/sidra/pkg/server"
)

const centralName = "sidra-central"

// CentralCommand is the root command of the central brain binary.
func CentralCommand() *cli.Command {
	return &cli.Command{
		Name:  centralName,
		Usage: "Sidra central brain ingest and query service",
		Description: `Receives metric, alert, and log batches from edge agents, fans them
out to the time-series and event stores, keeps a ring of recent alerts,
and exposes the query surface.`,
		Commands: []*cli.Command{
			centralRunCmd(),
			versionCmd(centralName),
		},
	}
}

func centralRunCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the ingest service until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "tsdb-url",
				Usage:   "Time-series store base URL",
				Sources: cli.EnvVars(config.EnvTSDBURL),
			},
			&cli.StringFlag{
				Name:    "event-store-url",
				Usage:   "Event store base URL",
				Sources: cli.EnvVars(config.EnvEventStoreURL),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (DEBUG, INFO, WARNING, ERROR)",
				Sources: cli.EnvVars(config.EnvLogLevel),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.LoadCentral(cmd.String("config"))
			if err != nil {
				return err
			}
			if v := cmd.String("tsdb-url"); v != "" {
				cfg.TSDBURL = v
			}
			if v := cmd.String("event-store-url"); v != "" {
				cfg.EventStoreURL = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.LogLevel = v
			}

			logging.SetDefaultStructuredLoggerWithLevel(centralName, version, cfg.LogLevel)

			api := ingest.New(
				tsdbwriter.New(cfg.TSDBURL),
				eventwriter.New(cfg.EventStoreURL, cfg.EventStoreUser, cfg.EventStorePassword,
					eventwriter.WithOrg(cfg.EventStoreOrg)),
				alertcache.New(cfg.AlertCacheSize),
			)

			serverCfg := server.NewConfig()
			serverCfg.Name = centralName
			serverCfg.Version = version
			serverCfg.Port = cfg.Port
			serverCfg.Handlers = api.Handlers()

			return server.New(server.WithConfig(serverCfg)).Run(ctx)
		},
	}
}
