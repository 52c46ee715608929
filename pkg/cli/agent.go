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

	"github.com/sidralabs/sidra/pkg/config"
	"github.com/sidralabs/sidra/pkg/logging"
	"github.com/sidralabs/sidra/pkg/supervisor"
)

const agentName = "sidra-agent"

// AgentCommand is the root command of the edge agent binary.
func AgentCommand() *cli.Command {
	return &cli.Command{
		Name:  agentName,
		Usage: "Sidra edge telemetry agent",
		Description: `Long-running monitoring agent, one per host. Samples system, GPU,
container, log, and service state; batches and deduplicates the results;
and ships them to the central brain with durable local buffering during
outages.`,
		Commands: []*cli.Command{
			agentRunCmd(),
			collectCmd(),
			versionCmd(agentName),
		},
	}
}

func agentRunCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the agent until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "central-url",
				Usage:   "Central brain base URL (overrides config file and environment)",
				Sources: cli.EnvVars(config.EnvCentralURL),
			},
			&cli.StringFlag{
				Name:    "agent-id",
				Usage:   "Agent identity (defaults to hostname)",
				Sources: cli.EnvVars(config.EnvAgentID),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (DEBUG, INFO, WARNING, ERROR)",
				Sources: cli.EnvVars(config.EnvLogLevel),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.LoadEdge(cmd.String("config"))
			if err != nil {
				return err
			}
			cfg.AgentVersion = version

			// Explicit flags take precedence over file and environment.
			if v := cmd.String("central-url"); v != "" {
				cfg.CentralURL = v
			}
			if v := cmd.String("agent-id"); v != "" {
				cfg.AgentID = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.LogLevel = v
			}

			logging.SetDefaultStructuredLoggerWithLevel(agentName, version, cfg.LogLevel)

			sup, err := supervisor.New(cfg)
			if err != nil {
				return err
			}
			return sup.Run(ctx)
		},
	}
}
