// Copyright 2026 Blink Labs Software
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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/veescrow/internal/config"
	"github.com/blinklabs-io/veescrow/internal/simulate"
	"github.com/blinklabs-io/veescrow/internal/version"
)

func simulateRun(_ *cobra.Command, args []string, cfg *config.Config) {
	logger := commonRun()
	if err := simulate.Run(cfg, logger, args[0]); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func simulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a scenario against fresh ledgers on a synthetic clock",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			simulateRun(cmd, args, cfg)
		},
	}
	return cmd
}

func versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetVersionString())
		},
	}
	return cmd
}
