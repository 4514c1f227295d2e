// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/multigres/namedpool/go/tools/timer"
	"github.com/multigres/namedpool/go/viperutil"
)

func (nc *NamedpoolCommand) watchCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the pools and log their statistics",
		Long: `Keep the configured pools alive, logging their statistics at every interval.
Changes to the config file are applied without restarting: new pools are
created, limits and the log level are updated. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: nc.withTeardown(func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %v", interval)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopApply := nc.poolCfg.ApplyOnReload(nc.mgr, nc.builders, nc.logger)
			defer stopApply()

			reloaded := make(chan struct{}, 1)
			viperutil.NotifyConfigReload(nc.reg, reloaded)

			out := cmd.OutOrStdout()
			reporter := timer.NewPeriodicRunner(interval)
			reporter.Start(ctx, func(ctx context.Context) {
				stats := nc.mgr.Stats()
				for name, s := range stats.Pools {
					nc.logger.InfoContext(ctx, "pool stats",
						"pool", name, "live", s.Live, "idle", s.Idle,
						"in_use", s.InUse, "waiting", s.Waiting)
				}
				if err := writeStats(out, "json", stats); err != nil {
					nc.logger.ErrorContext(ctx, "failed to write pool stats", "error", err)
				}
			})
			defer reporter.Stop()

			nc.logger.InfoContext(ctx, "watching pools", "pools", nc.mgr.Names(), "interval", interval)
			for {
				select {
				case <-ctx.Done():
					nc.logger.Info("stopped watching pools")
					return nil
				case <-reloaded:
					nc.logging.ReloadLevel()
				}
			}
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "How often to report pool statistics")
	return cmd
}
