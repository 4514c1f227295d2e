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
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/multigres/namedpool/go/drivers/pgxdriver"
	"github.com/multigres/namedpool/go/drivers/pqdriver"
	"github.com/multigres/namedpool/go/pools/connpool"
	"github.com/multigres/namedpool/go/pools/connpoolmanager"
	"github.com/multigres/namedpool/go/servenv"
	"github.com/multigres/namedpool/go/viperutil"
)

// NamedpoolCommand holds the state shared by namedpool commands.
type NamedpoolCommand struct {
	reg      *viperutil.Registry
	vc       *viperutil.ViperConfig
	logging  *servenv.Logger
	poolCfg  *connpoolmanager.Config
	builders map[string]connpoolmanager.FactoryBuilder

	// Set up by the root PersistentPreRunE.
	logger     *slog.Logger
	mgr        *connpoolmanager.Manager
	stopConfig func()
}

// DefaultBuilders returns the driver factories available in pool specs.
func DefaultBuilders() map[string]connpoolmanager.FactoryBuilder {
	return map[string]connpoolmanager.FactoryBuilder{
		"pq": func(spec connpoolmanager.PoolSpec) (connpool.Factory, error) {
			return pqdriver.NewFactory(spec.DSN)
		},
		"pgx": func(spec connpoolmanager.PoolSpec) (connpool.Factory, error) {
			return pgxdriver.NewFactory(spec.DSN)
		},
	}
}

// GetRootCommand creates and returns the root command for namedpool with all subcommands.
func GetRootCommand() *cobra.Command {
	return newRootCommand(viperutil.NewRegistry(), DefaultBuilders())
}

func newRootCommand(reg *viperutil.Registry, builders map[string]connpoolmanager.FactoryBuilder) *cobra.Command {
	nc := &NamedpoolCommand{
		reg:      reg,
		vc:       viperutil.NewViperConfig(reg),
		logging:  servenv.NewLogger(reg),
		poolCfg:  connpoolmanager.NewConfig(reg),
		builders: builders,
	}

	root := &cobra.Command{
		Use:   "namedpool",
		Short: "Check and inspect named database connection pools",
		Long: `namedpool creates the connection pools declared in its config file and
checks, reports on, or watches them.

Pools are declared under the "pools" key:

  pools:
    - name: orders
      driver: pgx          # or pq
      dsn: postgres://app@localhost/orders
      max_idle: 2          # defaults to --pool-default-max-idle
      max_total: 10        # defaults to --pool-default-max-total, 0 is unbounded

Configuration:
  namedpool searches for a config file in this order:
  1. File specified by --config-file flag (if provided)
  2. Files named 'namedpool' with supported extensions (.yaml, .yml, .json, .toml)
     in directories specified by --config-path flags`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Silence usage for application errors, but allow it for flag errors
			cmd.SilenceUsage = true
			if err := nc.setup(); err != nil {
				return errors.Join(err, nc.teardown())
			}
			return nil
		},
	}

	fs := root.PersistentFlags()
	nc.vc.RegisterFlags(fs)
	nc.logging.RegisterFlags(fs)
	nc.poolCfg.RegisterFlags(fs)

	root.AddCommand(nc.checkCommand())
	root.AddCommand(nc.statsCommand())
	root.AddCommand(nc.watchCommand())
	return root
}

// setup loads the config file and creates the declared pools.
func (nc *NamedpoolCommand) setup() error {
	cancel, err := nc.vc.LoadConfig(nc.reg, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	nc.stopConfig = cancel
	nc.logger = nc.logging.SetupLogging()

	metrics, err := connpoolmanager.NewMetrics()
	if err != nil {
		nc.logger.Warn("failed to initialize some metrics", "error", err)
	}
	nc.mgr = connpoolmanager.NewManager(nc.logger, metrics)
	if err := nc.poolCfg.Apply(nc.mgr, nc.builders); err != nil {
		return fmt.Errorf("creating pools: %w", err)
	}
	return nil
}

// withTeardown wraps a subcommand so the pools and the config watcher are
// torn down however it returns. PersistentPostRunE is skipped when RunE fails.
func (nc *NamedpoolCommand) withTeardown(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			err = errors.Join(err, nc.teardown())
		}()
		return run(cmd, args)
	}
}

func (nc *NamedpoolCommand) teardown() error {
	if nc.stopConfig != nil {
		nc.stopConfig()
		nc.stopConfig = nil
	}
	var err error
	if nc.mgr != nil {
		err = nc.mgr.Close()
		nc.mgr = nil
	}
	if closeErr := nc.logging.Close(); err == nil {
		err = closeErr
	}
	return err
}

// poolNames returns args, or all pools if args is empty.
func (nc *NamedpoolCommand) poolNames(args []string) ([]string, error) {
	if len(args) == 0 {
		return nc.mgr.Names(), nil
	}
	for _, name := range args {
		if !nc.mgr.Has(name) {
			return nil, fmt.Errorf("pool %q: %w", name, connpool.ErrPoolNotFound)
		}
	}
	return args, nil
}
