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
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/multigres/namedpool/go/pools/connpool"
	"github.com/multigres/namedpool/go/pools/connpoolmanager"
)

func (nc *NamedpoolCommand) statsCommand() *cobra.Command {
	var (
		format  string
		acquire int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print pool statistics",
		Long: `Print the statistics of every pool. With --acquire N, N connections are
first acquired from each pool at the same time and then released, which shows
how the pool limits shape the idle list.`,
		Args: cobra.NoArgs,
		RunE: nc.withTeardown(func(cmd *cobra.Command, args []string) error {
			if acquire > 0 {
				for _, name := range nc.mgr.Names() {
					nc.exercise(cmd, name, acquire)
				}
			}
			return writeStats(cmd.OutOrStdout(), format, nc.mgr.Stats())
		}),
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (yaml, json, toml)")
	cmd.Flags().IntVar(&acquire, "acquire", 0, "Connections to acquire and release on each pool before printing")
	return cmd
}

// exercise acquires up to n connections from the pool, then releases them all.
func (nc *NamedpoolCommand) exercise(cmd *cobra.Command, name string, n int) {
	conns := make([]*connpool.Conn, 0, n)
	for range n {
		conn, err := nc.mgr.Acquire(cmd.Context(), name)
		if err != nil {
			nc.logger.Info("stopped acquiring connections", "pool", name, "acquired", len(conns), "error", err)
			break
		}
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		conn.Release()
	}
}

func writeStats(w io.Writer, format string, stats connpoolmanager.ManagerStats) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(stats); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case "toml":
		return toml.NewEncoder(w).Encode(stats)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
