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
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/multigres/namedpool/go/tools/retry"
)

type checkResult struct {
	pool string
	err  error
}

func (nc *NamedpoolCommand) checkCommand() *cobra.Command {
	var (
		timeout  time.Duration
		attempts int
	)

	cmd := &cobra.Command{
		Use:   "check [pool...]",
		Short: "Open a connection on each pool",
		Long: `Acquire a connection from each named pool (all pools if none is given)
and report whether it could be opened. Exits with an error if any pool fails.`,
		RunE: nc.withTeardown(func(cmd *cobra.Command, args []string) error {
			names, err := nc.poolNames(args)
			if err != nil {
				return err
			}

			results := lo.Map(names, func(name string, _ int) checkResult {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				return checkResult{pool: name, err: nc.checkPool(ctx, name, attempts)}
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POOL\tSTATUS\tERROR")
			for _, r := range results {
				if r.err != nil {
					fmt.Fprintf(w, "%s\tfailed\t%v\n", r.pool, r.err)
				} else {
					fmt.Fprintf(w, "%s\tok\t\n", r.pool)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			failed := lo.Filter(results, func(r checkResult, _ int) bool { return r.err != nil })
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d pools failed", len(failed), len(results))
			}
			return nil
		}),
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for a connection on each pool")
	cmd.Flags().IntVar(&attempts, "attempts", 1, "Times to retry opening a connection that failed to open, with backoff")
	return cmd
}

var errNotOpen = errors.New("connection did not open")

// checkPool acquires a connection from the pool. The pool only logs open
// failures, so a connection that did not open is opened again up to attempts
// times to report the cause.
func (nc *NamedpoolCommand) checkPool(ctx context.Context, name string, attempts int) error {
	conn, err := nc.mgr.AcquireWait(ctx, name)
	if err != nil {
		return err
	}
	defer conn.Release()

	if conn.IsOpen() {
		return nil
	}

	lastErr := errNotOpen
	r := retry.New(50*time.Millisecond, time.Second)
	for attempt, err := range r.Attempts(ctx) {
		if err != nil {
			return fmt.Errorf("%w (after %v)", lastErr, err)
		}
		if lastErr = conn.Open(ctx); lastErr == nil {
			nc.logger.InfoContext(ctx, "connection opened on retry", "pool", name, "attempt", attempt)
			return nil
		}
		if attempt >= max(attempts, 1) {
			return lastErr
		}
	}
	return lastErr
}
