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

package connpoolmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/pflag"

	"github.com/multigres/namedpool/go/pools/connpool"
	"github.com/multigres/namedpool/go/viperutil"
)

// PoolSpec declares a pool in the config file:
//
//	pools:
//	  - name: orders
//	    driver: pgx
//	    dsn: postgres://app@localhost/orders
//	    max_idle: 2
//	    max_total: 10
type PoolSpec struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// MaxIdle and MaxTotal fall back to the configured defaults when unset.
	MaxIdle  *int `mapstructure:"max_idle"`
	MaxTotal *int `mapstructure:"max_total"`
}

// FactoryBuilder builds the driver factory of a pool from its spec.
type FactoryBuilder func(spec PoolSpec) (connpool.Factory, error)

// Config holds viper-backed configuration values for the connection pool
// manager. Create with NewConfig(), register flags with RegisterFlags(),
// then create pools with Apply() once the config is loaded.
type Config struct {
	reg *viperutil.Registry

	// Limits of pools that don't set their own. Dynamic: a config reload
	// re-applies them.
	defaultMaxIdle  viperutil.Value[int]
	defaultMaxTotal viperutil.Value[int]
}

// NewConfig creates a new Config with all pool settings registered to the
// provided registry.
func NewConfig(reg *viperutil.Registry) *Config {
	return &Config{
		reg: reg,
		defaultMaxIdle: viperutil.Configure(reg, "pool.default-max-idle", viperutil.Options[int]{
			Default:  connpool.DefaultMaxIdle,
			FlagName: "pool-default-max-idle",
			EnvVars:  []string{"NAMEDPOOL_DEFAULT_MAX_IDLE"},
			Dynamic:  true,
		}),
		defaultMaxTotal: viperutil.Configure(reg, "pool.default-max-total", viperutil.Options[int]{
			Default:  connpool.DefaultMaxTotal,
			FlagName: "pool-default-max-total",
			EnvVars:  []string{"NAMEDPOOL_DEFAULT_MAX_TOTAL"},
			Dynamic:  true,
		}),
	}
}

// RegisterFlags registers all pool flags with the given FlagSet.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("pool-default-max-idle", c.defaultMaxIdle.Default(), "Maximum number of idle connections kept by pools that don't set max_idle")
	fs.Int("pool-default-max-total", c.defaultMaxTotal.Default(), "Maximum number of connections of pools that don't set max_total (0 for unbounded)")

	viperutil.BindFlags(fs, c.defaultMaxIdle, c.defaultMaxTotal)
}

// DefaultMaxIdle returns the configured default idle bound.
func (c *Config) DefaultMaxIdle() int {
	return c.defaultMaxIdle.Get()
}

// DefaultMaxTotal returns the configured default connection limit.
func (c *Config) DefaultMaxTotal() int {
	return c.defaultMaxTotal.Get()
}

// PoolSpecs returns the pools declared under the `pools` key.
func (c *Config) PoolSpecs() ([]PoolSpec, error) {
	var specs []PoolSpec
	if err := c.reg.Decode("pools", &specs); err != nil {
		return nil, fmt.Errorf("decoding pools: %w", err)
	}
	return specs, nil
}

// Apply creates the declared pools missing from mgr and sets the limits of
// every declared pool. Pools that already exist keep their factory. Limits
// only affect subsequent acquisitions and releases.
//
// Errors for individual pools are collected; the other pools are still applied.
func (c *Config) Apply(mgr *Manager, builders map[string]FactoryBuilder) error {
	specs, err := c.PoolSpecs()
	if err != nil {
		return err
	}

	var errs []error
	for _, spec := range specs {
		name := poolName(spec.Name)
		if !mgr.Has(name) {
			build, ok := builders[spec.Driver]
			if !ok {
				errs = append(errs, fmt.Errorf("pool %q: unknown driver %q", name, spec.Driver))
				continue
			}
			factory, err := build(spec)
			if err != nil {
				errs = append(errs, fmt.Errorf("pool %q: %w", name, err))
				continue
			}
			mgr.Create(name, factory)
		}

		maxIdle, maxTotal := c.DefaultMaxIdle(), c.DefaultMaxTotal()
		if spec.MaxIdle != nil {
			maxIdle = *spec.MaxIdle
		}
		if spec.MaxTotal != nil {
			maxTotal = *spec.MaxTotal
		}
		mgr.SetMaxIdle(maxIdle, name)
		mgr.SetMaxTotal(maxTotal, name)
	}
	return errors.Join(errs...)
}

// ApplyOnReload re-runs Apply every time the loaded config file changes,
// until the returned function is called.
func (c *Config) ApplyOnReload(mgr *Manager, builders map[string]FactoryBuilder, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	reloaded := make(chan struct{}, 1)
	viperutil.NotifyConfigReload(c.reg, reloaded)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloaded:
				if err := c.Apply(mgr, builders); err != nil {
					logger.Error("failed to apply reloaded pool config", "error", err)
					continue
				}
				logger.Info("applied reloaded pool config", "pools", mgr.PoolCount())
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
