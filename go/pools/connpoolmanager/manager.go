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

// Package connpoolmanager provides the process-wide registry of named
// connection pools.
package connpoolmanager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/multigres/namedpool/go/pools/connpool"
)

// DefaultPool is the pool used when an operation is given an empty name.
const DefaultPool = "namedpool_default"

// Manager maps pool names to connection pools. Pools are created and removed
// explicitly; they are never created on demand.
//
// The manager uses an atomic snapshot pattern for lock-free reads on the hot
// path: acquisitions complete with an atomic load and a map lookup. Creating
// or removing a pool copies the map under createMu and publishes the copy.
//
// Usage:
//
//	mgr := connpoolmanager.NewManager(logger, metrics)
//	defer mgr.Close()
//	mgr.Create("orders", factory)
//	mgr.SetMaxTotal(10, "orders")
//
//	conn, err := mgr.Acquire(ctx, "orders")
//	if err != nil {
//	    return err
//	}
//	defer conn.Release()
type Manager struct {
	logger  *slog.Logger
	metrics *Metrics

	// poolsSnapshot holds an atomic pointer to an immutable map of pools.
	// The map is replaced atomically via copy-on-write.
	poolsSnapshot atomic.Pointer[map[string]*connpool.Pool]

	// createMu serializes pool creation and removal.
	createMu sync.Mutex
}

// NewManager creates an empty manager. A nil logger uses slog.Default(),
// nil metrics record nothing.
func NewManager(logger *slog.Logger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	m := &Manager{
		logger:  logger,
		metrics: metrics,
	}
	empty := make(map[string]*connpool.Pool)
	m.poolsSnapshot.Store(&empty)
	return m
}

func poolName(name string) string {
	return cmp.Or(name, DefaultPool)
}

// lookup returns the pool registered under name.
func (m *Manager) lookup(name string) (*connpool.Pool, bool) {
	pool, ok := (*m.poolsSnapshot.Load())[poolName(name)]
	return pool, ok
}

// mustLookup is lookup for setters: an unknown pool is logged as an error.
func (m *Manager) mustLookup(op, name string) (*connpool.Pool, bool) {
	pool, ok := m.lookup(name)
	if !ok {
		m.logger.Error("failed to "+op,
			"pool", poolName(name), "error", connpool.ErrPoolNotFound)
	}
	return pool, ok
}

// Create registers a pool backed by factory, with default limits and no
// hooks. If a pool named name already exists it is left untouched and a
// warning is logged.
func (m *Manager) Create(name string, factory connpool.Factory) {
	name = poolName(name)

	m.createMu.Lock()
	defer m.createMu.Unlock()

	current := *m.poolsSnapshot.Load()
	if _, ok := current[name]; ok {
		m.logger.Warn("ignoring pool creation, name already in use",
			"pool", name, "error", connpool.ErrDuplicatePool)
		return
	}

	pool := connpool.NewPool(&connpool.Config{
		Name:            name,
		Factory:         factory,
		Logger:          m.logger,
		ConnectionCount: m.metrics.ConnCount(),
		PendingRequests: m.metrics.PendingRequests(),
	})

	// Copy-on-write: create new map with the new pool
	next := make(map[string]*connpool.Pool, len(current)+1)
	maps.Copy(next, current)
	next[name] = pool
	m.poolsSnapshot.Store(&next)

	m.metrics.pools.Add(context.Background(), 1)
	m.logger.Info("created connection pool", "pool", name, "total_pools", len(next))
}

// AddDatabase is an alias of Create.
func (m *Manager) AddDatabase(factory connpool.Factory, name string) {
	m.Create(name, factory)
}

// Remove unregisters a pool. Its idle connections are destroyed and its
// queued requests receive an invalid handle. Connections still checked out
// are destroyed when released. Removing an unknown pool is a no-op.
func (m *Manager) Remove(name string) error {
	name = poolName(name)

	m.createMu.Lock()
	current := *m.poolsSnapshot.Load()
	pool, ok := current[name]
	if !ok {
		m.createMu.Unlock()
		return nil
	}
	next := make(map[string]*connpool.Pool, len(current))
	maps.Copy(next, current)
	delete(next, name)
	m.poolsSnapshot.Store(&next)
	m.createMu.Unlock()

	m.metrics.pools.Add(context.Background(), -1)
	m.logger.Info("removed connection pool", "pool", name, "total_pools", len(next))

	// Closing outside createMu: waiter continuations may call back into the manager.
	if err := pool.Close(); err != nil {
		return fmt.Errorf("removing pool %q: %w", name, err)
	}
	return nil
}

// SetMaxIdle sets how many idle connections the pool keeps.
func (m *Manager) SetMaxIdle(max int, name string) {
	if pool, ok := m.mustLookup("set maximum idle connections", name); ok {
		pool.SetMaxIdle(max)
	}
}

// SetDatabaseMaxIdle is an alias of SetMaxIdle.
func (m *Manager) SetDatabaseMaxIdle(max int, name string) {
	m.SetMaxIdle(max, name)
}

// SetMaxTotal sets the limit on live connections of the pool; 0 means unbounded.
func (m *Manager) SetMaxTotal(max int, name string) {
	if pool, ok := m.mustLookup("set maximum connections", name); ok {
		pool.SetMaxTotal(max)
	}
}

// SetDatabaseMaxTotal is an alias of SetMaxTotal.
func (m *Manager) SetDatabaseMaxTotal(max int, name string) {
	m.SetMaxTotal(max, name)
}

// SetSetupHook sets the hook run on each connection the pool creates.
func (m *Manager) SetSetupHook(hook connpool.Hook, name string) {
	if pool, ok := m.mustLookup("set setup hook", name); ok {
		pool.SetSetupHook(hook)
	}
}

// SetReuseHook sets the hook run each time the pool reuses an idle connection.
func (m *Manager) SetReuseHook(hook connpool.Hook, name string) {
	if pool, ok := m.mustLookup("set reuse hook", name); ok {
		pool.SetReuseHook(hook)
	}
}

// CurrentConnections returns the number of live connections of the pool,
// idle and in use, or 0 if there is no such pool.
func (m *Manager) CurrentConnections(name string) int {
	pool, ok := m.lookup(name)
	if !ok {
		return 0
	}
	return pool.Live()
}

// --- Acquisition ---

// Acquire returns an open connection from the named pool without waiting.
// At capacity it returns an invalid handle and connpool.ErrPoolExhausted.
// The caller must call Release on the returned handle.
func (m *Manager) Acquire(ctx context.Context, name string) (*connpool.Conn, error) {
	pool, ok := m.lookup(name)
	if !ok {
		m.logger.ErrorContext(ctx, "connection pool not found", "pool", poolName(name))
		return connpool.NewInvalidConn(poolName(name)), fmt.Errorf("pool %q: %w", poolName(name), connpool.ErrPoolNotFound)
	}
	return pool.Acquire(ctx)
}

// AcquireAsync passes a connection from the named pool to onReady, now if
// one is available, or later from the Release call that frees one.
// The request is dropped if token expires first. If the pool does not exist,
// onReady receives an invalid handle right away.
func (m *Manager) AcquireAsync(ctx context.Context, name string, onReady func(*connpool.Conn), token *connpool.Token) (queued bool) {
	pool, ok := m.lookup(name)
	if !ok {
		m.logger.ErrorContext(ctx, "connection pool not found", "pool", poolName(name))
		if onReady != nil {
			onReady(connpool.NewInvalidConn(poolName(name)))
		}
		return false
	}
	return pool.AcquireAsync(ctx, onReady, token)
}

// AcquireWait returns a connection from the named pool, waiting until one is
// released or ctx ends.
func (m *Manager) AcquireWait(ctx context.Context, name string) (*connpool.Conn, error) {
	pool, ok := m.lookup(name)
	if !ok {
		m.logger.ErrorContext(ctx, "connection pool not found", "pool", poolName(name))
		return connpool.NewInvalidConn(poolName(name)), fmt.Errorf("pool %q: %w", poolName(name), connpool.ErrPoolNotFound)
	}
	return pool.AcquireWait(ctx)
}

// --- Registry inspection ---

// Has reports whether a pool is registered under name.
func (m *Manager) Has(name string) bool {
	_, ok := m.lookup(name)
	return ok
}

// Names returns the names of all pools, sorted.
func (m *Manager) Names() []string {
	names := lo.Keys(*m.poolsSnapshot.Load())
	slices.Sort(names)
	return names
}

// PoolCount returns the number of registered pools.
func (m *Manager) PoolCount() int {
	return len(*m.poolsSnapshot.Load())
}

// Stats returns statistics for all pools.
func (m *Manager) Stats() ManagerStats {
	pools := *m.poolsSnapshot.Load()
	stats := ManagerStats{
		Pools: lo.MapValues(pools, func(pool *connpool.Pool, _ string) connpool.PoolStats {
			return pool.Stats()
		}),
	}
	for _, s := range stats.Pools {
		stats.Live += s.Live
		stats.Idle += s.Idle
		stats.Waiting += s.Waiting
	}
	return stats
}

// ManagerStats holds statistics for all managed pools.
type ManagerStats struct {
	Live    int                           `yaml:"live" json:"live" toml:"live"`
	Idle    int                           `yaml:"idle" json:"idle" toml:"idle"`
	Waiting int                           `yaml:"waiting" json:"waiting" toml:"waiting"`
	Pools   map[string]connpool.PoolStats `yaml:"pools" json:"pools" toml:"pools"`
}

// Close removes every pool.
func (m *Manager) Close() error {
	var errs []error
	for _, name := range m.Names() {
		if err := m.Remove(name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.logger.Info("connection pool manager closed")
	return nil
}
