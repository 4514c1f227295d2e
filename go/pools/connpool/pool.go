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

// Package connpool implements a single named pool of database drivers: the
// acquisition decision (reuse, create or queue) and the release protocol that
// returns each driver to exactly the pool it came from, exactly once.
//
// A Pool is usually owned by a connpoolmanager.Manager, which maps pool names
// to pools.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/semconv/v1.37.0/dbconv"

	"github.com/multigres/namedpool/go/list"
)

var (
	// ErrPoolNotFound is returned when an operation names a pool that does not exist.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrPoolExhausted is returned by a synchronous acquisition when the pool
	// is at its connection limit and has no idle connection.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrDuplicatePool is reported when creating a pool whose name is taken.
	ErrDuplicatePool = errors.New("pool already exists")

	// ErrPoolRemoved is returned when acquiring from a pool that was removed
	// while the request was in flight or queued.
	ErrPoolRemoved = errors.New("pool was removed")

	// ErrNilDriver is returned when a factory breaks its contract and
	// returns no driver.
	ErrNilDriver = errors.New("factory returned a nil driver")
)

const (
	// DefaultMaxIdle is the number of idle connections a new pool keeps.
	DefaultMaxIdle = 1

	// DefaultMaxTotal is the connection limit of a new pool; 0 means unbounded.
	DefaultMaxTotal = 0
)

// Config holds the static configuration of a pool. Limits and hooks are set
// after creation with the Pool setters.
type Config struct {
	// Name identifies the pool in logs, metrics and handles.
	Name string

	// Factory creates new drivers. Required.
	Factory Factory

	// Logger for pool diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// ConnectionCount is the OTel metric for tracking connection counts by state.
	// The zero value is a no-op.
	ConnectionCount ConnectionCount

	// PendingRequests is the OTel metric for tracking queued acquisitions.
	// The zero value is a no-op.
	PendingRequests PendingRequests
}

// Pool is a named collection of reusable drivers.
//
// All mutable state lives behind mu: the idle stack, the waitlist, the
// counters, limits and hooks. Factory calls, hooks, Driver.Open, Destroy and
// waiter continuations run without mu held, once the driver they touch is
// owned by exactly one party.
type Pool struct {
	name      string
	factory   Factory
	releaser  Releaser
	logger    *slog.Logger
	connCount ConnectionCount
	pending   PendingRequests

	mu      sync.Mutex
	idle    idleStack
	waiters waitlist

	setupHook Hook
	reuseHook Hook
	maxIdle   int
	maxTotal  int

	// live counts drivers created and not yet destroyed: idle plus checked out.
	live int

	// removed is set once by Close; released drivers are then destroyed.
	removed bool
}

// NewPool creates a pool with DefaultMaxIdle and DefaultMaxTotal.
func NewPool(cfg *Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		name:      cfg.Name,
		factory:   cfg.Factory,
		logger:    logger,
		connCount: cfg.ConnectionCount,
		pending:   cfg.PendingRequests,
		maxIdle:   DefaultMaxIdle,
		maxTotal:  DefaultMaxTotal,
	}
	p.releaser = p
	p.waiters.init()
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// SetMaxIdle sets how many idle connections the pool keeps. Connections
// returned beyond this bound are destroyed. Already idle connections are not
// trimmed.
func (p *Pool) SetMaxIdle(n int) {
	p.mu.Lock()
	p.maxIdle = n
	p.mu.Unlock()
}

// SetMaxTotal sets the limit on live connections; 0 means unbounded.
// Lowering it below the current live count only stops new connections from
// being created until enough of them are destroyed.
func (p *Pool) SetMaxTotal(n int) {
	p.mu.Lock()
	p.maxTotal = n
	p.mu.Unlock()
}

// SetSetupHook sets the hook run on every newly created connection.
func (p *Pool) SetSetupHook(h Hook) {
	p.mu.Lock()
	p.setupHook = h
	p.mu.Unlock()
}

// SetReuseHook sets the hook run every time an idle connection is reused.
func (p *Pool) SetReuseHook(h Hook) {
	p.mu.Lock()
	p.reuseHook = h
	p.mu.Unlock()
}

// Live returns the number of drivers created and not yet destroyed.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// checkout describes a driver leaving the pool.
type checkout struct {
	// driver is the reused idle driver, or nil if a new one must be created.
	driver Driver
	hook   Hook
}

// checkoutLocked runs the reuse-or-create decision. It returns false when
// the pool is at capacity with no idle driver. Must be called with mu held.
func (p *Pool) checkoutLocked() (checkout, bool) {
	if d, ok := p.idle.Pop(); ok {
		return checkout{driver: d, hook: p.reuseHook}, true
	}
	if p.maxTotal == 0 || p.live < p.maxTotal {
		// Reserve the slot now; the driver is created outside the lock.
		p.live++
		return checkout{hook: p.setupHook}, true
	}
	return checkout{}, false
}

// activate turns a checkout into an open handle.
func (p *Pool) activate(ctx context.Context, co checkout) (*Conn, error) {
	d := co.driver
	if d == nil {
		d = p.factory.CreateRawDriver()
		if d == nil {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
			p.logger.ErrorContext(ctx, "driver factory returned no driver", "pool", p.name)
			return NewInvalidConn(p.name), fmt.Errorf("pool %q: %w", p.name, ErrNilDriver)
		}
		p.logger.DebugContext(ctx, "creating a database connection", "pool", p.name)
		p.connCount.Add(ctx, 1, p.name, stateUsed)
	} else {
		p.logger.DebugContext(ctx, "reusing a database connection", "pool", p.name)
		p.connCount.Add(ctx, -1, p.name, stateIdle)
		p.connCount.Add(ctx, 1, p.name, stateUsed)
	}

	conn := newConn(p.name, d, p.releaser)
	if co.hook != nil {
		co.hook(conn)
	}
	if err := conn.Open(ctx); err != nil {
		p.logger.WarnContext(ctx, "failed to open database connection", "pool", p.name, "error", err)
	}
	return conn, nil
}

// Acquire returns an open connection from the pool without waiting.
//
// An idle connection is reused if there is one, otherwise a new one is
// created if the limit allows. At capacity Acquire does not queue: it
// returns an invalid handle and ErrPoolExhausted. Use AcquireAsync or
// AcquireWait to wait for a connection.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return NewInvalidConn(p.name), fmt.Errorf("pool %q: %w", p.name, ErrPoolRemoved)
	}
	co, ok := p.checkoutLocked()
	live, maxTotal := p.live, p.maxTotal
	p.mu.Unlock()

	if !ok {
		p.logger.WarnContext(ctx, "maximum number of connections reached",
			"pool", p.name, "live", live, "max_total", maxTotal)
		return NewInvalidConn(p.name), fmt.Errorf("pool %q (%d/%d connections): %w",
			p.name, live, maxTotal, ErrPoolExhausted)
	}
	return p.activate(ctx, co)
}

// AcquireAsync passes an open connection to onReady.
//
// If a connection is available, onReady runs before AcquireAsync returns.
// Otherwise the request is queued and AcquireAsync returns true at once;
// onReady then runs later, inside the Release call that frees a connection.
// If token expires before that, the request is silently dropped.
// If the pool is removed while the request is queued, onReady receives an
// invalid handle.
//
// onReady owns the handle it receives and must release it.
func (p *Pool) AcquireAsync(ctx context.Context, onReady func(*Conn), token *Token) (queued bool) {
	elem, _ := p.acquireAsync(ctx, onReady, token)
	return elem != nil
}

func (p *Pool) acquireAsync(ctx context.Context, onReady func(*Conn), token *Token) (*list.Element[waiter], error) {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		if onReady != nil {
			onReady(NewInvalidConn(p.name))
		}
		return nil, fmt.Errorf("pool %q: %w", p.name, ErrPoolRemoved)
	}
	co, ok := p.checkoutLocked()
	if !ok {
		elem := p.waiters.push(onReady, token)
		live, maxTotal, waiting := p.live, p.maxTotal, p.waiters.waiting()
		p.mu.Unlock()

		p.pending.Add(ctx, 1, p.name)
		p.logger.InfoContext(ctx, "maximum number of connections reached, queuing",
			"pool", p.name, "live", live, "max_total", maxTotal, "waiting", waiting)
		return elem, nil
	}
	p.mu.Unlock()

	conn, _ := p.activate(ctx, co)
	if onReady == nil {
		conn.Release()
		return nil, nil
	}
	onReady(conn)
	return nil, nil
}

// AcquireWait returns an open connection, waiting for one to be released if
// the pool is at capacity. It returns the context's cause if ctx ends first,
// unless a connection was already being handed over, in which case the
// connection is returned.
func (p *Pool) AcquireWait(ctx context.Context) (*Conn, error) {
	ready := make(chan *Conn, 1)
	elem, err := p.acquireAsync(ctx, func(conn *Conn) { ready <- conn }, nil)
	if err != nil {
		return NewInvalidConn(p.name), err
	}
	if elem == nil {
		return p.delivered(<-ready)
	}

	id := uuid.NewString()
	p.logger.DebugContext(ctx, "waiting for a database connection", "pool", p.name, "waiter", id)

	select {
	case conn := <-ready:
		return p.delivered(conn)
	case <-ctx.Done():
		if p.cancelWait(ctx, elem) {
			p.logger.DebugContext(ctx, "gave up waiting for a database connection", "pool", p.name, "waiter", id)
			return NewInvalidConn(p.name), context.Cause(ctx)
		}
		// We were dequeued before we could leave: a connection is on its way.
		return p.delivered(<-ready)
	}
}

func (p *Pool) delivered(conn *Conn) (*Conn, error) {
	if !conn.IsValid() {
		return conn, fmt.Errorf("pool %q: %w", p.name, ErrPoolRemoved)
	}
	return conn, nil
}

// cancelWait removes a queued request. It reports false if the request was
// already dequeued.
func (p *Pool) cancelWait(ctx context.Context, elem *list.Element[waiter]) bool {
	p.mu.Lock()
	removed := p.waiters.remove(elem)
	p.mu.Unlock()
	if removed {
		p.pending.Add(ctx, -1, p.name)
	}
	return removed
}

// ReleaseDriver runs the release protocol for a driver whose last handle
// owner let go. Handles always release to the pool that created them, so a
// driver outliving its pool is destroyed even if a pool of the same name
// was created since.
func (p *Pool) ReleaseDriver(_ string, d Driver) {
	p.put(d)
}

// put is the release protocol. The decision is taken as a single unit under
// mu: a driver released while a request is queued goes straight to the
// oldest valid waiter and never touches the idle stack.
func (p *Pool) put(d Driver) {
	ctx := context.Background()

	p.mu.Lock()
	if p.removed {
		p.live--
		p.mu.Unlock()
		p.destroy(ctx, d, stateUsed, "pool was removed")
		return
	}

	if d.State() == StateDisconnected {
		p.live--
		p.mu.Unlock()
		p.destroy(ctx, d, stateUsed, "connection is not open")
		return
	}

	w, found, dropped := p.waiters.popValid()
	if found {
		conn := newConn(p.name, d, p.releaser)
		p.mu.Unlock()

		p.pending.Add(ctx, -int64(dropped+1), p.name)
		p.logger.DebugContext(ctx, "handing database connection to queued client",
			"pool", p.name, "dropped_waiters", dropped)
		w.onReady(conn)
		return
	}

	if p.idle.Len() >= p.maxIdle {
		p.live--
		maxIdle := p.maxIdle
		p.mu.Unlock()

		p.pending.Add(ctx, -int64(dropped), p.name)
		p.destroy(ctx, d, stateUsed, fmt.Sprintf("max idle connections (%d) reached", maxIdle))
		return
	}

	p.idle.Push(d)
	p.mu.Unlock()

	p.pending.Add(ctx, -int64(dropped), p.name)
	p.connCount.Add(ctx, -1, p.name, stateUsed)
	p.connCount.Add(ctx, 1, p.name, stateIdle)
	p.logger.DebugContext(ctx, "returning database connection to pool", "pool", p.name)
}

// destroy tears down a driver that is no longer reachable from the pool.
func (p *Pool) destroy(ctx context.Context, d Driver, from dbconv.ClientConnectionStateAttr, reason string) error {
	p.connCount.Add(ctx, -1, p.name, from)
	p.logger.DebugContext(ctx, "deleting database connection", "pool", p.name, "reason", reason)
	err := d.Destroy()
	if err != nil {
		p.logger.WarnContext(ctx, "failed to destroy database connection", "pool", p.name, "error", err)
	}
	return err
}

// Close removes the pool: idle drivers are destroyed, queued requests
// receive an invalid handle, and connections still checked out are destroyed
// when released. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return nil
	}
	p.removed = true
	idle := p.idle.Drain()
	p.live -= len(idle)
	waiting := p.waiters.waiting()
	waiters := p.waiters.drain()
	p.mu.Unlock()

	ctx := context.Background()
	p.pending.Add(ctx, -int64(waiting), p.name)

	var errs []error
	for _, d := range idle {
		if err := p.destroy(ctx, d, stateIdle, "pool was removed"); err != nil {
			errs = append(errs, err)
		}
	}
	for _, w := range waiters {
		w.onReady(NewInvalidConn(p.name))
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Name:     p.name,
		Live:     p.live,
		Idle:     p.idle.Len(),
		InUse:    p.live - p.idle.Len(),
		Waiting:  p.waiters.waiting(),
		MaxIdle:  p.maxIdle,
		MaxTotal: p.maxTotal,
	}
}

// PoolStats holds statistics for a pool.
type PoolStats struct {
	Name     string `yaml:"name" json:"name" toml:"name"`
	Live     int    `yaml:"live" json:"live" toml:"live"`                // Drivers created and not destroyed
	Idle     int    `yaml:"idle" json:"idle" toml:"idle"`                // Drivers available for reuse
	InUse    int    `yaml:"in_use" json:"in_use" toml:"in_use"`          // Drivers checked out
	Waiting  int    `yaml:"waiting" json:"waiting" toml:"waiting"`       // Queued acquisitions
	MaxIdle  int    `yaml:"max_idle" json:"max_idle" toml:"max_idle"`    // Idle bound
	MaxTotal int    `yaml:"max_total" json:"max_total" toml:"max_total"` // Live bound, 0 for unbounded
}
