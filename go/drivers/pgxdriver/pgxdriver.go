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

// Package pgxdriver implements connpool.Driver on top of a single pgx connection.
package pgxdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/multigres/namedpool/go/pools/connpool"
)

// closeTimeout bounds the graceful termination message sent on Destroy.
const closeTimeout = 5 * time.Second

// ErrNotOpen is returned when using a driver that has no open connection.
var ErrNotOpen = errors.New("pgx connection is not open")

// NewFactory returns a factory of drivers connecting with the given
// connection string.
func NewFactory(dsn string) (connpool.Factory, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	return connpool.FactoryFunc(func() connpool.Driver {
		return New(config)
	}), nil
}

// Driver is a single pgx connection.
type Driver struct {
	config *pgx.ConnConfig

	mu    sync.Mutex
	conn  *pgx.Conn
	state atomic.Int32
}

var _ connpool.Driver = (*Driver)(nil)

// New returns a disconnected driver. The config is copied on every Open.
func New(config *pgx.ConnConfig) *Driver {
	return &Driver{config: config}
}

// State implements connpool.Driver. A connection pgx has closed, after a
// network or protocol error, reports StateDisconnected.
func (d *Driver) State() connpool.State {
	state := connpool.State(d.state.Load())
	if state != connpool.StateOpen {
		return state
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil || d.conn.IsClosed() {
		return connpool.StateDisconnected
	}
	return state
}

// IsOpen implements connpool.Driver.
func (d *Driver) IsOpen() bool {
	return d.State() == connpool.StateOpen
}

// Open implements connpool.Driver.
func (d *Driver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && !d.conn.IsClosed() {
		return nil
	}

	d.state.Store(int32(connpool.StateConnecting))
	conn, err := pgx.ConnectConfig(ctx, d.config.Copy())
	if err != nil {
		d.state.Store(int32(connpool.StateDisconnected))
		return fmt.Errorf("connecting: %w", err)
	}
	d.conn = conn
	d.state.Store(int32(connpool.StateOpen))
	return nil
}

// Destroy implements connpool.Driver.
func (d *Driver) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Store(int32(connpool.StateDisconnected))
	if d.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := d.conn.Close(ctx)
	d.conn = nil
	return err
}

// Conn returns the underlying connection, or nil if the driver is not open.
// It must not be used after the handle holding the driver is released.
func (d *Driver) Conn() *pgx.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

// Exec runs a statement, typically from a setup or reuse hook.
func (d *Driver) Exec(ctx context.Context, sql string, args ...any) error {
	conn := d.Conn()
	if conn == nil {
		return ErrNotOpen
	}
	_, err := conn.Exec(ctx, sql, args...)
	return err
}
