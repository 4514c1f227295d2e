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

// Package pqdriver implements connpool.Driver on top of lib/pq.
package pqdriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lib/pq"

	"github.com/multigres/namedpool/go/pools/connpool"
)

// ErrNotOpen is returned when using a driver that has no open connection.
var ErrNotOpen = errors.New("pq connection is not open")

// NewFactory returns a factory of drivers connecting to dsn, which is either
// a postgres:// URL or a key=value connection string.
func NewFactory(dsn string) (connpool.Factory, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	return connpool.FactoryFunc(func() connpool.Driver {
		return New(connector)
	}), nil
}

// Driver is a single PostgreSQL connection made through a driver.Connector.
type Driver struct {
	connector driver.Connector

	// mu serializes Open and Destroy; State reads the atomic without it.
	mu    sync.Mutex
	conn  driver.Conn
	state atomic.Int32
}

var _ connpool.Driver = (*Driver)(nil)

// New returns a disconnected driver.
func New(connector driver.Connector) *Driver {
	return &Driver{connector: connector}
}

// State implements connpool.Driver. A connection lib/pq has flagged as bad
// reports StateDisconnected, so the pool destroys it on release.
func (d *Driver) State() connpool.State {
	state := connpool.State(d.state.Load())
	if state != connpool.StateOpen {
		return state
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.conn.(driver.Validator); ok && !v.IsValid() {
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
	if d.conn != nil {
		return nil
	}

	d.state.Store(int32(connpool.StateConnecting))
	conn, err := d.connector.Connect(ctx)
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
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Ping checks the connection with a round trip to the server.
func (d *Driver) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return ErrNotOpen
	}
	p, ok := d.conn.(driver.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// Exec runs a statement without arguments, typically from a setup or reuse
// hook (for example a SET command).
func (d *Driver) Exec(ctx context.Context, query string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return ErrNotOpen
	}
	e, ok := d.conn.(driver.ExecerContext)
	if !ok {
		return fmt.Errorf("%T does not support ExecContext", d.conn)
	}
	_, err := e.ExecContext(ctx, query, nil)
	return err
}
