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

package connpool

import "context"

// State is the observable state of a driver connection.
type State int

const (
	// StateDisconnected means the driver has no usable connection. A driver
	// returned to the pool in this state is destroyed instead of reused.
	StateDisconnected State = iota

	// StateConnecting means a connection attempt is in flight.
	StateConnecting

	// StateOpen means the driver holds a usable connection.
	StateOpen
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Driver is a raw database connection produced by a Factory.
// The pool never talks to the database itself; it only needs to know whether
// a driver is still usable and how to open and tear it down.
type Driver interface {
	// State returns the current connection state.
	State() State

	// IsOpen reports whether the driver holds a usable connection.
	IsOpen() bool

	// Open connects the driver. It must be idempotent: calling Open on an
	// already open driver is a no-op.
	Open(ctx context.Context) error

	// Destroy closes the connection and releases associated resources.
	// The pool never hands out a driver after destroying it.
	Destroy() error
}

// Factory creates raw drivers for a pool.
// CreateRawDriver must never return nil; connection errors belong to the
// driver's own state (see Driver.Open).
type Factory interface {
	CreateRawDriver() Driver
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func() Driver

// CreateRawDriver calls f.
func (f FactoryFunc) CreateRawDriver() Driver {
	return f()
}

// Hook is invoked on a connection handle when a driver is created (setup
// hook) or taken from the idle list (reuse hook). Hooks run before the handle
// is opened and must not release the handle.
type Hook func(conn *Conn)

// Releaser receives a driver once the last owner of its handle lets go.
// Pool implements Releaser: a driver always goes back to the pool it was
// created for, or is destroyed if that pool was removed.
type Releaser interface {
	ReleaseDriver(pool string, d Driver)
}
