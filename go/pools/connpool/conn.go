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

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInvalidConn is returned when using a handle that carries no driver.
var ErrInvalidConn = errors.New("connection handle has no driver")

// Conn is a handle on a pooled driver.
//
// A Conn can have several owners. Share creates a new owner and Release drops
// one; when the last owner releases, the driver is handed back to the
// Releaser exactly once. Each owner must call Release once, typically with
// defer. Calling Release again on the same owner is a no-op.
//
// A Conn returned together with an error from an acquisition carries no
// driver: IsValid is false, IsOpen is false and Release does nothing.
type Conn struct {
	shared *sharedConn

	// released guards this owner's single Release.
	released atomic.Bool
}

// sharedConn is the state common to all owners of a handle.
type sharedConn struct {
	driver   Driver
	pool     string
	releaser Releaser

	owners atomic.Int64
	once   sync.Once
}

func newConn(pool string, d Driver, r Releaser) *Conn {
	s := &sharedConn{driver: d, pool: pool, releaser: r}
	s.owners.Store(1)
	return &Conn{shared: s}
}

// NewInvalidConn returns a handle with no driver for the named pool. It is
// what acquisitions hand out when they fail.
func NewInvalidConn(pool string) *Conn {
	return &Conn{shared: &sharedConn{pool: pool}}
}

// Pool returns the name of the pool the connection came from.
func (c *Conn) Pool() string {
	if c == nil || c.shared == nil {
		return ""
	}
	return c.shared.pool
}

// Driver returns the underlying driver, or nil for an invalid handle.
// The driver must not be used after the handle is released.
func (c *Conn) Driver() Driver {
	if c == nil || c.shared == nil {
		return nil
	}
	return c.shared.driver
}

// IsValid reports whether the handle carries a driver.
func (c *Conn) IsValid() bool {
	return c.Driver() != nil
}

// IsOpen reports whether the handle carries a driver with a usable connection.
func (c *Conn) IsOpen() bool {
	d := c.Driver()
	return d != nil && d.IsOpen()
}

// State returns the driver state, or StateDisconnected for an invalid handle.
func (c *Conn) State() State {
	d := c.Driver()
	if d == nil {
		return StateDisconnected
	}
	return d.State()
}

// Open opens the underlying driver.
func (c *Conn) Open(ctx context.Context) error {
	d := c.Driver()
	if d == nil {
		return ErrInvalidConn
	}
	return d.Open(ctx)
}

// Share returns a new owner of the same driver. The returned handle must be
// released independently of c. Sharing a released or invalid handle returns
// an invalid handle.
func (c *Conn) Share() *Conn {
	if !c.IsValid() || c.released.Load() {
		return NewInvalidConn(c.Pool())
	}
	c.shared.owners.Add(1)
	return &Conn{shared: c.shared}
}

// Owners returns the number of owners that have not released the handle yet.
func (c *Conn) Owners() int64 {
	if c == nil || c.shared == nil {
		return 0
	}
	return c.shared.owners.Load()
}

// Release drops this owner. The last owner to release hands the driver back
// to its pool synchronously, before Release returns.
func (c *Conn) Release() {
	if !c.IsValid() || !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.shared.owners.Add(-1) > 0 {
		return
	}
	c.shared.once.Do(func() {
		s := c.shared
		if s.releaser == nil {
			_ = s.driver.Destroy()
			return
		}
		s.releaser.ReleaseDriver(s.pool, s.driver)
	})
}
