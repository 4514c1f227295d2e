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

// Package fakedriver provides an in-memory connpool.Driver and Factory for
// tests of code built on top of connection pools.
package fakedriver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/multigres/namedpool/go/pools/connpool"
)

// Driver is a fake connection. It opens instantly unless OpenErr is set,
// and records how it was used.
type Driver struct {
	// ID is assigned by the Factory, starting at 1.
	ID int

	// OpenErr is returned by Open, which then leaves the driver disconnected.
	OpenErr error

	state     atomic.Int32
	opens     atomic.Int32
	destroyed atomic.Bool
	misused   atomic.Bool
}

var _ connpool.Driver = (*Driver)(nil)

// State implements connpool.Driver.
func (d *Driver) State() connpool.State {
	return connpool.State(d.state.Load())
}

// IsOpen implements connpool.Driver.
func (d *Driver) IsOpen() bool {
	return d.State() == connpool.StateOpen
}

// Open implements connpool.Driver.
func (d *Driver) Open(context.Context) error {
	if d.destroyed.Load() {
		d.misused.Store(true)
	}
	if d.IsOpen() {
		return nil
	}
	d.opens.Add(1)
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.state.Store(int32(connpool.StateOpen))
	return nil
}

// Destroy implements connpool.Driver.
func (d *Driver) Destroy() error {
	if d.destroyed.Swap(true) {
		d.misused.Store(true)
	}
	d.state.Store(int32(connpool.StateDisconnected))
	return nil
}

// Disconnect simulates the server closing the connection.
func (d *Driver) Disconnect() {
	d.state.Store(int32(connpool.StateDisconnected))
}

// Opens returns how many times the driver actually connected.
func (d *Driver) Opens() int {
	return int(d.opens.Load())
}

// Destroyed reports whether Destroy was called.
func (d *Driver) Destroyed() bool {
	return d.destroyed.Load()
}

// Misused reports whether the driver was opened after being destroyed, or
// destroyed twice.
func (d *Driver) Misused() bool {
	return d.misused.Load()
}

// Factory creates fake drivers and keeps track of all of them.
type Factory struct {
	// OpenErr is copied into every driver created.
	OpenErr error

	mu      sync.Mutex
	drivers []*Driver
}

var _ connpool.Factory = (*Factory)(nil)

// CreateRawDriver implements connpool.Factory.
func (f *Factory) CreateRawDriver() connpool.Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &Driver{ID: len(f.drivers) + 1, OpenErr: f.OpenErr}
	f.drivers = append(f.drivers, d)
	return d
}

// Created returns the number of drivers created so far.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drivers)
}

// Drivers returns the drivers created so far, oldest first.
func (f *Factory) Drivers() []*Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Driver(nil), f.drivers...)
}

// Driver returns the i-th created driver, starting at 1.
func (f *Factory) Driver(id int) *Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[id-1]
}

// Destroyed returns the number of drivers destroyed so far.
func (f *Factory) Destroyed() int {
	n := 0
	for _, d := range f.Drivers() {
		if d.Destroyed() {
			n++
		}
	}
	return n
}
