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

	"github.com/multigres/namedpool/go/pools/connpool"
)

// PoolManager defines the interface for named connection pool management.
// This interface is useful for testing components that depend on the manager,
// allowing them to use mock implementations.
//
// Example usage in tests:
//
//	type mockManager struct {
//	    connpoolmanager.PoolManager // embed for default nil implementations
//	    // override specific methods as needed
//	}
type PoolManager interface {
	// --- Registry ---

	// Create registers a pool. Duplicate names are ignored.
	Create(name string, factory connpool.Factory)

	// Remove unregisters a pool and tears down its idle connections.
	Remove(name string) error

	// SetMaxIdle sets how many idle connections a pool keeps.
	SetMaxIdle(max int, name string)

	// SetMaxTotal sets the limit on live connections of a pool.
	SetMaxTotal(max int, name string)

	// SetSetupHook sets the hook run on newly created connections.
	SetSetupHook(hook connpool.Hook, name string)

	// SetReuseHook sets the hook run on reused connections.
	SetReuseHook(hook connpool.Hook, name string)

	// CurrentConnections returns the number of live connections of a pool.
	CurrentConnections(name string) int

	// --- Acquisition ---

	// Acquire returns a connection without waiting.
	Acquire(ctx context.Context, name string) (*connpool.Conn, error)

	// AcquireAsync passes a connection to onReady, queuing if needed.
	AcquireAsync(ctx context.Context, name string, onReady func(*connpool.Conn), token *connpool.Token) bool

	// AcquireWait returns a connection, waiting until one is free.
	AcquireWait(ctx context.Context, name string) (*connpool.Conn, error)

	// --- Stats ---

	// Stats returns statistics for all pools.
	Stats() ManagerStats

	// Close removes all pools.
	Close() error
}

// Compile-time check that Manager implements PoolManager.
var _ PoolManager = (*Manager)(nil)
