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

package pgxdriver

import (
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/namedpool/go/pools/connpool"
	"github.com/multigres/namedpool/go/pools/connpoolmanager"
)

func TestNewFactoryInvalidDSN(t *testing.T) {
	_, err := NewFactory("postgres://%zz")
	require.Error(t, err)
}

func TestDriverNotOpen(t *testing.T) {
	config, err := pgx.ParseConfig("postgres://app@127.0.0.1:1/db?connect_timeout=1")
	require.NoError(t, err)
	d := New(config)

	assert.Equal(t, connpool.StateDisconnected, d.State())
	assert.False(t, d.IsOpen())
	assert.Nil(t, d.Conn())
	require.ErrorIs(t, d.Exec(t.Context(), "SELECT 1"), ErrNotOpen)
	require.NoError(t, d.Destroy())
}

func TestDriverUnreachableServer(t *testing.T) {
	config, err := pgx.ParseConfig("postgres://app@127.0.0.1:1/db?connect_timeout=1&sslmode=disable")
	require.NoError(t, err)
	d := New(config)

	require.Error(t, d.Open(t.Context()))
	assert.Equal(t, connpool.StateDisconnected, d.State())
	assert.Nil(t, d.Conn())
}

func TestFactoryIntegration(t *testing.T) {
	dsn := os.Getenv("NAMEDPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("NAMEDPOOL_TEST_DSN not set")
	}
	factory, err := NewFactory(dsn)
	require.NoError(t, err)

	mgr := connpoolmanager.NewManager(nil, nil)
	defer mgr.Close()
	mgr.Create("pgx", factory)
	mgr.SetMaxTotal(1, "pgx")

	var reused int
	mgr.SetReuseHook(func(c *connpool.Conn) { reused++ }, "pgx")

	conn, err := mgr.Acquire(t.Context(), "pgx")
	require.NoError(t, err)
	require.True(t, conn.IsOpen())

	var one int
	require.NoError(t, conn.Driver().(*Driver).Conn().QueryRow(t.Context(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
	conn.Release()

	conn, err = mgr.Acquire(t.Context(), "pgx")
	require.NoError(t, err)
	assert.Equal(t, 1, reused)
	conn.Release()
	assert.Equal(t, 1, mgr.CurrentConnections("pgx"))
}
