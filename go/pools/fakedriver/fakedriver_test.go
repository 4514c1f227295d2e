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

package fakedriver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/namedpool/go/pools/connpool"
)

func TestDriverLifecycle(t *testing.T) {
	f := &Factory{}
	d := f.CreateRawDriver().(*Driver)

	assert.Equal(t, 1, d.ID)
	assert.Equal(t, connpool.StateDisconnected, d.State())

	require.NoError(t, d.Open(t.Context()))
	require.NoError(t, d.Open(t.Context()))
	assert.True(t, d.IsOpen())
	assert.Equal(t, 1, d.Opens(), "open is idempotent")

	d.Disconnect()
	assert.False(t, d.IsOpen())

	require.NoError(t, d.Destroy())
	assert.True(t, d.Destroyed())
	assert.False(t, d.Misused())

	_ = d.Open(t.Context())
	assert.True(t, d.Misused())
}

func TestFactoryOpenErr(t *testing.T) {
	errRefused := errors.New("connection refused")
	f := &Factory{OpenErr: errRefused}

	d := f.CreateRawDriver()
	require.ErrorIs(t, d.Open(t.Context()), errRefused)
	assert.Equal(t, connpool.StateDisconnected, d.State())

	f.CreateRawDriver()
	assert.Equal(t, 2, f.Created())
	assert.Same(t, d, f.Driver(1))
	assert.Len(t, f.Drivers(), 2)
	assert.Equal(t, 0, f.Destroyed())
}
