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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleStack(t *testing.T) {
	var s idleStack

	_, ok := s.Pop()
	assert.False(t, ok, "pop on empty stack")

	d1, d2, d3 := &mockDriver{id: 1}, &mockDriver{id: 2}, &mockDriver{id: 3}
	s.Push(d1)
	s.Push(d2)
	s.Push(d3)
	assert.Equal(t, 3, s.Len())

	d, ok := s.Pop()
	require.True(t, ok)
	assert.Same(t, d3, d)
	assert.Equal(t, 2, s.Len())

	drained := s.Drain()
	assert.Equal(t, []Driver{d2, d1}, drained)
	assert.Equal(t, 0, s.Len())
	_, ok = s.Pop()
	assert.False(t, ok)
}

func TestWaitlist(t *testing.T) {
	var wl waitlist
	wl.init()

	var served []int
	expired := NewToken()
	expired.Expire()

	wl.push(func(*Conn) { served = append(served, 1) }, expired)
	wl.push(nil, nil)
	second := wl.push(func(*Conn) { served = append(served, 2) }, nil)
	wl.push(func(*Conn) { served = append(served, 3) }, NewToken())
	assert.Equal(t, 4, wl.waiting())

	w, found, dropped := wl.popValid()
	require.True(t, found)
	assert.Equal(t, 2, dropped)
	w.onReady(nil)
	assert.Equal(t, []int{2}, served)

	assert.False(t, wl.remove(second), "already dequeued")
	assert.Equal(t, 1, wl.waiting())

	w, found, dropped = wl.popValid()
	require.True(t, found)
	assert.Equal(t, 0, dropped)
	w.onReady(nil)
	assert.Equal(t, []int{2, 3}, served)

	_, found, _ = wl.popValid()
	assert.False(t, found)
}

func TestWaitlistRemoveAndDrain(t *testing.T) {
	var wl waitlist
	wl.init()

	stale := NewToken()
	first := wl.push(func(*Conn) {}, nil)
	wl.push(func(*Conn) {}, stale)
	wl.push(func(*Conn) {}, nil)

	assert.True(t, wl.remove(first))
	assert.False(t, wl.remove(first))
	assert.Equal(t, 2, wl.waiting())

	stale.Expire()
	valid := wl.drain()
	assert.Len(t, valid, 1)
	assert.Equal(t, 0, wl.waiting())
}
