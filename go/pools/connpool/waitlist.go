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

import "github.com/multigres/namedpool/go/list"

// waiter is a queued acquisition: the continuation to invoke once a
// connection is handed over, and an optional liveness token.
type waiter struct {
	onReady func(*Conn)
	token   *Token
}

// valid reports whether the waiter should still be served.
func (w *waiter) valid() bool {
	return w.onReady != nil && w.token.Alive()
}

// waitlist is the FIFO queue of pending acquisitions of a pool.
// Like idleStack, it is only accessed while holding Pool.mu, so that handing
// a released driver to a waiter is atomic with respect to acquisitions.
type waitlist struct {
	list list.List[waiter]
}

func (wl *waitlist) init() {
	wl.list.Init()
}

// push appends a waiter to the back of the queue and returns its element,
// which the caller can later use to cancel.
func (wl *waitlist) push(onReady func(*Conn), token *Token) *list.Element[waiter] {
	return wl.list.PushBack(waiter{onReady: onReady, token: token})
}

// popValid removes waiters from the front of the queue until it finds one
// that is still valid. Stale waiters are discarded along the way; the number
// of discarded waiters is returned so the caller can account for them.
func (wl *waitlist) popValid() (w waiter, found bool, dropped int) {
	for e := wl.list.Front(); e != nil; e = wl.list.Front() {
		wl.list.Remove(e)
		if e.Value.valid() {
			return e.Value, true, dropped
		}
		dropped++
	}
	return waiter{}, false, dropped
}

// remove takes elem out of the queue if it is still queued.
// It reports false if elem was already dequeued, which means a connection
// is being handed to it.
func (wl *waitlist) remove(elem *list.Element[waiter]) bool {
	for e := wl.list.Front(); e != nil; e = e.Next() {
		if e == elem {
			wl.list.Remove(elem)
			return true
		}
	}
	return false
}

// drain empties the queue and returns the waiters that are still valid.
func (wl *waitlist) drain() []waiter {
	var valid []waiter
	for e := wl.list.Front(); e != nil; e = wl.list.Front() {
		wl.list.Remove(e)
		if e.Value.valid() {
			valid = append(valid, e.Value)
		}
	}
	return valid
}

func (wl *waitlist) waiting() int {
	return wl.list.Len()
}
