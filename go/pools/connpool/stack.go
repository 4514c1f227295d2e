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

// idleNode links an idle driver into the stack.
type idleNode struct {
	driver Driver
	next   *idleNode
}

// idleStack is the LIFO list of idle drivers of a pool.
//
// The most recently returned driver is reused first, which keeps warm
// connections busy and lets cold ones age at the bottom. The stack has no
// lock of its own: it is only touched while holding Pool.mu, alongside the
// counters it must stay consistent with.
type idleStack struct {
	top   *idleNode
	count int
}

// Push adds a driver to the top of the stack.
func (s *idleStack) Push(d Driver) {
	s.top = &idleNode{driver: d, next: s.top}
	s.count++
}

// Pop removes and returns the driver at the top of the stack.
// Returns nil and false if the stack is empty.
func (s *idleStack) Pop() (Driver, bool) {
	if s.top == nil {
		return nil, false
	}
	n := s.top
	s.top = n.next
	s.count--
	n.next = nil
	return n.driver, true
}

// Len returns the number of drivers in the stack.
func (s *idleStack) Len() int {
	return s.count
}

// Drain empties the stack and returns its drivers, top first.
func (s *idleStack) Drain() []Driver {
	drivers := make([]Driver, 0, s.count)
	for n := s.top; n != nil; n = n.next {
		drivers = append(drivers, n.driver)
	}
	s.top = nil
	s.count = 0
	return drivers
}
