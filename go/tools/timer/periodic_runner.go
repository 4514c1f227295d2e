// Copyright 2023 The Vitess Authors.
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
//
// Modifications Copyright 2025 Supabase, Inc.

// Package timer runs callbacks at regular intervals.
package timer

import (
	"context"
	"sync"
	"time"
)

// PeriodicRunner calls a callback every interval until stopped. The next
// call is scheduled only once the previous one returned, so calls never
// overlap. A stopped runner can be started again.
type PeriodicRunner struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeriodicRunner returns a stopped runner.
func NewPeriodicRunner(interval time.Duration) *PeriodicRunner {
	return &PeriodicRunner{interval: interval}
}

// Start runs callback every interval with a context derived from ctx, which
// is cancelled by Stop. It reports false if the runner was already running.
func (r *PeriodicRunner) Start(ctx context.Context, callback func(context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, callback, r.done)
	return true
}

func (r *PeriodicRunner) run(ctx context.Context, callback func(context.Context), done chan struct{}) {
	defer close(done)
	t := time.NewTimer(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			callback(ctx)
			t.Reset(r.interval)
		}
	}
}

// Stop cancels the callback context and waits for an in-flight call to
// return. Stopping a stopped runner does nothing.
func (r *PeriodicRunner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the runner is started.
func (r *PeriodicRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}
