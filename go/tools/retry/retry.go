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

// Package retry paces retry loops with exponential backoff.
package retry

import (
	"context"
	"iter"
	"math/rand/v2"
	"sync"
	"time"
)

// Retry paces the attempts of a retry loop. The first attempt starts at
// once; before the n-th retry it waits a random delay in
// [0, min(maxDelay, baseDelay*2^n)) ("full jitter").
//
//	r := retry.New(100*time.Millisecond, 2*time.Second)
//	for attempt, err := range r.Attempts(ctx) {
//	    if err != nil {
//	        return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
//	    }
//	    if err := conn.Open(ctx); err == nil {
//	        return nil
//	    }
//	}
type Retry struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	jitter    bool
	after     func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	attempt int
	step    int
}

// Option configures a Retry.
type Option func(*Retry)

// WithoutJitter makes every wait the full backoff delay.
func WithoutJitter() Option {
	return func(r *Retry) { r.jitter = false }
}

// New returns a Retry. It panics if the delays are not positive or
// baseDelay exceeds maxDelay.
func New(baseDelay, maxDelay time.Duration, opts ...Option) *Retry {
	if baseDelay <= 0 || maxDelay <= 0 {
		panic("retry: delays must be positive")
	}
	if baseDelay > maxDelay {
		panic("retry: base delay cannot be greater than max delay")
	}
	r := &Retry{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		jitter:    true,
		after:     time.After,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartAttempt waits out the backoff delay, if any, before the next attempt.
// It returns the context error if ctx ends first.
func (r *Retry) StartAttempt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	first := r.attempt == 0
	r.mu.Unlock()

	if !first {
		select {
		case <-r.after(r.nextDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.attempt++
	r.mu.Unlock()
	return nil
}

// Attempt returns the number of attempts started so far.
func (r *Retry) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// Reset brings the backoff delay back to baseDelay. The attempt count is kept.
func (r *Retry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = 0
}

// Attempts yields the attempt number before each attempt. The last pair
// carries the context error when ctx ends.
func (r *Retry) Attempts(ctx context.Context) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for {
			err := r.StartAttempt(ctx)
			if !yield(r.Attempt(), err) || err != nil {
				return
			}
		}
	}
}

func (r *Retry) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.maxDelay
	// 1<<62 would overflow once multiplied by any realistic base delay.
	if r.step < 62 {
		if d := r.baseDelay << r.step; d > 0 && d < r.maxDelay && d>>r.step == r.baseDelay {
			delay = d
		}
	}
	r.step++

	if r.jitter {
		delay = time.Duration(float64(delay) * r.rng.Float64())
	}
	return delay
}
