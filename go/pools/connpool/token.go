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

import "sync/atomic"

// Token tracks whether the requester of a queued acquisition still wants the
// connection. A requester expires its token on teardown; the pool checks the
// token when it dequeues the request and silently drops it if expired.
//
// A single token may guard any number of requests. The zero value is alive.
type Token struct {
	expired atomic.Bool
}

// NewToken returns a live token.
func NewToken() *Token {
	return &Token{}
}

// Expire marks the token dead. It reports whether this call expired it.
func (t *Token) Expire() bool {
	return t.expired.CompareAndSwap(false, true)
}

// Alive reports whether the token has not been expired. A nil token is
// always alive: requests without a token are never dropped.
func (t *Token) Alive() bool {
	return t == nil || !t.expired.Load()
}
