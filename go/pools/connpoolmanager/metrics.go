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
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/multigres/namedpool/go/pools/connpool"
)

// MeterName is the instrumentation scope of the manager metrics.
const MeterName = "github.com/multigres/namedpool/go/pools/connpoolmanager"

// Metrics holds OpenTelemetry metrics for connection pool management.
// The zero value records nothing.
type Metrics struct {
	// connCount tracks connection states of every pool
	connCount connpool.ConnectionCount

	// pending tracks queued acquisitions of every pool
	pending connpool.PendingRequests

	// pools tracks the number of registered pools
	pools poolCount
}

// NewMetrics initializes metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(MeterName))
}

// NewMetricsWithMeter initializes metrics on the given meter.
// Individual metrics that fail to initialize use noop implementations and are
// included in the returned error. The returned Metrics instance is always
// usable.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var errs []error

	connCount, err := connpool.NewConnectionCount(meter)
	if err != nil {
		errs = append(errs, fmt.Errorf("ConnectionCount: %w", err))
	} else {
		m.connCount = connCount
	}

	pending, err := connpool.NewPendingRequests(meter)
	if err != nil {
		errs = append(errs, fmt.Errorf("PendingRequests: %w", err))
	} else {
		m.pending = pending
	}

	pools, err := meter.Int64UpDownCounter(
		"namedpool.pools",
		metric.WithDescription("The number of registered connection pools."),
		metric.WithUnit("{pool}"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("pool count: %w", err))
	} else {
		m.pools = poolCount{counter: pools}
	}

	if len(errs) > 0 {
		return m, errors.Join(errs...)
	}
	return m, nil
}

// ConnCount returns the ConnectionCount metric shared by all pools.
func (m *Metrics) ConnCount() connpool.ConnectionCount {
	return m.connCount
}

// PendingRequests returns the PendingRequests metric shared by all pools.
func (m *Metrics) PendingRequests() connpool.PendingRequests {
	return m.pending
}

type poolCount struct {
	counter metric.Int64UpDownCounter
}

func (p poolCount) Add(ctx context.Context, delta int64) {
	if p.counter == nil {
		return
	}
	p.counter.Add(ctx, delta)
}
