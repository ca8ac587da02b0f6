// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anyx/sales-engine/sales"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	payments []sales.Payment // sorted by OccurredAt, then ID
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

// SavePayment appends a payment and assigns its ID. Append-only.
func (m *Memory) SavePayment(ctx context.Context, p sales.Payment) (sales.Payment, error) {
	if err := ctx.Err(); err != nil {
		return sales.Payment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextID
	m.nextID++
	p.OccurredAt = p.OccurredAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()

	// Binary search for insertion point keeps payments ordered by OccurredAt
	i := sort.Search(len(m.payments), func(i int) bool {
		return m.payments[i].OccurredAt.After(p.OccurredAt)
	})
	m.payments = append(m.payments, sales.Payment{})
	copy(m.payments[i+1:], m.payments[i:])
	m.payments[i] = p
	return p, nil
}

// QueryGroupedSums folds payments in [start, end] into ascending buckets.
func (m *Memory) QueryGroupedSums(ctx context.Context, start, end time.Time, unit sales.Granularity) ([]sales.SalesStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []sales.SalesStatement
	for _, p := range m.inRange(start, end) {
		bucket := unit.Truncate(p.OccurredAt)
		if n := len(out); n > 0 && out[n-1].BucketStart.Equal(bucket) {
			out[n-1].TotalPrice = out[n-1].TotalPrice.Add(p.Price)
			out[n-1].TotalPoints += p.Points
			continue
		}
		out = append(out, sales.SalesStatement{
			TotalPrice:  decimal.Zero.Add(p.Price),
			TotalPoints: p.Points,
			BucketStart: bucket,
		})
	}
	return out, nil
}

// ListPayments returns payments with OccurredAt in [from, to], ascending.
func (m *Memory) ListPayments(_ context.Context, from, to time.Time) ([]sales.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := m.inRange(from, to)
	out := make([]sales.Payment, len(found))
	copy(out, found)
	return out, nil
}

func (m *Memory) inRange(from, to time.Time) []sales.Payment {
	lo := sort.Search(len(m.payments), func(i int) bool {
		return !m.payments[i].OccurredAt.Before(from)
	})
	hi := sort.Search(len(m.payments), func(i int) bool {
		return m.payments[i].OccurredAt.After(to)
	})
	if lo >= hi {
		return nil
	}
	return m.payments[lo:hi]
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
