/*
store.go - Persistence and cache contracts

PURPOSE:
  Defines the narrow boundary between the payment engine and its storage
  and cache collaborators. The engine never sees SQL or Redis.

KEY INTERFACES:
  Store:    Payment writes and grouped-sum reads
  Cache:    Assembled sales responses keyed by query
  Observer: Hooks for metrics (attempts, cache lookups, outcomes)

APPEND-ONLY CONTRACT:
  Store has no Update or Delete. A Payment row is written exactly once.

GROUPED SUMS:
  QueryGroupedSums returns one SalesStatement per non-empty bucket whose
  payments have OccurredAt in [start, end] (inclusive), ascending by
  BucketStart. Price sums are exact decimals.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - sales/store/memory.go: In-memory for tests and development
  - cache/memory.go, cache/redis.go: Cache backends

SEE ALSO:
  - processor.go, aggregator.go: Consumers
*/
package sales

import (
	"context"
	"time"
)

// Store persists payments and answers grouped-sum queries.
type Store interface {
	// SavePayment inserts p and returns it with ID assigned. Any error is
	// treated as transient by callers.
	SavePayment(ctx context.Context, p Payment) (Payment, error)

	// QueryGroupedSums sums price and points per bucket over [start, end].
	QueryGroupedSums(ctx context.Context, start, end time.Time, unit Granularity) ([]SalesStatement, error)
}

// Cache stores assembled sales responses. Set must store the value whole:
// a reader sees either nothing or a complete response.
type Cache interface {
	Get(ctx context.Context, key string) (SalesResponse, bool, error)
	Set(ctx context.Context, key string, resp SalesResponse, ttl time.Duration) error
}

// Observer receives engine events. Implementations must be safe for
// concurrent use.
type Observer interface {
	StorageAttempt(op string, err error)
	CacheLookup(hit bool)
	PaymentCreated(method PaymentMethod)
	Rejected(op string, kind Kind)
}

type nopObserver struct{}

func (nopObserver) StorageAttempt(string, error) {}
func (nopObserver) CacheLookup(bool)             {}
func (nopObserver) PaymentCreated(PaymentMethod) {}
func (nopObserver) Rejected(string, Kind)        {}
