/*
aggregator.go - Bucketed sales statements with cache lookaside and retry

PURPOSE:
  Answers "what was sold, and how many points were earned, per bucket
  between start and end". Results are cached per exact query for a fixed
  TTL.

REQUEST FLOW:
  1. Validate granularity and range                → validation error
  2. Cache.Get(key)          hit                   → return cached response
  3. Store.QueryGroupedSums  with bounded retry    → operational on exhaustion
  4. Format each bucket (two-decimal sales, integer points)
  5. Cache.Set(key, response, ttl)                 → failure is logged only

CONSISTENCY:
  New payments do not invalidate cached statements. A statement covering a
  fresh payment may be stale for up to the TTL.

  Concurrent identical misses each query the store unless coalescing is
  enabled with WithCoalescing.

SEE ALSO:
  - cache/memory.go, cache/redis.go: Cache backends
  - store/sqlite/sqlite.go: Grouped sums in SQL
*/
package sales

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const opGetSalesStatement = "getSalesStatement"

// Aggregator computes sales statements. Safe for concurrent use.
type Aggregator struct {
	store Store
	cache Cache
	opts  options
	group singleflight.Group
}

// NewAggregator returns an Aggregator. A nil cache disables caching.
func NewAggregator(store Store, cache Cache, opts ...Option) *Aggregator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if cache == nil {
		cache = noCache{}
	}
	return &Aggregator{store: store, cache: cache, opts: o}
}

// CacheKey identifies a query exactly. Instants are compared in UTC.
func CacheKey(q StatementQuery) string {
	return "sales:" + q.Start.UTC().Format(time.RFC3339Nano) +
		"|" + q.End.UTC().Format(time.RFC3339Nano) +
		"|" + string(q.Granularity)
}

// GetSalesStatement returns one line per non-empty bucket in [q.Start, q.End].
func (a *Aggregator) GetSalesStatement(ctx context.Context, q StatementQuery) (SalesResponse, error) {
	if q.Granularity == "" {
		q.Granularity = DefaultGranularity
	}
	q.Start, q.End = q.Start.UTC(), q.End.UTC()

	log := a.opts.requestLogger(ctx).With().
		Str("op", opGetSalesStatement).
		Time("start", q.Start).
		Time("end", q.End).
		Str("granularity", string(q.Granularity)).
		Logger()

	if verr := validateQuery(q); verr != nil {
		log.Warn().Str("reason", verr.Message).Msg("sales statement query rejected")
		a.opts.observer.Rejected(opGetSalesStatement, KindValidation)
		return SalesResponse{}, verr
	}

	key := CacheKey(q)
	cached, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("cache read failed, falling through to store")
	}
	a.opts.observer.CacheLookup(ok && err == nil)
	if ok && err == nil {
		log.Debug().Msg("sales statement served from cache")
		return cached, nil
	}

	var resp SalesResponse
	if a.opts.coalesce {
		// The shared load outlives any one caller; each caller stops
		// waiting on its own context.
		shared := context.WithoutCancel(ctx)
		ch := a.group.DoChan(key, func() (any, error) {
			return a.load(shared, q, key, log)
		})
		select {
		case <-ctx.Done():
			return SalesResponse{}, a.fail(log, ctx.Err())
		case r := <-ch:
			if r.Err != nil {
				return SalesResponse{}, a.fail(log, r.Err)
			}
			resp = r.Val.(SalesResponse)
			if r.Shared {
				resp = resp.clone()
			}
		}
	} else {
		resp, err = a.load(ctx, q, key, log)
		if err != nil {
			return SalesResponse{}, a.fail(log, err)
		}
	}
	return resp, nil
}

func (a *Aggregator) fail(log zerolog.Logger, err error) error {
	log.Error().Err(err).Msg("Error retrieving sales statement from store")
	a.opts.observer.Rejected(opGetSalesStatement, KindOperational)
	return operational(err)
}

func (a *Aggregator) load(ctx context.Context, q StatementQuery, key string, log zerolog.Logger) (SalesResponse, error) {
	statements, err := retry(ctx, a.opts.retry, "query_grouped_sums", a.opts.observer, log,
		func(ctx context.Context) ([]SalesStatement, error) {
			return a.store.QueryGroupedSums(ctx, q.Start, q.End, q.Granularity)
		})
	if err != nil {
		return SalesResponse{}, err
	}

	resp := NewSalesResponse(statements)
	if err := a.cache.Set(ctx, key, resp, a.opts.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("cache write failed")
	}
	return resp, nil
}

// NewSalesResponse formats statements into response lines, preserving order.
func NewSalesResponse(statements []SalesStatement) SalesResponse {
	lines := make([]SaleLine, 0, len(statements))
	for _, s := range statements {
		lines = append(lines, SaleLine{
			BucketStart: s.BucketStart.UTC(),
			Sales:       FormatAmount(s.TotalPrice),
			Points:      s.TotalPoints,
		})
	}
	return SalesResponse{Lines: lines}
}

func validateQuery(q StatementQuery) *Error {
	if !q.Granularity.Valid() {
		return invalidInput("unknown granularity %q, expected one of minute, hour, day, month, year", string(q.Granularity))
	}
	if !StorableTime(q.Start) {
		return invalidInput("startDateTime year %d is outside %d-%d", q.Start.Year(), minStorableYear, maxStorableYear)
	}
	if !StorableTime(q.End) {
		return invalidInput("endDateTime year %d is outside %d-%d", q.End.Year(), minStorableYear, maxStorableYear)
	}
	if q.Start.After(q.End) {
		return invalidInput("startDateTime %s must not be after endDateTime %s",
			q.Start.Format(TimeLayout), q.End.Format(TimeLayout))
	}
	return nil
}

type noCache struct{}

func (noCache) Get(context.Context, string) (SalesResponse, bool, error) {
	return SalesResponse{}, false, nil
}

func (noCache) Set(context.Context, string, SalesResponse, time.Duration) error { return nil }
