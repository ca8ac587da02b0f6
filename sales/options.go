package sales

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long an assembled sales response is served from
// cache when no TTL is configured.
const DefaultCacheTTL = 60 * time.Second

type options struct {
	retry    RetryPolicy
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
	cacheTTL time.Duration
	coalesce bool
}

func defaultOptions() options {
	return options{
		retry:    DefaultRetryPolicy(),
		observer: nopObserver{},
		logger:   zerolog.Nop(),
		now:      time.Now,
		cacheTTL: DefaultCacheTTL,
	}
}

// Option configures a Processor or an Aggregator.
type Option func(*options)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now, used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCacheTTL sets how long the Aggregator keeps a response. Only the
// Aggregator reads it.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cacheTTL = ttl }
}

// WithCoalescing makes concurrent identical cache misses share one storage
// query. Off by default.
func WithCoalescing(enabled bool) Option {
	return func(o *options) { o.coalesce = enabled }
}

// requestLogger prefers the request-scoped logger stored in ctx.
func (o options) requestLogger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return o.logger
}
