package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anyx/sales-engine/sales"
)

// =============================================================================
// REDIS CACHE
// =============================================================================

// Redis stores responses as JSON documents. A single SET with expiry writes
// the whole document, so readers never observe a partial entry.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps client. Keys are namespaced with prefix (may be empty).
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (sales.SalesResponse, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return sales.SalesResponse{}, false, nil
	}
	if err != nil {
		return sales.SalesResponse{}, false, fmt.Errorf("redis get: %w", err)
	}

	var resp sales.SalesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return sales.SalesResponse{}, false, fmt.Errorf("decode cached statement: %w", err)
	}
	return resp, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, resp sales.SalesResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if resp.Lines == nil {
		resp.Lines = []sales.SaleLine{}
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode statement: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
