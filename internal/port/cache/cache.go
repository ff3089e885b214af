// Package cache defines the port interface for in-process caching.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL'd key-value cache. Implementations may evict entries at
// any time; callers must treat a miss as "recompute", never as an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
