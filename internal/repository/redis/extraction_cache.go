package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultExtractionTTL = 24 * time.Hour

// ExtractionCache stores extracted document text keyed by content hash
type ExtractionCache struct {
	client *Client
	ttl    time.Duration
}

// NewExtractionCache creates a cache with the given TTL
func NewExtractionCache(client *Client, ttl time.Duration) *ExtractionCache {
	if ttl <= 0 {
		ttl = defaultExtractionTTL
	}
	return &ExtractionCache{client: client, ttl: ttl}
}

// Get returns the cached text; ok is false on a miss
func (c *ExtractionCache) Get(ctx context.Context, digest string) (string, bool, error) {
	text, err := c.client.rdb.Get(ctx, key("extract", digest)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read extraction cache: %w", err)
	}
	return text, true, nil
}

// Set caches text for digest
func (c *ExtractionCache) Set(ctx context.Context, digest, text string) error {
	if err := c.client.rdb.Set(ctx, key("extract", digest), text, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write extraction cache: %w", err)
	}
	return nil
}

// Invalidate removes a cached entry
func (c *ExtractionCache) Invalidate(ctx context.Context, digest string) error {
	return c.client.rdb.Del(ctx, key("extract", digest)).Err()
}
