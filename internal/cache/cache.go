package cache

import (
	"context"
	"time"
)

// Cache stores short-lived string values
type Cache interface {
	// Get value by key. Missing or expired key is not an error: ok is false
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set value with time to live. Zero ttl means no expiration
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
}
