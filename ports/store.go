package ports

import (
	"context"
	"time"
)

// Store is a namespaced key/value store with optional expiry.
// Get returns core.ErrNotFound for missing or expired keys.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
