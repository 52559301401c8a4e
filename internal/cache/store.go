package cache

import (
	"context"
	"time"
)

// Store is a shared counter store used for request throttling across instances.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
}
