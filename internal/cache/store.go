package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStoreNotInitialised is returned by nil store receivers.
var ErrStoreNotInitialised = errors.New("cache: store not initialised")

// Store represents a shared cache interface used across the application. It
// backs the login rate limiter and the per-user login lock.
type Store interface {
	// IncrementWithTTL bumps a fixed-window counter. The window starts with the
	// first increment and is not extended by later ones.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores the value only when the key is absent or expired.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	// CompareAndDelete removes the key only while it still holds value.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)
}
