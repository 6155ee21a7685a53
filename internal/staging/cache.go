package staging

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no live entry exists for a phone, whether it
// expired or was never written.
var ErrNotFound = errors.New("staged registration not found")

// Cache stores registrations under a phone key with per-key expiry.
type Cache interface {
	Put(ctx context.Context, phone string, reg Registration, ttl time.Duration) error
	Get(ctx context.Context, phone string) (Registration, error)
	Delete(ctx context.Context, phone string) error
}
