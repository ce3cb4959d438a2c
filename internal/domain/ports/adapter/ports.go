package adapter

import (
	"context"
	"time"
)

// Notifier delivers short operator notices. Implementations must not block the caller
// on network I/O.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// DeliveryGuard remembers webhook deliveries that were fully processed.
type DeliveryGuard interface {
	Seen(ctx context.Context, provider, deliveryID string) (bool, error)
	Mark(ctx context.Context, provider, deliveryID string) error
}

// Locker is a best-effort distributed mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
