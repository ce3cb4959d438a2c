package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"billing-sync/internal/domain/ports/adapter"
)

var _ adapter.DeliveryGuard = (*DeliveryGuard)(nil)

// DeliveryGuard remembers processed webhook delivery ids for ttl.
type DeliveryGuard struct {
	client RedisClient
	ttl    time.Duration
}

func NewDeliveryGuard(client RedisClient, ttl time.Duration) *DeliveryGuard {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &DeliveryGuard{client: client, ttl: ttl}
}

func deliveryKey(provider, deliveryID string) string {
	return "webhook:delivery:" + provider + ":" + deliveryID
}

func (g *DeliveryGuard) Seen(ctx context.Context, provider, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, nil
	}
	_, err := g.client.Get(ctx, deliveryKey(provider, deliveryID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

func (g *DeliveryGuard) Mark(ctx context.Context, provider, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}
	return g.client.Set(ctx, deliveryKey(provider, deliveryID), time.Now().UTC().Unix(), g.ttl)
}
