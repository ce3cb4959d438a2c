package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
	"billing-sync/internal/infra/metrics"
	red "billing-sync/internal/infra/redis"
)

var _ repository.AccessRepository = (*accessRepoCacheDecorator)(nil)

// accessRepoCacheDecorator caches each user's grant list for the read API.
// Find stays uncached because the billing write path reads then writes on it.
type accessRepoCacheDecorator struct {
	inner repository.AccessRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewAccessRepoCacheDecorator(inner repository.AccessRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.AccessRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &accessRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func accessListKey(userID string) string { return "access:user:" + userID }

func (d *accessRepoCacheDecorator) Find(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error) {
	return d.inner.Find(ctx, tx, userID, productID)
}

// Writes invalidate after the inner call so a concurrent reader cannot re-cache
// the pre-write list once the write has landed.
func (d *accessRepoCacheDecorator) Insert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	if err := d.inner.Insert(ctx, tx, g); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			metrics.IncAccessGrant(g.HasAccess, "conflict")
		}
		return err
	}
	metrics.IncAccessGrant(g.HasAccess, "insert")
	d.invalidate(ctx, g.UserID)
	return nil
}

func (d *accessRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	if err := d.inner.Update(ctx, tx, g); err != nil {
		return err
	}
	metrics.IncAccessGrant(g.HasAccess, "update")
	d.invalidate(ctx, g.UserID)
	return nil
}

func (d *accessRepoCacheDecorator) RevokeBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]string, error) {
	users, err := d.inner.RevokeBySubscription(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	d.invalidate(ctx, users...)
	return users, nil
}

func (d *accessRepoCacheDecorator) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error) {
	key := accessListKey(userID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var grants []*model.AccessGrant
		if json.Unmarshal([]byte(val), &grants) == nil {
			metrics.IncCacheRequest("access", "hit")
			return grants, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("access cache read failed")
	}

	metrics.IncCacheRequest("access", "miss")
	grants, err := d.inner.ListByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(grants); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return grants, nil
}

func (d *accessRepoCacheDecorator) invalidate(ctx context.Context, users ...string) {
	if len(users) == 0 {
		return
	}
	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = accessListKey(u)
	}
	if err := d.cache.Del(ctx, keys...); err != nil {
		d.log.Warn().Err(err).Strs("keys", keys).Msg("access cache invalidation failed")
	}
}
