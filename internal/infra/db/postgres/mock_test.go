//go:build !integration

package postgres

import (
	"context"
	"time"

	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
	red "billing-sync/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerAccessRepo mocks the database repository that the access decorator wraps.
type mockInnerAccessRepo struct {
	FindFunc                 func(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error)
	InsertFunc               func(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error
	UpdateFunc               func(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error
	ListByUserFunc           func(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error)
	RevokeBySubscriptionFunc func(ctx context.Context, tx repository.Tx, subscriptionID string) ([]string, error)
}

func (m *mockInnerAccessRepo) Find(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error) {
	return m.FindFunc(ctx, tx, userID, productID)
}
func (m *mockInnerAccessRepo) Insert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	return m.InsertFunc(ctx, tx, g)
}
func (m *mockInnerAccessRepo) Update(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	return m.UpdateFunc(ctx, tx, g)
}
func (m *mockInnerAccessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error) {
	return m.ListByUserFunc(ctx, tx, userID)
}
func (m *mockInnerAccessRepo) RevokeBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]string, error) {
	return m.RevokeBySubscriptionFunc(ctx, tx, subscriptionID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
