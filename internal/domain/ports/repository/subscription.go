package repository

import (
	"context"
	"time"

	"billing-sync/internal/domain/model"
)

// SubscriptionRepository persists provider subscriptions keyed on their provider id.
type SubscriptionRepository interface {
	// Upsert inserts or updates on polar_subscription_id and returns the stored row.
	// A stored 'revoked' status is never overwritten.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) (*model.Subscription, error)
	FindByID(ctx context.Context, tx Tx, polarSubscriptionID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error)
	// ListLapsed returns canceled subscriptions whose period ended before now.
	ListLapsed(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
}
