package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
	"billing-sync/internal/infra/logging"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// AccessUseCase answers entitlement questions for a signed-in user.
type AccessUseCase interface {
	HasAccess(ctx context.Context, userID, productID string) (bool, error)
	ListAccess(ctx context.Context, userID string) ([]*model.AccessGrant, error)
	// ListSubscriptions returns the user's active and trialing subscriptions.
	ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]*model.Order, error)
}

type accessUC struct {
	access        repository.AccessRepository
	subscriptions repository.SubscriptionRepository
	orders        repository.OrderRepository
	log           *zerolog.Logger
}

func NewAccessUseCase(access repository.AccessRepository, subscriptions repository.SubscriptionRepository, orders repository.OrderRepository, logger *zerolog.Logger) *accessUC {
	return &accessUC{access: access, subscriptions: subscriptions, orders: orders, log: logger}
}

func (a *accessUC) HasAccess(ctx context.Context, userID, productID string) (bool, error) {
	defer logging.TraceDuration(a.log, "AccessUC.HasAccess")()
	if userID == "" || productID == "" {
		return false, domain.ErrInvalidArgument
	}
	g, err := a.access.Find(ctx, repository.NoTX, userID, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.HasAccess, nil
}

func (a *accessUC) ListAccess(ctx context.Context, userID string) ([]*model.AccessGrant, error) {
	defer logging.TraceDuration(a.log, "AccessUC.ListAccess")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return a.access.ListByUser(ctx, repository.NoTX, userID)
}

func (a *accessUC) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	defer logging.TraceDuration(a.log, "AccessUC.ListSubscriptions")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return a.subscriptions.ListByUser(ctx, repository.NoTX, userID, model.SubscriptionStatusActive, model.SubscriptionStatusTrialing)
}

func (a *accessUC) ListOrders(ctx context.Context, userID string, limit int) ([]*model.Order, error) {
	defer logging.TraceDuration(a.log, "AccessUC.ListOrders")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return a.orders.ListByUser(ctx, repository.NoTX, userID, limit)
}
