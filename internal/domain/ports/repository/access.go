package repository

import (
	"context"

	"billing-sync/internal/domain/model"
)

// AccessRepository persists user_access rows, unique on (clerk_id, product_id).
type AccessRepository interface {
	Find(ctx context.Context, tx Tx, userID, productID string) (*model.AccessGrant, error)
	// Insert returns domain.ErrAlreadyExists when the (user, product) row exists.
	Insert(ctx context.Context, tx Tx, g *model.AccessGrant) error
	Update(ctx context.Context, tx Tx, g *model.AccessGrant) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.AccessGrant, error)
	// RevokeBySubscription clears has_access on every grant justified by the
	// subscription and returns the affected user ids.
	RevokeBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]string, error)
}
