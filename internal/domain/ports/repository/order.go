package repository

import (
	"context"

	"billing-sync/internal/domain/model"
)

// OrderRepository persists provider orders keyed on their provider id.
type OrderRepository interface {
	// Upsert inserts or updates on polar_order_id. A completed order is never moved
	// back to pending and completed_at keeps its first value.
	Upsert(ctx context.Context, tx Tx, o *model.Order) (*model.Order, error)
	FindByID(ctx context.Context, tx Tx, polarOrderID string) (*model.Order, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Order, error)
}
