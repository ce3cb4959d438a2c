package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
)

var _ repository.AccessRepository = (*accessRepo)(nil)

type accessRepo struct {
	pool *pgxpool.Pool
}

func NewAccessRepo(pool *pgxpool.Pool) *accessRepo {
	return &accessRepo{pool: pool}
}

const accessColumns = `id, clerk_id, polar_customer_id, product_id, benefit_id, has_access,
  subscription_id, order_id, created_at, updated_at`

func (r *accessRepo) Find(ctx context.Context, tx repository.Tx, userID, productID string) (*model.AccessGrant, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	g, err := scanGrant(ex.QueryRow(ctx, `
SELECT `+accessColumns+` FROM user_access
 WHERE clerk_id=$1 AND product_id=$2;`, userID, productID))
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

// Insert fails with domain.ErrAlreadyExists when another writer created the
// (clerk_id, product_id) row first.
func (r *accessRepo) Insert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	const q = `
INSERT INTO user_access (
  id, clerk_id, polar_customer_id, product_id, benefit_id, has_access, subscription_id, order_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	_, err = ex.Exec(ctx, q, g.ID, g.UserID, g.ProviderCustomerID, g.ProductID, g.BenefitID, g.HasAccess,
		g.SubscriptionID, g.OrderID, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert access grant: %w", err)
	}
	return nil
}

// Update writes has_access and the justifying ids on the (clerk_id, product_id) row.
// subscription_id is written as given, so a nil value detaches the grant from its
// subscription; a nil benefit_id or order_id keeps the stored value.
func (r *accessRepo) Update(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	const q = `
UPDATE user_access SET
  polar_customer_id = COALESCE(NULLIF($3, ''), polar_customer_id),
  benefit_id        = COALESCE($4, benefit_id),
  has_access        = $5,
  subscription_id   = $6,
  order_id          = COALESCE($7, order_id),
  updated_at        = NOW()
 WHERE clerk_id=$1 AND product_id=$2;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, g.UserID, g.ProductID, g.ProviderCustomerID, g.BenefitID, g.HasAccess, g.SubscriptionID, g.OrderID)
	if err != nil {
		return fmt.Errorf("update access grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AccessGrant, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `
SELECT `+accessColumns+` FROM user_access
 WHERE clerk_id=$1
 ORDER BY product_id;`, userID)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	var out []*model.AccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RevokeBySubscription returns the users whose grants were switched off.
func (r *accessRepo) RevokeBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]string, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `
UPDATE user_access SET has_access=FALSE, updated_at=NOW()
 WHERE subscription_id=$1 AND has_access
RETURNING clerk_id;`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("revoke access by subscription: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func scanGrant(row rowScanner) (*model.AccessGrant, error) {
	var g model.AccessGrant
	if err := row.Scan(&g.ID, &g.UserID, &g.ProviderCustomerID, &g.ProductID, &g.BenefitID, &g.HasAccess,
		&g.SubscriptionID, &g.OrderID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}
