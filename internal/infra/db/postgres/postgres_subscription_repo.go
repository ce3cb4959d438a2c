package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `polar_subscription_id, clerk_id, product_id, price_id, status,
  current_period_start, current_period_end, cancel_at_period_end, customer_email, customer_name,
  metadata, canceled_at, created_at, updated_at`

// Upsert is keyed on polar_subscription_id. The status CASE mirrors
// model.MergeSubscriptionStatus so concurrent deliveries cannot un-revoke a row.
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, error) {
	const q = `
INSERT INTO subscriptions (
  polar_subscription_id, clerk_id, product_id, price_id, status,
  current_period_start, current_period_end, cancel_at_period_end, customer_email, customer_name,
  metadata, canceled_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,NOW(),NOW())
ON CONFLICT (polar_subscription_id) DO UPDATE SET
  clerk_id             = EXCLUDED.clerk_id,
  product_id           = COALESCE(NULLIF(EXCLUDED.product_id, ''), subscriptions.product_id),
  price_id             = COALESCE(NULLIF(EXCLUDED.price_id, ''), subscriptions.price_id),
  status               = CASE WHEN subscriptions.status = 'revoked' THEN subscriptions.status ELSE EXCLUDED.status END,
  current_period_start = COALESCE(EXCLUDED.current_period_start, subscriptions.current_period_start),
  current_period_end   = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
  cancel_at_period_end = EXCLUDED.cancel_at_period_end,
  customer_email       = COALESCE(NULLIF(EXCLUDED.customer_email, ''), subscriptions.customer_email),
  customer_name        = COALESCE(EXCLUDED.customer_name, subscriptions.customer_name),
  metadata             = subscriptions.metadata || EXCLUDED.metadata,
  canceled_at          = COALESCE(EXCLUDED.canceled_at, subscriptions.canceled_at),
  updated_at           = NOW()
RETURNING ` + subscriptionColumns + `;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	md, err := metadataParam(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("subscription metadata: %w", err)
	}
	row := ex.QueryRow(ctx, q,
		s.PolarSubscriptionID, s.UserID, s.ProductID, s.PriceID, string(s.Status),
		utcPtr(s.CurrentPeriodStart), utcPtr(s.CurrentPeriodEnd), s.CancelAtPeriodEnd,
		model.NormalizeEmail(s.CustomerEmail), s.CustomerName, md, utcPtr(s.CanceledAt),
	)
	stored, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return stored, nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, polarSubscriptionID string) (*model.Subscription, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(ex.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE polar_subscription_id=$1;`, polarSubscriptionID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListByUser returns the user's subscriptions, optionally filtered to statuses.
func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE clerk_id=$1`
	args := []interface{}{userID}
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, st := range statuses {
			ss[i] = string(st)
		}
		q += ` AND status = ANY($2)`
		args = append(args, ss)
	}
	q += ` ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, args...)
}

// ListLapsed returns canceled subscriptions past their period end that still back
// at least one active grant.
func (r *subscriptionRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + ` FROM subscriptions s
 WHERE s.status = 'canceled'
   AND s.current_period_end IS NOT NULL
   AND s.current_period_end <= $1
   AND EXISTS (
     SELECT 1 FROM user_access ua
      WHERE ua.subscription_id = s.polar_subscription_id AND ua.has_access
   )
 ORDER BY s.current_period_end
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, now.UTC(), limit)
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	var (
		s      model.Subscription
		status string
		md     []byte
	)
	if err := row.Scan(
		&s.PolarSubscriptionID, &s.UserID, &s.ProductID, &s.PriceID, &status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CustomerEmail, &s.CustomerName,
		&md, &s.CanceledAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	s.Metadata = decodeMetadata(md)
	return &s, nil
}
