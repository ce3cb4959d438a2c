package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `polar_order_id, clerk_id, checkout_id, status, amount, currency, product_id, product_name,
  customer_email, customer_name, metadata, created_at, updated_at, completed_at`

// Upsert is keyed on polar_order_id. Once completed, status stays completed and
// completed_at keeps the first value written.
func (r *orderRepo) Upsert(ctx context.Context, tx repository.Tx, o *model.Order) (*model.Order, error) {
	const q = `
INSERT INTO orders (
  polar_order_id, clerk_id, checkout_id, status, amount, currency, product_id, product_name,
  customer_email, customer_name, metadata, created_at, updated_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,COALESCE($12, NOW()),NOW(),$13)
ON CONFLICT (polar_order_id) DO UPDATE SET
  clerk_id       = EXCLUDED.clerk_id,
  checkout_id    = COALESCE(EXCLUDED.checkout_id, orders.checkout_id),
  status         = CASE WHEN orders.status = 'completed' THEN orders.status ELSE EXCLUDED.status END,
  amount         = CASE WHEN EXCLUDED.amount <> 0 THEN EXCLUDED.amount ELSE orders.amount END,
  currency       = COALESCE(NULLIF(EXCLUDED.currency, ''), orders.currency),
  product_id     = COALESCE(NULLIF(EXCLUDED.product_id, ''), orders.product_id),
  product_name   = COALESCE(NULLIF(EXCLUDED.product_name, ''), orders.product_name),
  customer_email = COALESCE(NULLIF(EXCLUDED.customer_email, ''), orders.customer_email),
  customer_name  = COALESCE(EXCLUDED.customer_name, orders.customer_name),
  metadata       = orders.metadata || EXCLUDED.metadata,
  updated_at     = NOW(),
  completed_at   = COALESCE(orders.completed_at, EXCLUDED.completed_at)
RETURNING ` + orderColumns + `;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	md, err := metadataParam(o.Metadata)
	if err != nil {
		return nil, fmt.Errorf("order metadata: %w", err)
	}
	var createdAt interface{}
	if !o.CreatedAt.IsZero() {
		createdAt = o.CreatedAt.UTC()
	}
	status := o.Status
	if status == "" {
		status = model.OrderStatusPending
	}
	row := ex.QueryRow(ctx, q,
		o.PolarOrderID, o.UserID, o.CheckoutID, string(status), o.Amount, o.Currency, o.ProductID, o.ProductName,
		model.NormalizeEmail(o.CustomerEmail), o.CustomerName, md, createdAt, utcPtr(o.CompletedAt),
	)
	stored, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("upsert order: %w", err)
	}
	return stored, nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, polarOrderID string) (*model.Order, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(ex.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE polar_order_id=$1;`, polarOrderID))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `
SELECT `+orderColumns+` FROM orders
 WHERE clerk_id=$1
 ORDER BY created_at DESC
 LIMIT $2;`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o      model.Order
		status string
		md     []byte
	)
	if err := row.Scan(
		&o.PolarOrderID, &o.UserID, &o.CheckoutID, &status, &o.Amount, &o.Currency, &o.ProductID, &o.ProductName,
		&o.CustomerEmail, &o.CustomerName, &md, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	); err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.Metadata = decodeMetadata(md)
	return &o, nil
}
