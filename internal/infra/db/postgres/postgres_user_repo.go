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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, name, provider_customer_id, subscription_status, subscription_ends_at, created_at, updated_at`

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrNotFound
	}
	return r.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=$1;`, email)
}

func (r *userRepo) FindByProviderCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	return r.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE provider_customer_id=$1;`, customerID)
}

// LinkCustomer stores the provider customer id. Re-linking the same id is a no-op;
// an id already owned by another user yields domain.ErrAlreadyExists.
func (r *userRepo) LinkCustomer(ctx context.Context, tx repository.Tx, userID, customerID string) error {
	const q = `
UPDATE users SET provider_customer_id=$2, updated_at=NOW()
 WHERE id=$1 AND provider_customer_id IS DISTINCT FROM $2;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, userID, customerID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("link customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.exists(ctx, ex, userID)
	}
	return nil
}

func (r *userRepo) SetSubscriptionState(ctx context.Context, tx repository.Tx, userID string, status model.UserSubscriptionStatus, endsAt *time.Time) error {
	const q = `
UPDATE users SET subscription_status=$2, subscription_ends_at=$3, updated_at=NOW()
 WHERE id=$1;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, userID, string(status), utcPtr(endsAt))
	if err != nil {
		return fmt.Errorf("set subscription state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateContact syncs email and, when non-empty, name from the auth provider.
// A missing user, or an email already owned by another user, yields domain.ErrNotFound
// without failing the surrounding transaction.
func (r *userRepo) UpdateContact(ctx context.Context, tx repository.Tx, userID, email, name string) error {
	const q = `
UPDATE users SET email=$2, name=COALESCE(NULLIF($3, ''), name), updated_at=NOW()
 WHERE id=$1
   AND NOT EXISTS (SELECT 1 FROM users o WHERE LOWER(o.email)=$2 AND o.id<>$1);`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, userID, model.NormalizeEmail(email), name)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) exists(ctx context.Context, ex executor, userID string) error {
	var one int
	if err := ex.QueryRow(ctx, `SELECT 1 FROM users WHERE id=$1;`, userID).Scan(&one); err != nil {
		return notFound(err)
	}
	return nil
}

func (r *userRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.User, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(ex.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u      model.User
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.ProviderCustomerID, &status, &u.SubscriptionEndsAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.SubscriptionStatus = model.UserSubscriptionStatus(status)
	return &u, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
