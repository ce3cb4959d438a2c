package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

type profileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

const profileColumns = `clerk_id, email, first_name, last_name, avatar_url, created_at, updated_at`

func (r *profileRepo) Upsert(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	const q = `
INSERT INTO profiles (clerk_id, email, first_name, last_name, avatar_url, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
ON CONFLICT (clerk_id) DO UPDATE SET
  email=EXCLUDED.email,
  first_name=EXCLUDED.first_name,
  last_name=EXCLUDED.last_name,
  avatar_url=EXCLUDED.avatar_url,
  updated_at=NOW()
RETURNING created_at, updated_at;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if err := ex.QueryRow(ctx, q, p.ClerkID, model.NormalizeEmail(p.Email), p.FirstName, p.LastName, p.AvatarURL).
		Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *profileRepo) FindByClerkID(ctx context.Context, tx repository.Tx, clerkID string) (*model.Profile, error) {
	return r.queryOne(ctx, tx, `SELECT `+profileColumns+` FROM profiles WHERE clerk_id=$1;`, clerkID)
}

// FindByEmail returns the most recently updated profile for the address.
func (r *profileRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Profile, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrNotFound
	}
	return r.queryOne(ctx, tx, `
SELECT `+profileColumns+` FROM profiles
 WHERE LOWER(email)=$1
 ORDER BY updated_at DESC
 LIMIT 1;`, email)
}

func (r *profileRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Profile, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var p model.Profile
	if err := ex.QueryRow(ctx, q, args...).Scan(&p.ClerkID, &p.Email, &p.FirstName, &p.LastName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
