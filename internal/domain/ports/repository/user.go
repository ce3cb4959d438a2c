package repository

import (
	"context"
	"time"

	"billing-sync/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

// UserRepository only touches the billing columns of users; the rows themselves
// belong to the auth subsystem.
type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	FindByProviderCustomerID(ctx context.Context, tx Tx, customerID string) (*model.User, error)

	LinkCustomer(ctx context.Context, tx Tx, userID, customerID string) error
	SetSubscriptionState(ctx context.Context, tx Tx, userID string, status model.UserSubscriptionStatus, endsAt *time.Time) error
	UpdateContact(ctx context.Context, tx Tx, userID, email, name string) error
}

// -----------------------------
// Profiles
// -----------------------------

type ProfileRepository interface {
	// Upsert inserts or updates on clerk_id.
	Upsert(ctx context.Context, tx Tx, p *model.Profile) error
	FindByClerkID(ctx context.Context, tx Tx, clerkID string) (*model.Profile, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.Profile, error)
}
