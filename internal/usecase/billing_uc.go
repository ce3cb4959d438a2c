package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
	"billing-sync/internal/infra/logging"
)

// Compile-time check
var _ BillingUseCase = (*billingUC)(nil)

// BillingUseCase persists billing facts. Every method is idempotent on its own key
// and runs as independent statements; a failed delivery is repaired by redelivery.
type BillingUseCase interface {
	UpsertOrder(ctx context.Context, o *model.Order) (*model.Order, error)
	UpsertSubscription(ctx context.Context, s *model.Subscription) (*model.Subscription, error)
	// FindSubscription returns nil, nil when the subscription is not stored yet.
	FindSubscription(ctx context.Context, id string) (*model.Subscription, error)
	UpdateUserAccess(ctx context.Context, u AccessUpdate) (*model.AccessGrant, error)
	SetUserSubscriptionState(ctx context.Context, userID string, status model.UserSubscriptionStatus, endsAt *time.Time) error
	LinkCustomer(ctx context.Context, userID, customerID string) error
	// SyncProfile upserts the auth provider's profile and copies its contact
	// fields onto the users row in one transaction.
	SyncProfile(ctx context.Context, p *model.Profile, displayName string) error
}

// AccessUpdate grants or revokes one (user, product) pair. SubscriptionID and
// OrderID record what justified the write.
type AccessUpdate struct {
	UserID         string
	CustomerID     string
	ProductID      string
	HasAccess      bool
	SubscriptionID string
	OrderID        string
}

type billingUC struct {
	users         repository.UserRepository
	profiles      repository.ProfileRepository
	orders        repository.OrderRepository
	subscriptions repository.SubscriptionRepository
	access        repository.AccessRepository
	tm            repository.TransactionManager
	log           *zerolog.Logger
}

func NewBillingUseCase(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	orders repository.OrderRepository,
	subscriptions repository.SubscriptionRepository,
	access repository.AccessRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *billingUC {
	return &billingUC{
		users:         users,
		profiles:      profiles,
		orders:        orders,
		subscriptions: subscriptions,
		access:        access,
		tm:            tm,
		log:           logger,
	}
}

func (b *billingUC) UpsertOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	defer logging.TraceDuration(b.log, "BillingUC.UpsertOrder")()
	if o == nil || o.PolarOrderID == "" || o.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	if o.Status == model.OrderStatusCompleted && o.CompletedAt == nil {
		now := time.Now().UTC()
		o.CompletedAt = &now
	}
	stored, err := b.orders.Upsert(ctx, repository.NoTX, o)
	if err != nil {
		return nil, fmt.Errorf("upsert order %s: %w", o.PolarOrderID, err)
	}
	return stored, nil
}

func (b *billingUC) UpsertSubscription(ctx context.Context, s *model.Subscription) (*model.Subscription, error) {
	defer logging.TraceDuration(b.log, "BillingUC.UpsertSubscription")()
	if s == nil || s.PolarSubscriptionID == "" || s.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if s.Status == "" {
		s.Status = model.SubscriptionStatusCreated
	}
	stored, err := b.subscriptions.Upsert(ctx, repository.NoTX, s)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", s.PolarSubscriptionID, err)
	}
	return stored, nil
}

func (b *billingUC) FindSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	s, err := b.subscriptions.FindByID(ctx, repository.NoTX, id)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find subscription %s: %w", id, err)
	}
}

// UpdateUserAccess reads the (user, product) row and updates it, or inserts a new
// one. An insert that loses a race to a concurrent delivery is retried as an update.
func (b *billingUC) UpdateUserAccess(ctx context.Context, u AccessUpdate) (*model.AccessGrant, error) {
	defer logging.TraceDuration(b.log, "BillingUC.UpdateUserAccess")()
	if u.UserID == "" || u.ProductID == "" {
		return nil, domain.ErrInvalidArgument
	}

	g, err := b.access.Find(ctx, repository.NoTX, u.UserID, u.ProductID)
	switch {
	case err == nil:
		return g, b.applyAccess(ctx, g, u)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find access: %w", err)
	}

	g = model.NewAccessGrant(u.UserID, u.CustomerID, u.ProductID, u.HasAccess)
	g.SubscriptionID = optional(u.SubscriptionID)
	g.OrderID = optional(u.OrderID)
	err = b.access.Insert(ctx, repository.NoTX, g)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("insert access: %w", err)
	}

	logging.With(ctx, b.log).Debug().Str("product_id", u.ProductID).Msg("access insert raced; retrying as update")
	g, err = b.access.Find(ctx, repository.NoTX, u.UserID, u.ProductID)
	if err != nil {
		return nil, fmt.Errorf("find access after conflict: %w", err)
	}
	return g, b.applyAccess(ctx, g, u)
}

func (b *billingUC) applyAccess(ctx context.Context, g *model.AccessGrant, u AccessUpdate) error {
	g.HasAccess = u.HasAccess
	if u.CustomerID != "" {
		g.ProviderCustomerID = u.CustomerID
	}
	// the latest justification replaces the previous one; an order-only grant
	// is detached from any earlier subscription so the sweeper leaves it alone
	g.SubscriptionID = optional(u.SubscriptionID)
	if u.OrderID != "" {
		g.OrderID = optional(u.OrderID)
	}
	g.UpdatedAt = time.Now().UTC()
	if err := b.access.Update(ctx, repository.NoTX, g); err != nil {
		return fmt.Errorf("update access: %w", err)
	}
	return nil
}

// SetUserSubscriptionState is a no-op when the users row does not exist yet; the
// user may be known only through profiles.
func (b *billingUC) SetUserSubscriptionState(ctx context.Context, userID string, status model.UserSubscriptionStatus, endsAt *time.Time) error {
	defer logging.TraceDuration(b.log, "BillingUC.SetUserSubscriptionState")()
	err := b.users.SetSubscriptionState(ctx, repository.NoTX, userID, status, endsAt)
	if errors.Is(err, domain.ErrNotFound) {
		logging.With(ctx, b.log).Info().Str("status", string(status)).Msg("no users row to update subscription state")
		return nil
	}
	return err
}

func (b *billingUC) LinkCustomer(ctx context.Context, userID, customerID string) error {
	defer logging.TraceDuration(b.log, "BillingUC.LinkCustomer")()
	if customerID == "" {
		return nil
	}
	err := b.users.LinkCustomer(ctx, repository.NoTX, userID, customerID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		logging.With(ctx, b.log).Info().Msg("no users row to link provider customer to")
		return nil
	case errors.Is(err, domain.ErrAlreadyExists):
		logging.With(ctx, b.log).Warn().Str("customer_id", customerID).Msg("provider customer already linked to another user")
		return nil
	default:
		return err
	}
}

func (b *billingUC) SyncProfile(ctx context.Context, p *model.Profile, displayName string) error {
	defer logging.TraceDuration(b.log, "BillingUC.SyncProfile")()
	if p == nil || p.ClerkID == "" {
		return domain.ErrInvalidArgument
	}
	p.Email = model.NormalizeEmail(p.Email)

	return b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := b.profiles.Upsert(ctx, tx, p); err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		if p.Email == "" {
			return nil
		}
		err := b.users.UpdateContact(ctx, tx, p.ClerkID, p.Email, displayName)
		if errors.Is(err, domain.ErrNotFound) {
			logging.With(ctx, b.log).Debug().Msg("users contact left unchanged")
			return nil
		}
		return err
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
