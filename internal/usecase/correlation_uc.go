package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/event"
	"billing-sync/internal/domain/ports/repository"
	"billing-sync/internal/infra/logging"
)

// Compile-time check
var _ CorrelationUseCase = (*correlationUC)(nil)

// CorrelationUseCase maps what a provider knows about a customer onto a local user id.
type CorrelationUseCase interface {
	// Resolve tries, in order: the external reference id, the provider customer id,
	// then the email against users and profiles. It returns
	// domain.ErrUnresolvedCustomer when nothing matches.
	Resolve(ctx context.Context, ref event.CustomerRef) (string, error)
}

type correlationUC struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	log      *zerolog.Logger
}

func NewCorrelationUseCase(users repository.UserRepository, profiles repository.ProfileRepository, logger *zerolog.Logger) *correlationUC {
	return &correlationUC{users: users, profiles: profiles, log: logger}
}

func (c *correlationUC) Resolve(ctx context.Context, ref event.CustomerRef) (string, error) {
	defer logging.TraceDuration(c.log, "CorrelationUC.Resolve")()

	if ref.ExternalID != "" {
		id, err := c.byExternalID(ctx, ref.ExternalID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		// a stale or foreign reference must not block the remaining strategies
		logging.With(ctx, c.log).Warn().Str("external_id", ref.ExternalID).Msg("external reference does not match a local user")
	}

	if ref.CustomerID != "" {
		u, err := c.users.FindByProviderCustomerID(ctx, repository.NoTX, ref.CustomerID)
		switch {
		case err == nil:
			return u.ID, nil
		case !errors.Is(err, domain.ErrNotFound):
			return "", err
		}
	}

	if ref.Email != "" {
		id, err := c.byEmail(ctx, ref.Email)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}

	return "", domain.ErrUnresolvedCustomer
}

func (c *correlationUC) byExternalID(ctx context.Context, id string) (string, error) {
	u, err := c.users.FindByID(ctx, repository.NoTX, id)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	p, err := c.profiles.FindByClerkID(ctx, repository.NoTX, id)
	if err != nil {
		return "", err
	}
	return p.ClerkID, nil
}

func (c *correlationUC) byEmail(ctx context.Context, email string) (string, error) {
	u, err := c.users.FindByEmail(ctx, repository.NoTX, email)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	p, err := c.profiles.FindByEmail(ctx, repository.NoTX, email)
	if err != nil {
		return "", err
	}
	return p.ClerkID, nil
}
