package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"billing-sync/internal/domain/ports/repository"
	"billing-sync/internal/infra/logging"
)

// Compile-time check
var _ ExpiryUseCase = (*expiryUC)(nil)

// ExpiryUseCase switches off grants whose canceled subscription has run out. Providers
// send no event at period end, so without it a canceled user would keep access.
type ExpiryUseCase interface {
	// RevokeLapsed handles up to limit subscriptions and returns how many grants it revoked.
	RevokeLapsed(ctx context.Context, limit int) (int, error)
}

type expiryUC struct {
	subscriptions repository.SubscriptionRepository
	access        repository.AccessRepository
	log           *zerolog.Logger
	now           func() time.Time
}

func NewExpiryUseCase(subscriptions repository.SubscriptionRepository, access repository.AccessRepository, logger *zerolog.Logger) *expiryUC {
	return &expiryUC{
		subscriptions: subscriptions,
		access:        access,
		log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (e *expiryUC) RevokeLapsed(ctx context.Context, limit int) (int, error) {
	defer logging.TraceDuration(e.log, "ExpiryUC.RevokeLapsed")()

	lapsed, err := e.subscriptions.ListLapsed(ctx, repository.NoTX, e.now(), limit)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, s := range lapsed {
		users, err := e.access.RevokeBySubscription(ctx, repository.NoTX, s.PolarSubscriptionID)
		if err != nil {
			return revoked, err
		}
		revoked += len(users)
		e.log.Debug().
			Str("subscription_id", s.PolarSubscriptionID).
			Int("grants", len(users)).
			Msg("lapsed subscription access revoked")
	}
	return revoked, nil
}
