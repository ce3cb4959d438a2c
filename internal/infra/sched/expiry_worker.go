package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/ports/adapter"
	"billing-sync/internal/infra/metrics"
	"billing-sync/internal/usecase"
)

const expiryLockKey = "lock:sched:access_expiry"

// ExpiryWorker periodically revokes access backed by canceled subscriptions whose
// period has ended. Only the replica holding the lock sweeps on a given tick.
type ExpiryWorker struct {
	interval time.Duration
	batch    int
	lockTTL  time.Duration
	uc       usecase.ExpiryUseCase
	locker   adapter.Locker
	log      *zerolog.Logger
}

// NewExpiryWorker builds the sweeper. locker may be nil for single-instance runs.
func NewExpiryWorker(interval time.Duration, batch int, lockTTL time.Duration, uc usecase.ExpiryUseCase, locker adapter.Locker, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ExpiryWorker{
		interval: interval,
		batch:    batch,
		lockTTL:  lockTTL,
		uc:       uc,
		locker:   locker,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep and returns the number of revoked grants.
func (w *ExpiryWorker) Tick(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, expiryLockKey, w.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			metrics.IncJobRun("access_expiry", "skipped")
			return 0
		}
		if err != nil {
			metrics.IncJobRun("access_expiry", "failed")
			w.log.Error().Err(err).Msg("cannot take expiry lock")
			return 0
		}
		defer func() {
			if err := w.locker.Unlock(context.Background(), expiryLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("cannot release expiry lock")
			}
		}()
	}

	n, err := w.uc.RevokeLapsed(ctx, w.batch)
	if n > 0 {
		metrics.AddAccessSwept(n)
		w.log.Info().Int("count", n).Msg("lapsed access revoked")
	}
	if err != nil {
		metrics.IncJobRun("access_expiry", "failed")
		w.log.Error().Err(err).Msg("expiry worker error")
		return n
	}
	metrics.IncJobRun("access_expiry", "ok")
	return n
}
