package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"billing-sync/internal/infra/metrics"
)

// PoolSampler copies connection pool statistics into the metrics gauges.
type PoolSampler struct {
	interval time.Duration
	stat     func() *pgxpool.Stat
	log      *zerolog.Logger
}

func NewPoolSampler(interval time.Duration, stat func() *pgxpool.Stat, logger *zerolog.Logger) *PoolSampler {
	compLog := logger.With().Str("component", "PoolSampler").Logger()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PoolSampler{interval: interval, stat: stat, log: &compLog}
}

func (s *PoolSampler) Run(ctx context.Context) error {
	// sample once on startup, then on every tick
	metrics.ObservePool(s.stat())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("Stopping pool sampler")
			return ctx.Err()
		case <-ticker.C:
			metrics.ObservePool(s.stat())
		}
	}
}
