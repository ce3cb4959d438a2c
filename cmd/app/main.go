// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"billing-sync/internal/config"
	"billing-sync/internal/domain/event"
	"billing-sync/internal/domain/ports/adapter"
	pg "billing-sync/internal/infra/db/postgres"
	"billing-sync/internal/infra/api"
	"billing-sync/internal/infra/logging"
	"billing-sync/internal/infra/metrics"
	"billing-sync/internal/infra/notify"
	red "billing-sync/internal/infra/redis"
	"billing-sync/internal/infra/sched"
	"billing-sync/internal/infra/webhook"
	"billing-sync/internal/infra/worker"
	"billing-sync/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	users := pg.NewUserRepo(pool)
	profiles := pg.NewProfileRepo(pool)
	orders := pg.NewOrderRepo(pool)
	subscriptions := pg.NewSubscriptionRepo(pool)
	access := pg.NewAccessRepoCacheDecorator(pg.NewAccessRepo(pool), redisClient, cfg.Redis.TTL, logger)
	tm := pg.NewTxManager(pool)

	// ---- Notifier ----
	notifier, stopNotifier := buildNotifier(ctx, cfg.Notify, logger)
	defer stopNotifier()

	// ---- Use cases ----
	resolver := usecase.NewCorrelationUseCase(users, profiles, logger)
	billing := usecase.NewBillingUseCase(users, profiles, orders, subscriptions, access, tm, logger)
	webhookUC := usecase.NewWebhookUseCase(resolver, billing, notifier, logger, cfg.Runtime.Dev)
	accessUC := usecase.NewAccessUseCase(access, subscriptions, orders, logger)
	expiryUC := usecase.NewExpiryUseCase(subscriptions, access, logger)

	// ---- HTTP ----
	verifiers, err := buildVerifiers(cfg.Webhooks)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook verifiers")
	}
	for p := range verifiers {
		logger.Info().Str("provider", string(p)).Msg("webhook endpoint enabled")
	}
	guard := red.NewDeliveryGuard(redisClient, cfg.Webhooks.ReplayTTL)
	deps := api.Deps{
		Webhooks: api.NewWebhookHandler(verifiers, event.NewParser(), webhookUC, guard, cfg.HTTP.MaxBodyBytes, logger),
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		},
	}
	if cfg.Auth.JWTSecret != "" {
		deps.Access = api.NewAccessHandler(accessUC, logger)
		deps.Auth = api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		deps.Limiter = red.NewRateLimiter(redisClient)
		deps.RateLimit = cfg.Auth.RateLimit
	} else {
		logger.Warn().Msg("auth.jwt_secret not set; access API disabled")
	}
	server := api.NewServer(cfg.HTTP, api.NewRouter(cfg.HTTP, deps, logger), logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Background jobs ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.SweepInterval, cfg.Scheduler.SweepBatch, cfg.Scheduler.LockTTL, expiryUC, red.NewLocker(redisClient), logger)
	go func() { _ = expiry.Run(ctx) }()
	sampler := sched.NewPoolSampler(15*time.Second, pool.Stat, logger)
	go func() { _ = sampler.Run(ctx) }()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

func buildVerifiers(cfg config.WebhookConfig) (map[event.Provider]webhook.Verifier, error) {
	out := map[event.Provider]webhook.Verifier{}
	if cfg.PolarSecret != "" {
		v, err := webhook.NewStandardVerifier(cfg.PolarSecret, webhook.StandardHeaders, cfg.Tolerance)
		if err != nil {
			return nil, fmt.Errorf("polar: %w", err)
		}
		out[event.ProviderPolar] = v
	}
	if cfg.ClerkSecret != "" {
		v, err := webhook.NewStandardVerifier(cfg.ClerkSecret, webhook.SvixHeaders, cfg.Tolerance)
		if err != nil {
			return nil, fmt.Errorf("clerk: %w", err)
		}
		out[event.ProviderClerk] = v
	}
	if cfg.DodoSecret != "" {
		var v webhook.Verifier
		var err error
		if cfg.DodoMode == "shared_secret" {
			v, err = webhook.NewSharedSecretVerifier(cfg.DodoSecret)
		} else {
			v, err = webhook.NewStandardVerifier(cfg.DodoSecret, webhook.StandardHeaders, cfg.Tolerance)
		}
		if err != nil {
			return nil, fmt.Errorf("dodo: %w", err)
		}
		out[event.ProviderDodo] = v
	}
	return out, nil
}

// buildNotifier falls back to a no-op notifier when Telegram is not configured
// or unreachable; notices are never required for correctness.
func buildNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zerolog.Logger) (adapter.Notifier, func()) {
	if cfg.TelegramToken == "" || len(cfg.AdminChatIDs) == 0 {
		return notify.Noop{}, func() {}
	}
	bot, err := notify.NewTelegramBot(cfg.TelegramToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier disabled")
		return notify.Noop{}, func() {}
	}
	pool := worker.NewPool(cfg.Workers, cfg.QueueSize, logger)
	// the pool outlives the request context so queued notices drain on shutdown
	pool.Start(context.WithoutCancel(ctx))
	return notify.NewTelegramNotifier(bot, cfg.AdminChatIDs, pool, logger), pool.Stop
}
