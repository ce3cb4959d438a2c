package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"billing-sync/internal/config"
	red "billing-sync/internal/infra/redis"
)

// Deps are the handlers and collaborators mounted by NewRouter. Access and Auth
// are optional; without both the access API is not served.
type Deps struct {
	Webhooks  *WebhookHandler
	Access    *AccessHandler
	Auth      *Authenticator
	Limiter   RateLimiter
	RateLimit int
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(cfg config.HTTPConfig, d Deps, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(logger), Recover(logger), Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if d.Webhooks != nil {
		d.Webhooks.Register(r)
	}

	if d.Access != nil && d.Auth != nil {
		c := cors.New(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
		})
		r.Route("/api/v1", func(v1 chi.Router) {
			v1.Use(c.Handler, d.Auth.Middleware(logger), RateLimit(d.Limiter, d.RateLimit, "access_api", red.UserRouteKey, logger))
			d.Access.Register(v1)
		})
	}
	return r
}

// Server owns the listening http.Server.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(cfg config.HTTPConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		log: logger,
	}
}

// Start blocks until the server stops; a clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
