package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/event"
	"billing-sync/internal/domain/ports/adapter"
	"billing-sync/internal/infra/logging"
	"billing-sync/internal/infra/metrics"
	"billing-sync/internal/infra/webhook"
	"billing-sync/internal/usecase"
)

const (
	statusDuplicate = "duplicate"
	statusRejected  = "rejected"
	statusFailed    = "failed"
)

// WebhookHandler authenticates, decodes and dispatches provider deliveries.
type WebhookHandler struct {
	verifiers map[event.Provider]webhook.Verifier
	parser    *event.Parser
	uc        usecase.WebhookUseCase
	guard     adapter.DeliveryGuard
	maxBody   int64
	log       *zerolog.Logger
}

// NewWebhookHandler serves only the providers present in verifiers. guard may be nil.
func NewWebhookHandler(verifiers map[event.Provider]webhook.Verifier, parser *event.Parser, uc usecase.WebhookUseCase, guard adapter.DeliveryGuard, maxBody int64, logger *zerolog.Logger) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &WebhookHandler{
		verifiers: verifiers,
		parser:    parser,
		uc:        uc,
		guard:     guard,
		maxBody:   maxBody,
		log:       logger,
	}
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Head("/api/webhooks/{provider}", h.head)
	r.Post("/api/webhooks/{provider}", h.handle)
}

func (h *WebhookHandler) head(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := event.Provider(chi.URLParam(r, "provider"))
	verifier, ok := h.verifiers[provider]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	defer func() { metrics.ObserveWebhookDuration(string(provider), time.Since(start)) }()

	ctx := logging.WithProvider(r.Context(), string(provider))
	l := logging.With(ctx, h.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		code := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		h.reply(w, provider, code, statusRejected, "cannot read body")
		return
	}

	deliveryID, err := verifier.Verify(r.Header, body)
	if err != nil {
		code, reason := http.StatusBadRequest, "headers"
		switch {
		case errors.Is(err, webhook.ErrBadSignature):
			code, reason = http.StatusUnauthorized, "signature"
		case errors.Is(err, webhook.ErrStaleTimestamp):
			reason = "timestamp"
		}
		metrics.IncSignatureFailure(string(provider), reason)
		l.Warn().Err(err).Msg("webhook authentication failed")
		h.reply(w, provider, code, statusRejected, err.Error())
		return
	}
	ctx = logging.WithDeliveryID(ctx, deliveryID)
	l = logging.With(ctx, h.log)

	if h.guard != nil && deliveryID != "" {
		seen, err := h.guard.Seen(ctx, string(provider), deliveryID)
		switch {
		case err != nil:
			metrics.IncReplayGuard(string(provider), "error")
			l.Warn().Err(err).Msg("replay guard unavailable; processing anyway")
		case seen:
			metrics.IncReplayGuard(string(provider), "hit")
			l.Info().Msg("duplicate delivery acknowledged")
			h.reply(w, provider, http.StatusOK, statusDuplicate, "")
			return
		default:
			metrics.IncReplayGuard(string(provider), "miss")
		}
	}

	ev, err := h.parser.Parse(provider, body)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			// valid JSON that will never become valid on retry
			l.Error().Err(err).Msg("dropping invalid webhook payload")
			h.reply(w, provider, http.StatusOK, string(usecase.OutcomeDropped), "")
			h.mark(ctx, provider, deliveryID)
			return
		}
		l.Error().Err(err).Msg("cannot parse webhook payload")
		h.reply(w, provider, http.StatusInternalServerError, statusFailed, "malformed payload")
		return
	}

	evType := ev.Type()
	if _, unknown := ev.(event.Unknown); unknown {
		evType = "unknown"
	}
	out, err := h.uc.Dispatch(ctx, provider, ev)
	if err != nil {
		metrics.IncWebhookEvent(string(provider), evType, statusFailed)
		l.Error().Err(err).Str("event_type", ev.Type()).Msg("webhook handler failed")
		h.reply(w, provider, http.StatusInternalServerError, statusFailed, "processing failed")
		return
	}
	metrics.IncWebhookEvent(string(provider), evType, string(out))
	l.Info().Str("event_type", ev.Type()).Str("outcome", string(out)).Msg("webhook handled")

	h.mark(ctx, provider, deliveryID)
	h.reply(w, provider, http.StatusOK, string(out), "")
}

// mark runs after the delivery's writes have landed, so a crash in between only
// costs a reprocessing of idempotent writes.
func (h *WebhookHandler) mark(ctx context.Context, provider event.Provider, deliveryID string) {
	if h.guard == nil || deliveryID == "" {
		return
	}
	if err := h.guard.Mark(ctx, string(provider), deliveryID); err != nil {
		logging.With(ctx, h.log).Warn().Err(err).Msg("cannot remember delivery")
	}
}

func (h *WebhookHandler) reply(w http.ResponseWriter, provider event.Provider, code int, status, msg string) {
	metrics.IncWebhookDelivery(string(provider), status)
	writeJSON(w, code, webhookResponse{Received: code < 300, Status: status, Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
