package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/infra/logging"
	"billing-sync/internal/usecase"
)

// AccessHandler serves the signed-in user's entitlements.
type AccessHandler struct {
	uc  usecase.AccessUseCase
	log *zerolog.Logger
}

func NewAccessHandler(uc usecase.AccessUseCase, logger *zerolog.Logger) *AccessHandler {
	return &AccessHandler{uc: uc, log: logger}
}

// Register mounts the routes on r, which must already authenticate requests.
func (h *AccessHandler) Register(r chi.Router) {
	r.Get("/me/access", h.hasAccess)
	r.Get("/me/access/list", h.listAccess)
	r.Get("/me/subscriptions", h.listSubscriptions)
	r.Get("/me/orders", h.listOrders)
}

type AccessGrant struct {
	ProductID      string    `json:"product_id"`
	HasAccess      bool      `json:"has_access"`
	SubscriptionID *string   `json:"subscription_id,omitempty"`
	OrderID        *string   `json:"order_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Subscription struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"product_id"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

type Order struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (h *AccessHandler) hasAccess(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	ok, err := h.uc.HasAccess(r.Context(), userFrom(r.Context()), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"product_id": productID, "has_access": ok})
}

func (h *AccessHandler) listAccess(w http.ResponseWriter, r *http.Request) {
	grants, err := h.uc.ListAccess(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]AccessGrant, 0, len(grants))
	for _, g := range grants {
		items = append(items, toAccessGrant(g))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *AccessHandler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.uc.ListSubscriptions(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		items = append(items, Subscription{
			ID:                s.PolarSubscriptionID,
			ProductID:         s.ProductID,
			Status:            string(s.Status),
			CurrentPeriodEnd:  s.CurrentPeriodEnd,
			CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *AccessHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.uc.ListOrders(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]Order, 0, len(orders))
	for _, o := range orders {
		items = append(items, Order{
			ID:          o.PolarOrderID,
			Status:      string(o.Status),
			Amount:      o.Amount,
			Currency:    o.Currency,
			ProductID:   o.ProductID,
			ProductName: o.ProductName,
			CompletedAt: o.CompletedAt,
			CreatedAt:   o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *AccessHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	logging.With(r.Context(), h.log).Error().Err(err).Msg("access query failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func toAccessGrant(g *model.AccessGrant) AccessGrant {
	return AccessGrant{
		ProductID:      g.ProductID,
		HasAccess:      g.HasAccess,
		SubscriptionID: g.SubscriptionID,
		OrderID:        g.OrderID,
		UpdatedAt:      g.UpdatedAt,
	}
}
