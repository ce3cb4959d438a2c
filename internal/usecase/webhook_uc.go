package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/event"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/adapter"
	"billing-sync/internal/infra/logging"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// Outcome is how a delivery ended when no error was returned.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	// OutcomeDropped marks a valid event that cannot be applied, such as one whose
	// customer maps to no local user. It is acknowledged so the provider stops retrying.
	OutcomeDropped Outcome = "dropped"
)

// WebhookUseCase applies one decoded provider event. A returned error means the
// event may apply on redelivery and the caller should ask the provider to retry.
type WebhookUseCase interface {
	Dispatch(ctx context.Context, provider event.Provider, ev event.Event) (Outcome, error)
}

type webhookUC struct {
	resolver CorrelationUseCase
	billing  BillingUseCase
	notifier adapter.Notifier
	log      *zerolog.Logger
	dev      bool
	now      func() time.Time
}

// NewWebhookUseCase builds the dispatcher. notifier may be nil.
func NewWebhookUseCase(resolver CorrelationUseCase, billing BillingUseCase, notifier adapter.Notifier, logger *zerolog.Logger, dev bool) *webhookUC {
	return &webhookUC{
		resolver: resolver,
		billing:  billing,
		notifier: notifier,
		log:      logger,
		dev:      dev,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *webhookUC) Dispatch(ctx context.Context, provider event.Provider, ev event.Event) (Outcome, error) {
	defer logging.TraceDuration(w.log, "WebhookUC.Dispatch")()

	var (
		out Outcome
		err error
	)
	switch e := ev.(type) {
	case event.CheckoutCreated:
		out, err = w.onCheckout(ctx, e.Data)
	case event.CheckoutUpdated:
		out, err = w.onCheckout(ctx, e.Data)
	case event.OrderCreated:
		out, err = w.onOrder(ctx, provider, e.Data, false)
	case event.OrderPaid:
		out, err = w.onOrder(ctx, provider, e.Data, true)
	case event.SubscriptionCreated:
		out, err = w.onSubscription(ctx, provider, e.Data, model.ParseSubscriptionStatus(e.Data.Status, model.SubscriptionStatusCreated))
	case event.SubscriptionActive:
		status := model.SubscriptionStatusActive
		if model.ParseSubscriptionStatus(e.Data.Status, status) == model.SubscriptionStatusTrialing {
			status = model.SubscriptionStatusTrialing
		}
		out, err = w.onSubscription(ctx, provider, e.Data, status)
	case event.SubscriptionUpdated:
		out, err = w.onSubscription(ctx, provider, e.Data, model.ParseSubscriptionStatus(e.Data.Status, model.SubscriptionStatusActive))
	case event.SubscriptionCanceled:
		out, err = w.onSubscription(ctx, provider, e.Data, model.SubscriptionStatusCanceled)
	case event.SubscriptionRevoked:
		out, err = w.onSubscription(ctx, provider, e.Data, model.SubscriptionStatusRevoked)
	case event.CustomerCreated:
		out, err = w.onCustomer(ctx, e.Data)
	case event.CustomerUpdated:
		out, err = w.onCustomer(ctx, e.Data)
	case event.PaymentSucceeded:
		out, err = w.onPaymentSucceeded(ctx, provider, e.Data)
	case event.PaymentCancelled:
		out, err = w.onPaymentCancelled(ctx, e.Data)
	case event.RefundSucceeded:
		logging.With(ctx, w.log).Info().
			Str("refund_id", e.Data.RefundID).
			Str("payment_id", e.Data.PaymentID).
			Int64("amount", e.Data.Amount).
			Msg("refund received")
		out = OutcomeProcessed
	case event.UserCreated:
		out, err = w.onClerkUser(ctx, e.Data)
	case event.UserUpdated:
		out, err = w.onClerkUser(ctx, e.Data)
	case event.Unknown:
		logging.With(ctx, w.log).Info().Str("event_type", e.WireType).Msg("ignoring unhandled event type")
		return OutcomeIgnored, nil
	default:
		return OutcomeIgnored, fmt.Errorf("%w: unexpected event %T", domain.ErrInvalidArgument, ev)
	}

	if errors.Is(err, domain.ErrUnresolvedCustomer) {
		logging.With(ctx, w.log).Error().Str("event_type", ev.Type()).Msg("dropping event: customer does not map to a local user")
		return OutcomeDropped, nil
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", ev.Type(), err)
	}
	return out, nil
}

func (w *webhookUC) resolve(ctx context.Context, ref event.CustomerRef) (string, error) {
	if ref.IsZero() {
		return "", domain.ErrUnresolvedCustomer
	}
	userID, err := w.resolver.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrUnresolvedCustomer) {
			logging.With(ctx, w.log).Warn().
				Str("customer_id", ref.CustomerID).
				Str("email", logging.Redact(ref.Email, w.dev)).
				Msg("unresolved customer")
		}
		return "", err
	}
	return userID, nil
}

// Checkouts only teach us the provider customer id; most arrive before the
// customer has a local account, so an unresolved one is not an error.
func (w *webhookUC) onCheckout(ctx context.Context, d event.CheckoutData) (Outcome, error) {
	ref := d.CustomerRef()
	if ref.CustomerID == "" {
		return OutcomeIgnored, nil
	}
	userID, err := w.resolve(ctx, ref)
	if errors.Is(err, domain.ErrUnresolvedCustomer) {
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if err := w.billing.LinkCustomer(logging.WithUserID(ctx, userID), userID, ref.CustomerID); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (w *webhookUC) onOrder(ctx context.Context, provider event.Provider, d event.OrderData, paid bool) (Outcome, error) {
	ref := d.CustomerRef()
	userID, err := w.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	ctx = logging.WithUserID(ctx, userID)

	product := d.ProductRef()
	o := &model.Order{
		PolarOrderID:  d.ID,
		UserID:        userID,
		CheckoutID:    optional(d.CheckoutID),
		Status:        model.OrderStatusPending,
		Amount:        d.Total(),
		Currency:      d.Currency,
		ProductID:     product.ID,
		ProductName:   product.Name,
		CustomerEmail: model.NormalizeEmail(ref.Email),
		CustomerName:  optional(ref.Name),
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt.Time,
	}
	if paid {
		o.Status = model.OrderStatusCompleted
	}
	stored, err := w.billing.UpsertOrder(ctx, o)
	if err != nil {
		return "", err
	}
	if err := w.billing.LinkCustomer(ctx, userID, ref.CustomerID); err != nil {
		return "", err
	}
	if !paid {
		return OutcomeProcessed, nil
	}

	subID := d.SubscriptionRef()
	revoked, err := w.subscriptionRevoked(ctx, subID, d.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return OutcomeProcessed, nil
	}

	if product.ID != "" {
		if _, err := w.billing.UpdateUserAccess(ctx, AccessUpdate{
			UserID:         userID,
			CustomerID:     ref.CustomerID,
			ProductID:      product.ID,
			HasAccess:      true,
			SubscriptionID: subID,
			OrderID:        d.ID,
		}); err != nil {
			return "", err
		}
	} else {
		logging.With(ctx, w.log).Warn().Str("order_id", d.ID).Msg("paid order without product; no access granted")
	}

	if subID != "" {
		var endsAt *time.Time
		if d.Subscription != nil {
			endsAt = d.Subscription.CurrentPeriodEnd.Ptr()
		}
		if err := w.billing.SetUserSubscriptionState(ctx, userID, model.UserStatusActive, endsAt); err != nil {
			return "", err
		}
	}

	if stored.IsCompleted() {
		w.notify(ctx, fmt.Sprintf("[%s] order %s paid: %s %d %s", provider, stored.PolarOrderID, stored.ProductName, stored.Amount, stored.Currency))
	}
	return OutcomeProcessed, nil
}

// onSubscription stores the subscription with status, then derives access and the
// user's status from the stored row, which keeps a revoked subscription revoked.
func (w *webhookUC) onSubscription(ctx context.Context, provider event.Provider, d event.SubscriptionData, status model.SubscriptionStatus) (Outcome, error) {
	ref := d.CustomerRef()
	userID, err := w.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	ctx = logging.WithUserID(ctx, userID)

	product := d.ProductRef()
	canceledAt := d.CanceledAt.Ptr()
	if canceledAt == nil && status == model.SubscriptionStatusRevoked {
		canceledAt = d.EndedAt.Ptr()
	}
	stored, err := w.billing.UpsertSubscription(ctx, &model.Subscription{
		PolarSubscriptionID: d.ID,
		UserID:              userID,
		ProductID:           product.ID,
		PriceID:             d.PriceRef(),
		Status:              status,
		CurrentPeriodStart:  d.CurrentPeriodStart.Ptr(),
		CurrentPeriodEnd:    d.CurrentPeriodEnd.Ptr(),
		CancelAtPeriodEnd:   d.CancelAtPeriodEnd,
		CustomerEmail:       model.NormalizeEmail(ref.Email),
		CustomerName:        optional(ref.Name),
		Metadata:            d.Metadata,
		CanceledAt:          canceledAt,
		CreatedAt:           d.CreatedAt.Time,
	})
	if err != nil {
		return "", err
	}
	if err := w.billing.LinkCustomer(ctx, userID, ref.CustomerID); err != nil {
		return "", err
	}

	now := w.now()
	hasAccess, decisive := model.AccessEffect(stored.Status, stored.CurrentPeriodEnd, now)
	if !decisive {
		logging.With(ctx, w.log).Debug().Str("status", string(stored.Status)).Msg("subscription stored; access unchanged")
		return OutcomeProcessed, nil
	}

	if stored.ProductID != "" {
		if _, err := w.billing.UpdateUserAccess(ctx, AccessUpdate{
			UserID:         userID,
			CustomerID:     ref.CustomerID,
			ProductID:      stored.ProductID,
			HasAccess:      hasAccess,
			SubscriptionID: stored.PolarSubscriptionID,
		}); err != nil {
			return "", err
		}
	}
	if err := w.billing.SetUserSubscriptionState(ctx, userID, model.UserStatusFor(stored.Status), subscriptionEndsAt(stored, now)); err != nil {
		return "", err
	}

	if status == model.SubscriptionStatusRevoked {
		w.notify(ctx, fmt.Sprintf("[%s] subscription %s revoked", provider, stored.PolarSubscriptionID))
	}
	return OutcomeProcessed, nil
}

// subscriptionRevoked reports whether a payment belongs to a stored subscription
// that was already revoked. Such a payment is recorded but grants nothing.
func (w *webhookUC) subscriptionRevoked(ctx context.Context, subID, paymentID string) (bool, error) {
	if subID == "" {
		return false, nil
	}
	sub, err := w.billing.FindSubscription(ctx, subID)
	if err != nil {
		return false, err
	}
	if sub == nil || sub.Status != model.SubscriptionStatusRevoked {
		return false, nil
	}
	logging.With(ctx, w.log).Info().Str("payment_id", paymentID).Str("subscription_id", subID).
		Msg("payment for a revoked subscription; access unchanged")
	return true, nil
}

func subscriptionEndsAt(s *model.Subscription, now time.Time) *time.Time {
	if s.Status != model.SubscriptionStatusRevoked {
		return s.CurrentPeriodEnd
	}
	if s.CanceledAt != nil {
		return s.CanceledAt
	}
	return &now
}

func (w *webhookUC) onCustomer(ctx context.Context, d event.CustomerData) (Outcome, error) {
	ref := d.CustomerRef()
	userID, err := w.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if err := w.billing.LinkCustomer(logging.WithUserID(ctx, userID), userID, d.ID); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// A Dodo payment is recorded as a completed order keyed on the payment id and
// grants every product in its cart.
func (w *webhookUC) onPaymentSucceeded(ctx context.Context, provider event.Provider, d event.PaymentData) (Outcome, error) {
	ref := d.CustomerRef()
	userID, err := w.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	ctx = logging.WithUserID(ctx, userID)

	products := d.ProductIDs()
	var firstProduct string
	if len(products) > 0 {
		firstProduct = products[0]
	}
	if _, err := w.billing.UpsertOrder(ctx, &model.Order{
		PolarOrderID:  d.PaymentID,
		UserID:        userID,
		Status:        model.OrderStatusCompleted,
		Amount:        d.TotalAmount,
		Currency:      d.Currency,
		ProductID:     firstProduct,
		CustomerEmail: model.NormalizeEmail(ref.Email),
		CustomerName:  optional(ref.Name),
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt.Time,
	}); err != nil {
		return "", err
	}
	if err := w.billing.LinkCustomer(ctx, userID, ref.CustomerID); err != nil {
		return "", err
	}
	revoked, err := w.subscriptionRevoked(ctx, d.SubscriptionID, d.PaymentID)
	if err != nil {
		return "", err
	}
	if revoked {
		return OutcomeProcessed, nil
	}
	for _, productID := range products {
		if _, err := w.billing.UpdateUserAccess(ctx, AccessUpdate{
			UserID:         userID,
			CustomerID:     ref.CustomerID,
			ProductID:      productID,
			HasAccess:      true,
			SubscriptionID: d.SubscriptionID,
			OrderID:        d.PaymentID,
		}); err != nil {
			return "", err
		}
	}
	if err := w.billing.SetUserSubscriptionState(ctx, userID, model.UserStatusActive, nil); err != nil {
		return "", err
	}

	w.notify(ctx, fmt.Sprintf("[%s] payment %s succeeded: %d %s", provider, d.PaymentID, d.TotalAmount, d.Currency))
	return OutcomeProcessed, nil
}

func (w *webhookUC) onPaymentCancelled(ctx context.Context, d event.PaymentData) (Outcome, error) {
	userID, err := w.resolve(ctx, d.CustomerRef())
	if err != nil {
		return "", err
	}
	if err := w.billing.SetUserSubscriptionState(logging.WithUserID(ctx, userID), userID, model.UserStatusCanceled, nil); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (w *webhookUC) onClerkUser(ctx context.Context, d event.ClerkUserData) (Outcome, error) {
	ctx = logging.WithUserID(ctx, d.ID)
	p := &model.Profile{
		ClerkID:   d.ID,
		Email:     d.PrimaryEmail(),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		AvatarURL: d.ImageURL,
	}
	if err := w.billing.SyncProfile(ctx, p, d.DisplayName()); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (w *webhookUC) notify(ctx context.Context, text string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, text); err != nil {
		logging.With(ctx, w.log).Warn().Err(err).Msg("operator notification failed")
	}
}
