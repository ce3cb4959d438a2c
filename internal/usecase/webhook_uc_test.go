//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"billing-sync/internal/domain"
	"billing-sync/internal/domain/event"
	"billing-sync/internal/domain/model"
	"billing-sync/internal/domain/ports/repository"
	"billing-sync/internal/usecase"
)

func (f *fixture) webhook() usecase.WebhookUseCase {
	logger := newTestLogger()
	resolver := usecase.NewCorrelationUseCase(f.users, f.profiles, logger)
	billing := usecase.NewBillingUseCase(f.users, f.profiles, f.orders, f.subs, f.access, f.tm, logger)
	return usecase.NewWebhookUseCase(resolver, billing, f.notifier, logger, true)
}

func parse(t *testing.T, provider event.Provider, body string) event.Event {
	t.Helper()
	ev, err := event.NewParser().Parse(provider, []byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ev
}

const orderPaidBody = `{"type":"order.paid","data":{"id":"ord_1","customer":{"email":"a@b.com"},
	"product":{"id":"p1","name":"Premium"},"totalAmount":2900,"currency":"usd"}}`

func TestWebhookUseCase_OrderPaidScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	out, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, orderPaidBody))
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if out != usecase.OutcomeProcessed {
		t.Errorf("expected processed, got %s", out)
	}

	o, err := f.orders.FindByID(ctx, nil, "ord_1")
	if err != nil {
		t.Fatalf("expected order ord_1 to exist: %v", err)
	}
	if o.UserID != "u1" || o.Status != model.OrderStatusCompleted {
		t.Errorf("unexpected order: user=%s status=%s", o.UserID, o.Status)
	}
	if o.Amount != 2900 || o.Currency != "usd" || o.ProductName != "Premium" {
		t.Errorf("order fields not copied from payload: %+v", o)
	}
	if o.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	g := f.access.Get("u1", "p1")
	if g == nil || !g.HasAccess {
		t.Fatalf("expected access grant for (u1, p1), got %+v", g)
	}
	if g.OrderID == nil || *g.OrderID != "ord_1" {
		t.Errorf("expected grant justified by ord_1, got %v", g.OrderID)
	}
	if len(f.notifier.Sent) != 1 {
		t.Errorf("expected one operator notification, got %d", len(f.notifier.Sent))
	}
}

func TestWebhookUseCase_OrderPaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()
	ev := parse(t, event.ProviderPolar, orderPaidBody)

	if _, err := uc.Dispatch(ctx, event.ProviderPolar, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first, _ := f.orders.FindByID(ctx, nil, "ord_1")

	if _, err := uc.Dispatch(ctx, event.ProviderPolar, ev); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	second, _ := f.orders.FindByID(ctx, nil, "ord_1")

	if f.orders.Len() != 1 {
		t.Errorf("expected exactly one order row, got %d", f.orders.Len())
	}
	if second.Status != model.OrderStatusCompleted {
		t.Errorf("expected completed, got %s", second.Status)
	}
	if !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Error("completed_at must keep its first value")
	}
	if f.access.Len() != 1 {
		t.Errorf("expected one access row, got %d", f.access.Len())
	}
}

func TestWebhookUseCase_LateOrderCreatedDoesNotDowngrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	_, _ = uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, orderPaidBody))
	_, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar,
		`{"type":"order.created","data":{"id":"ord_1","customer":{"email":"a@b.com"},"product_id":"p1"}}`))
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	o, _ := f.orders.FindByID(ctx, nil, "ord_1")
	if o.Status != model.OrderStatusCompleted {
		t.Errorf("expected order to stay completed, got %s", o.Status)
	}
}

func TestWebhookUseCase_RevokedBeforeCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	revoked := `{"type":"subscription.revoked","data":{"id":"sub_1","status":"revoked",
		"customer":{"email":"a@b.com"},"product_id":"p1"}}`
	created := `{"type":"subscription.created","data":{"id":"sub_1","status":"created",
		"customer":{"email":"a@b.com"},"product_id":"p1"}}`

	for _, body := range []string{revoked, created} {
		if _, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, body)); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
	}

	s, err := f.subs.FindByID(ctx, nil, "sub_1")
	if err != nil {
		t.Fatalf("expected subscription row: %v", err)
	}
	if s.Status != model.SubscriptionStatusRevoked {
		t.Errorf("expected revoked to stick, got %s", s.Status)
	}
	g := f.access.Get("u1", "p1")
	if g == nil || g.HasAccess {
		t.Errorf("expected access row with has_access=false, got %+v", g)
	}
	if u := f.users.Get("u1"); u.SubscriptionStatus != model.UserStatusRevoked {
		t.Errorf("expected user status revoked, got %s", u.SubscriptionStatus)
	}
}

func TestWebhookUseCase_SubscriptionCreatedKeepsPaidAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	active := `{"type":"subscription.active","data":{"id":"sub_1","status":"active",
		"customer":{"email":"a@b.com"},"product_id":"p1","current_period_end":"2099-01-01T00:00:00Z"}}`
	created := `{"type":"subscription.created","data":{"id":"sub_1","status":"incomplete",
		"customer":{"email":"a@b.com"},"product_id":"p1"}}`

	_, _ = uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, active))
	_, _ = uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, created))

	if g := f.access.Get("u1", "p1"); g == nil || !g.HasAccess {
		t.Errorf("expected access to survive a late created event, got %+v", g)
	}
	if u := f.users.Get("u1"); u.SubscriptionStatus != model.UserStatusActive {
		t.Errorf("expected user to stay active, got %s", u.SubscriptionStatus)
	}
}

func TestWebhookUseCase_CanceledKeepsAccessUntilPeriodEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	body := `{"type":"subscription.canceled","data":{"id":"sub_1","status":"active","cancel_at_period_end":true,
		"customer":{"email":"a@b.com"},"product_id":"p1","current_period_end":"2099-01-01T00:00:00Z"}}`
	if _, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, body)); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if g := f.access.Get("u1", "p1"); g == nil || !g.HasAccess {
		t.Errorf("expected access until period end, got %+v", g)
	}
	u := f.users.Get("u1")
	if u.SubscriptionStatus != model.UserStatusCanceled || u.SubscriptionEndsAt == nil {
		t.Errorf("expected canceled with end date, got %s %v", u.SubscriptionStatus, u.SubscriptionEndsAt)
	}
}

func TestWebhookUseCase_EmailFallbackMatchesDirectID(t *testing.T) {
	ctx := context.Background()

	direct := newFixture(mustUser("u1", "a@b.com"))
	byEmail := newFixture(mustUser("u1", "a@b.com"))

	withID := `{"type":"order.paid","data":{"id":"ord_1","customer":{"email":"other@x.io","external_id":"u1"},"product_id":"p1"}}`
	withEmail := `{"type":"order.paid","data":{"id":"ord_1","customer":{"email":"A@B.com"},"product_id":"p1"}}`

	if _, err := direct.webhook().Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, withID)); err != nil {
		t.Fatal(err)
	}
	if _, err := byEmail.webhook().Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, withEmail)); err != nil {
		t.Fatal(err)
	}

	a, _ := direct.orders.FindByID(ctx, nil, "ord_1")
	b, _ := byEmail.orders.FindByID(ctx, nil, "ord_1")
	if a.UserID != b.UserID || a.UserID != "u1" {
		t.Errorf("expected both strategies to resolve u1, got %q and %q", a.UserID, b.UserID)
	}
}

func TestWebhookUseCase_UnresolvedCustomerIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))

	out, err := f.webhook().Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar,
		`{"type":"order.paid","data":{"id":"ord_9","customer":{"email":"nobody@x.io"},"product_id":"p1"}}`))
	if err != nil {
		t.Fatalf("expected contained error, got: %v", err)
	}
	if out != usecase.OutcomeDropped {
		t.Errorf("expected dropped, got %s", out)
	}
	if f.orders.Len() != 0 || f.access.Len() != 0 {
		t.Error("expected no writes for an unresolved customer")
	}
}

func TestWebhookUseCase_UnknownIsIgnored(t *testing.T) {
	f := newFixture()
	out, err := f.webhook().Dispatch(context.Background(), event.ProviderPolar, event.Unknown{WireType: "benefit.granted"})
	if err != nil || out != usecase.OutcomeIgnored {
		t.Errorf("expected ignored without error, got %s %v", out, err)
	}
}

func TestWebhookUseCase_PersistenceFailureIsReturned(t *testing.T) {
	f := newFixture(mustUser("u1", "a@b.com"))
	boom := errors.New("connection reset")
	f.orders.UpsertFunc = func(ctx context.Context, tx repository.Tx, o *model.Order) (*model.Order, error) {
		return nil, boom
	}

	_, err := f.webhook().Dispatch(context.Background(), event.ProviderPolar, parse(t, event.ProviderPolar, orderPaidBody))
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped persistence error, got %v", err)
	}
}

func TestWebhookUseCase_CheckoutLinksCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))

	out, err := f.webhook().Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar,
		`{"type":"checkout.updated","data":{"id":"co_1","customer_id":"cus_1","metadata":{"user_id":"u1"}}}`))
	if err != nil || out != usecase.OutcomeProcessed {
		t.Fatalf("expected processed, got %s %v", out, err)
	}
	if u := f.users.Get("u1"); u.ProviderCustomerID == nil || *u.ProviderCustomerID != "cus_1" {
		t.Errorf("expected customer link, got %v", u.ProviderCustomerID)
	}

	// later events resolve by customer id alone
	_, err = f.webhook().Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar,
		`{"type":"order.created","data":{"id":"ord_2","customer_id":"cus_1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if o, _ := f.orders.FindByID(ctx, nil, "ord_2"); o == nil || o.UserID != "u1" {
		t.Errorf("expected ord_2 owned by u1, got %+v", o)
	}
}

func TestWebhookUseCase_DodoPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "d@o.do"))

	body := `{"type":"payment.succeeded","data":{"payment_id":"pay_1","total_amount":1500,"currency":"USD",
		"customer":{"customer_id":"cus_9","email":"d@o.do"},
		"product_cart":[{"product_id":"pdt_1","quantity":1},{"product_id":"pdt_2","quantity":1}]}}`
	if _, err := f.webhook().Dispatch(ctx, event.ProviderDodo, parse(t, event.ProviderDodo, body)); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}

	for _, p := range []string{"pdt_1", "pdt_2"} {
		if g := f.access.Get("u1", p); g == nil || !g.HasAccess {
			t.Errorf("expected access to %s", p)
		}
	}
	if o, _ := f.orders.FindByID(ctx, nil, "pay_1"); o == nil || o.Status != model.OrderStatusCompleted {
		t.Errorf("expected completed order for the payment, got %+v", o)
	}
	u := f.users.Get("u1")
	if u.SubscriptionStatus != model.UserStatusActive || u.SubscriptionEndsAt != nil {
		t.Errorf("expected active with no end, got %s %v", u.SubscriptionStatus, u.SubscriptionEndsAt)
	}

	cancel := `{"type":"payment.cancelled","data":{"payment_id":"pay_2","customer":{"customer_id":"cus_9"}}}`
	if _, err := f.webhook().Dispatch(ctx, event.ProviderDodo, parse(t, event.ProviderDodo, cancel)); err != nil {
		t.Fatal(err)
	}
	if u := f.users.Get("u1"); u.SubscriptionStatus != model.UserStatusCanceled {
		t.Errorf("expected canceled, got %s", u.SubscriptionStatus)
	}
}

func TestWebhookUseCase_ClerkUserSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("user_1", "old@x.io"))

	body := `{"type":"user.updated","data":{"id":"user_1",
		"email_addresses":[{"id":"e1","email_address":"New@X.io"}],"primary_email_address_id":"e1",
		"first_name":"Ada","last_name":"Lovelace"}}`
	if _, err := f.webhook().Dispatch(ctx, event.ProviderClerk, parse(t, event.ProviderClerk, body)); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}

	p, err := f.profiles.FindByClerkID(ctx, nil, "user_1")
	if err != nil || p.Email != "new@x.io" {
		t.Fatalf("expected synced profile, got %+v %v", p, err)
	}
	u := f.users.Get("user_1")
	if u.Email != "new@x.io" || u.Name != "Ada Lovelace" {
		t.Errorf("expected users contact sync, got %q %q", u.Email, u.Name)
	}
	if f.tm.Calls != 1 {
		t.Errorf("expected profile sync inside one transaction, got %d", f.tm.Calls)
	}

	// a profile-only user resolves through profiles
	f2 := newFixture()
	_, _ = f2.webhook().Dispatch(ctx, event.ProviderClerk, parse(t, event.ProviderClerk,
		`{"type":"user.created","data":{"id":"user_2","email_addresses":[{"id":"e","email_address":"p@x.io"}]}}`))
	_, err = f2.webhook().Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar,
		`{"type":"order.paid","data":{"id":"ord_p","customer":{"email":"p@x.io"},"product_id":"p1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if g := f2.access.Get("user_2", "p1"); g == nil || !g.HasAccess {
		t.Errorf("expected profile-resolved grant, got %+v", g)
	}
}

func TestExpiryUseCase_RevokeLapsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	body := `{"type":"subscription.canceled","data":{"id":"sub_1","customer":{"email":"a@b.com"},
		"product_id":"p1","current_period_end":"` + past + `"}}`
	// a canceled subscription past its end writes has_access=false directly
	_, _ = uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, body))
	if g := f.access.Get("u1", "p1"); g == nil || g.HasAccess {
		t.Fatalf("expected lapsed cancel to deny access, got %+v", g)
	}

	// a grant written while the period was running is revoked by the sweep
	g := f.access.Get("u1", "p1")
	g.HasAccess = true

	expiry := usecase.NewExpiryUseCase(f.subs, f.access, newTestLogger())
	n, err := expiry.RevokeLapsed(ctx, 10)
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one revoked grant, got %d", n)
	}
	if f.access.Get("u1", "p1").HasAccess {
		t.Error("expected grant to be revoked")
	}
}

func TestExpiryUseCase_OneTimePurchaseSurvivesLapsedSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	canceled := `{"type":"subscription.canceled","data":{"id":"sub_1","cancel_at_period_end":true,
		"customer":{"email":"a@b.com"},"product_id":"p1","current_period_end":"2099-01-01T00:00:00Z"}}`
	if _, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, canceled)); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	g := f.access.Get("u1", "p1")
	if g == nil || g.SubscriptionID == nil || *g.SubscriptionID != "sub_1" {
		t.Fatalf("expected grant justified by sub_1, got %+v", g)
	}

	oneTime := `{"type":"order.paid","data":{"id":"ord_9","customer":{"email":"a@b.com"},"product_id":"p1","total_amount":4900}}`
	if _, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, oneTime)); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	g = f.access.Get("u1", "p1")
	if g.SubscriptionID != nil {
		t.Errorf("expected one-time purchase to detach the grant, still on %s", *g.SubscriptionID)
	}
	if g.OrderID == nil || *g.OrderID != "ord_9" {
		t.Errorf("expected grant justified by ord_9, got %v", g.OrderID)
	}

	ended := time.Now().Add(-time.Hour).UTC()
	f.subs.Get("sub_1").CurrentPeriodEnd = &ended

	n, err := usecase.NewExpiryUseCase(f.subs, f.access, newTestLogger()).RevokeLapsed(ctx, 10)
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no grants revoked, got %d", n)
	}
	if !f.access.Get("u1", "p1").HasAccess {
		t.Error("expected paid-for access to survive the lapsed subscription")
	}
}

func TestWebhookUseCase_OrderPaidAfterRevokedSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "a@b.com"))
	uc := f.webhook()

	revoked := `{"type":"subscription.revoked","data":{"id":"sub_1","status":"revoked",
		"customer":{"email":"a@b.com"},"product_id":"p1"}}`
	paid := `{"type":"order.paid","data":{"id":"ord_2","subscription_id":"sub_1",
		"customer":{"email":"a@b.com"},"product_id":"p1","total_amount":2900}}`
	for _, body := range []string{revoked, paid} {
		out, err := uc.Dispatch(ctx, event.ProviderPolar, parse(t, event.ProviderPolar, body))
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out != usecase.OutcomeProcessed {
			t.Errorf("expected processed, got %s", out)
		}
	}

	if o, _ := f.orders.FindByID(ctx, nil, "ord_2"); o == nil || o.Status != model.OrderStatusCompleted {
		t.Errorf("expected the late order to be recorded, got %+v", o)
	}
	if g := f.access.Get("u1", "p1"); g == nil || g.HasAccess {
		t.Errorf("expected access to stay revoked, got %+v", g)
	}
	if u := f.users.Get("u1"); u.SubscriptionStatus != model.UserStatusRevoked {
		t.Errorf("expected user to stay revoked, got %s", u.SubscriptionStatus)
	}
	if len(f.notifier.Sent) != 1 {
		t.Errorf("expected only the revocation notice, got %v", f.notifier.Sent)
	}
}

func TestWebhookUseCase_DodoPaymentForRevokedSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(mustUser("u1", "d@o.do"))
	if _, err := f.subs.Upsert(ctx, nil, &model.Subscription{
		PolarSubscriptionID: "sub_d",
		UserID:              "u1",
		ProductID:           "pdt_1",
		Status:              model.SubscriptionStatusRevoked,
	}); err != nil {
		t.Fatal(err)
	}

	body := `{"type":"payment.succeeded","data":{"payment_id":"pay_3","subscription_id":"sub_d","total_amount":1500,
		"currency":"USD","customer":{"customer_id":"cus_9","email":"d@o.do"},
		"product_cart":[{"product_id":"pdt_1","quantity":1}]}}`
	if _, err := f.webhook().Dispatch(ctx, event.ProviderDodo, parse(t, event.ProviderDodo, body)); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if o, _ := f.orders.FindByID(ctx, nil, "pay_3"); o == nil {
		t.Error("expected the payment to be recorded")
	}
	if g := f.access.Get("u1", "pdt_1"); g != nil {
		t.Errorf("expected no grant for a revoked subscription, got %+v", g)
	}
	if u := f.users.Get("u1"); u.SubscriptionStatus != model.UserStatusFree {
		t.Errorf("expected user status untouched, got %s", u.SubscriptionStatus)
	}
}

func TestCorrelationUseCase_Resolve(t *testing.T) {
	ctx := context.Background()
	linked := mustUser("u2", "c@d.io")
	cus := "cus_2"
	linked.ProviderCustomerID = &cus
	f := newFixture(mustUser("u1", "a@b.com"), linked)
	uc := usecase.NewCorrelationUseCase(f.users, f.profiles, newTestLogger())

	tests := []struct {
		name string
		ref  event.CustomerRef
		want string
		err  error
	}{
		{"external id wins", event.CustomerRef{ExternalID: "u1", CustomerID: "cus_2", Email: "c@d.io"}, "u1", nil},
		{"stale external id falls through", event.CustomerRef{ExternalID: "gone", Email: "a@b.com"}, "u1", nil},
		{"customer id", event.CustomerRef{CustomerID: "cus_2"}, "u2", nil},
		{"email is case-insensitive", event.CustomerRef{Email: " A@B.COM "}, "u1", nil},
		{"nothing matches", event.CustomerRef{Email: "x@y.z"}, "", domain.ErrUnresolvedCustomer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := uc.Resolve(ctx, tt.ref)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
