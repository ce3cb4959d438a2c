// Package event defines the closed set of provider webhook events the service understands.
//
// Event is a sealed interface: every known provider event type has its own concrete
// type, and anything else decodes to Unknown. Consumers switch on the concrete type.
package event

type Provider string

const (
	ProviderPolar Provider = "polar"
	ProviderDodo  Provider = "dodo"
	ProviderClerk Provider = "clerk"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderPolar, ProviderDodo, ProviderClerk:
		return true
	}
	return false
}

// Provider event type names as they appear on the wire.
const (
	TypeCheckoutCreated      = "checkout.created"
	TypeCheckoutUpdated      = "checkout.updated"
	TypeOrderCreated         = "order.created"
	TypeOrderPaid            = "order.paid"
	TypeSubscriptionCreated  = "subscription.created"
	TypeSubscriptionActive   = "subscription.active"
	TypeSubscriptionUpdated  = "subscription.updated"
	TypeSubscriptionCanceled = "subscription.canceled"
	TypeSubscriptionRevoked  = "subscription.revoked"
	TypeCustomerCreated      = "customer.created"
	TypeCustomerUpdated      = "customer.updated"

	// Dodo Payments
	TypePaymentSucceeded      = "payment.succeeded"
	TypePaymentCancelled      = "payment.cancelled"
	TypeRefundSucceeded       = "refund.succeeded"
	TypeDodoSubActive         = "subscription.active"
	TypeDodoSubRenewed        = "subscription.renewed"
	TypeDodoSubOnHold         = "subscription.on_hold"
	TypeDodoSubCancelled      = "subscription.cancelled"
	TypeDodoSubExpired        = "subscription.expired"
	TypeDodoSubFailed         = "subscription.failed"
	TypeDodoSubPlanChanged    = "subscription.plan_changed"
	TypeClerkUserCreated      = "user.created"
	TypeClerkUserUpdated      = "user.updated"
)

// Event is implemented only by the types in this package.
type Event interface {
	// Type returns the wire event type that produced this value.
	Type() string
	isEvent()
}

type CheckoutCreated struct{ Data CheckoutData }
type CheckoutUpdated struct{ Data CheckoutData }
type OrderCreated struct{ Data OrderData }
type OrderPaid struct{ Data OrderData }

// Subscription events carry the wire type because several Dodo types map onto one kind.
type SubscriptionCreated struct {
	WireType string
	Data     SubscriptionData
}
type SubscriptionActive struct {
	WireType string
	Data     SubscriptionData
}
type SubscriptionUpdated struct {
	WireType string
	Data     SubscriptionData
}
type SubscriptionCanceled struct {
	WireType string
	Data     SubscriptionData
}
type SubscriptionRevoked struct {
	WireType string
	Data     SubscriptionData
}

type CustomerCreated struct{ Data CustomerData }
type CustomerUpdated struct{ Data CustomerData }

type PaymentSucceeded struct{ Data PaymentData }
type PaymentCancelled struct{ Data PaymentData }
type RefundSucceeded struct{ Data RefundData }

type UserCreated struct{ Data ClerkUserData }
type UserUpdated struct{ Data ClerkUserData }

// Unknown is any event type this service does not handle.
type Unknown struct{ WireType string }

func (CheckoutCreated) Type() string { return TypeCheckoutCreated }
func (CheckoutUpdated) Type() string { return TypeCheckoutUpdated }
func (OrderCreated) Type() string    { return TypeOrderCreated }
func (OrderPaid) Type() string       { return TypeOrderPaid }
func (e SubscriptionCreated) Type() string {
	return wireOr(e.WireType, TypeSubscriptionCreated)
}
func (e SubscriptionActive) Type() string {
	return wireOr(e.WireType, TypeSubscriptionActive)
}
func (e SubscriptionUpdated) Type() string {
	return wireOr(e.WireType, TypeSubscriptionUpdated)
}
func (e SubscriptionCanceled) Type() string {
	return wireOr(e.WireType, TypeSubscriptionCanceled)
}
func (e SubscriptionRevoked) Type() string {
	return wireOr(e.WireType, TypeSubscriptionRevoked)
}
func (CustomerCreated) Type() string  { return TypeCustomerCreated }
func (CustomerUpdated) Type() string  { return TypeCustomerUpdated }
func (PaymentSucceeded) Type() string { return TypePaymentSucceeded }
func (PaymentCancelled) Type() string { return TypePaymentCancelled }
func (RefundSucceeded) Type() string  { return TypeRefundSucceeded }
func (UserCreated) Type() string      { return TypeClerkUserCreated }
func (UserUpdated) Type() string      { return TypeClerkUserUpdated }
func (e Unknown) Type() string        { return e.WireType }

func (CheckoutCreated) isEvent()      {}
func (CheckoutUpdated) isEvent()      {}
func (OrderCreated) isEvent()         {}
func (OrderPaid) isEvent()            {}
func (SubscriptionCreated) isEvent()  {}
func (SubscriptionActive) isEvent()   {}
func (SubscriptionUpdated) isEvent()  {}
func (SubscriptionCanceled) isEvent() {}
func (SubscriptionRevoked) isEvent()  {}
func (CustomerCreated) isEvent()      {}
func (CustomerUpdated) isEvent()      {}
func (PaymentSucceeded) isEvent()     {}
func (PaymentCancelled) isEvent()     {}
func (RefundSucceeded) isEvent()      {}
func (UserCreated) isEvent()          {}
func (UserUpdated) isEvent()          {}
func (Unknown) isEvent()              {}

func wireOr(wire, def string) string {
	if wire == "" {
		return def
	}
	return wire
}
