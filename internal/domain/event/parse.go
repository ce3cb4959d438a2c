package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"billing-sync/internal/domain"
)

// Envelope is the outer shape every provider uses.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type decodeFunc func(p *Parser, wire string, data []byte) (Event, error)

// Parser turns verified webhook bodies into events.
type Parser struct {
	validate *validator.Validate
	decoders map[Provider]map[string]decodeFunc
}

func NewParser() *Parser {
	return &Parser{
		validate: validator.New(),
		decoders: map[Provider]map[string]decodeFunc{
			ProviderPolar: polarDecoders,
			ProviderDodo:  dodoDecoders,
			ProviderClerk: clerkDecoders,
		},
	}
}

// Parse decodes body for provider. Unparseable JSON or a missing type yields
// domain.ErrMalformedPayload; a payload missing required fields yields
// domain.ErrInvalidArgument. Unknown types are not an error.
func (p *Parser) Parse(provider Provider, body []byte) (Event, error) {
	table, ok := p.decoders[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", domain.ErrMalformedPayload)
	}

	dec, ok := table[env.Type]
	if !ok {
		return Unknown{WireType: env.Type}, nil
	}

	data, err := NormalizeKeys(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return dec(p, env.Type, data)
}

func (p *Parser) decode(data []byte, dst interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := p.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, verrs.Error())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func checkout(build func(CheckoutData) Event) decodeFunc {
	return func(p *Parser, _ string, data []byte) (Event, error) {
		var d CheckoutData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(d), nil
	}
}

func order(build func(OrderData) Event) decodeFunc {
	return func(p *Parser, _ string, data []byte) (Event, error) {
		var d OrderData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(d), nil
	}
}

func subscription(build func(string, SubscriptionData) Event) decodeFunc {
	return func(p *Parser, wire string, data []byte) (Event, error) {
		var d SubscriptionData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(wire, d), nil
	}
}

func customer(build func(CustomerData) Event) decodeFunc {
	return func(p *Parser, _ string, data []byte) (Event, error) {
		var d CustomerData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(d), nil
	}
}

// dodoSub decodes a Dodo subscription payload; status overrides the payload's own when set.
func dodoSub(status string, build func(string, SubscriptionData) Event) decodeFunc {
	return func(p *Parser, wire string, data []byte) (Event, error) {
		var d dodoSubscription
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(wire, d.normalize(status)), nil
	}
}

func payment(build func(PaymentData) Event) decodeFunc {
	return func(p *Parser, _ string, data []byte) (Event, error) {
		var d PaymentData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(d), nil
	}
}

func clerkUser(build func(ClerkUserData) Event) decodeFunc {
	return func(p *Parser, _ string, data []byte) (Event, error) {
		var d ClerkUserData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return build(d), nil
	}
}

var polarDecoders = map[string]decodeFunc{
	TypeCheckoutCreated: checkout(func(d CheckoutData) Event { return CheckoutCreated{Data: d} }),
	TypeCheckoutUpdated: checkout(func(d CheckoutData) Event { return CheckoutUpdated{Data: d} }),
	TypeOrderCreated:    order(func(d OrderData) Event { return OrderCreated{Data: d} }),
	TypeOrderPaid:       order(func(d OrderData) Event { return OrderPaid{Data: d} }),
	TypeSubscriptionCreated: subscription(func(w string, d SubscriptionData) Event {
		return SubscriptionCreated{WireType: w, Data: d}
	}),
	TypeSubscriptionActive: subscription(func(w string, d SubscriptionData) Event {
		return SubscriptionActive{WireType: w, Data: d}
	}),
	TypeSubscriptionUpdated: subscription(func(w string, d SubscriptionData) Event {
		return SubscriptionUpdated{WireType: w, Data: d}
	}),
	TypeSubscriptionCanceled: subscription(func(w string, d SubscriptionData) Event {
		return SubscriptionCanceled{WireType: w, Data: d}
	}),
	TypeSubscriptionRevoked: subscription(func(w string, d SubscriptionData) Event {
		return SubscriptionRevoked{WireType: w, Data: d}
	}),
	TypeCustomerCreated: customer(func(d CustomerData) Event { return CustomerCreated{Data: d} }),
	TypeCustomerUpdated: customer(func(d CustomerData) Event { return CustomerUpdated{Data: d} }),
}

var dodoDecoders = map[string]decodeFunc{
	TypePaymentSucceeded: payment(func(d PaymentData) Event { return PaymentSucceeded{Data: d} }),
	TypePaymentCancelled: payment(func(d PaymentData) Event { return PaymentCancelled{Data: d} }),
	TypeRefundSucceeded: func(p *Parser, _ string, data []byte) (Event, error) {
		var d RefundData
		if err := p.decode(data, &d); err != nil {
			return nil, err
		}
		return RefundSucceeded{Data: d}, nil
	},
	TypeDodoSubActive: dodoSub("active", func(w string, d SubscriptionData) Event {
		return SubscriptionActive{WireType: w, Data: d}
	}),
	TypeDodoSubRenewed: dodoSub("active", func(w string, d SubscriptionData) Event {
		return SubscriptionActive{WireType: w, Data: d}
	}),
	TypeDodoSubPlanChanged: dodoSub("", func(w string, d SubscriptionData) Event {
		return SubscriptionUpdated{WireType: w, Data: d}
	}),
	TypeDodoSubOnHold: dodoSub("past_due", func(w string, d SubscriptionData) Event {
		return SubscriptionUpdated{WireType: w, Data: d}
	}),
	TypeDodoSubCancelled: dodoSub("canceled", func(w string, d SubscriptionData) Event {
		return SubscriptionCanceled{WireType: w, Data: d}
	}),
	TypeDodoSubExpired: dodoSub("revoked", func(w string, d SubscriptionData) Event {
		return SubscriptionRevoked{WireType: w, Data: d}
	}),
	TypeDodoSubFailed: dodoSub("revoked", func(w string, d SubscriptionData) Event {
		return SubscriptionRevoked{WireType: w, Data: d}
	}),
}

var clerkDecoders = map[string]decodeFunc{
	TypeClerkUserCreated: clerkUser(func(d ClerkUserData) Event { return UserCreated{Data: d} }),
	TypeClerkUserUpdated: clerkUser(func(d ClerkUserData) Event { return UserUpdated{Data: d} }),
}

// keys whose values are caller-defined and left untouched
var opaqueKeys = map[string]bool{
	"metadata":          true,
	"custom_field_data": true,
	"public_metadata":   true,
	"private_metadata":  true,
	"unsafe_metadata":   true,
}

// NormalizeKeys rewrites camelCase object keys to snake_case throughout raw, so that
// SDK-serialized and raw provider payloads decode into the same structs. When both
// spellings are present the snake_case one wins.
func NormalizeKeys(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeValue(v))
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if sk := SnakeCase(k); sk == k {
				out[k] = normalizeChild(k, val)
			}
		}
		for k, val := range t {
			sk := SnakeCase(k)
			if sk == k {
				continue
			}
			if _, exists := out[sk]; !exists {
				out[sk] = normalizeChild(sk, val)
			}
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

func normalizeChild(key string, v interface{}) interface{} {
	if opaqueKeys[key] {
		return v
	}
	return normalizeValue(v)
}

// SnakeCase converts camelCase or PascalCase to snake_case. Acronym runs are kept
// together, so "customerID" becomes "customer_id".
func SnakeCase(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
