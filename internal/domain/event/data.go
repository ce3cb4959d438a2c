package event

import (
	"strings"
)

// CustomerRef is everything an event tells us about who the customer is.
type CustomerRef struct {
	ExternalID string
	CustomerID string
	Email      string
	Name       string
}

func (r CustomerRef) IsZero() bool {
	return r.ExternalID == "" && r.CustomerID == "" && r.Email == ""
}

type Customer struct {
	ID         string `json:"id"`
	Email      string `json:"email" validate:"omitempty,email"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id"`
}

type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Price struct {
	ID string `json:"id"`
}

type CheckoutData struct {
	ID                 string                 `json:"id" validate:"required"`
	Status             string                 `json:"status"`
	CustomerID         string                 `json:"customer_id"`
	CustomerEmail      string                 `json:"customer_email"`
	CustomerName       string                 `json:"customer_name"`
	CustomerExternalID string                 `json:"customer_external_id"`
	ExternalCustomerID string                 `json:"external_customer_id"`
	ProductID          string                 `json:"product_id"`
	Metadata           map[string]interface{} `json:"metadata"`
	CreatedAt          Time                   `json:"created_at"`
}

func (c CheckoutData) CustomerRef() CustomerRef {
	ext := c.CustomerExternalID
	if ext == "" {
		ext = c.ExternalCustomerID
	}
	if ext == "" {
		ext = metadataUserID(c.Metadata)
	}
	return CustomerRef{ExternalID: ext, CustomerID: c.CustomerID, Email: c.CustomerEmail, Name: c.CustomerName}
}

type OrderData struct {
	ID             string                 `json:"id" validate:"required"`
	CheckoutID     string                 `json:"checkout_id"`
	Status         string                 `json:"status"`
	TotalAmount    int64                  `json:"total_amount"`
	Amount         int64                  `json:"amount"`
	Currency       string                 `json:"currency"`
	ProductID      string                 `json:"product_id"`
	Product        Product                `json:"product"`
	CustomerID     string                 `json:"customer_id"`
	Customer       Customer               `json:"customer"`
	SubscriptionID string                 `json:"subscription_id"`
	Subscription   *SubscriptionData      `json:"subscription"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAt      Time                   `json:"created_at"`
}

func (o OrderData) CustomerRef() CustomerRef {
	return polarRef(o.Customer, o.CustomerID, o.Metadata)
}

// ProductRef prefers the embedded product object over the bare id.
func (o OrderData) ProductRef() Product {
	p := o.Product
	if p.ID == "" {
		p.ID = o.ProductID
	}
	return p
}

// Total is the charged amount in minor units.
func (o OrderData) Total() int64 {
	if o.TotalAmount != 0 {
		return o.TotalAmount
	}
	return o.Amount
}

func (o OrderData) SubscriptionRef() string {
	if o.SubscriptionID != "" {
		return o.SubscriptionID
	}
	if o.Subscription != nil {
		return o.Subscription.ID
	}
	return ""
}

type SubscriptionData struct {
	ID                 string                 `json:"id" validate:"required"`
	Status             string                 `json:"status"`
	CurrentPeriodStart Time                   `json:"current_period_start"`
	CurrentPeriodEnd   Time                   `json:"current_period_end"`
	CancelAtPeriodEnd  bool                   `json:"cancel_at_period_end"`
	CanceledAt         Time                   `json:"canceled_at"`
	EndedAt            Time                   `json:"ended_at"`
	CustomerID         string                 `json:"customer_id"`
	Customer           Customer               `json:"customer"`
	ProductID          string                 `json:"product_id"`
	Product            Product                `json:"product"`
	PriceID            string                 `json:"price_id"`
	Prices             []Price                `json:"prices"`
	Metadata           map[string]interface{} `json:"metadata"`
	CreatedAt          Time                   `json:"created_at"`
}

func (s SubscriptionData) CustomerRef() CustomerRef {
	return polarRef(s.Customer, s.CustomerID, s.Metadata)
}

func (s SubscriptionData) ProductRef() Product {
	p := s.Product
	if p.ID == "" {
		p.ID = s.ProductID
	}
	return p
}

func (s SubscriptionData) PriceRef() string {
	if s.PriceID != "" {
		return s.PriceID
	}
	if len(s.Prices) > 0 {
		return s.Prices[0].ID
	}
	return ""
}

type CustomerData struct {
	ID         string                 `json:"id" validate:"required"`
	Email      string                 `json:"email" validate:"omitempty,email"`
	Name       string                 `json:"name"`
	ExternalID string                 `json:"external_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (c CustomerData) CustomerRef() CustomerRef {
	return polarRef(Customer{ID: c.ID, Email: c.Email, Name: c.Name, ExternalID: c.ExternalID}, c.ID, c.Metadata)
}

// DodoCustomer is the customer object embedded in Dodo Payments payloads.
type DodoCustomer struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email" validate:"omitempty,email"`
	Name       string `json:"name"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PaymentData struct {
	PaymentID      string                 `json:"payment_id" validate:"required"`
	Status         string                 `json:"status"`
	Customer       DodoCustomer           `json:"customer"`
	TotalAmount    int64                  `json:"total_amount"`
	Currency       string                 `json:"currency"`
	SubscriptionID string                 `json:"subscription_id"`
	ProductCart    []CartItem             `json:"product_cart"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAt      Time                   `json:"created_at"`
}

func (p PaymentData) CustomerRef() CustomerRef {
	return CustomerRef{
		ExternalID: metadataUserID(p.Metadata),
		CustomerID: p.Customer.CustomerID,
		Email:      p.Customer.Email,
		Name:       p.Customer.Name,
	}
}

// ProductIDs lists the distinct products in the payment's cart.
func (p PaymentData) ProductIDs() []string {
	seen := make(map[string]struct{}, len(p.ProductCart))
	out := make([]string, 0, len(p.ProductCart))
	for _, it := range p.ProductCart {
		if it.ProductID == "" {
			continue
		}
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		out = append(out, it.ProductID)
	}
	return out
}

type RefundData struct {
	RefundID   string       `json:"refund_id" validate:"required"`
	PaymentID  string       `json:"payment_id"`
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	Customer   DodoCustomer `json:"customer"`
	BusinessID string       `json:"business_id"`
}

// dodoSubscription is the Dodo shape; it is converted to SubscriptionData on decode.
type dodoSubscription struct {
	SubscriptionID          string                 `json:"subscription_id" validate:"required"`
	Status                  string                 `json:"status"`
	ProductID               string                 `json:"product_id"`
	Customer                DodoCustomer           `json:"customer"`
	Metadata                map[string]interface{} `json:"metadata"`
	PreviousBillingDate     Time                   `json:"previous_billing_date"`
	NextBillingDate         Time                   `json:"next_billing_date"`
	CancelAtNextBillingDate bool                   `json:"cancel_at_next_billing_date"`
	CancelledAt             Time                   `json:"cancelled_at"`
	CreatedAt               Time                   `json:"created_at"`
}

func (d dodoSubscription) normalize(status string) SubscriptionData {
	if status == "" {
		status = d.Status
	}
	return SubscriptionData{
		ID:                 d.SubscriptionID,
		Status:             status,
		CurrentPeriodStart: d.PreviousBillingDate,
		CurrentPeriodEnd:   d.NextBillingDate,
		CancelAtPeriodEnd:  d.CancelAtNextBillingDate,
		CanceledAt:         d.CancelledAt,
		CustomerID:         d.Customer.CustomerID,
		Customer:           Customer{ID: d.Customer.CustomerID, Email: d.Customer.Email, Name: d.Customer.Name},
		ProductID:          d.ProductID,
		Metadata:           d.Metadata,
		CreatedAt:          d.CreatedAt,
	}
}

type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// ClerkUserData is the user object delivered by Clerk user.* events.
type ClerkUserData struct {
	ID                    string         `json:"id" validate:"required"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              *string        `json:"image_url"`
	ExternalID            string         `json:"external_id"`
}

// PrimaryEmail returns the address flagged as primary, else the first one.
func (u ClerkUserData) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID != "" && e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u ClerkUserData) DisplayName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	return strings.Join(parts, " ")
}

func polarRef(c Customer, customerID string, md map[string]interface{}) CustomerRef {
	ref := CustomerRef{ExternalID: c.ExternalID, CustomerID: c.ID, Email: c.Email, Name: c.Name}
	if ref.CustomerID == "" {
		ref.CustomerID = customerID
	}
	if ref.ExternalID == "" {
		ref.ExternalID = metadataUserID(md)
	}
	return ref
}

// metadataUserID reads the local user id a checkout may have stashed in metadata.
func metadataUserID(md map[string]interface{}) string {
	for _, k := range []string{"user_id", "userId", "clerk_id", "clerkId"} {
		if v, ok := md[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
