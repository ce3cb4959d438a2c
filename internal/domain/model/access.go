package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessGrant records whether a user is entitled to a product.
// At most one row exists per (UserID, ProductID).
type AccessGrant struct {
	ID                 string
	UserID             string
	ProviderCustomerID string
	ProductID          string
	BenefitID          *string
	HasAccess          bool
	SubscriptionID     *string // subscription that justified the last write
	OrderID            *string // or the order that did
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewAccessGrant(userID, customerID, productID string, hasAccess bool) *AccessGrant {
	now := time.Now().UTC()
	return &AccessGrant{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ProviderCustomerID: customerID,
		ProductID:          productID,
		HasAccess:          hasAccess,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
