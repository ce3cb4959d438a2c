package model

import (
	"strings"
	"time"
)

// SubscriptionStatus mirrors the provider vocabulary verbatim.
type SubscriptionStatus string

const (
	SubscriptionStatusCreated    SubscriptionStatus = "created"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusRevoked    SubscriptionStatus = "revoked"
)

// ParseSubscriptionStatus lowercases the provider string. Unknown values pass through
// unchanged; an empty value falls back to def.
func ParseSubscriptionStatus(s string, def SubscriptionStatus) SubscriptionStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	if s == "cancelled" {
		return SubscriptionStatusCanceled
	}
	return SubscriptionStatus(s)
}

// Subscription is one row per provider subscription id.
type Subscription struct {
	PolarSubscriptionID string // unique
	UserID              string // clerk_id column
	ProductID           string
	PriceID             string
	Status              SubscriptionStatus
	CurrentPeriodStart  *time.Time
	CurrentPeriodEnd    *time.Time
	CancelAtPeriodEnd   bool
	CustomerEmail       string
	CustomerName        *string
	Metadata            map[string]interface{}
	CanceledAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MergeSubscriptionStatus decides what is stored when incoming arrives for a row that
// currently holds stored. Revocation is terminal: once revoked, a late created/active
// delivery for the same subscription id does not resurrect it.
func MergeSubscriptionStatus(stored, incoming SubscriptionStatus) SubscriptionStatus {
	if stored == SubscriptionStatusRevoked {
		return stored
	}
	return incoming
}

// GrantsAccess reports whether a subscription in status s entitles its owner to the product at now.
// A canceled subscription keeps access until the end of the paid period.
func GrantsAccess(s SubscriptionStatus, periodEnd *time.Time, now time.Time) bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	case SubscriptionStatusCanceled:
		return periodEnd != nil && periodEnd.After(now)
	default:
		return false
	}
}

// AccessEffect says what a subscription in status s does to its access grant and to
// the owner's coarse status. ok is false for pending states (created, incomplete,
// past_due) which leave both untouched, so an early or stalled subscription event
// cannot undo access granted by a paid order.
func AccessEffect(s SubscriptionStatus, periodEnd *time.Time, now time.Time) (hasAccess bool, ok bool) {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusCanceled, SubscriptionStatusRevoked:
		return GrantsAccess(s, periodEnd, now), true
	default:
		return false, false
	}
}
