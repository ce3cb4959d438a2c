package model

import (
	"strings"
	"time"
)

type UserSubscriptionStatus string

const (
	UserStatusFree     UserSubscriptionStatus = "free"
	UserStatusActive   UserSubscriptionStatus = "active"
	UserStatusCanceled UserSubscriptionStatus = "canceled"
	UserStatusRevoked  UserSubscriptionStatus = "revoked"
)

// User is the local account record owned by the auth subsystem.
// Webhook handlers only touch the billing columns.
type User struct {
	ID                 string
	Email              string
	Name               string
	ProviderCustomerID *string // polar or dodo customer id, nil until linked
	SubscriptionStatus UserSubscriptionStatus
	SubscriptionEndsAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NormalizeEmail lowercases and trims an address for equality lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserStatusFor maps a stored provider subscription status onto the user's coarse status.
func UserStatusFor(s SubscriptionStatus) UserSubscriptionStatus {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return UserStatusActive
	case SubscriptionStatusCanceled:
		return UserStatusCanceled
	case SubscriptionStatusRevoked:
		return UserStatusRevoked
	default:
		return UserStatusFree
	}
}
