package model

import "time"

// Profile mirrors the auth provider's user record, keyed on its id.
type Profile struct {
	ClerkID   string
	Email     string
	FirstName *string
	LastName  *string
	AvatarURL *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
