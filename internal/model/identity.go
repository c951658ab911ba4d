package model

import "time"

// Identity is a deduplicated contact keyed by hashed email or phone.
// Pointer fields are nullable columns.
type Identity struct {
	ID               string    `json:"id"`
	Email            *string   `json:"email"`
	Phone            *string   `json:"phone"`
	EmailHash        *string   `json:"email_hash"`
	PhoneHash        *string   `json:"phone_hash"`
	UTMSource        *string   `json:"utm_source"`
	UTMMedium        *string   `json:"utm_medium"`
	UTMCampaign      *string   `json:"utm_campaign"`
	FirstTouchSource *string   `json:"first_touch_source"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IdentityPatch holds the fields refreshed on a repeat sighting. Nil fields
// are left untouched.
type IdentityPatch struct {
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	EmailHash *string   `json:"email_hash,omitempty"`
	PhoneHash *string   `json:"phone_hash,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
