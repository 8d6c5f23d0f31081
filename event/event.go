// Package event defines the typed provider events produced by the ingestion gate.
package event

import (
	"encoding/json"
	"time"
)

// Provider event types handled by the referral service.
const (
	TypeUserCreated    = "user.created"
	TypeUserUpdated    = "user.updated"
	TypeUserDeleted    = "user.deleted"
	TypeSessionCreated = "session.created"
)

// Metadata keys that may carry a referral code, and the key recording when
// the code was attributed.
const (
	KeyReferralCode = "referralCode"
	KeyRefCode      = "refCode"
	KeyReferredAt   = "referredAt"
)

// Event is a verified webhook delivery.
type Event struct {
	// DeliveryID is the provider's message id. Redeliveries reuse it.
	DeliveryID string `json:"delivery_id"`

	// Type is the provider event type (e.g. "user.created").
	Type string `json:"type"`

	// Timestamp is the signed delivery time.
	Timestamp time.Time `json:"timestamp"`

	// ReceivedAt is when the gate accepted the delivery.
	ReceivedAt time.Time `json:"received_at"`

	// Data is the raw "data" object of the envelope.
	Data json.RawMessage `json:"data"`

	// User is set for user.* events.
	User *UserData `json:"user,omitempty"`

	// Known is false for types the catalog does not describe. Such events
	// are accepted and ignored.
	Known bool `json:"known"`
}

// Envelope is the wire shape of a provider delivery body.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserData is the subset of the provider user object the service reads.
type UserData struct {
	ID             string         `json:"id"`
	PublicMetadata map[string]any `json:"public_metadata,omitempty"`
	UnsafeMetadata map[string]any `json:"unsafe_metadata,omitempty"`
	Deleted        bool           `json:"deleted,omitempty"`
}

// ReferralCode returns the referral code carried by the user, or "".
//
// Sign-up forms write the code to unsafe metadata; attributions written
// through the provider API live in public metadata.
func (u *UserData) ReferralCode() string {
	if u == nil {
		return ""
	}
	candidates := []struct {
		bag map[string]any
		key string
	}{
		{u.UnsafeMetadata, KeyReferralCode},
		{u.PublicMetadata, KeyReferralCode},
		{u.UnsafeMetadata, KeyRefCode},
	}
	for _, c := range candidates {
		if s, ok := c.bag[c.key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// IsUserEvent reports whether t describes a user lifecycle change.
func IsUserEvent(t string) bool {
	switch t {
	case TypeUserCreated, TypeUserUpdated, TypeUserDeleted:
		return true
	default:
		return false
	}
}
