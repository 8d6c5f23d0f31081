// Package notify tells other systems about new attributions.
package notify

import (
	"context"
	"time"

	"github.com/xraph/referral/attribution"
)

// compile-time interface checks
var (
	_ attribution.Notifier = Nop{}
	_ attribution.Notifier = (*NATS)(nil)
)

// Nop drops every notification.
type Nop struct{}

// Attributed does nothing.
func (Nop) Attributed(context.Context, *attribution.Attribution) error { return nil }

// Message is the payload published for a new attribution.
type Message struct {
	AttributionID string    `json:"attribution_id"`
	UserID        string    `json:"user_id"`
	ReferralCode  string    `json:"referral_code"`
	Source        string    `json:"source"`
	AttributedAt  time.Time `json:"attributed_at"`
}

// NewMessage builds the payload for a.
func NewMessage(a *attribution.Attribution) Message {
	return Message{
		AttributionID: a.ID.String(),
		UserID:        a.UserID,
		ReferralCode:  a.ReferralCode,
		Source:        string(a.Source),
		AttributedAt:  a.AttributedAt,
	}
}
