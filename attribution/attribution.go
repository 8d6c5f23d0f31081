// Package attribution records which referral code brought a user in.
//
// An attribution is created at most once per user. Every store implements
// create-if-absent as a single atomic step, so concurrent attempts for the
// same user settle on one winner and every caller sees that winner.
package attribution

import (
	"time"

	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
)

// Source says how a candidate code reached the service.
type Source string

const (
	// SourceAPI is a code submitted by the signed-in user.
	SourceAPI Source = "api"

	// SourceWebhook is a code found in a provider user event.
	SourceWebhook Source = "webhook"
)

// Attribution is the durable association of a referral code with a user.
// It is never modified once stored.
type Attribution struct {
	entity.Entity

	ID           id.ID     `json:"id"`
	UserID       string    `json:"user_id"`
	ReferralCode string    `json:"referral_code"`
	Source       Source    `json:"source"`
	AttributedAt time.Time `json:"attributed_at"`
}

// New builds an unsaved attribution for userID.
func New(userID, code string, source Source, at time.Time) *Attribution {
	at = at.UTC()
	return &Attribution{
		Entity:       entity.At(at),
		ID:           id.NewAttributionID(),
		UserID:       userID,
		ReferralCode: code,
		Source:       source,
		AttributedAt: at,
	}
}
