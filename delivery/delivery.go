// Package delivery keeps receipts for processed webhook deliveries.
//
// The provider redelivers a message under the same delivery id until it
// gets a 2xx. A receipt is written only after a delivery was processed
// successfully, so a failed attempt stays retryable and a repeated success
// is recognised and skipped.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
)

// Outcome is what processing a delivery amounted to.
type Outcome string

const (
	OutcomeAttributed        Outcome = "attributed"
	OutcomeAlreadyAttributed Outcome = "already_attributed"
	OutcomeNoReferral        Outcome = "no_referral"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeDuplicate         Outcome = "duplicate"
)

// ErrReceiptNotFound is returned when no receipt exists for a delivery id.
var ErrReceiptNotFound = errors.New("delivery: receipt not found")

// Receipt records one successfully processed delivery.
type Receipt struct {
	entity.Entity

	ID          id.ID     `json:"id"`
	DeliveryID  string    `json:"delivery_id"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`

	// ExpiresAt is when the receipt may be dropped. Zero keeps it forever.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewReceipt builds an unsaved receipt kept for ttl (zero keeps it forever).
func NewReceipt(deliveryID, eventType, userID string, outcome Outcome, at time.Time, ttl time.Duration) *Receipt {
	at = at.UTC()
	var expires time.Time
	if ttl > 0 {
		expires = at.Add(ttl)
	}
	return &Receipt{
		Entity:      entity.At(at),
		ID:          id.NewReceiptID(),
		DeliveryID:  deliveryID,
		EventType:   eventType,
		UserID:      userID,
		Outcome:     outcome,
		ProcessedAt: at,
		ExpiresAt:   expires,
	}
}

// Expired reports whether the receipt is past its ExpiresAt at now.
func (r *Receipt) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store defines the persistence contract for delivery receipts.
type Store interface {
	// RecordDelivery stores r unless a receipt with the same DeliveryID
	// exists. It reports whether r was written.
	RecordDelivery(ctx context.Context, r *Receipt) (bool, error)

	// GetDelivery returns the receipt for deliveryID or ErrReceiptNotFound.
	GetDelivery(ctx context.Context, deliveryID string) (*Receipt, error)
}
