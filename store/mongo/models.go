package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
)

// --- Attribution models ---

type attributionModel struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	ReferralCode string    `bson:"referral_code"`
	Source       string    `bson:"source"`
	AttributedAt time.Time `bson:"attributed_at"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toAttributionModel(a *attribution.Attribution) *attributionModel {
	return &attributionModel{
		ID:           a.ID.String(),
		UserID:       a.UserID,
		ReferralCode: a.ReferralCode,
		Source:       string(a.Source),
		AttributedAt: a.AttributedAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAttributionModel(m *attributionModel) (*attribution.Attribution, error) {
	aid, err := id.ParseAttributionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse attribution id %q: %w", m.ID, err)
	}
	return &attribution.Attribution{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           aid,
		UserID:       m.UserID,
		ReferralCode: m.ReferralCode,
		Source:       attribution.Source(m.Source),
		AttributedAt: m.AttributedAt.UTC(),
	}, nil
}

// --- Delivery receipt models ---

type receiptModel struct {
	ID          string     `bson:"_id"`
	DeliveryID  string     `bson:"delivery_id"`
	EventType   string     `bson:"event_type"`
	UserID      string     `bson:"user_id,omitempty"`
	Outcome     string     `bson:"outcome"`
	ProcessedAt time.Time  `bson:"processed_at"`
	ExpiresAt   *time.Time `bson:"expires_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func toReceiptModel(r *delivery.Receipt) *receiptModel {
	m := &receiptModel{
		ID:          r.ID.String(),
		DeliveryID:  r.DeliveryID,
		EventType:   r.EventType,
		UserID:      r.UserID,
		Outcome:     string(r.Outcome),
		ProcessedAt: r.ProcessedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if !r.ExpiresAt.IsZero() {
		exp := r.ExpiresAt
		m.ExpiresAt = &exp
	}
	return m
}

func fromReceiptModel(m *receiptModel) (*delivery.Receipt, error) {
	rid, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse receipt id %q: %w", m.ID, err)
	}
	r := &delivery.Receipt{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          rid,
		DeliveryID:  m.DeliveryID,
		EventType:   m.EventType,
		UserID:      m.UserID,
		Outcome:     delivery.Outcome(m.Outcome),
		ProcessedAt: m.ProcessedAt.UTC(),
	}
	if m.ExpiresAt != nil {
		r.ExpiresAt = m.ExpiresAt.UTC()
	}
	return r, nil
}
