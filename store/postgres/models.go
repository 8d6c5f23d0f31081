package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
)

const attributionColumns = `id, user_id, referral_code, source, attributed_at, created_at, updated_at`

const deliveryColumns = `id, delivery_id, event_type, user_id, outcome, processed_at, expires_at, created_at, updated_at`

func scanAttribution(row pgx.Row) (*attribution.Attribution, error) {
	var (
		rawID  string
		source string
		a      attribution.Attribution
	)
	if err := row.Scan(&rawID, &a.UserID, &a.ReferralCode, &source,
		&a.AttributedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	aid, err := id.ParseAttributionID(rawID)
	if err != nil {
		return nil, err
	}
	a.ID = aid
	a.Source = attribution.Source(source)
	a.AttributedAt = a.AttributedAt.UTC()
	return &a, nil
}

func scanReceipt(row pgx.Row) (*delivery.Receipt, error) {
	var (
		rawID   string
		outcome string
		expires *time.Time
		r       delivery.Receipt
	)
	if err := row.Scan(&rawID, &r.DeliveryID, &r.EventType, &r.UserID, &outcome,
		&r.ProcessedAt, &expires, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	rid, err := id.ParseReceiptID(rawID)
	if err != nil {
		return nil, err
	}
	r.ID = rid
	r.Outcome = delivery.Outcome(outcome)
	if expires != nil {
		r.ExpiresAt = expires.UTC()
	}
	return &r, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func stamp(e entity.Entity) (time.Time, time.Time) {
	if e.CreatedAt.IsZero() {
		now := time.Now().UTC()
		return now, now
	}
	return e.CreatedAt, e.UpdatedAt
}
