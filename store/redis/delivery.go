package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/referral/delivery"
)

// RecordDelivery writes r with SET NX, expiring at r.ExpiresAt.
func (s *Store) RecordDelivery(ctx context.Context, r *delivery.Receipt) (bool, error) {
	var ttl time.Duration
	if !r.ExpiresAt.IsZero() {
		ttl = time.Until(r.ExpiresAt)
		if ttl < time.Second {
			ttl = time.Second
		}
	}

	ok, err := s.setEntityNX(ctx, deliveryKey(r.DeliveryID), r, ttl)
	if err != nil {
		return false, fmt.Errorf("referral/redis: record delivery: %w", err)
	}
	return ok, nil
}

// GetDelivery returns the receipt for deliveryID.
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (*delivery.Receipt, error) {
	var r delivery.Receipt
	if err := s.getEntity(ctx, deliveryKey(deliveryID), &r); err != nil {
		if errors.Is(err, errMissing) {
			return nil, delivery.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("referral/redis: get delivery: %w", err)
	}
	return &r, nil
}
