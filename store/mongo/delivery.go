package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/referral/delivery"
)

// RecordDelivery inserts r. On a duplicate delivery id the existing
// receipt is replaced only if it has expired and the TTL monitor has not
// removed it yet.
func (s *Store) RecordDelivery(ctx context.Context, r *delivery.Receipt) (bool, error) {
	m := toReceiptModel(r)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	col := s.db.Collection(colDeliveries)

	_, err := col.InsertOne(ctx, m)
	if err == nil {
		return true, nil
	}
	if !mongod.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("referral/mongo: record delivery: %w", err)
	}

	// _id is immutable, so the replacement keeps the stored one.
	res, err := col.UpdateOne(ctx,
		bson.M{
			"delivery_id": m.DeliveryID,
			"expires_at":  bson.M{"$lte": now()},
		},
		bson.M{"$set": bson.M{
			"event_type":   m.EventType,
			"user_id":      m.UserID,
			"outcome":      m.Outcome,
			"processed_at": m.ProcessedAt,
			"expires_at":   m.ExpiresAt,
			"updated_at":   m.UpdatedAt,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("referral/mongo: replace expired delivery: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// GetDelivery returns the unexpired receipt for deliveryID.
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (*delivery.Receipt, error) {
	var m receiptModel
	err := s.db.Collection(colDeliveries).FindOne(ctx, bson.M{
		"delivery_id": deliveryID,
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": now()}},
		},
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, delivery.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("referral/mongo: get delivery: %w", err)
	}
	return fromReceiptModel(&m)
}
