package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/referral/attribution"
)

// CreateAttributionIfAbsent upserts a with $setOnInsert and returns the
// document left in place. a was written when the returned _id is a's.
func (s *Store) CreateAttributionIfAbsent(ctx context.Context, a *attribution.Attribution) (*attribution.Attribution, bool, error) {
	m := toAttributionModel(a)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}

	stored, err := s.upsertAttribution(ctx, m)
	if mongod.IsDuplicateKeyError(err) {
		// Two upserts raced on the unique index; the loser retries and
		// now matches the winner.
		stored, err = s.upsertAttribution(ctx, m)
	}
	if err != nil {
		return nil, false, fmt.Errorf("referral/mongo: create attribution: %w", err)
	}

	out, err := fromAttributionModel(stored)
	if err != nil {
		return nil, false, fmt.Errorf("referral/mongo: create attribution: %w", err)
	}
	return out, stored.ID == m.ID, nil
}

func (s *Store) upsertAttribution(ctx context.Context, m *attributionModel) (*attributionModel, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored attributionModel
	err := s.db.Collection(colAttributions).FindOneAndUpdate(ctx,
		bson.M{"user_id": m.UserID},
		bson.M{"$setOnInsert": m},
		opts,
	).Decode(&stored)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetAttribution returns the attribution for userID.
func (s *Store) GetAttribution(ctx context.Context, userID string) (*attribution.Attribution, error) {
	var m attributionModel
	err := s.db.Collection(colAttributions).FindOne(ctx, bson.M{"user_id": userID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, attribution.ErrNotFound
		}
		return nil, fmt.Errorf("referral/mongo: get attribution: %w", err)
	}
	return fromAttributionModel(&m)
}
