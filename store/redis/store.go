// Package redis implements store.Store on Redis.
//
// Create-if-absent maps directly onto SET NX: the first writer's JSON
// document wins and later writers read it back. Delivery receipts use SET NX
// with a TTL so they age out after the provider's retry horizon.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	referralstore "github.com/xraph/referral/store"
)

// compile-time interface check
var _ referralstore.Store = (*Store)(nil)

// errMissing is the package's not-found marker, mapped to domain errors by callers.
var errMissing = errors.New("redis: key not found")

// Store implements store.Store using Redis.
type Store struct {
	rdb goredis.UniversalClient
}

// New creates a Redis store on a go-redis client. The store owns the client
// and closes it on Close.
func New(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

func (s *Store) getRaw(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if isRedisNil(err) {
		return nil, errMissing
	}
	return raw, err
}

// getEntity retrieves and decodes a JSON document.
func (s *Store) getEntity(ctx context.Context, key string, dest any) error {
	raw, err := s.getRaw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// setEntityNX stores a JSON document only if key does not exist.
func (s *Store) setEntityNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("referral/redis: marshal entity: %w", err)
	}
	return s.rdb.SetNX(ctx, key, raw, ttl).Result()
}
