// Package postgres implements store.Store on PostgreSQL using pgx.
//
// Create-if-absent is a single INSERT ... ON CONFLICT DO NOTHING against a
// unique constraint, so PostgreSQL itself decides the winner.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
	referralstore "github.com/xraph/referral/store"
)

// compile-time interface check
var _ referralstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses connString and builds a pool. Connections are dialed lazily,
// so an unreachable server surfaces on the first Ping or query.
func Open(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("referral/postgres: parse config: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("referral/postgres: create pool: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(_ context.Context) error {
	m, err := s.newMigrator()
	if err != nil {
		return err
	}
	return runUp(m)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Attribution Store ====================

// CreateAttributionIfAbsent inserts a unless the user already has a row,
// then reads back whichever row is stored.
func (s *Store) CreateAttributionIfAbsent(ctx context.Context, a *attribution.Attribution) (*attribution.Attribution, bool, error) {
	created, updated := stamp(a.Entity)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO referral_attributions (`+attributionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING `+attributionColumns,
		a.ID.String(), a.UserID, a.ReferralCode, string(a.Source), a.AttributedAt, created, updated,
	)

	stored, err := scanAttribution(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("referral/postgres: create attribution: %w", err)
	}

	existing, err := s.GetAttribution(ctx, a.UserID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetAttribution returns the attribution for userID.
func (s *Store) GetAttribution(ctx context.Context, userID string) (*attribution.Attribution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attributionColumns+` FROM referral_attributions WHERE user_id = $1`, userID)
	a, err := scanAttribution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, attribution.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("referral/postgres: get attribution: %w", err)
	}
	return a, nil
}

// ==================== Delivery Store ====================

// RecordDelivery inserts r. An existing receipt is only replaced once it
// has expired.
func (s *Store) RecordDelivery(ctx context.Context, r *delivery.Receipt) (bool, error) {
	created, updated := stamp(r.Entity)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO referral_deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (delivery_id) DO UPDATE SET
			id = EXCLUDED.id,
			event_type = EXCLUDED.event_type,
			user_id = EXCLUDED.user_id,
			outcome = EXCLUDED.outcome,
			processed_at = EXCLUDED.processed_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		WHERE referral_deliveries.expires_at IS NOT NULL
		  AND referral_deliveries.expires_at <= NOW()`,
		r.ID.String(), r.DeliveryID, r.EventType, r.UserID, string(r.Outcome),
		r.ProcessedAt, nullTime(r.ExpiresAt), created, updated,
	)
	if err != nil {
		return false, fmt.Errorf("referral/postgres: record delivery: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetDelivery returns the unexpired receipt for deliveryID.
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (*delivery.Receipt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+` FROM referral_deliveries
		WHERE delivery_id = $1 AND (expires_at IS NULL OR expires_at > NOW())`, deliveryID)
	r, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, delivery.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("referral/postgres: get delivery: %w", err)
	}
	return r, nil
}

// PurgeExpiredDeliveries deletes receipts that expired before now and
// reports how many were removed.
func (s *Store) PurgeExpiredDeliveries(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM referral_deliveries WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("referral/postgres: purge deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}
