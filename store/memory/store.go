// Package memory provides an in-memory Store for tests and single-process
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/referral"
	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
	referralstore "github.com/xraph/referral/store"
)

// compile-time interface check.
var _ referralstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	attributions map[string]*attribution.Attribution // keyed by user ID
	receipts     map[string]*delivery.Receipt        // keyed by delivery ID

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		attributions: make(map[string]*attribution.Attribution),
		receipts:     make(map[string]*delivery.Receipt),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return referral.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// attribution.Store
// ──────────────────────────────────────────────────

// CreateAttributionIfAbsent stores a unless the user already has an attribution.
func (s *Store) CreateAttributionIfAbsent(_ context.Context, a *attribution.Attribution) (*attribution.Attribution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, referral.ErrStoreClosed
	}
	if existing, ok := s.attributions[a.UserID]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *a
	s.attributions[a.UserID] = &cp
	out := cp
	return &out, true, nil
}

// GetAttribution returns the attribution for userID.
func (s *Store) GetAttribution(_ context.Context, userID string) (*attribution.Attribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, referral.ErrStoreClosed
	}
	a, ok := s.attributions[userID]
	if !ok {
		return nil, attribution.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// RecordDelivery stores r unless a live receipt for the delivery exists.
func (s *Store) RecordDelivery(_ context.Context, r *delivery.Receipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, referral.ErrStoreClosed
	}
	if existing, ok := s.receipts[r.DeliveryID]; ok && !existing.Expired(time.Now()) {
		return false, nil
	}
	cp := *r
	s.receipts[r.DeliveryID] = &cp
	return true, nil
}

// GetDelivery returns the receipt for deliveryID.
func (s *Store) GetDelivery(_ context.Context, deliveryID string) (*delivery.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, referral.ErrStoreClosed
	}
	r, ok := s.receipts[deliveryID]
	if !ok || r.Expired(time.Now()) {
		return nil, delivery.ErrReceiptNotFound
	}
	cp := *r
	return &cp, nil
}

// PurgeExpiredDeliveries drops receipts expired at now.
func (s *Store) PurgeExpiredDeliveries(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, referral.ErrStoreClosed
	}
	var n int64
	for k, r := range s.receipts {
		if r.Expired(now) {
			delete(s.receipts, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored attributions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attributions)
}

// Receipts returns the number of stored delivery receipts, expired or not.
func (s *Store) Receipts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}
