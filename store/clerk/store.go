// Package clerk keeps attributions in the identity provider's user
// metadata through the Backend API SDK.
//
// The API has no conditional write, so create-if-absent is a read-check-write
// under a per-user lock. That lock only covers this process: with more than
// one replica use a store whose backend decides the winner.
package clerk

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2/user"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
	"github.com/xraph/referral/event"
	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
	"github.com/xraph/referral/store"
	"github.com/xraph/referral/store/memory"
)

// DefaultTimeout bounds each Backend API request.
const DefaultTimeout = 10 * time.Second

// Public metadata keys written on the user.
const (
	metaReferralCode   = event.KeyReferralCode
	metaReferredAt     = event.KeyReferredAt
	metaReferralSource = "referralSource"
	metaAttributionID  = "referralAttributionId"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on provider user metadata. Delivery receipts
// have no home on the provider and live in an in-process ledger.
type Store struct {
	baseURL  string
	http     *http.Client
	users    *user.Client
	retrier  *retrier
	locks    *keyedMutex
	receipts *memory.Store
}

// Option configures a Store.
type Option func(*Store)

// WithBaseURL points the store at another API root. Empty keeps the SDK
// default.
func WithBaseURL(u string) Option {
	return func(s *Store) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		if c != nil {
			s.http = c
		}
	}
}

// WithRetrySchedule sets the waits between attempts of a failed request.
// An empty schedule disables retries.
func WithRetrySchedule(schedule ...time.Duration) Option {
	return func(s *Store) { s.retrier = newRetrier(schedule) }
}

// New creates a store authenticating with secretKey.
func New(secretKey string, opts ...Option) *Store {
	s := &Store{
		http:     &http.Client{Timeout: DefaultTimeout},
		retrier:  newRetrier(DefaultRetrySchedule),
		locks:    newKeyedMutex(),
		receipts: memory.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.users = newUserClient(secretKey, s.baseURL, s.http)
	return s
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping lists a single user to check the key and connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.receipts.Ping(ctx); err != nil {
		return err
	}
	return s.listOne(ctx)
}

// Close drops idle connections and closes the receipt ledger.
func (s *Store) Close() error {
	s.http.CloseIdleConnections()
	return s.receipts.Close()
}

// ==================== Attribution Store ====================

// CreateAttributionIfAbsent writes a into the user's public metadata unless
// a referral code is already there. A user the provider does not know
// yields attribution.ErrUserNotFound.
func (s *Store) CreateAttributionIfAbsent(ctx context.Context, a *attribution.Attribution) (*attribution.Attribution, bool, error) {
	unlock, err := s.locks.Lock(ctx, a.UserID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	u, err := s.getUser(ctx, a.UserID)
	if err != nil {
		return nil, false, mapError(err, attribution.ErrUserNotFound)
	}
	if existing := fromMetadata(a.UserID, publicMetadata(u)); existing != nil {
		return existing, false, nil
	}

	if err := s.mergePublicMetadata(ctx, a.UserID, toMetadata(a)); err != nil {
		return nil, false, mapError(err, attribution.ErrUserNotFound)
	}
	cp := *a
	return &cp, true, nil
}

// GetAttribution reads the attribution from the user's public metadata.
func (s *Store) GetAttribution(ctx context.Context, userID string) (*attribution.Attribution, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, mapError(err, attribution.ErrNotFound)
	}
	a := fromMetadata(userID, publicMetadata(u))
	if a == nil {
		return nil, attribution.ErrNotFound
	}
	return a, nil
}

// ==================== Delivery Store ====================

// RecordDelivery stores r in the process-local ledger.
func (s *Store) RecordDelivery(ctx context.Context, r *delivery.Receipt) (bool, error) {
	return s.receipts.RecordDelivery(ctx, r)
}

// GetDelivery reads r from the process-local ledger.
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (*delivery.Receipt, error) {
	return s.receipts.GetDelivery(ctx, deliveryID)
}

// PurgeExpiredDeliveries drops expired receipts from the ledger.
func (s *Store) PurgeExpiredDeliveries(ctx context.Context, now time.Time) (int64, error) {
	return s.receipts.PurgeExpiredDeliveries(ctx, now)
}

// mapError turns a missing user into missing and leaves the rest as store
// failures.
func mapError(err, missing error) error {
	if statusOf(err) == http.StatusNotFound {
		return missing
	}
	return err
}

func toMetadata(a *attribution.Attribution) map[string]any {
	return map[string]any{
		metaReferralCode:   a.ReferralCode,
		metaReferredAt:     a.AttributedAt.UTC().Format(time.RFC3339Nano),
		metaReferralSource: string(a.Source),
		metaAttributionID:  a.ID.String(),
	}
}

// fromMetadata rebuilds an attribution from public metadata, or returns nil
// when no referral code is set. Records written by other tools may lack
// everything but the code.
func fromMetadata(userID string, meta map[string]any) *attribution.Attribution {
	code, _ := meta[metaReferralCode].(string)
	if strings.TrimSpace(code) == "" {
		return nil
	}

	a := &attribution.Attribution{
		UserID:       userID,
		ReferralCode: code,
		Source:       attribution.SourceAPI,
	}
	if src, ok := meta[metaReferralSource].(string); ok && src != "" {
		a.Source = attribution.Source(src)
	}
	if raw, ok := meta[metaReferredAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			a.AttributedAt = t.UTC()
			a.Entity = entity.At(a.AttributedAt)
		}
	}
	if raw, ok := meta[metaAttributionID].(string); ok {
		if aid, err := id.ParseAttributionID(raw); err == nil {
			a.ID = aid
		}
	}
	return a
}
