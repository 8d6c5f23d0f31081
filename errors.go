package referral

import (
	"errors"

	"github.com/xraph/referral/attribution"
)

// Sentinel errors returned by Service construction and stores.
var (
	// ErrNoStore is returned when a Service is created without a store.
	ErrNoStore = errors.New("referral: store is required")

	// ErrNoSecret is returned when a Service is created without a webhook signing secret.
	ErrNoSecret = errors.New("referral: webhook secret is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("referral: store is closed")

	// ErrStoreUnavailable wraps transient store failures. The provider or
	// client should retry.
	ErrStoreUnavailable = attribution.ErrStoreUnavailable

	// ErrUserNotFound is returned when the backend has no such user. It is
	// final; deliveries for that user are acknowledged as ignored.
	ErrUserNotFound = attribution.ErrUserNotFound

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("referral: migration failed")
)
