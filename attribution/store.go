package attribution

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by GetAttribution when the user has no attribution.
	ErrNotFound = errors.New("attribution: not found")

	// ErrUserNotFound is returned by CreateAttributionIfAbsent when the
	// backend has no record of the user. Retrying cannot succeed.
	ErrUserNotFound = errors.New("attribution: user not found")

	// ErrStoreUnavailable wraps every persistence failure. Callers may retry.
	ErrStoreUnavailable = errors.New("attribution: store unavailable")
)

// Store defines the persistence contract for attributions.
type Store interface {
	// CreateAttributionIfAbsent stores a if no attribution exists for
	// a.UserID. It returns the stored record and whether a was the one
	// written. When another record already exists it is returned unchanged
	// with created == false.
	CreateAttributionIfAbsent(ctx context.Context, a *Attribution) (stored *Attribution, created bool, err error)

	// GetAttribution returns the attribution for userID or ErrNotFound.
	GetAttribution(ctx context.Context, userID string) (*Attribution, error)
}

// Notifier is told about newly created attributions.
type Notifier interface {
	Attributed(ctx context.Context, a *Attribution) error
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "attribution validation: " + e.Field + ": " + e.Message
}
