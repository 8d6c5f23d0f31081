// Package store defines the composite Store interface for referral persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so a backend is one type satisfying both.
package store

import (
	"context"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
)

// Store is the aggregate persistence interface.
type Store interface {
	attribution.Store
	delivery.Store

	// Migrate prepares schemas, tables or indexes.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
