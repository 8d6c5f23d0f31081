package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/referral/attribution"
)

// CreateAttributionIfAbsent writes a with SET NX. The record is never
// expired or overwritten, so a losing writer can always read the winner.
func (s *Store) CreateAttributionIfAbsent(ctx context.Context, a *attribution.Attribution) (*attribution.Attribution, bool, error) {
	ok, err := s.setEntityNX(ctx, attributionKey(a.UserID), a, 0)
	if err != nil {
		return nil, false, fmt.Errorf("referral/redis: create attribution: %w", err)
	}
	if ok {
		cp := *a
		return &cp, true, nil
	}

	existing, err := s.GetAttribution(ctx, a.UserID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetAttribution returns the attribution for userID.
func (s *Store) GetAttribution(ctx context.Context, userID string) (*attribution.Attribution, error) {
	var a attribution.Attribution
	if err := s.getEntity(ctx, attributionKey(userID), &a); err != nil {
		if errors.Is(err, errMissing) {
			return nil, attribution.ErrNotFound
		}
		return nil, fmt.Errorf("referral/redis: get attribution: %w", err)
	}
	return &a, nil
}
