package clerk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	clerksdk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

// newUserClient builds the SDK users client for the store's key and endpoint.
// An empty baseURL keeps the SDK default.
func newUserClient(secretKey, baseURL string, hc *http.Client) *user.Client {
	backend := clerksdk.BackendConfig{
		HTTPClient: hc,
		Key:        clerksdk.String(secretKey),
	}
	if baseURL != "" {
		backend.URL = clerksdk.String(baseURL)
	}
	return user.NewClient(&clerksdk.ClientConfig{BackendConfig: backend})
}

// statusOf returns the HTTP status of a Backend API error, or 0 when err did
// not come from an API response.
func statusOf(err error) int {
	var apiErr *clerksdk.APIErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	return 0
}

func wrap(op string, err error) error {
	if code := statusOf(err); code != 0 {
		return fmt.Errorf("clerk: %s: status %d: %w", op, code, err)
	}
	return fmt.Errorf("clerk: %s: %w", op, err)
}

// call runs op, retrying transient failures on the store's schedule.
func (s *Store) call(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if s.retrier.decide(err, attempt) != retry || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.retrier.delay(attempt)):
		}
	}
}

func (s *Store) getUser(ctx context.Context, userID string) (*clerksdk.User, error) {
	var u *clerksdk.User
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, wrap("get user "+userID, err)
	}
	return u, nil
}

// mergePublicMetadata deep-merges fields into the user's public metadata.
func (s *Store) mergePublicMetadata(ctx context.Context, userID string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("clerk: marshal metadata: %w", err)
	}
	patch := json.RawMessage(raw)
	params := &user.UpdateMetadataParams{PublicMetadata: &patch}

	err = s.call(ctx, func(ctx context.Context) error {
		_, err := s.users.UpdateMetadata(ctx, userID, params)
		return err
	})
	if err != nil {
		return wrap("update metadata "+userID, err)
	}
	return nil
}

func (s *Store) listOne(ctx context.Context) error {
	limit := int64(1)
	params := &user.ListParams{}
	params.Limit = &limit
	err := s.call(ctx, func(ctx context.Context) error {
		_, err := s.users.List(ctx, params)
		return err
	})
	if err != nil {
		return wrap("list users", err)
	}
	return nil
}

// publicMetadata decodes the user's public metadata. A user without any
// yields an empty map.
func publicMetadata(u *clerksdk.User) map[string]any {
	m := map[string]any{}
	if len(u.PublicMetadata) == 0 {
		return m
	}
	if err := json.Unmarshal(u.PublicMetadata, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
