package attribution_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingStore struct{ err error }

func (f failingStore) CreateAttributionIfAbsent(context.Context, *attribution.Attribution) (*attribution.Attribution, bool, error) {
	return nil, false, f.err
}

func (f failingStore) GetAttribution(context.Context, string) (*attribution.Attribution, error) {
	return nil, f.err
}

// slowStore blocks until the call context is done.
type slowStore struct{}

func (slowStore) CreateAttributionIfAbsent(ctx context.Context, _ *attribution.Attribution) (*attribution.Attribution, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (slowStore) GetAttribution(ctx context.Context, _ string) (*attribution.Attribution, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []*attribution.Attribution
	err   error
}

func (n *recordingNotifier) Attributed(_ context.Context, a *attribution.Attribution) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func TestAttributeFirstWriteWins(t *testing.T) {
	svc := attribution.NewService(memory.New(), quietLogger())
	ctx := context.Background()
	userID := "user_" + gofakeit.UUID()

	a, created, err := svc.Attribute(ctx, userID, "ABC123", attribution.SourceAPI)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ABC123", a.ReferralCode)
	assert.Equal(t, attribution.SourceAPI, a.Source)

	b, created, err := svc.Attribute(ctx, userID, "XYZ999", attribution.SourceWebhook)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ABC123", b.ReferralCode)
	assert.Equal(t, a.ID.String(), b.ID.String())

	got, err := svc.Lookup(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ABC123", got.ReferralCode)
}

func TestAttributeValidation(t *testing.T) {
	svc := attribution.NewService(memory.New(), quietLogger())

	tests := []struct {
		name   string
		userID string
		code   string
		field  string
	}{
		{"missing user", "", "ABC", "user_id"},
		{"missing code", "user_1", "", "referral_code"},
		{"blank code", "user_1", "   ", "referral_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Attribute(context.Background(), tt.userID, tt.code, attribution.SourceAPI)
			var verr *attribution.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAttributeStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	n := &recordingNotifier{}
	svc := attribution.NewService(failingStore{err: boom}, quietLogger(), attribution.WithNotifier(n))

	_, created, err := svc.Attribute(context.Background(), "user_1", "ABC", attribution.SourceWebhook)
	assert.False(t, created)
	assert.ErrorIs(t, err, attribution.ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n.count())

	_, err = svc.Lookup(context.Background(), "user_1")
	assert.ErrorIs(t, err, attribution.ErrStoreUnavailable)
}

func TestAttributeTimeout(t *testing.T) {
	svc := attribution.NewService(slowStore{}, quietLogger(), attribution.WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, _, err := svc.Attribute(context.Background(), "user_1", "ABC", attribution.SourceAPI)
	assert.ErrorIs(t, err, attribution.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotifierOnlyOnCreate(t *testing.T) {
	n := &recordingNotifier{}
	svc := attribution.NewService(memory.New(), quietLogger(), attribution.WithNotifier(n))
	ctx := context.Background()

	_, _, err := svc.Attribute(ctx, "user_1", "ABC", attribution.SourceAPI)
	require.NoError(t, err)
	_, _, err = svc.Attribute(ctx, "user_1", "DEF", attribution.SourceAPI)
	require.NoError(t, err)

	require.Equal(t, 1, n.count())
	assert.Equal(t, "ABC", n.calls[0].ReferralCode)
}

func TestNotifierFailureDoesNotFailAttribution(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	svc := attribution.NewService(memory.New(), quietLogger(), attribution.WithNotifier(n))

	_, created, err := svc.Attribute(context.Background(), "user_1", "ABC", attribution.SourceAPI)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, n.count())
}

func TestLookupAbsent(t *testing.T) {
	svc := attribution.NewService(memory.New(), quietLogger())

	a, err := svc.Lookup(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestAttributeUsesClock(t *testing.T) {
	fixed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	svc := attribution.NewService(memory.New(), quietLogger(),
		attribution.WithClock(func() time.Time { return fixed }))

	a, _, err := svc.Attribute(context.Background(), "user_1", "ABC", attribution.SourceAPI)
	require.NoError(t, err)
	assert.True(t, a.AttributedAt.Equal(fixed))
}

func TestConcurrentAttributeSingleWinner(t *testing.T) {
	svc := attribution.NewService(memory.New(), quietLogger())
	const n = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	codes := map[string]struct{}{}
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, created, err := svc.Attribute(context.Background(), "racer", gofakeit.LetterN(8), attribution.SourceAPI)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			codes[a.ReferralCode] = struct{}{}
			if created {
				winners++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Len(t, codes, 1)
}
