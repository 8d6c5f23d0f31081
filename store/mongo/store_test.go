package mongo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("MongoDB container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	s, err := Open(fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "referral_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestAttributionFirstWriteWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := attribution.New("user_1", "ABC123", attribution.SourceAPI, time.Now())
	stored, created, err := s.CreateAttributionIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID.String(), stored.ID.String())

	stored, created, err = s.CreateAttributionIfAbsent(ctx,
		attribution.New("user_1", "XYZ999", attribution.SourceWebhook, time.Now()))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ABC123", stored.ReferralCode)
	assert.Equal(t, first.ID.String(), stored.ID.String())

	_, err = s.GetAttribution(ctx, "missing")
	assert.ErrorIs(t, err, attribution.ErrNotFound)
}

func TestConcurrentAttribution(t *testing.T) {
	s := setupTestStore(t)
	const n = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	ids := map[string]struct{}{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, created, err := s.CreateAttributionIfAbsent(context.Background(),
				attribution.New("racer", fmt.Sprintf("CODE-%d", i), attribution.SourceAPI, time.Now()))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[a.ID.String()] = struct{}{}
			if created {
				winners++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Len(t, ids, 1)
}

func TestDeliveryReceipts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := delivery.NewReceipt("msg_1", "user.created", "user_1", delivery.OutcomeAttributed, time.Now(), time.Hour)
	ok, err := s.RecordDelivery(ctx, r)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RecordDelivery(ctx, r)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetDelivery(ctx, "msg_1")
	require.NoError(t, err)
	assert.Equal(t, delivery.OutcomeAttributed, got.Outcome)

	old := delivery.NewReceipt("msg_old", "user.created", "", delivery.OutcomeIgnored, time.Now().Add(-2*time.Hour), time.Hour)
	ok, err = s.RecordDelivery(ctx, old)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetDelivery(ctx, "msg_old")
	assert.ErrorIs(t, err, delivery.ErrReceiptNotFound)

	ok, err = s.RecordDelivery(ctx,
		delivery.NewReceipt("msg_old", "user.created", "", delivery.OutcomeIgnored, time.Now(), time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}
