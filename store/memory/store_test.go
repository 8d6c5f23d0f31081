package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/referral"
	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
)

func ctx() context.Context { return context.Background() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, referral.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if _, _, err := s.CreateAttributionIfAbsent(ctx(), attribution.New("u", "c", attribution.SourceAPI, time.Now())); !errors.Is(err, referral.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed on write, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// attribution.Store
// ──────────────────────────────────────────────────

func TestCreateAttributionIfAbsent(t *testing.T) {
	s := New()

	first := attribution.New("user_1", "ABC123", attribution.SourceAPI, time.Now())
	stored, created, err := s.CreateAttributionIfAbsent(ctx(), first)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first write should create")
	}
	if stored.ReferralCode != "ABC123" {
		t.Fatalf("expected ABC123, got %q", stored.ReferralCode)
	}

	second := attribution.New("user_1", "XYZ999", attribution.SourceWebhook, time.Now())
	stored, created, err = s.CreateAttributionIfAbsent(ctx(), second)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second write must not create")
	}
	if stored.ReferralCode != "ABC123" || stored.ID.String() != first.ID.String() {
		t.Fatalf("expected the first record back, got %+v", stored)
	}

	got, err := s.GetAttribution(ctx(), "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ReferralCode != "ABC123" {
		t.Fatalf("stored code changed to %q", got.ReferralCode)
	}
}

func TestGetAttributionNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetAttribution(ctx(), "nobody"); !errors.Is(err, attribution.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	stored, _, _ := s.CreateAttributionIfAbsent(ctx(), attribution.New("user_2", "ONE", attribution.SourceAPI, time.Now()))
	stored.ReferralCode = "MUTATED"

	got, _ := s.GetAttribution(ctx(), "user_2")
	if got.ReferralCode != "ONE" {
		t.Fatalf("store leaked internal pointer: %q", got.ReferralCode)
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	s := New()
	const n = 64

	var wg sync.WaitGroup
	results := make([]*attribution.Attribution, n)
	createdCount := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := attribution.New("racer", string(rune('A'+i%26))+"-code", attribution.SourceAPI, time.Now())
			stored, created, err := s.CreateAttributionIfAbsent(ctx(), a)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = stored
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, c := range createdCount {
		if c {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one creator, got %d", winners)
	}
	for i, r := range results {
		if r.ID.String() != results[0].ID.String() {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Len())
	}
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

func TestRecordDelivery(t *testing.T) {
	s := New()
	r := delivery.NewReceipt("msg_1", "user.created", "user_1", delivery.OutcomeAttributed, time.Now(), time.Hour)

	ok, err := s.RecordDelivery(ctx(), r)
	if err != nil || !ok {
		t.Fatalf("first record: ok=%v err=%v", ok, err)
	}
	ok, err = s.RecordDelivery(ctx(), r)
	if err != nil || ok {
		t.Fatalf("duplicate record: ok=%v err=%v", ok, err)
	}

	got, err := s.GetDelivery(ctx(), "msg_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != delivery.OutcomeAttributed {
		t.Fatalf("unexpected outcome %q", got.Outcome)
	}

	if _, err := s.GetDelivery(ctx(), "msg_2"); !errors.Is(err, delivery.ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}
}

func TestRecordDeliveryReplacesExpired(t *testing.T) {
	s := New()
	old := delivery.NewReceipt("msg_old", "user.created", "", delivery.OutcomeIgnored, time.Now().Add(-2*time.Hour), time.Hour)

	if ok, _ := s.RecordDelivery(ctx(), old); !ok {
		t.Fatal("expected first record")
	}
	fresh := delivery.NewReceipt("msg_old", "user.created", "", delivery.OutcomeIgnored, time.Now(), time.Hour)
	if ok, _ := s.RecordDelivery(ctx(), fresh); !ok {
		t.Fatal("an expired receipt should be replaceable")
	}
}

func TestPurgeExpiredDeliveries(t *testing.T) {
	s := New()
	now := time.Now()
	_, _ = s.RecordDelivery(ctx(), delivery.NewReceipt("old", "user.created", "", delivery.OutcomeIgnored, now.Add(-2*time.Hour), time.Hour))
	_, _ = s.RecordDelivery(ctx(), delivery.NewReceipt("live", "user.created", "", delivery.OutcomeIgnored, now, time.Hour))
	_, _ = s.RecordDelivery(ctx(), delivery.NewReceipt("forever", "user.created", "", delivery.OutcomeIgnored, now, 0))

	if _, err := s.GetDelivery(ctx(), "old"); !errors.Is(err, delivery.ErrReceiptNotFound) {
		t.Fatalf("expired receipt should read as missing, got %v", err)
	}

	n, err := s.PurgeExpiredDeliveries(ctx(), now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	for _, key := range []string{"live", "forever"} {
		if _, err := s.GetDelivery(ctx(), key); err != nil {
			t.Fatalf("%s: %v", key, err)
		}
	}
}
