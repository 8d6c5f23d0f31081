package referral_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/referral"
	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/delivery"
	"github.com/xraph/referral/ingest"
	"github.com/xraph/referral/internal/logging"
	"github.com/xraph/referral/store/memory"
)

const secret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func ctx() context.Context { return context.Background() }

func setup(t *testing.T, opts ...referral.Option) (*referral.Service, *memory.Store) {
	t.Helper()
	s := memory.New()
	base := []referral.Option{
		referral.WithStore(s),
		referral.WithSecret(secret),
		referral.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	svc, err := referral.New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return svc, s
}

func signed(t *testing.T, msgID, body string) ([]byte, http.Header) {
	t.Helper()
	h, err := ingest.SignedHeaders(secret, msgID, time.Now(), []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	return []byte(body), h
}

func TestNewRequiresStoreAndSecret(t *testing.T) {
	if _, err := referral.New(referral.WithSecret(secret)); !errors.Is(err, referral.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
	if _, err := referral.New(referral.WithStore(memory.New())); !errors.Is(err, referral.ErrNoSecret) {
		t.Fatalf("err = %v, want ErrNoSecret", err)
	}
}

func TestNewFillsDefaults(t *testing.T) {
	svc, _ := setup(t, referral.WithTolerance(0), referral.WithStoreTimeout(-time.Second))
	cfg := svc.Config()
	if cfg.Tolerance != 5*time.Minute {
		t.Fatalf("tolerance = %s", cfg.Tolerance)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("store timeout = %s", cfg.StoreTimeout)
	}
}

func TestNilLoggerKeepsDefault(t *testing.T) {
	svc, err := referral.New(
		referral.WithStore(memory.New()),
		referral.WithSecret(secret),
		referral.WithLogger(nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	raw, h := signed(t, "msg_nil", `{"type":"user.created","data":{"id":"u_1"}}`)
	h.Set("svix-signature", "v1,AAAA")
	if _, err := svc.Ingest(ctx(), raw, h); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestRejectionLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := setup(t, referral.WithLogger(logging.New(slog.LevelInfo, "json", &buf)))

	raw, h := signed(t, "msg_rid", `{"type":"user.created","data":{"id":"u_1"}}`)
	h.Del("svix-signature")
	reqCtx := context.WithValue(ctx(), middleware.RequestIDKey, "req-77")
	if _, err := svc.Ingest(reqCtx, raw, h); err == nil {
		t.Fatal("expected rejection")
	}

	out := buf.String()
	if !strings.Contains(out, `"msg":"webhook rejected"`) {
		t.Fatalf("missing rejection log:\n%s", out)
	}
	if !strings.Contains(out, `"request_id":"req-77"`) {
		t.Fatalf("rejection log lacks request id:\n%s", out)
	}
}

func TestIngestAttributesFromUnsafeMetadata(t *testing.T) {
	svc, s := setup(t)
	raw, h := signed(t, "msg_1", `{"type":"user.created","data":{"id":"u_123","unsafe_metadata":{"referralCode":"ABC123"}}}`)

	outcome, err := svc.Ingest(ctx(), raw, h)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome != delivery.OutcomeAttributed {
		t.Fatalf("outcome = %s", outcome)
	}

	a, err := svc.Lookup(ctx(), "u_123")
	if err != nil || a == nil {
		t.Fatalf("Lookup = %v, %v", a, err)
	}
	if a.ReferralCode != "ABC123" || a.Source != attribution.SourceWebhook {
		t.Fatalf("attribution = %+v", a)
	}

	r, err := s.GetDelivery(ctx(), "msg_1")
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if r.UserID != "u_123" || r.EventType != "user.created" {
		t.Fatalf("receipt = %+v", r)
	}
}

func TestIngestDuplicateDelivery(t *testing.T) {
	svc, s := setup(t)
	raw, h := signed(t, "msg_dup", `{"type":"user.created","data":{"id":"u_1","unsafe_metadata":{"referralCode":"ONE"}}}`)

	if _, err := svc.Ingest(ctx(), raw, h); err != nil {
		t.Fatal(err)
	}
	outcome, err := svc.Ingest(ctx(), raw, h)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != delivery.OutcomeDuplicate {
		t.Fatalf("outcome = %s, want duplicate", outcome)
	}
	if s.Len() != 1 {
		t.Fatalf("attributions = %d", s.Len())
	}
}

func TestIngestLaterCodeIsNoop(t *testing.T) {
	svc, _ := setup(t)
	raw, h := signed(t, "msg_a", `{"type":"user.created","data":{"id":"u_1","unsafe_metadata":{"referralCode":"FIRST"}}}`)
	if _, err := svc.Ingest(ctx(), raw, h); err != nil {
		t.Fatal(err)
	}

	raw, h = signed(t, "msg_b", `{"type":"user.updated","data":{"id":"u_1","unsafe_metadata":{"referralCode":"SECOND"}}}`)
	outcome, err := svc.Ingest(ctx(), raw, h)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != delivery.OutcomeAlreadyAttributed {
		t.Fatalf("outcome = %s", outcome)
	}
	a, _ := svc.Lookup(ctx(), "u_1")
	if a.ReferralCode != "FIRST" {
		t.Fatalf("code = %s, want FIRST", a.ReferralCode)
	}
}

func TestIngestOutcomes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want delivery.Outcome
	}{
		{"no referral code", `{"type":"user.created","data":{"id":"u_2"}}`, delivery.OutcomeNoReferral},
		{"unknown type", `{"type":"organization.created","data":{"id":"org_1"}}`, delivery.OutcomeIgnored},
		{"user deleted", `{"type":"user.deleted","data":{"id":"u_3","deleted":true}}`, delivery.OutcomeIgnored},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setup(t)
			raw, h := signed(t, "msg_o"+string(rune('a'+i)), tt.body)
			outcome, err := svc.Ingest(ctx(), raw, h)
			if err != nil {
				t.Fatal(err)
			}
			if outcome != tt.want {
				t.Fatalf("outcome = %s, want %s", outcome, tt.want)
			}
		})
	}
}

func TestAutoAttributeDisabled(t *testing.T) {
	svc, s := setup(t, referral.WithAutoAttribute(false))
	raw, h := signed(t, "msg_off", `{"type":"user.created","data":{"id":"u_1","unsafe_metadata":{"referralCode":"ABC"}}}`)

	outcome, err := svc.Ingest(ctx(), raw, h)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != delivery.OutcomeIgnored {
		t.Fatalf("outcome = %s", outcome)
	}
	if s.Len() != 0 {
		t.Fatal("webhook attributed with auto-attribute disabled")
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	svc, s := setup(t)
	raw, h := signed(t, "msg_bad", `{"type":"user.created","data":{"id":"u_1"}}`)
	h.Set("svix-signature", "v1,AAAA")

	_, err := svc.Ingest(ctx(), raw, h)
	rej, ok := ingest.AsRejection(err)
	if !ok {
		t.Fatalf("err = %v, want rejection", err)
	}
	if rej.Reason != ingest.ReasonInvalidSignature {
		t.Fatalf("reason = %s", rej.Reason)
	}
	if _, err := s.GetDelivery(ctx(), "msg_bad"); !errors.Is(err, delivery.ErrReceiptNotFound) {
		t.Fatal("rejected delivery left a receipt")
	}
}

// brokenStore fails attribution writes but keeps receipts in memory.
type brokenStore struct {
	*memory.Store
}

func (brokenStore) CreateAttributionIfAbsent(context.Context, *attribution.Attribution) (*attribution.Attribution, bool, error) {
	return nil, false, errors.New("connection reset")
}

func TestIngestStoreFailureIsRetryable(t *testing.T) {
	s := brokenStore{memory.New()}
	svc, err := referral.New(
		referral.WithStore(s),
		referral.WithSecret(secret),
		referral.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	raw, h := signed(t, "msg_fail", `{"type":"user.created","data":{"id":"u_1","unsafe_metadata":{"referralCode":"ABC"}}}`)

	if _, err := svc.Ingest(ctx(), raw, h); !errors.Is(err, referral.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := s.GetDelivery(ctx(), "msg_fail"); !errors.Is(err, delivery.ErrReceiptNotFound) {
		t.Fatal("failed delivery recorded a receipt; a retry would be skipped")
	}
}

// vanishedUserStore reports every user as unknown to the backend.
type vanishedUserStore struct {
	*memory.Store
}

func (vanishedUserStore) CreateAttributionIfAbsent(context.Context, *attribution.Attribution) (*attribution.Attribution, bool, error) {
	return nil, false, attribution.ErrUserNotFound
}

func TestIngestDeletedUserIsIgnored(t *testing.T) {
	s := vanishedUserStore{memory.New()}
	svc, err := referral.New(
		referral.WithStore(s),
		referral.WithSecret(secret),
		referral.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}

	raw, h := signed(t, "msg_gone", `{"type":"user.updated","data":{"id":"u_gone","unsafe_metadata":{"referralCode":"ABC"}}}`)
	outcome, err := svc.Ingest(ctx(), raw, h)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome != delivery.OutcomeIgnored {
		t.Fatalf("outcome = %s, want ignored", outcome)
	}
	r, err := s.GetDelivery(ctx(), "msg_gone")
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if r.Outcome != delivery.OutcomeIgnored {
		t.Fatalf("receipt outcome = %s", r.Outcome)
	}

	if _, _, err := svc.Attribute(ctx(), "u_gone", "ABC"); !errors.Is(err, referral.ErrUserNotFound) {
		t.Fatalf("Attribute err = %v, want ErrUserNotFound", err)
	}
}

func TestAttributeAndLookup(t *testing.T) {
	svc, _ := setup(t)

	a, created, err := svc.Attribute(ctx(), "u_api", "CODE1")
	if err != nil || !created {
		t.Fatalf("Attribute = %v, %v", created, err)
	}
	if a.Source != attribution.SourceAPI {
		t.Fatalf("source = %s", a.Source)
	}

	_, created, err = svc.Attribute(ctx(), "u_api", "CODE2")
	if err != nil || created {
		t.Fatalf("second Attribute = %v, %v", created, err)
	}

	got, err := svc.Lookup(ctx(), "nobody")
	if err != nil || got != nil {
		t.Fatalf("Lookup(nobody) = %v, %v", got, err)
	}
	if err := svc.Ping(ctx()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
