package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/referral/observability"
)

// DefaultTimeout bounds every store call made by the Service.
const DefaultTimeout = 5 * time.Second

// Service applies first-write-wins attribution on top of a Store.
type Service struct {
	store    Store
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTimeout sets the per-call store timeout.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records attribution outcomes and store latency.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer used for attribute spans.
func WithTracer(t *observability.Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithNotifier sets the notifier told about new attributions.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source for AttributedAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new attribution service.
func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:   store,
		logger:  logger,
		tracer:  observability.NewTracer(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Attribute records code for userID unless the user already has an
// attribution. It returns the stored record and whether this call created
// it. An existing attribution is a successful no-op, never an error.
//
// Store failures, including the timeout, are returned wrapped in
// ErrStoreUnavailable; nothing is stored in that case. A user the backend
// does not know is reported as ErrUserNotFound, which is final.
func (svc *Service) Attribute(ctx context.Context, userID, code string, source Source) (*Attribution, bool, error) {
	if userID == "" {
		return nil, false, &ValidationError{Field: "user_id", Message: "required"}
	}
	if strings.TrimSpace(code) == "" {
		return nil, false, &ValidationError{Field: "referral_code", Message: "required"}
	}

	ctx, span := svc.tracer.StartAttributionSpan(ctx, userID, string(source))

	callCtx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	start := time.Now()
	stored, created, err := svc.store.CreateAttributionIfAbsent(callCtx, New(userID, code, source, svc.now()))
	svc.metrics.ObserveStore("create", start)
	if errors.Is(err, ErrUserNotFound) {
		svc.metrics.RecordAttribution("unknown_user", string(source))
		svc.logger.WarnContext(ctx, "attribution skipped: user not found",
			"user_id", userID,
			"source", source,
		)
		svc.tracer.EndSpan(span, "unknown_user", nil)
		return nil, false, err
	}
	if err != nil {
		err = unavailable(err)
		svc.metrics.RecordAttribution("error", string(source))
		svc.logger.ErrorContext(ctx, "attribution failed",
			"user_id", userID,
			"source", source,
			"error", err,
		)
		svc.tracer.EndSpan(span, "error", err)
		return nil, false, err
	}

	if !created {
		svc.metrics.RecordAttribution("noop", string(source))
		svc.logger.InfoContext(ctx, "attribution no-op",
			"user_id", userID,
			"source", source,
			"existing_code", stored.ReferralCode,
			"candidate_code", code,
		)
		svc.tracer.EndSpan(span, "noop", nil)
		return stored, false, nil
	}

	svc.metrics.RecordAttribution("created", string(source))
	svc.logger.InfoContext(ctx, "attribution created",
		"user_id", userID,
		"source", source,
		"referral_code", stored.ReferralCode,
		"attribution_id", stored.ID,
	)
	svc.tracer.EndSpan(span, "created", nil)

	svc.notify(ctx, stored)
	return stored, true, nil
}

// Lookup returns the attribution for userID, or nil when there is none.
func (svc *Service) Lookup(ctx context.Context, userID string) (*Attribution, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	start := time.Now()
	a, err := svc.store.GetAttribution(callCtx, userID)
	svc.metrics.ObserveStore("get", start)
	if errors.Is(err, ErrNotFound) {
		return nil, nil //nolint:nilnil // absence is not an error for lookups
	}
	if err != nil {
		err = unavailable(err)
		svc.logger.ErrorContext(ctx, "attribution lookup failed", "user_id", userID, "error", err)
		return nil, err
	}
	return a, nil
}

// notify runs after the write committed, so it must not be cut short by
// the caller going away.
func (svc *Service) notify(ctx context.Context, a *Attribution) {
	if svc.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), svc.timeout)
	defer cancel()
	if err := svc.notifier.Attributed(nctx, a); err != nil {
		svc.logger.WarnContext(ctx, "attribution notification failed",
			"user_id", a.UserID,
			"error", err,
		)
	}
}

func unavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
