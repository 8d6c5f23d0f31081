package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/catalog"
	"github.com/xraph/referral/delivery"
	"github.com/xraph/referral/event"
	"github.com/xraph/referral/ingest"
	"github.com/xraph/referral/observability"
	"github.com/xraph/referral/store"
)

// Service is the root referral engine: it verifies webhook deliveries,
// routes them to attribution, and serves API attribution and lookups.
type Service struct {
	config       Config
	store        store.Store
	catalog      *catalog.Catalog
	gate         *ingest.Gate
	attributions *attribution.Service
	notifier     attribution.Notifier
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a new Service with the given options.
func New(opts ...Option) (*Service, error) {
	svc := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.store == nil {
		return nil, ErrNoStore
	}
	if svc.config.Secret == "" {
		return nil, ErrNoSecret
	}
	defaults := DefaultConfig()
	if svc.config.Tolerance <= 0 {
		svc.config.Tolerance = defaults.Tolerance
	}
	if svc.config.StoreTimeout <= 0 {
		svc.config.StoreTimeout = defaults.StoreTimeout
	}
	svc.wireServices()
	return svc, nil
}

// wireServices initializes the internal services after options have been applied.
func (svc *Service) wireServices() {
	if svc.catalog == nil {
		svc.catalog = catalog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = observability.NewTracer()
	}

	svc.gate = ingest.NewGate(svc.config.Secret, svc.catalog,
		ingest.WithTolerance(svc.config.Tolerance),
		ingest.WithClock(svc.now),
	)

	svc.attributions = attribution.NewService(svc.store, svc.logger,
		attribution.WithTimeout(svc.config.StoreTimeout),
		attribution.WithMetrics(svc.metrics),
		attribution.WithTracer(svc.tracer),
		attribution.WithNotifier(svc.notifier),
		attribution.WithClock(svc.now),
	)
}

// Verify runs the ingestion gate over a raw delivery. Rejections are
// logged and counted here; the error is an *ingest.Rejection.
func (svc *Service) Verify(ctx context.Context, raw []byte, h http.Header) (*event.Event, error) {
	evt, err := svc.gate.Verify(raw, h)
	if err != nil {
		if rej, ok := ingest.AsRejection(err); ok {
			svc.metrics.RecordRejection(rej.Reason.Label())
			svc.logger.WarnContext(ctx, "webhook rejected",
				"reason", rej.Reason.Label(),
				"delivery_id", rej.DeliveryID,
				"detail", rej.Detail,
			)
		}
		return nil, err
	}
	return evt, nil
}

// Ingest verifies and processes one delivery.
func (svc *Service) Ingest(ctx context.Context, raw []byte, h http.Header) (delivery.Outcome, error) {
	evt, err := svc.Verify(ctx, raw, h)
	if err != nil {
		return "", err
	}
	return svc.Process(ctx, evt)
}

// Process handles a verified event.
//
// The flow:
//  1. Skip deliveries that already have a receipt.
//  2. Route user.created / user.updated carrying a referral code to attribution.
//  3. Ignore every other type, known or not.
//  4. Record a receipt once processing succeeded.
//
// A returned error wraps ErrStoreUnavailable and means the provider should retry.
func (svc *Service) Process(ctx context.Context, evt *event.Event) (delivery.Outcome, error) {
	ctx, span := svc.tracer.StartIngestSpan(ctx, evt.DeliveryID, evt.Type)

	dup, err := svc.seen(ctx, evt.DeliveryID)
	if err != nil {
		svc.metrics.RecordWebhook("failed")
		svc.tracer.EndSpan(span, "failed", err)
		return "", err
	}
	if dup {
		svc.metrics.RecordWebhook("duplicate")
		svc.logger.InfoContext(ctx, "webhook duplicate",
			"delivery_id", evt.DeliveryID,
			"type", evt.Type,
		)
		svc.tracer.EndSpan(span, string(delivery.OutcomeDuplicate), nil)
		return delivery.OutcomeDuplicate, nil
	}

	outcome, userID, err := svc.dispatch(ctx, evt)
	if err != nil {
		svc.metrics.RecordWebhook("failed")
		svc.logger.ErrorContext(ctx, "webhook processing failed",
			"delivery_id", evt.DeliveryID,
			"type", evt.Type,
			"error", err,
		)
		svc.tracer.EndSpan(span, "failed", err)
		return "", err
	}

	svc.record(ctx, delivery.NewReceipt(evt.DeliveryID, evt.Type, userID, outcome, svc.now(), svc.config.ReceiptTTL))

	svc.metrics.RecordWebhook("accepted")
	svc.logger.InfoContext(ctx, "webhook accepted",
		"delivery_id", evt.DeliveryID,
		"type", evt.Type,
		"user_id", userID,
		"outcome", outcome,
	)
	svc.tracer.EndSpan(span, string(outcome), nil)
	return outcome, nil
}

func (svc *Service) dispatch(ctx context.Context, evt *event.Event) (delivery.Outcome, string, error) {
	if !evt.Known || !svc.catalog.Subscribed(evt.Type) {
		return delivery.OutcomeIgnored, "", nil
	}

	switch evt.Type {
	case event.TypeUserCreated, event.TypeUserUpdated:
		userID := evt.User.ID
		if !svc.config.AutoAttribute {
			return delivery.OutcomeIgnored, userID, nil
		}
		code := evt.User.ReferralCode()
		if code == "" {
			return delivery.OutcomeNoReferral, userID, nil
		}
		_, created, err := svc.attributions.Attribute(ctx, userID, code, attribution.SourceWebhook)
		if errors.Is(err, attribution.ErrUserNotFound) {
			// The user was deleted before the delivery reached us.
			return delivery.OutcomeIgnored, userID, nil
		}
		if err != nil {
			return "", userID, err
		}
		if created {
			return delivery.OutcomeAttributed, userID, nil
		}
		return delivery.OutcomeAlreadyAttributed, userID, nil

	default:
		// user.deleted keeps the attribution; removal is an administrative action.
		var userID string
		if evt.User != nil {
			userID = evt.User.ID
		}
		return delivery.OutcomeIgnored, userID, nil
	}
}

// seen reports whether deliveryID already has a live receipt.
func (svc *Service) seen(ctx context.Context, deliveryID string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, svc.config.StoreTimeout)
	defer cancel()

	r, err := svc.store.GetDelivery(callCtx, deliveryID)
	if errors.Is(err, delivery.ErrReceiptNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check delivery receipt: %w", ErrStoreUnavailable, err)
	}
	return !r.Expired(svc.now()), nil
}

// record stores a receipt. Processing has already committed, so a failure
// is only logged: a redelivery will find the attribution in place.
func (svc *Service) record(ctx context.Context, r *delivery.Receipt) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), svc.config.StoreTimeout)
	defer cancel()

	if _, err := svc.store.RecordDelivery(callCtx, r); err != nil {
		svc.logger.WarnContext(ctx, "delivery receipt not recorded",
			"delivery_id", r.DeliveryID,
			"error", err,
		)
	}
}

// Attribute applies a code submitted by the signed-in user.
func (svc *Service) Attribute(ctx context.Context, userID, code string) (*attribution.Attribution, bool, error) {
	return svc.attributions.Attribute(ctx, userID, code, attribution.SourceAPI)
}

// Lookup returns the user's attribution, or nil if there is none.
func (svc *Service) Lookup(ctx context.Context, userID string) (*attribution.Attribution, error) {
	return svc.attributions.Lookup(ctx, userID)
}

// Ping checks that the store is reachable within the store timeout.
func (svc *Service) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, svc.config.StoreTimeout)
	defer cancel()
	return svc.store.Ping(callCtx)
}

// Config returns the effective configuration.
func (svc *Service) Config() Config {
	return svc.config
}
