package referral

import (
	"log/slog"
	"time"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/catalog"
	"github.com/xraph/referral/observability"
	"github.com/xraph/referral/store"
)

// Option configures a Service instance.
type Option func(*Service) error

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(svc *Service) error {
		svc.store = s
		return nil
	}
}

// WithLogger sets the structured logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) error {
		if logger != nil {
			svc.logger = logger
		}
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(svc *Service) error {
		svc.config = cfg
		return nil
	}
}

// WithSecret sets the webhook signing secret.
func WithSecret(secret string) Option {
	return func(svc *Service) error {
		svc.config.Secret = secret
		return nil
	}
}

// WithTolerance sets the timestamp acceptance window.
func WithTolerance(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.Tolerance = d
		return nil
	}
}

// WithStoreTimeout sets the timeout for each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.StoreTimeout = d
		return nil
	}
}

// WithReceiptTTL sets how long delivery receipts are kept.
func WithReceiptTTL(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.ReceiptTTL = d
		return nil
	}
}

// WithAutoAttribute enables or disables attribution from webhook events.
func WithAutoAttribute(enabled bool) Option {
	return func(svc *Service) error {
		svc.config.AutoAttribute = enabled
		return nil
	}
}

// WithCatalog sets the event type catalog used by the ingestion gate.
func WithCatalog(c *catalog.Catalog) Option {
	return func(svc *Service) error {
		svc.catalog = c
		return nil
	}
}

// WithNotifier sets the notifier told about new attributions.
func WithNotifier(n attribution.Notifier) Option {
	return func(svc *Service) error {
		svc.notifier = n
		return nil
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(svc *Service) error {
		svc.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(svc *Service) error {
		svc.tracer = t
		return nil
	}
}

// WithClock overrides the time source. Tests use it to pin the
// acceptance window.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) error {
		svc.now = now
		return nil
	}
}
