package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the referral service.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	WebhooksTotal      *prometheus.CounterVec
	WebhookRejections  *prometheus.CounterVec
	AttributionsTotal  *prometheus.CounterVec
	StoreLatency       *prometheus.HistogramVec
	SubmissionsLimited prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_webhooks_total",
			Help: "Webhook deliveries by result (accepted, duplicate, rejected, failed).",
		}, []string{"result"}),
		WebhookRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_webhook_rejections_total",
			Help: "Rejected webhook deliveries by reason.",
		}, []string{"reason"}),
		AttributionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_attributions_total",
			Help: "Attribution attempts by outcome (created, noop, error) and source.",
		}, []string{"outcome", "source"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "referral_store_latency_seconds",
			Help:    "Latency of attribution store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		SubmissionsLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "referral_submissions_rate_limited_total",
			Help: "Referral submissions refused by the rate limiter.",
		}),
	}
	reg.MustRegister(
		m.WebhooksTotal,
		m.WebhookRejections,
		m.AttributionsTotal,
		m.StoreLatency,
		m.SubmissionsLimited,
	)
	return m
}

// RecordWebhook counts a delivery by result.
func (m *Metrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(result).Inc()
}

// RecordRejection counts a rejected delivery.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues("rejected").Inc()
	m.WebhookRejections.WithLabelValues(reason).Inc()
}

// RecordAttribution counts an attribution attempt.
func (m *Metrics) RecordAttribution(outcome, source string) {
	if m == nil {
		return
	}
	m.AttributionsTotal.WithLabelValues(outcome, source).Inc()
}

// ObserveStore records the latency of a store operation started at start.
func (m *Metrics) ObserveStore(op string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordRateLimited counts a throttled submission.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.SubmissionsLimited.Inc()
}
