// Package api serves the referral HTTP surface: the provider webhook, the
// signed-in user's referral endpoints and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/referral/attribution"
	"github.com/xraph/referral/auth"
	"github.com/xraph/referral/delivery"
	"github.com/xraph/referral/internal/readiness"
	"github.com/xraph/referral/observability"
	"github.com/xraph/referral/ratelimit"
)

// DefaultMaxBodyBytes caps webhook request bodies.
const DefaultMaxBodyBytes = 1 << 20

// DefaultSubmitRate is the per-user referral submission rate, per second.
const DefaultSubmitRate = 5

// Service is the referral engine the handlers drive.
type Service interface {
	Ingest(ctx context.Context, raw []byte, h http.Header) (delivery.Outcome, error)
	Attribute(ctx context.Context, userID, code string) (*attribution.Attribution, bool, error)
	Lookup(ctx context.Context, userID string) (*attribution.Attribution, error)
	Ping(ctx context.Context) error
}

// Handler is the root HTTP handler.
type Handler struct {
	svc        Service
	verifier   auth.Verifier
	limiter    *ratelimit.Limiter
	submitRate float64
	ready      *readiness.Signal
	metrics    *observability.Metrics
	gatherer   prometheus.Gatherer
	maxBody    int64
	logger     *slog.Logger
	now        func() time.Time
	router     chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithRateLimit throttles referral submissions to perSecond per user.
// Zero disables throttling.
func WithRateLimit(l *ratelimit.Limiter, perSecond float64) Option {
	return func(h *Handler) {
		h.limiter = l
		h.submitRate = perSecond
	}
}

// WithReadiness gates submissions and /readyz on s.
func WithReadiness(s *readiness.Signal) Option {
	return func(h *Handler) { h.ready = s }
}

// WithMetrics counts throttled submissions on m and serves g on /metrics.
func WithMetrics(m *observability.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithMaxBodyBytes caps webhook bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithClock overrides the time source for /health.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates the HTTP handler. verifier identifies callers of the
// referral routes.
func NewHandler(svc Service, verifier auth.Verifier, opts ...Option) *Handler {
	h := &Handler{
		svc:        svc,
		verifier:   verifier,
		limiter:    ratelimit.New(),
		submitRate: DefaultSubmitRate,
		maxBody:    DefaultMaxBodyBytes,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.ready == nil {
		h.ready = readiness.New()
		h.ready.MarkReady()
	}
	h.router = h.routes()
	return h
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.panicRecovery)

	r.Get("/health", h.health)
	r.Get("/livez", h.livez)
	r.Get("/readyz", h.readyz)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.httpLogger)

		r.Post("/webhooks", h.webhook)
		r.Post("/api/webhooks/clerk", h.webhook)

		authed := r.With(auth.Middleware(h.verifier, h.logger))
		authed.Post("/api/referral", h.submitReferral)
		authed.Get("/api/referral", h.getReferral)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(h.logger, next)
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
