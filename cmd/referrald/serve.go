package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/xraph/referral"
	"github.com/xraph/referral/api"
	"github.com/xraph/referral/auth"
	"github.com/xraph/referral/internal/config"
	"github.com/xraph/referral/internal/readiness"
	"github.com/xraph/referral/notify"
	"github.com/xraph/referral/observability"
	"github.com/xraph/referral/ratelimit"
	"github.com/xraph/referral/store"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and referral API",
		Long: `Run the HTTP server.

Examples:
  referrald serve --addr :8080
  REFERRAL_STORE_DRIVER=redis REFERRAL_SERVICE_SECRET=whsec_... referrald serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	cmd.Flags().String("store", "", "store driver (memory, redis, postgres, mongo, clerk)")
	_ = c.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	_ = c.v.BindPFlag("store.driver", cmd.Flags().Lookup("store"))
	return cmd
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting referrald",
		"version", Version,
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"auth", cfg.Auth.Mode,
	)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.SetupTracing(ctx, cfg.Tracing.TracingConfig)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	opts := []referral.Option{
		referral.WithConfig(cfg.Service),
		referral.WithStore(s),
		referral.WithLogger(logger),
		referral.WithMetrics(metrics),
		referral.WithTracer(observability.NewTracer()),
	}

	if cfg.NATS.Enabled {
		n, err := notify.ConnectNATS(cfg.NATS.NATSConfig, logger)
		if err != nil {
			// Attribution does not depend on the notifier.
			logger.Warn("nats unavailable, notifications disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			defer n.Close()
			opts = append(opts, referral.WithNotifier(n))
		}
	}

	svc, err := referral.New(opts...)
	if err != nil {
		return err
	}

	verifier, err := buildVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	ready := readiness.New()
	limiter := ratelimit.New()

	handler := api.NewHandler(svc, verifier,
		api.WithLogger(logger),
		api.WithRateLimit(limiter, cfg.RateLimit.SubmitPerSecond),
		api.WithReadiness(ready),
		api.WithMetrics(metrics, reg),
		api.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)

	go func() {
		if err := prepareStore(ctx, s, cfg.Service.StoreTimeout, logger); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("store preparation failed", "error", err)
				stop()
			}
			return
		}
		ready.MarkReady()
		logger.Info("store ready", "driver", cfg.Store.Driver)
	}()

	go runJanitor(ctx, s, limiter, cfg.Store.PurgeInterval, logger)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("referrald stopped")
	return nil
}

// prepareStore waits for the backend and applies migrations.
func prepareStore(ctx context.Context, s store.Store, attempt time.Duration, logger *slog.Logger) error {
	if err := waitForStore(ctx, s, attempt, logger); err != nil {
		return err
	}
	return s.Migrate(ctx)
}

// runJanitor purges expired receipts and idle rate-limit buckets.
func runJanitor(ctx context.Context, s store.Store, limiter *ratelimit.Limiter, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	p, canPurge := s.(purger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if canPurge {
				n, err := p.PurgeExpiredDeliveries(ctx, now)
				if err != nil {
					logger.Warn("receipt purge failed", "error", err)
				} else if n > 0 {
					logger.Debug("expired receipts purged", "count", n)
				}
			}
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("idle rate limit buckets dropped", "count", n, "tracked", limiter.Len())
			}
		}
	}
}

// buildVerifier returns the API caller verifier for cfg.Mode.
func buildVerifier(cfg config.AuthConfig) (auth.Verifier, error) {
	if cfg.Mode == config.AuthHeader {
		return auth.HeaderVerifier{Header: cfg.Header}, nil
	}

	pem := []byte(cfg.PublicKey)
	if len(pem) == 0 && cfg.PublicKeyFile != "" {
		b, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read auth public key: %w", err)
		}
		pem = b
	}
	if len(pem) == 0 {
		return nil, errors.New("auth.public_key or auth.public_key_file is required for jwt auth")
	}

	var opts []auth.JWTOption
	if cfg.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Issuer))
	}
	if len(cfg.AuthorizedParties) > 0 {
		opts = append(opts, auth.WithAuthorizedParties(cfg.AuthorizedParties...))
	}
	v, err := auth.NewJWTVerifier(pem, opts...)
	if err != nil {
		return nil, err
	}
	return v, nil
}
