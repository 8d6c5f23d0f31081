package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/referral/internal/config"
	"github.com/xraph/referral/store"
	"github.com/xraph/referral/store/clerk"
	"github.com/xraph/referral/store/memory"
	"github.com/xraph/referral/store/mongo"
	"github.com/xraph/referral/store/postgres"
	"github.com/xraph/referral/store/redis"
)

// purger is implemented by stores that keep expired receipts until swept.
type purger interface {
	PurgeExpiredDeliveries(ctx context.Context, now time.Time) (int64, error)
}

// openStore connects the backend named by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.New(goredis.NewClient(opts)), nil

	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.DriverMongo:
		s, err := mongo.Open(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.DriverClerk:
		return clerk.New(cfg.ClerkKey,
			clerk.WithBaseURL(cfg.ClerkBaseURL),
			clerk.WithHTTPClient(&http.Client{Timeout: cfg.ClerkTimeout}),
		), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// waitForStore pings s until it answers or ctx ends. Each attempt is bounded
// by attempt so a hung connection cannot stall readiness.
func waitForStore(ctx context.Context, s store.Store, attempt time.Duration, logger *slog.Logger) error {
	if attempt <= 0 {
		attempt = 5 * time.Second
	}
	backoff := 250 * time.Millisecond
	for {
		pingCtx, cancel := context.WithTimeout(ctx, attempt)
		err := s.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("store not reachable", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}
