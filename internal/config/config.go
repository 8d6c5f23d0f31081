// Package config loads referrald configuration from a file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/referral"
	"github.com/xraph/referral/notify"
	"github.com/xraph/referral/observability"
)

// EnvPrefix prefixes every environment variable, e.g. REFERRAL_STORE_DRIVER.
const EnvPrefix = "REFERRAL"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverClerk    = "clerk"
)

// Auth modes.
const (
	AuthJWT    = "jwt"
	AuthHeader = "header"
)

// Config is the complete referrald configuration.
type Config struct {
	Service   referral.Config `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig selects and configures the store backend.
type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisURL      string        `mapstructure:"redis_url"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database"`
	ClerkKey      string        `mapstructure:"clerk_secret_key"`
	ClerkBaseURL  string        `mapstructure:"clerk_base_url"`
	ClerkTimeout  time.Duration `mapstructure:"clerk_timeout"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// AuthConfig configures how API callers are identified.
type AuthConfig struct {
	Mode              string   `mapstructure:"mode"`
	PublicKey         string   `mapstructure:"public_key"`
	PublicKeyFile     string   `mapstructure:"public_key_file"`
	Issuer            string   `mapstructure:"issuer"`
	AuthorizedParties []string `mapstructure:"authorized_parties"`
	Header            string   `mapstructure:"header"`
}

// RateLimitConfig throttles referral submissions per user.
type RateLimitConfig struct {
	SubmitPerSecond float64 `mapstructure:"submit_per_second"`
}

// NATSConfig enables attribution notifications.
type NATSConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	notify.NATSConfig `mapstructure:",squash"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled                     bool `mapstructure:"enabled"`
	observability.TracingConfig `mapstructure:",squash"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	svc := referral.DefaultConfig()
	v.SetDefault("service.secret", "")
	v.SetDefault("service.tolerance", svc.Tolerance)
	v.SetDefault("service.store_timeout", svc.StoreTimeout)
	v.SetDefault("service.receipt_ttl", svc.ReceiptTTL)
	v.SetDefault("service.auto_attribute", svc.AutoAttribute)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.max_body_bytes", int64(1<<20))

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "referral")
	v.SetDefault("store.clerk_secret_key", "")
	v.SetDefault("store.clerk_base_url", "")
	v.SetDefault("store.clerk_timeout", 10*time.Second)
	v.SetDefault("store.purge_interval", time.Hour)

	v.SetDefault("auth.mode", AuthJWT)
	v.SetDefault("auth.public_key", "")
	v.SetDefault("auth.public_key_file", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.authorized_parties", []string{})
	v.SetDefault("auth.header", "X-User-ID")

	v.SetDefault("ratelimit.submit_per_second", 5.0)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", notify.DefaultSubject)
	v.SetDefault("nats.name", "referrald")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.timeout", 5*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "referrald")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configFile (when set) and REFERRAL_* environment variables
// into a validated Config. Flags already bound on v take precedence.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values Load cannot express as defaults.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverMongo:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	case DriverClerk:
		if c.Store.ClerkKey == "" {
			errs = append(errs, errors.New("store.clerk_secret_key is required for the clerk driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Auth.Mode {
	case AuthJWT, AuthHeader:
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}

	if c.Service.Tolerance < 0 || c.Service.StoreTimeout < 0 || c.Service.ReceiptTTL < 0 {
		errs = append(errs, errors.New("service durations must not be negative"))
	}
	if c.RateLimit.SubmitPerSecond < 0 {
		errs = append(errs, errors.New("ratelimit.submit_per_second must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
