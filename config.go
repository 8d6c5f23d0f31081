package referral

import "time"

// Config holds the configuration for a Service instance.
type Config struct {
	// Secret is the webhook signing secret ("whsec_...").
	Secret string `mapstructure:"secret"`

	// Tolerance is the accepted clock skew between a delivery's signed
	// timestamp and the local clock, in either direction.
	Tolerance time.Duration `mapstructure:"tolerance"`

	// StoreTimeout bounds every attribution and receipt store call.
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	// ReceiptTTL is how long TTL-capable stores keep delivery receipts.
	// It should exceed the provider's retry horizon.
	ReceiptTTL time.Duration `mapstructure:"receipt_ttl"`

	// AutoAttribute applies referral codes found in user.created and
	// user.updated events. When false, webhook events are verified and
	// acknowledged but attribution comes only from the API.
	AutoAttribute bool `mapstructure:"auto_attribute"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tolerance:     5 * time.Minute,
		StoreTimeout:  5 * time.Second,
		ReceiptTTL:    72 * time.Hour,
		AutoAttribute: true,
	}
}
