package extension

import "time"

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend constructed from the grove database:
	// "postgres", "sqlite", or "mongo". Empty means the in-memory store.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// EstimateCacheTTL controls how long cached cost estimates stay
	// servable before expiring (default: 24h).
	EstimateCacheTTL time.Duration `json:"estimate_cache_ttl" mapstructure:"estimate_cache_ttl" yaml:"estimate_cache_ttl"`

	// EstimatePurgeInterval is how often expired estimates are removed
	// (default: 1h).
	EstimatePurgeInterval time.Duration `json:"estimate_purge_interval" mapstructure:"estimate_purge_interval" yaml:"estimate_purge_interval"`

	// PaymentMaxRetries is the retry budget for failing payment intents
	// (default: 3).
	PaymentMaxRetries int `json:"payment_max_retries" mapstructure:"payment_max_retries" yaml:"payment_max_retries"`

	// DefaultRunCost is the fallback per-run charge as a decimal credit
	// string, e.g. "0.01". Used when no fresh estimate exists.
	DefaultRunCost string `json:"default_run_cost" mapstructure:"default_run_cost" yaml:"default_run_cost"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EstimateCacheTTL:      24 * time.Hour,
		EstimatePurgeInterval: time.Hour,
		PaymentMaxRetries:     3,
	}
}
