package extension

import (
	"time"

	"github.com/xraph/grove"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a credits.Option through to the underlying engine.
func WithEngineOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithEstimateCacheTTL sets how long cached cost estimates stay servable.
func WithEstimateCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.EstimateCacheTTL = d }
}

// WithPaymentMaxRetries sets the retry budget for failing payment intents.
func WithPaymentMaxRetries(n int) Option {
	return func(e *Extension) { e.config.PaymentMaxRetries = n }
}

// WithGroveDB sets the grove database the store backend is constructed
// from. The backend is selected by the configured Driver ("postgres",
// "sqlite", or "mongo").
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}
