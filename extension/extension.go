// Package extension provides the Forge extension adapter for the credits
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Metered-credit accounting engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credits engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []credits.Option
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying credits engine.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the credits engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.buildStore(); err != nil {
		return err
	}

	// Build engine options from resolved config.
	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = credits.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*credits.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs the store backend. A programmatically provided
// store wins; otherwise the configured driver selects a backend over the
// injected grove database, falling back to the in-memory store.
func (e *Extension) buildStore() error {
	if e.store != nil {
		return nil
	}

	if e.config.Driver != "" && e.groveDB == nil {
		return fmt.Errorf("credits: driver %q configured but no grove database provided", e.config.Driver)
	}

	switch e.config.Driver {
	case "":
		e.store = memory.New()
	case "postgres":
		e.store = postgres.New(e.groveDB)
	case "sqlite":
		e.store = sqlite.New(e.groveDB)
	case "mongo":
		e.store = mongo.New(e.groveDB)
	default:
		return fmt.Errorf("credits: unknown store driver %q", e.config.Driver)
	}
	return nil
}

// buildEngineOpts constructs credits.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]credits.Option, error) {
	opts := make([]credits.Option, 0, len(e.engineOpts)+4)

	if e.config.EstimateCacheTTL > 0 {
		opts = append(opts, credits.WithEstimateCacheTTL(e.config.EstimateCacheTTL))
	}
	if e.config.EstimatePurgeInterval > 0 {
		opts = append(opts, credits.WithEstimatePurgeInterval(e.config.EstimatePurgeInterval))
	}
	if e.config.PaymentMaxRetries > 0 {
		opts = append(opts, credits.WithPaymentMaxRetries(e.config.PaymentMaxRetries))
	}
	if e.config.DefaultRunCost != "" {
		c, err := types.ParseCredits(e.config.DefaultRunCost)
		if err != nil {
			return nil, fmt.Errorf("credits: invalid default_run_cost: %w", err)
		}
		opts = append(opts, credits.WithDefaultRunCost(c))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("estimate_cache_ttl", e.config.EstimateCacheTTL),
		forge.F("payment_max_retries", e.config.PaymentMaxRetries),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.credits" first (namespaced pattern).
	if cm.IsSet("extensions.credits") {
		if err := cm.Bind("extensions.credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "extensions.credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind extensions.credits config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "credits" key.
	if cm.IsSet("credits") {
		if err := cm.Bind("credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind credits config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.EstimateCacheTTL == 0 {
		cfg.EstimateCacheTTL = defaults.EstimateCacheTTL
	}
	if cfg.EstimatePurgeInterval == 0 {
		cfg.EstimatePurgeInterval = defaults.EstimatePurgeInterval
	}
	if cfg.PaymentMaxRetries == 0 {
		cfg.PaymentMaxRetries = defaults.PaymentMaxRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DefaultRunCost == "" && programmaticConfig.DefaultRunCost != "" {
		yamlConfig.DefaultRunCost = programmaticConfig.DefaultRunCost
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.EstimateCacheTTL == 0 && programmaticConfig.EstimateCacheTTL != 0 {
		yamlConfig.EstimateCacheTTL = programmaticConfig.EstimateCacheTTL
	}
	if yamlConfig.EstimatePurgeInterval == 0 && programmaticConfig.EstimatePurgeInterval != 0 {
		yamlConfig.EstimatePurgeInterval = programmaticConfig.EstimatePurgeInterval
	}
	if yamlConfig.PaymentMaxRetries == 0 && programmaticConfig.PaymentMaxRetries != 0 {
		yamlConfig.PaymentMaxRetries = programmaticConfig.PaymentMaxRetries
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
