package credits

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// Engine is the main credit accounting engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Background workers
	rechargeQueue chan id.AccountID
	stopChan      chan struct{}
	wg            sync.WaitGroup

	// Configuration
	estimateCacheTTL     time.Duration
	estimatePurgeEvery   time.Duration
	paymentMaxRetries    int
	applyMaxAttempts     int
	defaultRunCost       types.Credits
	costModel            string
	autoRechargeCurrency string
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                s,
		plugins:              plugin.NewRegistry(),
		logger:               slog.Default(),
		rechargeQueue:        make(chan id.AccountID, 1024),
		stopChan:             make(chan struct{}),
		estimateCacheTTL:     24 * time.Hour,
		estimatePurgeEvery:   time.Hour,
		paymentMaxRetries:    3,
		applyMaxAttempts:     5,
		defaultRunCost:       pricing.DefaultRunCost,
		autoRechargeCurrency: "usd",
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithEstimateCacheTTL sets how long cached cost estimates stay servable.
func WithEstimateCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.estimateCacheTTL = ttl
	}
}

// WithEstimatePurgeInterval sets how often expired estimates are purged.
func WithEstimatePurgeInterval(every time.Duration) Option {
	return func(e *Engine) {
		e.estimatePurgeEvery = every
	}
}

// WithPaymentMaxRetries sets the retry budget for failing payment intents.
func WithPaymentMaxRetries(n int) Option {
	return func(e *Engine) {
		e.paymentMaxRetries = n
	}
}

// WithDefaultRunCost sets the fallback charge used when no fresh estimate
// exists for a workflow.
func WithDefaultRunCost(c types.Credits) Option {
	return func(e *Engine) {
		e.defaultRunCost = c
	}
}

// WithCostModel selects a registered CostModel plugin by name for estimate
// breakdown computation. Unset means the built-in pricing arithmetic.
func WithCostModel(name string) Option {
	return func(e *Engine) {
		e.costModel = name
	}
}

// Start runs migrations, initializes plugins, and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start background workers
	e.wg.Add(2)
	go e.rechargeWorker(ctx)
	go e.estimatePurgeWorker(ctx)

	e.logger.Info("credits engine started",
		"estimate_cache_ttl", e.estimateCacheTTL,
		"payment_max_retries", e.paymentMaxRetries,
		"default_run_cost", e.defaultRunCost.Format(),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Background workers
// ──────────────────────────────────────────────────

// rechargeWorker drains the queue of accounts whose balance crossed the
// auto-recharge threshold after a debit.
func (e *Engine) rechargeWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopChan:
			return
		case accountID := <-e.rechargeQueue:
			if err := e.openAutoRecharge(ctx, accountID); err != nil {
				e.logger.Error("auto-recharge failed",
					"account_id", accountID,
					"error", err,
				)
			}
		}
	}
}

// estimatePurgeWorker periodically removes cost estimates whose cache TTL
// has lapsed.
func (e *Engine) estimatePurgeWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.estimatePurgeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			purged, err := e.store.PurgeEstimates(ctx, time.Now().UTC())
			if err != nil {
				e.logger.Error("estimate purge failed", "error", err)
				continue
			}
			if purged > 0 {
				e.logger.Debug("purged expired estimates", "count", purged)
			}
		}
	}
}

// queueRecharge hands an account to the recharge worker without blocking
// the debit path. A full queue drops the signal; the next debit re-queues.
func (e *Engine) queueRecharge(a *account.Account) {
	select {
	case e.rechargeQueue <- a.ID:
	default:
	}
}

// ──────────────────────────────────────────────────
// Caller identity
// ──────────────────────────────────────────────────

type callerKey struct{}

// WithCaller returns a context carrying the acting user's identity. When
// present, account-scoped reads verify the caller owns the account.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

func callerID(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}

// authorize rejects account-scoped access when the context carries a
// caller identity that does not own the account. Contexts without a
// caller are trusted (service-to-service paths).
func (e *Engine) authorize(ctx context.Context, a *account.Account) error {
	caller := callerID(ctx)
	if caller == "" || caller == a.UserID {
		return nil
	}
	return ErrForbidden
}
