package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onEntryApplied       []OnEntryApplied
	onEntryFinalized     []OnEntryFinalized
	onInsufficientFunds  []OnInsufficientFunds
	onLowBalance         []OnLowBalance
	onAutoRecharge       []OnAutoRecharge
	onInvariantViolation []OnInvariantViolation
	onPaymentCompleted   []OnPaymentCompleted
	onPaymentFailed      []OnPaymentFailed
	onPaymentRefunded    []OnPaymentRefunded
	onRetryExhausted     []OnRetryExhausted
	onEstimateUpserted   []OnEstimateUpserted
	onDeductionComputed  []OnDeductionComputed
	onUsageRecorded      []OnUsageRecorded
	onAccuracyUpdated    []OnAccuracyUpdated
	riskScorers          []RiskScorer
	taxCalculators       []TaxCalculator
	costModels           map[string]CostModel
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:     slog.Default(),
		costModels: make(map[string]CostModel),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEntryApplied); ok {
		r.onEntryApplied = append(r.onEntryApplied, v)
	}
	if v, ok := p.(OnEntryFinalized); ok {
		r.onEntryFinalized = append(r.onEntryFinalized, v)
	}
	if v, ok := p.(OnInsufficientFunds); ok {
		r.onInsufficientFunds = append(r.onInsufficientFunds, v)
	}
	if v, ok := p.(OnLowBalance); ok {
		r.onLowBalance = append(r.onLowBalance, v)
	}
	if v, ok := p.(OnAutoRecharge); ok {
		r.onAutoRecharge = append(r.onAutoRecharge, v)
	}
	if v, ok := p.(OnInvariantViolation); ok {
		r.onInvariantViolation = append(r.onInvariantViolation, v)
	}
	if v, ok := p.(OnPaymentCompleted); ok {
		r.onPaymentCompleted = append(r.onPaymentCompleted, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnPaymentRefunded); ok {
		r.onPaymentRefunded = append(r.onPaymentRefunded, v)
	}
	if v, ok := p.(OnRetryExhausted); ok {
		r.onRetryExhausted = append(r.onRetryExhausted, v)
	}
	if v, ok := p.(OnEstimateUpserted); ok {
		r.onEstimateUpserted = append(r.onEstimateUpserted, v)
	}
	if v, ok := p.(OnDeductionComputed); ok {
		r.onDeductionComputed = append(r.onDeductionComputed, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnAccuracyUpdated); ok {
		r.onAccuracyUpdated = append(r.onAccuracyUpdated, v)
	}
	if v, ok := p.(RiskScorer); ok {
		r.riskScorers = append(r.riskScorers, v)
	}
	if v, ok := p.(TaxCalculator); ok {
		r.taxCalculators = append(r.taxCalculators, v)
	}
	if v, ok := p.(CostModel); ok {
		r.costModels[v.ModelName()] = v
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnEntryApplied)(nil)).Elem(), "OnEntryApplied")
	checkInterface(reflect.TypeOf((*OnEntryFinalized)(nil)).Elem(), "OnEntryFinalized")
	checkInterface(reflect.TypeOf((*OnInsufficientFunds)(nil)).Elem(), "OnInsufficientFunds")
	checkInterface(reflect.TypeOf((*OnLowBalance)(nil)).Elem(), "OnLowBalance")
	checkInterface(reflect.TypeOf((*OnPaymentCompleted)(nil)).Elem(), "OnPaymentCompleted")
	checkInterface(reflect.TypeOf((*OnEstimateUpserted)(nil)).Elem(), "OnEstimateUpserted")
	checkInterface(reflect.TypeOf((*OnUsageRecorded)(nil)).Elem(), "OnUsageRecorded")
	checkInterface(reflect.TypeOf((*RiskScorer)(nil)).Elem(), "RiskScorer")
	checkInterface(reflect.TypeOf((*TaxCalculator)(nil)).Elem(), "TaxCalculator")
	checkInterface(reflect.TypeOf((*CostModel)(nil)).Elem(), "CostModel")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryApplied emits an entry applied event.
func (r *Registry) EmitEntryApplied(ctx context.Context, acct, e interface{}) {
	r.mu.RLock()
	plugins := r.onEntryApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryApplied(ctx, acct, e)
		}); err != nil {
			r.logger.Warn("plugin OnEntryApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntryFinalized emits an entry finalized event.
func (r *Registry) EmitEntryFinalized(ctx context.Context, acct, e interface{}) {
	r.mu.RLock()
	plugins := r.onEntryFinalized
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryFinalized(ctx, acct, e)
		}); err != nil {
			r.logger.Warn("plugin OnEntryFinalized failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientFunds emits an insufficient funds event.
func (r *Registry) EmitInsufficientFunds(ctx context.Context, accountID string, requestedMicros, balanceMicros int64) {
	r.mu.RLock()
	plugins := r.onInsufficientFunds
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientFunds(ctx, accountID, requestedMicros, balanceMicros)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientFunds failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLowBalance emits a low balance event.
func (r *Registry) EmitLowBalance(ctx context.Context, acct interface{}) {
	r.mu.RLock()
	plugins := r.onLowBalance
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLowBalance(ctx, acct)
		}); err != nil {
			r.logger.Warn("plugin OnLowBalance failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAutoRecharge emits an auto recharge event.
func (r *Registry) EmitAutoRecharge(ctx context.Context, acct, intent interface{}) {
	r.mu.RLock()
	plugins := r.onAutoRecharge
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAutoRecharge(ctx, acct, intent)
		}); err != nil {
			r.logger.Warn("plugin OnAutoRecharge failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvariantViolation emits a balance invariant violation event.
func (r *Registry) EmitInvariantViolation(ctx context.Context, accountID, detail string) {
	r.mu.RLock()
	plugins := r.onInvariantViolation
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvariantViolation(ctx, accountID, detail)
		}); err != nil {
			r.logger.Warn("plugin OnInvariantViolation failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentCompleted emits a payment completed event.
func (r *Registry) EmitPaymentCompleted(ctx context.Context, intent, record interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentCompleted(ctx, intent, record)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, intent interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentFailed(ctx, intent, reason)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentRefunded emits a payment refunded event.
func (r *Registry) EmitPaymentRefunded(ctx context.Context, intent, record interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentRefunded(ctx, intent, record)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentRefunded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRetryExhausted emits a retry exhausted event.
func (r *Registry) EmitRetryExhausted(ctx context.Context, intent interface{}) {
	r.mu.RLock()
	plugins := r.onRetryExhausted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRetryExhausted(ctx, intent)
		}); err != nil {
			r.logger.Warn("plugin OnRetryExhausted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEstimateUpserted emits an estimate upserted event.
func (r *Registry) EmitEstimateUpserted(ctx context.Context, est interface{}, reused bool) {
	r.mu.RLock()
	plugins := r.onEstimateUpserted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEstimateUpserted(ctx, est, reused)
		}); err != nil {
			r.logger.Warn("plugin OnEstimateUpserted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeductionComputed emits a deduction computed event.
func (r *Registry) EmitDeductionComputed(ctx context.Context, ded interface{}) {
	r.mu.RLock()
	plugins := r.onDeductionComputed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeductionComputed(ctx, ded)
		}); err != nil {
			r.logger.Warn("plugin OnDeductionComputed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageRecorded(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnUsageRecorded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccuracyUpdated emits an accuracy updated event.
func (r *Registry) EmitAccuracyUpdated(ctx context.Context, est interface{}, accuracy float64) {
	r.mu.RLock()
	plugins := r.onAccuracyUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccuracyUpdated(ctx, est, accuracy)
		}); err != nil {
			r.logger.Warn("plugin OnAccuracyUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetRiskScorers returns all registered risk scorers.
func (r *Registry) GetRiskScorers() []RiskScorer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]RiskScorer, len(r.riskScorers))
	copy(result, r.riskScorers)
	return result
}

// GetTaxCalculators returns all registered tax calculators.
func (r *Registry) GetTaxCalculators() []TaxCalculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TaxCalculator, len(r.taxCalculators))
	copy(result, r.taxCalculators)
	return result
}

// GetCostModel returns a cost model by name.
func (r *Registry) GetCostModel(name string) CostModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.costModels[name]
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the accounting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
