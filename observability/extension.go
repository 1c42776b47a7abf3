// Package observability provides a metrics extension for the credits
// engine that records lifecycle event counts via an injected MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/credits/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnEntryApplied       = (*MetricsExtension)(nil)
	_ plugin.OnEntryFinalized     = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientFunds  = (*MetricsExtension)(nil)
	_ plugin.OnLowBalance         = (*MetricsExtension)(nil)
	_ plugin.OnAutoRecharge       = (*MetricsExtension)(nil)
	_ plugin.OnInvariantViolation = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCompleted   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRefunded    = (*MetricsExtension)(nil)
	_ plugin.OnRetryExhausted     = (*MetricsExtension)(nil)
	_ plugin.OnEstimateUpserted   = (*MetricsExtension)(nil)
	_ plugin.OnDeductionComputed  = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded      = (*MetricsExtension)(nil)
	_ plugin.OnAccuracyUpdated    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to automatically track credit metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Ledger metrics
	EntriesApplied     Counter
	EntriesFinalized   Counter
	InsufficientFunds  Counter
	LowBalanceCrossed  Counter
	AutoRechargeOpened Counter
	InvariantViolation Counter

	// Payment metrics
	PaymentCompleted Counter
	PaymentFailed    Counter
	PaymentRefunded  Counter
	RetriesExhausted Counter

	// Estimation metrics
	EstimateUpserted   Counter
	EstimateCacheHits  Counter
	DeductionsComputed Counter

	// Usage metrics
	UsageRecorded      Counter
	PredictionAccuracy Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Ledger metrics
		EntriesApplied:     factory.Counter("credits.entry.applied"),
		EntriesFinalized:   factory.Counter("credits.entry.finalized"),
		InsufficientFunds:  factory.Counter("credits.entry.insufficient_funds"),
		LowBalanceCrossed:  factory.Counter("credits.account.low_balance"),
		AutoRechargeOpened: factory.Counter("credits.account.auto_recharge"),
		InvariantViolation: factory.Counter("credits.entry.invariant_violation"),

		// Payment metrics
		PaymentCompleted: factory.Counter("credits.payment.completed"),
		PaymentFailed:    factory.Counter("credits.payment.failed"),
		PaymentRefunded:  factory.Counter("credits.payment.refunded"),
		RetriesExhausted: factory.Counter("credits.payment.retries_exhausted"),

		// Estimation metrics
		EstimateUpserted:   factory.Counter("credits.estimate.upserted"),
		EstimateCacheHits:  factory.Counter("credits.estimate.cache.hits"),
		DeductionsComputed: factory.Counter("credits.deduction.computed"),

		// Usage metrics
		UsageRecorded:      factory.Counter("credits.usage.recorded"),
		PredictionAccuracy: factory.Histogram("credits.estimate.prediction_accuracy"),

		// Error metrics
		StoreErrors:  factory.Counter("credits.store.errors"),
		PluginErrors: factory.Counter("credits.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Ledger lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntryApplied implements plugin.OnEntryApplied.
func (m *MetricsExtension) OnEntryApplied(_ context.Context, _, _ interface{}) error {
	m.EntriesApplied.Inc()
	return nil
}

// OnEntryFinalized implements plugin.OnEntryFinalized.
func (m *MetricsExtension) OnEntryFinalized(_ context.Context, _, _ interface{}) error {
	m.EntriesFinalized.Inc()
	return nil
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (m *MetricsExtension) OnInsufficientFunds(_ context.Context, _ string, _, _ int64) error {
	m.InsufficientFunds.Inc()
	return nil
}

// OnLowBalance implements plugin.OnLowBalance.
func (m *MetricsExtension) OnLowBalance(_ context.Context, _ interface{}) error {
	m.LowBalanceCrossed.Inc()
	return nil
}

// OnAutoRecharge implements plugin.OnAutoRecharge.
func (m *MetricsExtension) OnAutoRecharge(_ context.Context, _, _ interface{}) error {
	m.AutoRechargeOpened.Inc()
	return nil
}

// OnInvariantViolation implements plugin.OnInvariantViolation.
func (m *MetricsExtension) OnInvariantViolation(_ context.Context, _, _ string) error {
	m.InvariantViolation.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCompleted implements plugin.OnPaymentCompleted.
func (m *MetricsExtension) OnPaymentCompleted(_ context.Context, _, _ interface{}) error {
	m.PaymentCompleted.Inc()
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ interface{}, _ string) error {
	m.PaymentFailed.Inc()
	return nil
}

// OnPaymentRefunded implements plugin.OnPaymentRefunded.
func (m *MetricsExtension) OnPaymentRefunded(_ context.Context, _, _ interface{}) error {
	m.PaymentRefunded.Inc()
	return nil
}

// OnRetryExhausted implements plugin.OnRetryExhausted.
func (m *MetricsExtension) OnRetryExhausted(_ context.Context, _ interface{}) error {
	m.RetriesExhausted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Estimation and usage hooks
// ──────────────────────────────────────────────────

// OnEstimateUpserted implements plugin.OnEstimateUpserted.
func (m *MetricsExtension) OnEstimateUpserted(_ context.Context, _ interface{}, reused bool) error {
	m.EstimateUpserted.Inc()
	if reused {
		m.EstimateCacheHits.Inc()
	}
	return nil
}

// OnDeductionComputed implements plugin.OnDeductionComputed.
func (m *MetricsExtension) OnDeductionComputed(_ context.Context, _ interface{}) error {
	m.DeductionsComputed.Inc()
	return nil
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, _ interface{}) error {
	m.UsageRecorded.Inc()
	return nil
}

// OnAccuracyUpdated implements plugin.OnAccuracyUpdated.
func (m *MetricsExtension) OnAccuracyUpdated(_ context.Context, _ interface{}, accuracy float64) error {
	m.PredictionAccuracy.Observe(accuracy)
	return nil
}
