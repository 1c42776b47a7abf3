// Package plugin provides an extensible plugin system for the credits
// engine. Plugins can hook into various lifecycle events to extend
// functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnEntryApplied is called after a ledger entry has been written and the
// balance updated.
type OnEntryApplied interface {
	Plugin
	OnEntryApplied(ctx context.Context, acct, e interface{}) error
}

// OnEntryFinalized is called when a pending entry reaches a terminal state.
type OnEntryFinalized interface {
	Plugin
	OnEntryFinalized(ctx context.Context, acct, e interface{}) error
}

// OnInsufficientFunds is called when a debit is rejected for lack of
// balance.
type OnInsufficientFunds interface {
	Plugin
	OnInsufficientFunds(ctx context.Context, accountID string, requestedMicros, balanceMicros int64) error
}

// OnLowBalance is called when a debit drops the balance below the
// account's low-balance threshold.
type OnLowBalance interface {
	Plugin
	OnLowBalance(ctx context.Context, acct interface{}) error
}

// OnAutoRecharge is called when the engine opens an automatic top-up
// intent for an account.
type OnAutoRecharge interface {
	Plugin
	OnAutoRecharge(ctx context.Context, acct, intent interface{}) error
}

// OnInvariantViolation is called when a balance identity check fails.
// This indicates a bug, not a caller error.
type OnInvariantViolation interface {
	Plugin
	OnInvariantViolation(ctx context.Context, accountID string, detail string) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentCompleted is called when a payment intent settles and credits
// land on the account.
type OnPaymentCompleted interface {
	Plugin
	OnPaymentCompleted(ctx context.Context, intent, record interface{}) error
}

// OnPaymentFailed is called when a payment attempt fails.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, intent interface{}, reason string) error
}

// OnPaymentRefunded is called when a completed payment is refunded.
type OnPaymentRefunded interface {
	Plugin
	OnPaymentRefunded(ctx context.Context, intent, record interface{}) error
}

// OnRetryExhausted is called when a payment intent runs out of retries.
type OnRetryExhausted interface {
	Plugin
	OnRetryExhausted(ctx context.Context, intent interface{}) error
}

// ──────────────────────────────────────────────────
// Estimation and usage hooks
// ──────────────────────────────────────────────────

// OnEstimateUpserted is called when a cost estimate is written.
type OnEstimateUpserted interface {
	Plugin
	OnEstimateUpserted(ctx context.Context, est interface{}, reused bool) error
}

// OnDeductionComputed is called when a workflow deduction is priced.
type OnDeductionComputed interface {
	Plugin
	OnDeductionComputed(ctx context.Context, ded interface{}) error
}

// OnUsageRecorded is called when actual run usage is reconciled.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, record interface{}) error
}

// OnAccuracyUpdated is called when an estimate's prediction accuracy is
// recomputed from a finished run.
type OnAccuracyUpdated interface {
	Plugin
	OnAccuracyUpdated(ctx context.Context, est interface{}, accuracy float64) error
}

// ──────────────────────────────────────────────────
// Extension points
// ──────────────────────────────────────────────────

// RiskScorer scores payment risk for billing records. Returns a score in
// [0, 1].
type RiskScorer interface {
	Plugin
	ScoreRisk(ctx context.Context, intent interface{}) (float64, error)
}

// TaxCalculator calculates tax for billing records. Returns a Money value.
type TaxCalculator interface {
	Plugin
	CalculateTax(ctx context.Context, fiat interface{}, accountID string) (interface{}, error)
}

// CostModel provides custom workflow cost computation, replacing the
// built-in breakdown arithmetic.
type CostModel interface {
	Plugin
	ModelName() string
	Compute(ctx context.Context, analysis interface{}) (interface{}, error)
}
