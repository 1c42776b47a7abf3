package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionEntryApplied      = "entry.applied"
	ActionEntryFinalized    = "entry.finalized"
	ActionInsufficientFunds = "entry.insufficient_funds"
	ActionInvariantViolated = "entry.invariant_violated"

	// Account actions
	ActionLowBalance   = "account.low_balance"
	ActionAutoRecharge = "account.auto_recharge"

	// Payment actions
	ActionPaymentCompleted = "payment.completed"
	ActionPaymentFailed    = "payment.failed"
	ActionPaymentRefunded  = "payment.refunded"
	ActionRetryExhausted   = "payment.retry_exhausted"

	// Estimation actions
	ActionEstimateUpserted = "estimate.upserted"

	// Usage actions
	ActionUsageRecorded = "usage.recorded"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceEntry    = "ledger_entry"
	ResourceIntent   = "payment_intent"
	ResourceEstimate = "cost_estimate"
	ResourceUsage    = "usage_record"
)

// Category constants for audit events.
const (
	CategoryLedger  = "ledger"
	CategoryAccount = "account"
	CategoryPayment = "payment"
	CategoryUsage   = "usage"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
