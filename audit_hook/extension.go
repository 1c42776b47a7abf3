// Package audithook bridges credits engine lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter that
// bridges to their trail at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/usage"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnEntryApplied       = (*Extension)(nil)
	_ plugin.OnEntryFinalized     = (*Extension)(nil)
	_ plugin.OnInsufficientFunds  = (*Extension)(nil)
	_ plugin.OnInvariantViolation = (*Extension)(nil)
	_ plugin.OnLowBalance         = (*Extension)(nil)
	_ plugin.OnAutoRecharge       = (*Extension)(nil)
	_ plugin.OnPaymentCompleted   = (*Extension)(nil)
	_ plugin.OnPaymentFailed      = (*Extension)(nil)
	_ plugin.OnPaymentRefunded    = (*Extension)(nil)
	_ plugin.OnRetryExhausted     = (*Extension)(nil)
	_ plugin.OnUsageRecorded      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package carries no backend dependency;
// callers inject the concrete trail at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntryApplied implements plugin.OnEntryApplied.
func (e *Extension) OnEntryApplied(ctx context.Context, _, le interface{}) error {
	var resourceID string
	kv := []any{"event", "entry_applied"}
	if en, ok := le.(*entry.LedgerEntry); ok {
		resourceID = en.ID.String()
		kv = append(kv,
			"account_id", en.AccountID.String(),
			"type", string(en.Type),
			"amount", en.Amount.Format(),
		)
	}
	return e.record(ctx, ActionEntryApplied, SeverityInfo, OutcomeSuccess,
		ResourceEntry, resourceID, CategoryLedger, nil, kv...)
}

// OnEntryFinalized implements plugin.OnEntryFinalized.
func (e *Extension) OnEntryFinalized(ctx context.Context, _, le interface{}) error {
	var resourceID string
	kv := []any{"event", "entry_finalized"}
	if en, ok := le.(*entry.LedgerEntry); ok {
		resourceID = en.ID.String()
		kv = append(kv, "status", string(en.Status))
	}
	return e.record(ctx, ActionEntryFinalized, SeverityInfo, OutcomeSuccess,
		ResourceEntry, resourceID, CategoryLedger, nil, kv...)
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (e *Extension) OnInsufficientFunds(ctx context.Context, accountID string, requestedMicros, balanceMicros int64) error {
	return e.record(ctx, ActionInsufficientFunds, SeverityWarning, OutcomeFailure,
		ResourceAccount, accountID, CategoryLedger, nil,
		"requested_micros", requestedMicros,
		"balance_micros", balanceMicros,
	)
}

// OnInvariantViolation implements plugin.OnInvariantViolation.
func (e *Extension) OnInvariantViolation(ctx context.Context, accountID, detail string) error {
	return e.record(ctx, ActionInvariantViolated, SeverityCritical, OutcomeFailure,
		ResourceAccount, accountID, CategoryLedger, nil,
		"detail", detail,
	)
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnLowBalance implements plugin.OnLowBalance.
func (e *Extension) OnLowBalance(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionLowBalance, SeverityWarning, OutcomeSuccess,
		ResourceAccount, "", CategoryAccount, nil,
		"event", "low_balance",
	)
}

// OnAutoRecharge implements plugin.OnAutoRecharge.
func (e *Extension) OnAutoRecharge(ctx context.Context, _, intent interface{}) error {
	var resourceID string
	if i, ok := intent.(*payment.Intent); ok {
		resourceID = i.ID.String()
	}
	return e.record(ctx, ActionAutoRecharge, SeverityInfo, OutcomeSuccess,
		ResourceIntent, resourceID, CategoryAccount, nil,
		"event", "auto_recharge",
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCompleted implements plugin.OnPaymentCompleted.
func (e *Extension) OnPaymentCompleted(ctx context.Context, intent, _ interface{}) error {
	var resourceID string
	kv := []any{"event", "payment_completed"}
	if i, ok := intent.(*payment.Intent); ok {
		resourceID = i.ExternalID
		kv = append(kv, "credits", i.TotalCredits().Format())
	}
	return e.record(ctx, ActionPaymentCompleted, SeverityInfo, OutcomeSuccess,
		ResourceIntent, resourceID, CategoryPayment, nil, kv...)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, intent interface{}, reason string) error {
	var resourceID string
	if i, ok := intent.(*payment.Intent); ok {
		resourceID = i.ExternalID
	}
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourceIntent, resourceID, CategoryPayment, nil,
		"reason", reason,
	)
}

// OnPaymentRefunded implements plugin.OnPaymentRefunded.
func (e *Extension) OnPaymentRefunded(ctx context.Context, intent, _ interface{}) error {
	var resourceID string
	if i, ok := intent.(*payment.Intent); ok {
		resourceID = i.ExternalID
	}
	return e.record(ctx, ActionPaymentRefunded, SeverityWarning, OutcomeSuccess,
		ResourceIntent, resourceID, CategoryPayment, nil,
		"event", "payment_refunded",
	)
}

// OnRetryExhausted implements plugin.OnRetryExhausted.
func (e *Extension) OnRetryExhausted(ctx context.Context, intent interface{}) error {
	var resourceID string
	kv := []any{"event", "retry_exhausted"}
	if i, ok := intent.(*payment.Intent); ok {
		resourceID = i.ExternalID
		kv = append(kv, "retry_count", i.RetryCount, "last_error", i.LastError)
	}
	return e.record(ctx, ActionRetryExhausted, SeverityError, OutcomeFailure,
		ResourceIntent, resourceID, CategoryPayment, nil, kv...)
}

// ──────────────────────────────────────────────────
// Usage lifecycle hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (e *Extension) OnUsageRecorded(ctx context.Context, record interface{}) error {
	var resourceID string
	kv := []any{"event", "usage_recorded"}
	if r, ok := record.(*usage.Record); ok {
		resourceID = r.ID.String()
		kv = append(kv,
			"workflow_id", r.WorkflowID,
			"variance_pct", r.VariancePct,
		)
	}
	return e.record(ctx, ActionUsageRecorded, SeverityInfo, OutcomeSuccess,
		ResourceUsage, resourceID, CategoryUsage, nil, kv...)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
