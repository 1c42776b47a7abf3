package credits

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

// ──────────────────────────────────────────────────
// Usage Reconciliation
// ──────────────────────────────────────────────────

// StartUsage opens the usage record for a workflow run at the estimated
// cost it was charged under. The record starts queued and stays open until
// RecordActual closes it.
func (e *Engine) StartUsage(ctx context.Context, workflowID string, accountID id.AccountID, runID string, estimated types.Credits) (*usage.Record, error) {
	if workflowID == "" {
		return nil, &ValidationError{Field: "workflow_id", Message: "required"}
	}
	if estimated.IsNegative() {
		return nil, &ValidationError{Field: "estimated_cost", Message: "must not be negative"}
	}

	rec := &usage.Record{
		Entity:        types.NewEntity(),
		ID:            id.NewUsageRecordID(),
		WorkflowID:    workflowID,
		AccountID:     accountID,
		RunID:         runID,
		EstimatedCost: estimated,
		Status:        usage.StatusQueued,
	}
	rec.SetVariance()

	if err := e.store.CreateUsageRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkRunning transitions the open usage record for a run to running.
func (e *Engine) MarkRunning(ctx context.Context, workflowID string, accountID id.AccountID, runID string) (*usage.Record, error) {
	rec, err := e.store.GetOpenUsageRecord(ctx, workflowID, accountID, runID)
	if err != nil {
		return nil, err
	}
	rec.Status = usage.StatusRunning
	rec.Touch()
	if err := e.store.UpdateUsageRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ActualUsage is the execution engine's report for one finished run.
type ActualUsage struct {
	WorkflowID       string
	AccountID        id.AccountID
	RunID            string
	ActualCost       types.Credits
	ExecutionSeconds float64
	Resources        usage.ResourceUsage
	Status           usage.ExecutionStatus
	Metadata         map[string]string
}

// RecordActual closes the open usage record for a run with measured
// consumption, derives the cost variance, and folds the result into the
// workflow's estimate accuracy history. Prediction accuracy reflects the
// most recent run, not a running average; the average actual cost is the
// cumulative mean across all reconciled runs.
func (e *Engine) RecordActual(ctx context.Context, au ActualUsage) (*usage.Record, error) {
	if au.ActualCost.IsNegative() {
		return nil, &ValidationError{Field: "actual_cost", Message: "must not be negative"}
	}
	status := au.Status
	if status == "" {
		status = usage.StatusCompleted
	}
	if !status.Terminal() {
		return nil, &ValidationError{Field: "execution_status", Message: "must be terminal"}
	}

	rec, err := e.store.GetOpenUsageRecord(ctx, au.WorkflowID, au.AccountID, au.RunID)
	if err != nil {
		return nil, err
	}

	rec.ActualCost = au.ActualCost
	rec.ExecutionSeconds = au.ExecutionSeconds
	rec.Resources = au.Resources
	rec.Status = status
	if au.Metadata != nil {
		rec.Metadata = au.Metadata
	}
	rec.SetVariance()
	rec.Touch()

	if err := e.store.UpdateUsageRecord(ctx, rec); err != nil {
		return nil, err
	}

	e.updateAccuracy(ctx, rec)
	e.plugins.EmitUsageRecorded(ctx, rec)

	e.logger.Debug("usage reconciled",
		"workflow_id", rec.WorkflowID,
		"run_id", rec.RunID,
		"estimated", rec.EstimatedCost.Format(),
		"actual", rec.ActualCost.Format(),
		"variance_pct", rec.VariancePct,
	)
	return rec, nil
}

// updateAccuracy folds one reconciled run into the estimate's accuracy
// history. Accuracy is measured against the estimate's own per-run cost,
// not the tier- and region-adjusted charge the run was billed at. Missing
// estimates are fine; the run was charged at the fallback cost and there
// is nothing to calibrate.
func (e *Engine) updateAccuracy(ctx context.Context, rec *usage.Record) {
	est, err := e.store.GetEstimate(ctx, rec.WorkflowID, rec.AccountID)
	if err != nil {
		if !IsNotFound(err) {
			e.logger.Warn("accuracy update skipped", "workflow_id", rec.WorkflowID, "error", err)
		}
		return
	}

	est.ActualRuns++
	est.LastActualCost = rec.ActualCost
	// Incremental cumulative mean in micro-credits.
	delta := rec.ActualCost.Subtract(est.AverageActualCost)
	est.AverageActualCost = est.AverageActualCost.Add(delta.Divide(est.ActualRuns))
	est.PredictionAccuracy = predictionAccuracy(est.CostPerRun, rec.ActualCost)
	est.Touch()

	if err := e.store.UpsertEstimate(ctx, est); err != nil {
		e.logger.Warn("accuracy update failed", "workflow_id", rec.WorkflowID, "error", err)
		return
	}
	e.plugins.EmitAccuracyUpdated(ctx, est, est.PredictionAccuracy)
}

// predictionAccuracy is 1 − |actual − estimated| / estimated, clamped to
// [0, 1]. A non-positive estimate carries no prediction signal and scores
// the fixed midpoint 0.5.
func predictionAccuracy(estimated, actual types.Credits) float64 {
	if !estimated.IsPositive() {
		return 0.5
	}
	acc := 1 - actual.Subtract(estimated).Abs().Float64()/estimated.Float64()
	if acc < 0 {
		return 0
	}
	return acc
}

// GetUsageRecord retrieves a usage record by ID.
func (e *Engine) GetUsageRecord(ctx context.Context, recordID id.UsageRecordID) (*usage.Record, error) {
	rec, err := e.store.GetUsageRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	a, err := e.store.GetAccount(ctx, rec.AccountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListUsageRecords lists an account's usage records, newest first.
func (e *Engine) ListUsageRecords(ctx context.Context, accountID id.AccountID, opts usage.ListOpts) ([]*usage.Record, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return e.store.ListUsageRecords(ctx, accountID, opts)
}
