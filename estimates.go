package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Cost Estimation
// ──────────────────────────────────────────────────

// UpsertEstimate converts analyzer output into the cached cost estimate
// for one (workflow, account) pair. An existing fresh estimate with the
// same content hash is returned as-is; otherwise the estimate is
// recomputed in place, preserving its accuracy-tracking history.
func (e *Engine) UpsertEstimate(ctx context.Context, workflowID string, accountID id.AccountID, res *estimate.AnalyzerResult) (*estimate.CostEstimate, error) {
	if workflowID == "" {
		return nil, &ValidationError{Field: "workflow_id", Message: "required"}
	}
	if res == nil {
		return nil, &ValidationError{Field: "analyzer_result", Message: "required"}
	}

	now := time.Now().UTC()

	existing, err := e.store.GetEstimate(ctx, workflowID, accountID)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	if existing != nil && existing.ContentHash == res.ContentHash && existing.Fresh(now) {
		e.plugins.EmitEstimateUpserted(ctx, existing, true)
		return existing, nil
	}

	breakdown, costPerRun := e.computeCost(ctx, res)

	est := &estimate.CostEstimate{
		Entity:     types.NewEntity(),
		ID:         id.NewEstimateID(),
		WorkflowID: workflowID,
		AccountID:  accountID,

		ContentHash: res.ContentHash,
		Resources:   res.Resources,

		CostPerRun: costPerRun,
		Breakdown:  breakdown,

		NodeCount:          res.NodeCount,
		SupportedNodeCount: res.SupportedNodeCount,
		ComplexityScore:    res.ComplexityScore,
		SecurityScore:      res.SecurityScore,
		Findings:           res.Findings,

		Status:         estimate.StatusActive,
		IsCached:       true,
		CacheExpiresAt: now.Add(e.estimateCacheTTL),
	}

	if existing != nil {
		// Superseded in place: identity and accuracy history survive.
		est.ID = existing.ID
		est.Entity.CreatedAt = existing.CreatedAt
		est.ActualRuns = existing.ActualRuns
		est.AverageActualCost = existing.AverageActualCost
		est.PredictionAccuracy = existing.PredictionAccuracy
		est.LastActualCost = existing.LastActualCost
	}

	if err := est.Validate(); err != nil {
		e.logger.Error("estimate rejected", "workflow_id", workflowID, "error", err)
		return nil, ErrEstimateInvalid
	}

	if err := e.store.UpsertEstimate(ctx, est); err != nil {
		return nil, err
	}

	e.plugins.EmitEstimateUpserted(ctx, est, false)
	return est, nil
}

// computeCost derives the cost breakdown from analyzer output, through a
// registered CostModel plugin when one is configured, otherwise through
// the built-in pricing arithmetic.
func (e *Engine) computeCost(ctx context.Context, res *estimate.AnalyzerResult) (estimate.Breakdown, types.Credits) {
	if e.costModel != "" {
		if model := e.plugins.GetCostModel(e.costModel); model != nil {
			v, err := model.Compute(ctx, res)
			if err == nil {
				if b, ok := v.(estimate.Breakdown); ok {
					return b, b.Sum()
				}
			}
			e.logger.Warn("cost model fallback",
				"model", e.costModel,
				"error", err,
			)
		}
	}
	return pricing.ComputeBreakdown(res)
}

// GetEstimate returns the fresh estimate for a (workflow, account) pair.
// A cached estimate past its TTL returns ErrEstimateExpired.
func (e *Engine) GetEstimate(ctx context.Context, workflowID string, accountID id.AccountID) (*estimate.CostEstimate, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	est, err := e.store.GetEstimate(ctx, workflowID, accountID)
	if err != nil {
		return nil, err
	}
	if !est.Fresh(time.Now().UTC()) {
		return nil, ErrEstimateExpired
	}
	return est, nil
}

// ListEstimates lists an account's cost estimates.
func (e *Engine) ListEstimates(ctx context.Context, accountID id.AccountID, opts estimate.ListOpts) ([]*estimate.CostEstimate, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return e.store.ListEstimates(ctx, accountID, opts)
}

// PurgeExpiredEstimates removes cache-backed estimates whose TTL lapsed
// before the given instant. The background worker runs this periodically;
// it is exported for operational use.
func (e *Engine) PurgeExpiredEstimates(ctx context.Context, before time.Time) (int64, error) {
	return e.store.PurgeEstimates(ctx, before)
}
