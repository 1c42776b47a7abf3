package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

// ──────────────────────────────────────────────────
// Workflow Deductions
// ──────────────────────────────────────────────────

// DeductionRequest identifies one workflow run to price.
type DeductionRequest struct {
	WorkflowID string
	AccountID  id.AccountID
	RunID      string
	HomeRegion string
	RunRegion  string
}

// Deduction is the priced outcome: the base per-run cost, the basis-point
// multipliers applied, and the final charge.
type Deduction struct {
	WorkflowID    string        `json:"workflow_id"`
	AccountID     id.AccountID  `json:"account_id"`
	RunID         string        `json:"run_id,omitempty"`
	BaseCost      types.Credits `json:"base_cost"`
	TierBP        int64         `json:"tier_multiplier_bp"`
	RegionBP      int64         `json:"region_multiplier_bp"`
	Amount        types.Credits `json:"amount"`
	EstimateFound bool          `json:"estimate_found"`
}

// ComputeDeduction prices one workflow run. The base cost comes from the
// fresh estimate when one exists; a missing or expired estimate falls back
// to the default run cost so execution is never blocked on estimation.
// Tier and region multipliers apply on top, in integer basis points.
func (e *Engine) ComputeDeduction(ctx context.Context, req DeductionRequest) (*Deduction, error) {
	if req.WorkflowID == "" {
		return nil, &ValidationError{Field: "workflow_id", Message: "required"}
	}

	a, err := e.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	d := &Deduction{
		WorkflowID: req.WorkflowID,
		AccountID:  req.AccountID,
		RunID:      req.RunID,
		BaseCost:   e.defaultRunCost,
		TierBP:     pricing.TierMultiplier(a.Tier),
		RegionBP:   pricing.RegionMultiplier(req.HomeRegion, req.RunRegion),
	}

	est, err := e.store.GetEstimate(ctx, req.WorkflowID, req.AccountID)
	if err == nil && est.Fresh(time.Now().UTC()) {
		d.BaseCost = est.CostPerRun
		d.EstimateFound = true
	} else if err != nil && !IsNotFound(err) {
		return nil, err
	}

	d.Amount = d.BaseCost.MulBasisPoints(d.TierBP).MulBasisPoints(d.RegionBP)

	e.plugins.EmitDeductionComputed(ctx, d)
	return d, nil
}

// ChargeRun prices a run, debits the account with a workflow_cost entry,
// and opens the usage record that the reconciler closes after the run.
// The ledger entry and the usage record both reference the run ID.
func (e *Engine) ChargeRun(ctx context.Context, req DeductionRequest) (*Deduction, *usage.Record, error) {
	d, err := e.ComputeDeduction(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if d.Amount.IsPositive() {
		if _, err := e.Apply(ctx, ApplyRequest{
			AccountID: req.AccountID,
			Type:      entry.TypeWorkflowCost,
			Amount:    d.Amount,
			Reference: &entry.Reference{Kind: entry.RefWorkflowRun, ID: req.RunID},
		}); err != nil {
			return nil, nil, err
		}
	}

	rec, err := e.StartUsage(ctx, req.WorkflowID, req.AccountID, req.RunID, d.Amount)
	if err != nil {
		return nil, nil, err
	}

	return d, rec, nil
}
