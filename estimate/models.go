// Package estimate defines the cached per-(workflow, account) cost
// prediction and the analyzer output it is computed from.
package estimate

import (
	"fmt"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status is the lifecycle state of a cost estimate. Estimates are
// superseded in place, never deleted.
type Status string

const (
	StatusActive     Status = "active"
	StatusOutdated   Status = "outdated"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// ResourceEstimate is the analyzer's predicted per-run resource footprint.
type ResourceEstimate struct {
	CPUMillicores int64 `json:"cpu_millicores"`
	MemoryMB      int64 `json:"memory_mb"`
	GPUMinutes    int64 `json:"gpu_minutes"`
	StorageMB     int64 `json:"storage_mb"`
}

// Breakdown is the per-component decomposition of the predicted run cost.
// The invariant Sum() ≤ CostPerRun must hold on every estimate.
type Breakdown struct {
	Base        types.Credits `json:"base_cost"`
	Complexity  types.Credits `json:"complexity_cost"`
	AI          types.Credits `json:"ai_cost"`
	Integration types.Credits `json:"integration_cost"`
	Storage     types.Credits `json:"storage_cost"`
}

// Sum returns the total of all components.
func (b Breakdown) Sum() types.Credits {
	return types.SumCredits(b.Base, b.Complexity, b.AI, b.Integration, b.Storage)
}

// Severity levels for validation findings.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Finding is one typed validation finding reported by the analyzer.
// Findings are carried as a typed list, not an opaque blob, so consumers
// can filter by code and severity.
type Finding struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	NodeID   string `json:"node_id,omitempty"`
}

// AnalyzerResult is the workflow analyzer's output for one workflow
// definition. ContentHash is the change-detection key: an unchanged hash
// means the cached estimate can be reused without recomputing.
type AnalyzerResult struct {
	NodeCount          int              `json:"node_count"`
	SupportedNodeCount int              `json:"supported_node_count"`
	ComplexityScore    float64          `json:"complexity_score"`
	Resources          ResourceEstimate `json:"resource_estimate"`

	AINodes          int `json:"ai_node_count"`
	CodeNodes        int `json:"code_node_count"`
	IntegrationNodes int `json:"integration_node_count"`
	WebhookNodes     int `json:"webhook_node_count"`

	SecurityScore float64   `json:"security_score"`
	Findings      []Finding `json:"validation_findings,omitempty"`
	ContentHash   string    `json:"content_hash"`
}

// CostEstimate is the cached cost prediction for one (workflow, account)
// pair. Exactly one record exists per key; upserts replace its fields in
// place and preserve the accuracy-tracking history.
type CostEstimate struct {
	types.Entity
	ID         id.EstimateID `json:"id"`
	WorkflowID string        `json:"workflow_id"`
	AccountID  id.AccountID  `json:"account_id"`

	ContentHash string           `json:"content_hash"`
	Resources   ResourceEstimate `json:"resource_estimate"`

	CostPerRun types.Credits `json:"estimated_cost_per_run"`
	Breakdown  Breakdown     `json:"cost_breakdown"`

	NodeCount          int     `json:"node_count"`
	SupportedNodeCount int     `json:"supported_node_count"`
	ComplexityScore    float64 `json:"complexity_score"`
	SecurityScore      float64 `json:"security_score"`

	Findings []Finding `json:"validation_findings,omitempty"`

	Status         Status    `json:"estimate_status"`
	IsCached       bool      `json:"is_cached"`
	CacheExpiresAt time.Time `json:"cache_expires_at"`

	// Accuracy tracking. PredictionAccuracy is recomputed from the most
	// recent run on every usage reconciliation; it is not a running
	// average (see RecordActual).
	ActualRuns         int64         `json:"actual_runs_count"`
	AverageActualCost  types.Credits `json:"average_actual_cost"`
	PredictionAccuracy float64       `json:"cost_prediction_accuracy"`
	LastActualCost     types.Credits `json:"last_actual_cost"`
}

// Fresh reports whether the estimate is servable at the given instant:
// active, and either not cache-backed or not yet expired.
func (e *CostEstimate) Fresh(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if !e.IsCached {
		return true
	}
	return e.CacheExpiresAt.After(now)
}

// Validate checks the component-sum invariant. An estimate whose
// components total more than the predicted run cost is rejected.
func (e *CostEstimate) Validate() error {
	if e.WorkflowID == "" {
		return fmt.Errorf("estimate: missing workflow id")
	}
	if e.AccountID.IsNil() {
		return fmt.Errorf("estimate: missing account id")
	}
	if e.CostPerRun.IsNegative() {
		return fmt.Errorf("estimate: negative cost per run %s", e.CostPerRun.Format())
	}
	if sum := e.Breakdown.Sum(); sum.GreaterThan(e.CostPerRun) {
		return fmt.Errorf("estimate: component sum %s exceeds cost per run %s",
			sum.Format(), e.CostPerRun.Format())
	}
	return nil
}

// ListOpts filters estimate listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
