// Package usage defines the post-run record comparing actual workflow
// consumption against the prediction it was charged under.
package usage

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ExecutionStatus is the run lifecycle as reported by the execution engine.
type ExecutionStatus string

const (
	StatusQueued    ExecutionStatus = "queued"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusTimeout   ExecutionStatus = "timeout"
)

// Terminal reports whether the run has finished. Terminal records are
// immutable.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// ResourceUsage is the measured per-run resource consumption.
type ResourceUsage struct {
	CPUSeconds      float64 `json:"cpu_seconds"`
	MemoryMBSeconds float64 `json:"memory_mb_seconds"`
	StorageMB       int64   `json:"storage_mb"`
	ErrorCount      int     `json:"error_count"`
}

// Record is one workflow run: created when the run starts, updated through
// completion. Variance fields are derived at write time from the estimated
// and actual costs.
type Record struct {
	types.Entity
	ID         id.UsageRecordID `json:"id"`
	WorkflowID string           `json:"workflow_id"`
	AccountID  id.AccountID     `json:"account_id"`
	RunID      string           `json:"run_id,omitempty"`

	EstimatedCost types.Credits `json:"estimated_cost"`
	ActualCost    types.Credits `json:"actual_cost"`
	Variance      types.Credits `json:"cost_variance"`     // actual - estimated, signed
	VariancePct   float64       `json:"cost_variance_pct"` // variance / estimated × 100

	ExecutionSeconds float64       `json:"execution_time_seconds"`
	Resources        ResourceUsage `json:"resource_usage"`

	Status   ExecutionStatus   `json:"execution_status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SetVariance derives the variance fields from the estimated and actual
// costs currently on the record. Kept as an explicit pure function so the
// derivation is unit-testable in isolation.
func (r *Record) SetVariance() {
	r.Variance = r.ActualCost.Subtract(r.EstimatedCost)
	if r.EstimatedCost.IsPositive() {
		r.VariancePct = r.Variance.Float64() / r.EstimatedCost.Float64() * 100
	} else {
		r.VariancePct = 0
	}
}

// ListOpts filters usage record listings.
type ListOpts struct {
	WorkflowID string
	Status     ExecutionStatus
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
}
