package usage

import (
	"math"
	"testing"

	"github.com/xraph/credits/types"
)

func TestExecutionStatusTerminal(t *testing.T) {
	tests := []struct {
		status   ExecutionStatus
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusTimeout, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Errorf("Terminal: got %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestSetVariance(t *testing.T) {
	tests := []struct {
		name      string
		estimated types.Credits
		actual    types.Credits
		variance  types.Credits
		pct       float64
	}{
		{"actual over estimate", types.FromUnits(10), types.FromUnits(12), types.FromUnits(2), 20},
		{"actual under estimate", types.FromUnits(10), types.FromUnits(8), types.FromUnits(-2), -20},
		{"exact", types.FromUnits(10), types.FromUnits(10), types.ZeroCredits(), 0},
		{"zero estimate", types.ZeroCredits(), types.FromUnits(5), types.FromUnits(5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{EstimatedCost: tt.estimated, ActualCost: tt.actual}
			r.SetVariance()
			if !r.Variance.Equal(tt.variance) {
				t.Errorf("Variance: got %v, want %v", r.Variance, tt.variance)
			}
			if math.Abs(r.VariancePct-tt.pct) > 1e-9 {
				t.Errorf("VariancePct: got %v, want %v", r.VariancePct, tt.pct)
			}
		})
	}
}
