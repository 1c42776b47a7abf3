package pricing

import (
	"testing"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/types"
)

func TestTierMultiplier(t *testing.T) {
	tests := []struct {
		tier account.Tier
		want int64
	}{
		{account.TierFree, 10_000},
		{account.TierStandard, 9_000},
		{account.TierPremium, 8_000},
		{account.TierEnterprise, 7_000},
		{account.Tier("unknown"), 10_000},
		{account.Tier(""), 10_000},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			if got := TierMultiplier(tt.tier); got != tt.want {
				t.Errorf("TierMultiplier(%q): got %d, want %d", tt.tier, got, tt.want)
			}
		})
	}
}

func TestRegionMultiplier(t *testing.T) {
	tests := []struct {
		name string
		home string
		run  string
		want int64
	}{
		{"same region", "us-east-1", "us-east-1", 10_000},
		{"same family", "us-east-1", "us-west-2", 10_000},
		{"ca is north america", "ca-central-1", "us-east-1", 10_000},
		{"na to eu", "us-east-1", "eu-west-1", 11_000},
		{"eu to na", "eu-west-1", "us-east-1", 11_000},
		{"na to ap", "us-east-1", "ap-southeast-1", 12_000},
		{"na to sa", "us-east-1", "sa-east-1", 11_500},
		{"eu to ap", "eu-central-1", "ap-northeast-1", 12_000},
		{"unknown home", "mars-1", "us-east-1", 10_000},
		{"unknown run", "us-east-1", "mars-1", 10_000},
		{"both empty", "", "", 10_000},
		{"case insensitive", "US-EAST-1", "EU-WEST-1", 11_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RegionMultiplier(tt.home, tt.run); got != tt.want {
				t.Errorf("RegionMultiplier(%q, %q): got %d, want %d", tt.home, tt.run, got, tt.want)
			}
		})
	}
}

func TestComputeBreakdown(t *testing.T) {
	res := &estimate.AnalyzerResult{
		NodeCount:        10,
		ComplexityScore:  4,
		AINodes:          2,
		CodeNodes:        1,
		IntegrationNodes: 3,
		WebhookNodes:     1,
		Resources:        estimate.ResourceEstimate{StorageMB: 50},
	}

	b, total := ComputeBreakdown(res)

	if !b.Base.Equal(types.Micro(10_000)) {
		t.Errorf("Base: got %v, want %v", b.Base, types.Micro(10_000))
	}
	if !b.Complexity.Equal(types.Micro(2_000)) {
		t.Errorf("Complexity: got %v, want %v", b.Complexity, types.Micro(2_000))
	}
	if !b.AI.Equal(types.Micro(100_000)) {
		t.Errorf("AI: got %v, want %v", b.AI, types.Micro(100_000))
	}
	// 3 integrations + 1 webhook + 1 code node.
	if !b.Integration.Equal(types.Micro(37_000)) {
		t.Errorf("Integration: got %v, want %v", b.Integration, types.Micro(37_000))
	}
	if !b.Storage.Equal(types.Micro(5_000)) {
		t.Errorf("Storage: got %v, want %v", b.Storage, types.Micro(5_000))
	}

	if !total.Equal(b.Sum()) {
		t.Errorf("total %v does not equal component sum %v", total, b.Sum())
	}
	if b.Sum().GreaterThan(total) {
		t.Error("component sum must never exceed the per-run cost")
	}
}

func TestComputeBreakdownEmptyWorkflow(t *testing.T) {
	b, total := ComputeBreakdown(&estimate.AnalyzerResult{})
	if !total.IsZero() {
		t.Errorf("empty workflow should cost zero, got %v", total)
	}
	if !b.Sum().IsZero() {
		t.Errorf("empty workflow breakdown should sum to zero, got %v", b.Sum())
	}
}
