// Package pricing holds the fixed cost model: tier and region multipliers
// and the breakdown computation that turns analyzer output into a cost
// estimate. Everything here is a pure function over its inputs so the
// arithmetic stays unit-testable in isolation.
package pricing

import (
	"strings"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/types"
)

// Multipliers are expressed in basis points (10000 = ×1.0) so estimates
// stay in exact integer arithmetic end to end.
const BasisPointsOne int64 = 10_000

// DefaultRunCost is the fixed fallback charged when no fresh estimate
// exists for a workflow. Execution is never blocked on a missing estimate.
var DefaultRunCost = types.Micro(10_000) // 0.01 credits

// Per-unit cost constants, in micro-credits.
const (
	baseCostMicros        = 1_000 // per node
	complexityCostMicros  = 500   // per complexity point
	aiNodeCostMicros      = 50_000
	codeNodeCostMicros    = 5_000
	integrationNodeMicros = 10_000
	webhookNodeMicros     = 2_000
	storageMBMicros       = 100 // per MB of predicted storage
)

// TierMultiplier returns the basis-point multiplier for an account tier.
// Higher tiers pay less per run. Unknown tiers price as free.
func TierMultiplier(tier account.Tier) int64 {
	switch tier {
	case account.TierStandard:
		return 9_000
	case account.TierPremium:
		return 8_000
	case account.TierEnterprise:
		return 7_000
	default:
		return BasisPointsOne
	}
}

// regionFamily maps a concrete region ("us-east-1") to its pricing family.
func regionFamily(region string) string {
	region = strings.ToLower(region)
	switch {
	case strings.HasPrefix(region, "us-"), strings.HasPrefix(region, "ca-"):
		return "na"
	case strings.HasPrefix(region, "eu-"):
		return "eu"
	case strings.HasPrefix(region, "ap-"):
		return "ap"
	case strings.HasPrefix(region, "sa-"):
		return "sa"
	default:
		return ""
	}
}

// crossRegionBP is the premium charged when a run executes outside the
// account's home region family.
var crossRegionBP = map[[2]string]int64{
	{"na", "eu"}: 11_000,
	{"eu", "na"}: 11_000,
	{"na", "ap"}: 12_000,
	{"ap", "na"}: 12_000,
	{"eu", "ap"}: 12_000,
	{"ap", "eu"}: 12_000,
	{"na", "sa"}: 11_500,
	{"sa", "na"}: 11_500,
	{"eu", "sa"}: 12_000,
	{"sa", "eu"}: 12_000,
	{"ap", "sa"}: 12_000,
	{"sa", "ap"}: 12_000,
}

// RegionMultiplier returns the basis-point multiplier for executing in
// runRegion on behalf of an account homed in homeRegion. Same-family and
// unknown regions price at ×1.0; cross-family premiums go up to ×1.2.
func RegionMultiplier(homeRegion, runRegion string) int64 {
	home, run := regionFamily(homeRegion), regionFamily(runRegion)
	if home == "" || run == "" || home == run {
		return BasisPointsOne
	}
	if bp, ok := crossRegionBP[[2]string{home, run}]; ok {
		return bp
	}
	return BasisPointsOne
}

// ComputeBreakdown derives the per-component cost decomposition from
// analyzer output. The returned total always satisfies the estimate
// invariant: sum of components ≤ cost per run.
func ComputeBreakdown(res *estimate.AnalyzerResult) (estimate.Breakdown, types.Credits) {
	integrationMicros := int64(res.IntegrationNodes)*integrationNodeMicros +
		int64(res.WebhookNodes)*webhookNodeMicros +
		int64(res.CodeNodes)*codeNodeCostMicros

	b := estimate.Breakdown{
		Base:        types.Micro(int64(res.NodeCount) * baseCostMicros),
		Complexity:  types.Micro(int64(res.ComplexityScore * complexityCostMicros)),
		AI:          types.Micro(int64(res.AINodes) * aiNodeCostMicros),
		Integration: types.Micro(integrationMicros),
		Storage:     types.Micro(res.Resources.StorageMB * storageMBMicros),
	}
	return b, b.Sum()
}
