package credits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/types"
)

func analyzerResult(hash string) *estimate.AnalyzerResult {
	return &estimate.AnalyzerResult{
		NodeCount:          10,
		SupportedNodeCount: 10,
		ComplexityScore:    4,
		AINodes:            2,
		IntegrationNodes:   3,
		WebhookNodes:       1,
		Resources:          estimate.ResourceEstimate{StorageMB: 50},
		ContentHash:        hash,
	}
}

func TestUpsertEstimate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est")

	est, err := e.UpsertEstimate(ctx, "wf_upsert", a.ID, analyzerResult("h1"))
	if err != nil {
		t.Fatalf("UpsertEstimate failed: %v", err)
	}
	if est.Status != estimate.StatusActive {
		t.Errorf("status: got %s, want active", est.Status)
	}
	if !est.IsCached || est.CacheExpiresAt.IsZero() {
		t.Error("estimate should be cache-backed with an expiry")
	}
	if !est.CostPerRun.Equal(est.Breakdown.Sum()) {
		t.Errorf("cost %v does not equal breakdown sum %v", est.CostPerRun, est.Breakdown.Sum())
	}
	if est.NodeCount != 10 || est.ComplexityScore != 4 {
		t.Error("analyzer fields not carried onto the estimate")
	}

	got, err := e.GetEstimate(ctx, "wf_upsert", a.ID)
	if err != nil {
		t.Fatalf("GetEstimate failed: %v", err)
	}
	if got.ID.String() != est.ID.String() {
		t.Errorf("id mismatch: %s != %s", got.ID, est.ID)
	}
}

func TestUpsertEstimateContentHashReuse(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_reuse")

	first, err := e.UpsertEstimate(ctx, "wf_reuse", a.ID, analyzerResult("h1"))
	if err != nil {
		t.Fatal(err)
	}

	// Same content hash: the cached estimate comes back untouched.
	second, err := e.UpsertEstimate(ctx, "wf_reuse", a.ID, analyzerResult("h1"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID.String() != first.ID.String() {
		t.Error("reused estimate changed identity")
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("reused estimate was rewritten")
	}

	// Changed hash: recompute in place under the same identity.
	bigger := analyzerResult("h2")
	bigger.AINodes = 5
	third, err := e.UpsertEstimate(ctx, "wf_reuse", a.ID, bigger)
	if err != nil {
		t.Fatal(err)
	}
	if third.ID.String() != first.ID.String() {
		t.Error("superseded estimate changed identity")
	}
	if third.ContentHash != "h2" {
		t.Errorf("content hash: got %s, want h2", third.ContentHash)
	}
	if !third.CostPerRun.GreaterThan(first.CostPerRun) {
		t.Errorf("recomputed cost %v should exceed original %v", third.CostPerRun, first.CostPerRun)
	}
}

func TestGetEstimateExpired(t *testing.T) {
	e := newTestEngine(t, credits.WithEstimateCacheTTL(-time.Hour))
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_ttl")

	if _, err := e.UpsertEstimate(ctx, "wf_ttl", a.ID, analyzerResult("h1")); err != nil {
		t.Fatal(err)
	}

	_, err := e.GetEstimate(ctx, "wf_ttl", a.ID)
	if !errors.Is(err, credits.ErrEstimateExpired) {
		t.Errorf("expected ErrEstimateExpired, got %v", err)
	}

	// An expired estimate is not reused even for an unchanged hash.
	if _, err := e.UpsertEstimate(ctx, "wf_ttl", a.ID, analyzerResult("h1")); err != nil {
		t.Fatalf("re-upsert over expired estimate failed: %v", err)
	}
}

func TestUpsertEstimateRejectsInvalid(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_invalid")

	// A negative node count drives the computed cost negative, violating
	// the estimate invariants.
	res := analyzerResult("h1")
	res.NodeCount = -5
	res.AINodes = 0
	res.IntegrationNodes = 0
	res.WebhookNodes = 0
	res.ComplexityScore = 0
	res.Resources = estimate.ResourceEstimate{}

	_, err := e.UpsertEstimate(ctx, "wf_invalid", a.ID, res)
	if !errors.Is(err, credits.ErrEstimateInvalid) {
		t.Errorf("expected ErrEstimateInvalid, got %v", err)
	}
}

func TestUpsertEstimateValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_args")

	var verr *credits.ValidationError
	if _, err := e.UpsertEstimate(ctx, "", a.ID, analyzerResult("h1")); !errors.As(err, &verr) {
		t.Errorf("missing workflow id: expected ValidationError, got %v", err)
	}
	if _, err := e.UpsertEstimate(ctx, "wf_args", a.ID, nil); !errors.As(err, &verr) {
		t.Errorf("nil analyzer result: expected ValidationError, got %v", err)
	}
}

func TestPurgeExpiredEstimates(t *testing.T) {
	e := newTestEngine(t, credits.WithEstimateCacheTTL(-time.Hour))
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_purge")

	if _, err := e.UpsertEstimate(ctx, "wf_purge", a.ID, analyzerResult("h1")); err != nil {
		t.Fatal(err)
	}

	purged, err := e.PurgeExpiredEstimates(ctx, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("purged: got %d, want 1", purged)
	}
	if _, err := e.GetEstimate(ctx, "wf_purge", a.ID); !errors.Is(err, credits.ErrEstimateNotFound) {
		t.Errorf("expected ErrEstimateNotFound after purge, got %v", err)
	}
}

func TestListEstimates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_list")

	for _, wf := range []string{"wf_a", "wf_b"} {
		if _, err := e.UpsertEstimate(ctx, wf, a.ID, analyzerResult("h_"+wf)); err != nil {
			t.Fatal(err)
		}
	}

	ests, err := e.ListEstimates(ctx, a.ID, estimate.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ests) != 2 {
		t.Errorf("estimates: got %d, want 2", len(ests))
	}
}

// An analyzer result priced through a registered cost model plugin.
type fixedCostModel struct {
	name      string
	breakdown estimate.Breakdown
}

func (m *fixedCostModel) Name() string      { return m.name }
func (m *fixedCostModel) ModelName() string { return m.name }

func (m *fixedCostModel) Compute(_ context.Context, _ interface{}) (interface{}, error) {
	return m.breakdown, nil
}

func TestUpsertEstimateCostModelPlugin(t *testing.T) {
	model := &fixedCostModel{
		name:      "flat",
		breakdown: estimate.Breakdown{Base: types.Micro(42_000)},
	}
	e := newTestEngine(t,
		credits.WithPlugin(model),
		credits.WithCostModel("flat"),
	)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_est_model")

	est, err := e.UpsertEstimate(ctx, "wf_model", a.ID, analyzerResult("h1"))
	if err != nil {
		t.Fatal(err)
	}
	if !est.CostPerRun.Equal(types.Micro(42_000)) {
		t.Errorf("plugin-priced cost: got %v, want %v", est.CostPerRun, types.Micro(42_000))
	}
}
