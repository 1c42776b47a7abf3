package credits_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/types"
)

// TestQuickstart walks the documented end-to-end flow: open an account,
// settle a purchase through the gateway, charge a workflow run, and
// reconcile it against measured usage.
func TestQuickstart(t *testing.T) {
	ctx := context.Background()

	engine := credits.New(memory.New(),
		credits.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	}()

	// 1. Open an account for the user.
	acct := &account.Account{UserID: "user_quickstart"}
	if err := engine.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	// 2. The user buys a credit package; the gateway confirms it.
	if _, err := engine.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_quickstart",
		AccountID:    acct.ID,
		PackageID:    "starter",
		CreditAmount: types.FromUnits(100),
		FiatAmount:   types.USD(999),
	}); err != nil {
		t.Fatalf("CreatePaymentIntent failed: %v", err)
	}
	if _, err := engine.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_quickstart",
		Status:     payment.StatusCompleted,
		FiatAmount: types.USD(999),
	}); err != nil {
		t.Fatalf("HandleGatewayEvent failed: %v", err)
	}

	b, err := engine.GetBalance(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Equal(types.FromUnits(100)) {
		t.Fatalf("balance after purchase: got %v, want %v", b, types.FromUnits(100))
	}

	// 3. Price the workflow from analyzer output.
	est, err := engine.UpsertEstimate(ctx, "wf_quickstart", acct.ID, analyzerResult("hash_v1"))
	if err != nil {
		t.Fatalf("UpsertEstimate failed: %v", err)
	}

	// 4. Charge a run and open its usage record.
	d, rec, err := engine.ChargeRun(ctx, credits.DeductionRequest{
		WorkflowID: "wf_quickstart",
		AccountID:  acct.ID,
		RunID:      "run_1",
	})
	if err != nil {
		t.Fatalf("ChargeRun failed: %v", err)
	}
	if !d.EstimateFound || !d.BaseCost.Equal(est.CostPerRun) {
		t.Errorf("charge did not price from the estimate: %+v", d)
	}

	// 5. Reconcile the finished run.
	if _, err := engine.RecordActual(ctx, credits.ActualUsage{
		WorkflowID:       "wf_quickstart",
		AccountID:        acct.ID,
		RunID:            "run_1",
		ActualCost:       rec.EstimatedCost,
		ExecutionSeconds: 2.5,
	}); err != nil {
		t.Fatalf("RecordActual failed: %v", err)
	}

	// The ledger carries the full story: purchase plus workflow charge.
	entries, err := engine.ListEntries(ctx, acct.ID, entry.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("ledger entries: got %d, want 2", len(entries))
	}
}
