package credits_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/types"
)

func TestApplyCreditAndDebit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_apply")

	le, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeCredit,
		Amount:    types.FromUnits(100),
	})
	if err != nil {
		t.Fatalf("credit apply failed: %v", err)
	}
	if !le.BalanceBefore.IsZero() || !le.BalanceAfter.Equal(types.FromUnits(100)) {
		t.Errorf("credit snapshots: before=%v after=%v", le.BalanceBefore, le.BalanceAfter)
	}
	if le.Status != entry.StatusCompleted {
		t.Errorf("status: got %s, want completed", le.Status)
	}

	le, err = e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeDebit,
		Amount:    types.FromUnits(30),
	})
	if err != nil {
		t.Fatalf("debit apply failed: %v", err)
	}
	if !le.BalanceBefore.Equal(types.FromUnits(100)) || !le.BalanceAfter.Equal(types.FromUnits(70)) {
		t.Errorf("debit snapshots: before=%v after=%v", le.BalanceBefore, le.BalanceAfter)
	}

	if got := balance(t, e, a); !got.Equal(types.FromUnits(70)) {
		t.Errorf("balance: got %v, want %v", got, types.FromUnits(70))
	}

	acct, err := e.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.TotalEarned.Equal(types.FromUnits(100)) {
		t.Errorf("TotalEarned: got %v, want %v", acct.TotalEarned, types.FromUnits(100))
	}
	if !acct.TotalSpent.Equal(types.FromUnits(30)) {
		t.Errorf("TotalSpent: got %v, want %v", acct.TotalSpent, types.FromUnits(30))
	}
	if acct.Version != 3 {
		t.Errorf("version: got %d, want 3", acct.Version)
	}
}

func TestApplyRejectsOverdraft(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_overdraft")
	fund(t, e, a, types.FromUnits(10))

	_, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeDebit,
		Amount:    types.FromUnits(11),
	})
	if !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing was written.
	if got := balance(t, e, a); !got.Equal(types.FromUnits(10)) {
		t.Errorf("balance changed on rejected debit: %v", got)
	}
	entries, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypeDebit})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected debit left %d entries", len(entries))
	}

	// Draining to exactly zero is allowed.
	if _, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeDebit,
		Amount:    types.FromUnits(10),
	}); err != nil {
		t.Fatalf("drain to zero failed: %v", err)
	}
	if got := balance(t, e, a); !got.IsZero() {
		t.Errorf("balance after drain: got %v, want zero", got)
	}
}

func TestApplyValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_validate")

	tests := []struct {
		name    string
		req     credits.ApplyRequest
		wantErr error
	}{
		{
			"zero amount",
			credits.ApplyRequest{AccountID: a.ID, Type: entry.TypeCredit, Amount: types.ZeroCredits()},
			credits.ErrInvalidAmount,
		},
		{
			"negative amount",
			credits.ApplyRequest{AccountID: a.ID, Type: entry.TypeCredit, Amount: types.FromUnits(-1)},
			credits.ErrInvalidAmount,
		},
		{
			"unknown type",
			credits.ApplyRequest{AccountID: a.ID, Type: entry.Type("deposit"), Amount: types.FromUnits(1)},
			credits.ErrInvalidEntryType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Apply(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyInactiveAccount(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_inactive")
	fund(t, e, a, types.FromUnits(10))

	if _, err := e.SuspendAccount(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeDebit, Amount: types.FromUnits(1),
	})
	if !errors.Is(err, credits.ErrAccountNotActive) {
		t.Errorf("suspended: got %v, want ErrAccountNotActive", err)
	}

	if _, err := e.ReactivateAccount(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeDebit, Amount: types.FromUnits(1),
	}); err != nil {
		t.Fatalf("reactivated apply failed: %v", err)
	}

	if _, err := e.CloseAccount(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err = e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeCredit, Amount: types.FromUnits(1),
	})
	if !errors.Is(err, credits.ErrAccountClosed) {
		t.Errorf("closed: got %v, want ErrAccountClosed", err)
	}

	// Closed accounts cannot be reopened.
	if _, err := e.ReactivateAccount(ctx, a.ID); !errors.Is(err, credits.ErrAccountClosed) {
		t.Errorf("reactivate closed: got %v, want ErrAccountClosed", err)
	}
	if _, err := e.SuspendAccount(ctx, a.ID); !errors.Is(err, credits.ErrAccountClosed) {
		t.Errorf("suspend closed: got %v, want ErrAccountClosed", err)
	}
}

func TestPendingFinalizeCompleted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_pending_ok")
	fund(t, e, a, types.FromUnits(100))

	held, err := e.ApplyPending(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeDebit,
		Amount:    types.FromUnits(40),
	})
	if err != nil {
		t.Fatalf("ApplyPending failed: %v", err)
	}
	if held.Status != entry.StatusPending {
		t.Fatalf("status: got %s, want pending", held.Status)
	}

	// The delta holds immediately.
	if got := balance(t, e, a); !got.Equal(types.FromUnits(60)) {
		t.Errorf("held balance: got %v, want %v", got, types.FromUnits(60))
	}

	fin, err := e.Finalize(ctx, held.ID, entry.StatusCompleted)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if fin.Status != entry.StatusCompleted {
		t.Errorf("finalized status: got %s, want completed", fin.Status)
	}
	if got := balance(t, e, a); !got.Equal(types.FromUnits(60)) {
		t.Errorf("confirmed balance: got %v, want %v", got, types.FromUnits(60))
	}

	// Finalizing twice is rejected.
	if _, err := e.Finalize(ctx, held.ID, entry.StatusCompleted); !errors.Is(err, credits.ErrEntryNotPending) {
		t.Errorf("double finalize: got %v, want ErrEntryNotPending", err)
	}
}

func TestPendingFinalizeFailedCompensates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_pending_fail")
	fund(t, e, a, types.FromUnits(100))

	held, err := e.ApplyPending(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeDebit,
		Amount:    types.FromUnits(40),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Finalize(ctx, held.ID, entry.StatusFailed); err != nil {
		t.Fatalf("Finalize failed outcome: %v", err)
	}

	// The held amount comes back and the accumulator reverts.
	if got := balance(t, e, a); !got.Equal(types.FromUnits(100)) {
		t.Errorf("compensated balance: got %v, want %v", got, types.FromUnits(100))
	}
	acct, err := e.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.TotalSpent.IsZero() {
		t.Errorf("TotalSpent after compensation: got %v, want zero", acct.TotalSpent)
	}
}

func TestPendingCreditCompensation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_pending_credit")

	held, err := e.ApplyPending(ctx, credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypePurchase,
		Amount:    types.FromUnits(50),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := balance(t, e, a); !got.Equal(types.FromUnits(50)) {
		t.Fatalf("held credit: got %v", got)
	}

	// Spend part of the held credit, then cancel the purchase: the revert
	// would go negative, so the finalize is rejected.
	if _, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeDebit, Amount: types.FromUnits(20),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Finalize(ctx, held.ID, entry.StatusCancelled); !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Refund the spend and cancel again: revert succeeds.
	if _, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeCredit, Amount: types.FromUnits(20),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Finalize(ctx, held.ID, entry.StatusCancelled); err != nil {
		t.Fatalf("cancel after top-up failed: %v", err)
	}

	acct, err := e.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.TotalPurchased.IsZero() {
		t.Errorf("TotalPurchased after cancel: got %v, want zero", acct.TotalPurchased)
	}
}

func TestFinalizeRequiresTerminalOutcome(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_fin_outcome")
	fund(t, e, a, types.FromUnits(10))

	held, err := e.ApplyPending(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeDebit, Amount: types.FromUnits(1),
	})
	if err != nil {
		t.Fatal(err)
	}

	var verr *credits.ValidationError
	if _, err := e.Finalize(ctx, held.ID, entry.StatusPending); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestSpendLimits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_limits")
	fund(t, e, a, types.FromUnits(1000))

	if _, err := e.SetSpendLimits(ctx, a.ID, types.FromUnits(10), types.FromUnits(15)); err != nil {
		t.Fatal(err)
	}

	debit := func(amount types.Credits) error {
		_, err := e.Apply(ctx, credits.ApplyRequest{
			AccountID: a.ID, Type: entry.TypeDebit, Amount: amount,
		})
		return err
	}

	if err := debit(types.FromUnits(6)); err != nil {
		t.Fatalf("first debit failed: %v", err)
	}
	// 6 + 5 > 10 daily.
	if err := debit(types.FromUnits(5)); !errors.Is(err, credits.ErrSpendLimitReached) {
		t.Fatalf("daily limit: got %v, want ErrSpendLimitReached", err)
	}
	// Exactly at the daily ceiling is allowed.
	if err := debit(types.FromUnits(4)); err != nil {
		t.Fatalf("debit to daily ceiling failed: %v", err)
	}

	// Lift the daily limit; the monthly ceiling still binds.
	if _, err := e.SetSpendLimits(ctx, a.ID, types.ZeroCredits(), types.FromUnits(15)); err != nil {
		t.Fatal(err)
	}
	if err := debit(types.FromUnits(6)); !errors.Is(err, credits.ErrSpendLimitReached) {
		t.Fatalf("monthly limit: got %v, want ErrSpendLimitReached", err)
	}
	if err := debit(types.FromUnits(5)); err != nil {
		t.Fatalf("debit to monthly ceiling failed: %v", err)
	}

	spent, err := e.GetDailySpend(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !spent.Equal(types.FromUnits(15)) {
		t.Errorf("daily spend: got %v, want %v", spent, types.FromUnits(15))
	}
}

func TestCallerAuthorization(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_owner")

	le, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeBonus, Amount: types.FromUnits(5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID: "pi_owner", AccountID: a.ID, CreditAmount: types.FromUnits(5),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.UpsertEstimate(ctx, "wf_owner", a.ID, analyzerResult("h1")); err != nil {
		t.Fatal(err)
	}
	rec, err := e.StartUsage(ctx, "wf_owner", a.ID, "run_1", types.FromUnits(1))
	if err != nil {
		t.Fatal(err)
	}

	// The owner and trusted service contexts both read.
	owner := credits.WithCaller(context.Background(), "user_owner")
	if _, err := e.GetAccount(owner, a.ID); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := e.GetEntry(owner, le.ID); err != nil {
		t.Fatalf("owner entry read failed: %v", err)
	}
	if _, err := e.GetAccount(ctx, a.ID); err != nil {
		t.Fatalf("service read failed: %v", err)
	}

	// A different caller is rejected on every account-scoped read,
	// including the point getters reached by a foreign resource ID.
	stranger := credits.WithCaller(context.Background(), "user_other")
	reads := []struct {
		name string
		call func() error
	}{
		{"GetAccount", func() error { _, err := e.GetAccount(stranger, a.ID); return err }},
		{"ListEntries", func() error { _, err := e.ListEntries(stranger, a.ID, entry.ListOpts{}); return err }},
		{"GetEntry", func() error { _, err := e.GetEntry(stranger, le.ID); return err }},
		{"GetPaymentIntent", func() error { _, err := e.GetPaymentIntent(stranger, "pi_owner"); return err }},
		{"GetEstimate", func() error { _, err := e.GetEstimate(stranger, "wf_owner", a.ID); return err }},
		{"ListEstimates", func() error { _, err := e.ListEstimates(stranger, a.ID, estimate.ListOpts{}); return err }},
		{"GetUsageRecord", func() error { _, err := e.GetUsageRecord(stranger, rec.ID); return err }},
	}
	for _, r := range reads {
		if err := r.call(); !errors.Is(err, credits.ErrForbidden) {
			t.Errorf("%s: got %v, want ErrForbidden", r.name, err)
		}
	}
}
