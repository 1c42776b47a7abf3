package credits_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
)

func TestCreatePaymentIntent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_pi")

	req := credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_create",
		AccountID:    a.ID,
		PackageID:    "starter",
		CreditAmount: types.FromUnits(100),
		BonusCredits: types.FromUnits(10),
		FiatAmount:   types.USD(999),
	}
	intent, err := e.CreatePaymentIntent(ctx, req)
	if err != nil {
		t.Fatalf("CreatePaymentIntent failed: %v", err)
	}
	if intent.Status != payment.StatusPending {
		t.Errorf("status: got %s, want pending", intent.Status)
	}
	if !intent.TotalCredits().Equal(types.FromUnits(110)) {
		t.Errorf("TotalCredits: got %v, want %v", intent.TotalCredits(), types.FromUnits(110))
	}

	// The external ID is the idempotency key.
	if _, err := e.CreatePaymentIntent(ctx, req); !errors.Is(err, credits.ErrDuplicateIntent) {
		t.Errorf("duplicate: got %v, want ErrDuplicateIntent", err)
	}
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_pi_valid")

	tests := []struct {
		name string
		req  credits.PaymentIntentRequest
	}{
		{"missing external id", credits.PaymentIntentRequest{
			AccountID: a.ID, CreditAmount: types.FromUnits(1),
		}},
		{"zero credits", credits.PaymentIntentRequest{
			ExternalID: "pi_zero", AccountID: a.ID,
		}},
		{"negative bonus", credits.PaymentIntentRequest{
			ExternalID: "pi_neg", AccountID: a.ID,
			CreditAmount: types.FromUnits(1), BonusCredits: types.FromUnits(-1),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *credits.ValidationError
			if _, err := e.CreatePaymentIntent(ctx, tt.req); !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	// Suspended accounts cannot open intents.
	if _, err := e.SuspendAccount(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID: "pi_suspended", AccountID: a.ID, CreditAmount: types.FromUnits(1),
	})
	if !errors.Is(err, credits.ErrAccountNotActive) {
		t.Errorf("suspended: got %v, want ErrAccountNotActive", err)
	}
}

func TestGatewayCompleted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_complete")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_done",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(100),
		BonusCredits: types.FromUnits(10),
		FiatAmount:   types.USD(999),
	}); err != nil {
		t.Fatal(err)
	}

	intent, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID:        "pi_ext_done",
		Status:            payment.StatusCompleted,
		FiatAmount:        types.USD(999),
		ProcessorMetadata: map[string]string{"processor": "stripe"},
	})
	if err != nil {
		t.Fatalf("HandleGatewayEvent failed: %v", err)
	}
	if intent.Status != payment.StatusCompleted {
		t.Errorf("status: got %s, want completed", intent.Status)
	}

	// Purchase plus bonus landed in the ledger.
	if got := balance(t, e, a); !got.Equal(types.FromUnits(110)) {
		t.Errorf("balance: got %v, want %v", got, types.FromUnits(110))
	}
	purchases, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypePurchase})
	if err != nil {
		t.Fatal(err)
	}
	if len(purchases) != 1 {
		t.Fatalf("purchase entries: got %d, want 1", len(purchases))
	}
	if purchases[0].Reference == nil || purchases[0].Reference.ID != "pi_ext_done" {
		t.Error("purchase entry missing gateway reference")
	}
	bonuses, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypeBonus})
	if err != nil {
		t.Fatal(err)
	}
	if len(bonuses) != 1 {
		t.Errorf("bonus entries: got %d, want 1", len(bonuses))
	}

	acct, err := e.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Only the purchase entry counts toward TotalPurchased.
	if !acct.TotalPurchased.Equal(types.FromUnits(100)) {
		t.Errorf("TotalPurchased: got %v, want %v", acct.TotalPurchased, types.FromUnits(100))
	}

	// A billing record was written with the fiat linkage.
	recs, err := e.ListBillingRecords(ctx, a.ID, payment.BillingListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("billing records: got %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Kind != payment.BillingPurchase {
		t.Errorf("kind: got %s, want purchase", rec.Kind)
	}
	if !rec.Credits.Equal(types.FromUnits(110)) {
		t.Errorf("credits: got %v, want %v", rec.Credits, types.FromUnits(110))
	}
	if !rec.FiatAmount.Equal(types.USD(999)) {
		t.Errorf("fiat: got %v, want %v", rec.FiatAmount, types.USD(999))
	}
	if rec.Processor != "stripe" {
		t.Errorf("processor: got %q, want stripe", rec.Processor)
	}
	if !strings.HasPrefix(rec.InvoiceNumber, "INV-") {
		t.Errorf("invoice number: got %q", rec.InvoiceNumber)
	}

	// Redelivery of the completed event is a no-op: no second credit.
	if _, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_done",
		Status:     payment.StatusCompleted,
		FiatAmount: types.USD(999),
	}); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if got := balance(t, e, a); !got.Equal(types.FromUnits(110)) {
		t.Errorf("balance after redelivery: got %v, want %v", got, types.FromUnits(110))
	}
}

func TestGatewayCompletedConcurrentRedelivery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_complete_race")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_race",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(10),
	}); err != nil {
		t.Fatal(err)
	}

	const deliveries = 8
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
				ExternalID: "pi_ext_race",
				Status:     payment.StatusCompleted,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("delivery errored: %v", err)
		}
	}

	// Exactly one delivery won the terminal transition and the credit.
	if got := balance(t, e, a); !got.Equal(types.FromUnits(10)) {
		t.Fatalf("balance: got %v, want %v", got, types.FromUnits(10))
	}
	purchases, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypePurchase})
	if err != nil {
		t.Fatal(err)
	}
	if len(purchases) != 1 {
		t.Errorf("purchase entries: got %d, want 1", len(purchases))
	}
	recs, err := e.ListBillingRecords(ctx, a.ID, payment.BillingListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("billing records: got %d, want 1", len(recs))
	}
}

func TestGatewayRefundConcurrentRedelivery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_refund_race")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_refund_race",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(10),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_refund_race", Status: payment.StatusCompleted,
	}); err != nil {
		t.Fatal(err)
	}

	const deliveries = 8
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
				ExternalID: "pi_ext_refund_race",
				Status:     payment.StatusRefunded,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("delivery errored: %v", err)
		}
	}

	// Exactly one clawback debit; the balance went back to zero once.
	if got := balance(t, e, a); !got.IsZero() {
		t.Fatalf("balance: got %v, want zero", got)
	}
	debits, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypeDebit})
	if err != nil {
		t.Fatal(err)
	}
	if len(debits) != 1 {
		t.Errorf("clawback debits: got %d, want 1", len(debits))
	}
	intent, err := e.GetPaymentIntent(ctx, "pi_ext_refund_race")
	if err != nil {
		t.Fatal(err)
	}
	if intent.Status != payment.StatusRefunded {
		t.Errorf("status: got %s, want refunded", intent.Status)
	}
}

func TestGatewayFailureRetries(t *testing.T) {
	e := newTestEngine(t, credits.WithPaymentMaxRetries(3))
	ctx := context.Background()
	a := newTestAccount(t, e, "user_fail")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_fail",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(100),
	}); err != nil {
		t.Fatal(err)
	}

	fail := func() *payment.Intent {
		t.Helper()
		intent, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
			ExternalID: "pi_ext_fail",
			Status:     payment.StatusFailed,
			Error:      "card_declined",
		})
		if err != nil {
			t.Fatalf("failed event errored: %v", err)
		}
		return intent
	}

	// The first two failures keep the intent retryable.
	for i := 1; i <= 2; i++ {
		intent := fail()
		if intent.Status != payment.StatusPending {
			t.Fatalf("after failure %d: got %s, want pending", i, intent.Status)
		}
		if intent.RetryCount != i {
			t.Fatalf("retry count: got %d, want %d", intent.RetryCount, i)
		}
		if intent.LastError != "card_declined" {
			t.Fatalf("last error: got %q", intent.LastError)
		}
	}

	// The third exhausts the budget.
	intent := fail()
	if intent.Status != payment.StatusFailed {
		t.Fatalf("after exhaustion: got %s, want failed", intent.Status)
	}

	// Terminal failed intents ignore further events.
	intent, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_fail",
		Status:     payment.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("redelivery after failure errored: %v", err)
	}
	if intent.Status != payment.StatusFailed {
		t.Errorf("status: got %s, want failed", intent.Status)
	}
	if got := balance(t, e, a); !got.IsZero() {
		t.Errorf("failed payment credited the account: %v", got)
	}
}

func TestGatewayFailureThenSuccess(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_retry_ok")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_retry",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(50),
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_retry", Status: payment.StatusFailed, Error: "network",
	}); err != nil {
		t.Fatal(err)
	}

	intent, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_retry", Status: payment.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("completion after failure errored: %v", err)
	}
	if intent.Status != payment.StatusCompleted {
		t.Errorf("status: got %s, want completed", intent.Status)
	}
	if intent.LastError != "" {
		t.Errorf("last error not cleared: %q", intent.LastError)
	}
	if got := balance(t, e, a); !got.Equal(types.FromUnits(50)) {
		t.Errorf("balance: got %v, want %v", got, types.FromUnits(50))
	}
}

func TestGatewayRefund(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_refund")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_refund",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(100),
		FiatAmount:   types.USD(999),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_refund", Status: payment.StatusCompleted, FiatAmount: types.USD(999),
	}); err != nil {
		t.Fatal(err)
	}

	intent, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_refund", Status: payment.StatusRefunded,
	})
	if err != nil {
		t.Fatalf("refund errored: %v", err)
	}
	if intent.Status != payment.StatusRefunded {
		t.Errorf("status: got %s, want refunded", intent.Status)
	}

	// The clawback debit took the credits back.
	if got := balance(t, e, a); !got.IsZero() {
		t.Errorf("balance after refund: got %v, want zero", got)
	}
	debits, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypeDebit})
	if err != nil {
		t.Fatal(err)
	}
	if len(debits) != 1 || debits[0].Reference == nil || debits[0].Reference.Kind != entry.RefRefund {
		t.Error("missing refund-referenced clawback debit")
	}

	// A negative-fiat refund record joined the billing history.
	refunds, err := e.ListBillingRecords(ctx, a.ID, payment.BillingListOpts{Kind: payment.BillingRefund})
	if err != nil {
		t.Fatal(err)
	}
	if len(refunds) != 1 {
		t.Fatalf("refund records: got %d, want 1", len(refunds))
	}
	if !refunds[0].FiatAmount.Equal(types.USD(-999)) {
		t.Errorf("refund fiat: got %v, want %v", refunds[0].FiatAmount, types.USD(-999))
	}
}

func TestGatewayRefundSpentBalance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_refund_spent")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_spent",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(100),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_spent", Status: payment.StatusCompleted,
	}); err != nil {
		t.Fatal(err)
	}

	// Spend most of the purchase, then try to refund it.
	if _, err := e.Apply(ctx, credits.ApplyRequest{
		AccountID: a.ID, Type: entry.TypeDebit, Amount: types.FromUnits(60),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_spent", Status: payment.StatusRefunded,
	})
	if !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The clawback failed first, so the intent stays completed.
	intent, err := e.GetPaymentIntent(ctx, "pi_ext_spent")
	if err != nil {
		t.Fatal(err)
	}
	if intent.Status != payment.StatusCompleted {
		t.Errorf("status: got %s, want completed", intent.Status)
	}
	if got := balance(t, e, a); !got.Equal(types.FromUnits(40)) {
		t.Errorf("balance: got %v, want %v", got, types.FromUnits(40))
	}
}

func TestGatewayRefundNonCompleted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_refund_pending")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_norefund",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(10),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_norefund", Status: payment.StatusRefunded,
	})
	if !errors.Is(err, credits.ErrIntentNotRefundable) {
		t.Errorf("expected ErrIntentNotRefundable, got %v", err)
	}
}

func TestGatewayProcessingAndCancel(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_cancel")

	if _, err := e.CreatePaymentIntent(ctx, credits.PaymentIntentRequest{
		ExternalID:   "pi_ext_cancel",
		AccountID:    a.ID,
		CreditAmount: types.FromUnits(10),
	}); err != nil {
		t.Fatal(err)
	}

	intent, err := e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_cancel", Status: payment.StatusProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}
	if intent.Status != payment.StatusProcessing {
		t.Errorf("status: got %s, want processing", intent.Status)
	}

	intent, err = e.HandleGatewayEvent(ctx, &payment.GatewayEvent{
		ExternalID: "pi_ext_cancel", Status: payment.StatusCanceled,
	})
	if err != nil {
		t.Fatal(err)
	}
	if intent.Status != payment.StatusCanceled {
		t.Errorf("status: got %s, want canceled", intent.Status)
	}
	if got := balance(t, e, a); !got.IsZero() {
		t.Errorf("canceled payment credited the account: %v", got)
	}
}

func TestGatewayEventUnknownIntent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.HandleGatewayEvent(context.Background(), &payment.GatewayEvent{
		ExternalID: "pi_missing", Status: payment.StatusCompleted,
	})
	if !errors.Is(err, credits.ErrIntentNotFound) {
		t.Errorf("expected ErrIntentNotFound, got %v", err)
	}
}
