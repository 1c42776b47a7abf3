package credits

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Payment Intents
// ──────────────────────────────────────────────────

// PaymentIntentRequest describes a fiat purchase of credits.
type PaymentIntentRequest struct {
	ExternalID   string
	AccountID    id.AccountID
	PackageID    string
	CreditAmount types.Credits
	BonusCredits types.Credits
	FiatAmount   types.Money
	Metadata     map[string]string
}

// CreatePaymentIntent opens a pending intent tracking one gateway payment.
// ExternalID is the gateway's identifier; creating a second intent with
// the same external ID fails with ErrDuplicateIntent.
func (e *Engine) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*payment.Intent, error) {
	if req.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Message: "required"}
	}
	if !req.CreditAmount.IsPositive() {
		return nil, &ValidationError{Field: "credit_amount", Message: "must be positive"}
	}
	if req.BonusCredits.IsNegative() {
		return nil, &ValidationError{Field: "bonus_credits", Message: "must not be negative"}
	}

	a, err := e.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !a.IsActive() {
		return nil, ErrAccountNotActive
	}

	intent := &payment.Intent{
		Entity:       types.NewEntity(),
		ID:           id.NewPaymentIntentID(),
		ExternalID:   req.ExternalID,
		AccountID:    a.ID,
		PackageID:    req.PackageID,
		CreditAmount: req.CreditAmount,
		BonusCredits: req.BonusCredits,
		FiatAmount:   req.FiatAmount,
		Status:       payment.StatusPending,
		Metadata:     req.Metadata,
	}

	if err := e.store.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// GetPaymentIntent retrieves an intent by its gateway external ID.
func (e *Engine) GetPaymentIntent(ctx context.Context, externalID string) (*payment.Intent, error) {
	intent, err := e.store.GetIntent(ctx, externalID)
	if err != nil {
		return nil, err
	}
	a, err := e.store.GetAccount(ctx, intent.AccountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return intent, nil
}

// ListPaymentIntents lists an account's payment intents, newest first.
func (e *Engine) ListPaymentIntents(ctx context.Context, accountID id.AccountID, opts payment.ListOpts) ([]*payment.Intent, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return e.store.ListIntents(ctx, accountID, opts)
}

// ListBillingRecords lists an account's settled billing history.
func (e *Engine) ListBillingRecords(ctx context.Context, accountID id.AccountID, opts payment.BillingListOpts) ([]*payment.BillingRecord, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return e.store.ListBillingRecords(ctx, accountID, opts)
}

// HandleGatewayEvent processes one payment lifecycle event. Delivery is
// at-least-once: redelivery for an intent already in a terminal state is a
// no-op, except completed intents, which admit exactly one refund. Every
// status write is a compare-and-swap on the status the intent was read
// under, so concurrent deliveries of the same event collapse to a single
// winner; losers re-read and re-dispatch.
func (e *Engine) HandleGatewayEvent(ctx context.Context, ev *payment.GatewayEvent) (*payment.Intent, error) {
	if ev.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Message: "required"}
	}

	for attempt := 0; attempt < e.applyMaxAttempts; attempt++ {
		intent, err := e.store.GetIntent(ctx, ev.ExternalID)
		if err != nil {
			return nil, err
		}

		if intent.Status.Terminal() {
			if intent.Status == payment.StatusCompleted && ev.Status == payment.StatusRefunded {
				intent, err = e.refundIntent(ctx, intent, ev)
				if errors.Is(err, ErrIntentConflict) {
					continue
				}
				return intent, err
			}
			// Idempotent redelivery.
			return intent, nil
		}

		switch ev.Status {
		case payment.StatusPending:
			return intent, nil

		case payment.StatusProcessing, payment.StatusCanceled:
			from := intent.Status
			intent.Status = ev.Status
			intent.Touch()
			err = e.store.TransitionIntent(ctx, intent, from)

		case payment.StatusFailed:
			intent, err = e.failIntent(ctx, intent, ev)

		case payment.StatusCompleted:
			intent, err = e.completeIntent(ctx, intent, ev)

		case payment.StatusRefunded:
			return nil, ErrIntentNotRefundable

		default:
			return nil, &ValidationError{Field: "status", Message: "unknown gateway status"}
		}

		if errors.Is(err, ErrIntentConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return intent, nil
	}

	return nil, ErrTooManyConflicts
}

// completeIntent settles a payment. The terminal transition is a status
// compare-and-swap and lands durably first, so concurrent deliveries of
// the same completed event grant at most one credit, and a crash between
// the transition and the ledger credit surfaces as a completed intent
// with no matching purchase entry, never a double grant.
func (e *Engine) completeIntent(ctx context.Context, intent *payment.Intent, ev *payment.GatewayEvent) (*payment.Intent, error) {
	from := intent.Status
	if ev.FiatAmount.IsPositive() {
		intent.FiatAmount = ev.FiatAmount
	}
	intent.Status = payment.StatusCompleted
	intent.LastError = ""
	intent.Touch()
	if err := e.store.TransitionIntent(ctx, intent, from); err != nil {
		return nil, err
	}

	purchase, err := e.Apply(ctx, ApplyRequest{
		AccountID: intent.AccountID,
		Type:      entry.TypePurchase,
		Amount:    intent.CreditAmount,
		Reference: &entry.Reference{Kind: entry.RefPurchase, ID: intent.ExternalID},
	})
	if err != nil {
		return nil, err
	}

	if intent.BonusCredits.IsPositive() {
		if _, err := e.Apply(ctx, ApplyRequest{
			AccountID: intent.AccountID,
			Type:      entry.TypeBonus,
			Amount:    intent.BonusCredits,
			Reference: &entry.Reference{Kind: entry.RefPurchase, ID: intent.ExternalID},
		}); err != nil {
			return nil, err
		}
	}

	rec := e.buildBillingRecord(ctx, intent, purchase.ID, payment.BillingPurchase, intent.FiatAmount, ev.ProcessorMetadata)
	if err := e.store.CreateBillingRecord(ctx, rec); err != nil {
		return nil, err
	}

	e.plugins.EmitPaymentCompleted(ctx, intent, rec)
	e.logger.Info("payment completed",
		"external_id", intent.ExternalID,
		"account_id", intent.AccountID,
		"credits", intent.TotalCredits().Format(),
	)
	return intent, nil
}

// failIntent records a failed attempt. The intent stays retryable until
// the retry budget is spent, then lands terminally failed.
func (e *Engine) failIntent(ctx context.Context, intent *payment.Intent, ev *payment.GatewayEvent) (*payment.Intent, error) {
	from := intent.Status
	intent.RetryCount++
	intent.LastError = ev.Error
	exhausted := intent.RetryCount >= e.paymentMaxRetries
	if exhausted {
		intent.Status = payment.StatusFailed
	} else {
		intent.Status = payment.StatusPending
	}
	intent.Touch()
	if err := e.store.TransitionIntent(ctx, intent, from); err != nil {
		return nil, err
	}

	e.plugins.EmitPaymentFailed(ctx, intent, ev.Error)
	if exhausted {
		e.plugins.EmitRetryExhausted(ctx, intent)
		e.logger.Warn("payment retries exhausted",
			"external_id", intent.ExternalID,
			"retry_count", intent.RetryCount,
		)
	}
	return intent, nil
}

// refundIntent reverses a completed purchase. The intent flips to
// refunded under a status compare-and-swap before the clawback debit, so
// a redelivered or concurrent refund can never debit twice. A clawback
// the balance cannot cover reverts the flip: the intent stays completed
// and the caller sees ErrInsufficientFunds.
func (e *Engine) refundIntent(ctx context.Context, intent *payment.Intent, ev *payment.GatewayEvent) (*payment.Intent, error) {
	intent.Status = payment.StatusRefunded
	intent.Touch()
	if err := e.store.TransitionIntent(ctx, intent, payment.StatusCompleted); err != nil {
		return nil, err
	}

	clawback, err := e.Apply(ctx, ApplyRequest{
		AccountID: intent.AccountID,
		Type:      entry.TypeDebit,
		Amount:    intent.TotalCredits(),
		Reference: &entry.Reference{Kind: entry.RefRefund, ID: intent.ExternalID},
	})
	if err != nil {
		intent.Status = payment.StatusCompleted
		intent.Touch()
		if rerr := e.store.TransitionIntent(ctx, intent, payment.StatusRefunded); rerr != nil {
			e.logger.Error("refund revert failed",
				"external_id", intent.ExternalID,
				"error", rerr,
			)
		}
		return nil, err
	}

	rec := e.buildBillingRecord(ctx, intent, clawback.ID, payment.BillingRefund, intent.FiatAmount.Negate(), ev.ProcessorMetadata)
	if err := e.store.CreateBillingRecord(ctx, rec); err != nil {
		return nil, err
	}

	e.plugins.EmitPaymentRefunded(ctx, intent, rec)
	return intent, nil
}

// buildBillingRecord assembles the settled financial record for a purchase
// or refund. Tax and risk come from registered plugins; without any, the
// fields stay zero.
func (e *Engine) buildBillingRecord(ctx context.Context, intent *payment.Intent, entryID id.EntryID, kind payment.BillingKind, fiat types.Money, processorMeta map[string]string) *payment.BillingRecord {
	rec := &payment.BillingRecord{
		Entity:            types.NewEntity(),
		ID:                id.NewBillingRecordID(),
		AccountID:         intent.AccountID,
		IntentID:          intent.ID,
		EntryID:           entryID,
		Kind:              kind,
		Credits:           intent.TotalCredits(),
		FiatAmount:        fiat,
		ExchangeRate:      fiat.ExchangeRate(intent.TotalCredits()),
		ProcessorMetadata: processorMeta,
	}
	rec.InvoiceNumber = invoiceNumber(rec.ID)
	if processorMeta != nil {
		rec.Processor = processorMeta["processor"]
	}

	for _, scorer := range e.plugins.GetRiskScorers() {
		score, err := scorer.ScoreRisk(ctx, intent)
		if err != nil {
			e.logger.Warn("risk scorer failed", "plugin", scorer.Name(), "error", err)
			continue
		}
		if score > rec.RiskScore {
			rec.RiskScore = score
		}
	}

	for _, calc := range e.plugins.GetTaxCalculators() {
		v, err := calc.CalculateTax(ctx, fiat, intent.AccountID.String())
		if err != nil {
			e.logger.Warn("tax calculator failed", "plugin", calc.Name(), "error", err)
			continue
		}
		if tax, ok := v.(types.Money); ok {
			rec.TaxAmount = tax
			break
		}
	}

	return rec
}

// invoiceNumber derives a stable human-facing invoice number from the
// billing record ID.
func invoiceNumber(recordID id.BillingRecordID) string {
	s := strings.TrimPrefix(recordID.String(), "bill_")
	if len(s) > 12 {
		s = s[len(s)-12:]
	}
	return "INV-" + strings.ToUpper(s)
}

// ──────────────────────────────────────────────────
// Auto-recharge
// ──────────────────────────────────────────────────

// openAutoRecharge opens a pending top-up intent for an account whose
// balance crossed its auto-recharge threshold. At most one auto-recharge
// intent is open per account at a time.
func (e *Engine) openAutoRecharge(ctx context.Context, accountID id.AccountID) error {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !a.NeedsRecharge() {
		return nil
	}

	open, err := e.store.ListIntents(ctx, a.ID, payment.ListOpts{Status: payment.StatusPending})
	if err != nil {
		return err
	}
	for _, i := range open {
		if i.Metadata["auto_recharge"] == "true" {
			return nil
		}
	}

	intentID := id.NewPaymentIntentID()
	intent := &payment.Intent{
		Entity:       types.NewEntity(),
		ID:           intentID,
		ExternalID:   "auto_" + intentID.String(),
		AccountID:    a.ID,
		CreditAmount: a.AutoRecharge.TopUp,
		FiatAmount:   types.ZeroMoney(e.autoRechargeCurrency),
		Status:       payment.StatusPending,
		Metadata:     map[string]string{"auto_recharge": "true"},
	}
	if err := e.store.CreateIntent(ctx, intent); err != nil {
		return err
	}

	e.plugins.EmitAutoRecharge(ctx, a, intent)
	e.logger.Info("auto-recharge intent opened",
		"account_id", a.ID,
		"top_up", a.AutoRecharge.TopUp.Format(),
	)
	return nil
}
