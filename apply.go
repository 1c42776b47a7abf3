package credits

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Ledger Application
// ──────────────────────────────────────────────────

// ApplyRequest describes one credit movement to apply against an account.
type ApplyRequest struct {
	AccountID id.AccountID
	Type      entry.Type
	Amount    types.Credits
	Reference *entry.Reference
	Metadata  map[string]string
}

// Apply writes a completed ledger entry and moves the balance in one
// atomic step. Debits that would take the balance negative are rejected
// with ErrInsufficientFunds before anything is written.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*entry.LedgerEntry, error) {
	return e.apply(ctx, req, entry.StatusCompleted)
}

// ApplyPending writes a pending ledger entry. The balance delta is applied
// immediately and held; Finalize later confirms or compensates it.
func (e *Engine) ApplyPending(ctx context.Context, req ApplyRequest) (*entry.LedgerEntry, error) {
	return e.apply(ctx, req, entry.StatusPending)
}

func (e *Engine) apply(ctx context.Context, req ApplyRequest, status entry.Status) (*entry.LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidEntryType
	}

	for attempt := 0; attempt < e.applyMaxAttempts; attempt++ {
		a, err := e.store.GetAccount(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		if !a.IsActive() {
			if a.Status == account.StatusClosed {
				return nil, ErrAccountClosed
			}
			return nil, ErrAccountNotActive
		}

		before := a.Balance
		var after types.Credits
		switch req.Type.Direction() {
		case entry.DirectionCredit:
			after = before.Add(req.Amount)
		case entry.DirectionDebit:
			after = before.Subtract(req.Amount)
			if after.IsNegative() {
				e.plugins.EmitInsufficientFunds(ctx, a.ID.String(), req.Amount.Micros, before.Micros)
				return nil, ErrInsufficientFunds
			}
			if err := e.checkSpendLimits(ctx, a, req.Amount); err != nil {
				return nil, err
			}
		}

		le := &entry.LedgerEntry{
			Entity:        types.NewEntity(),
			ID:            id.NewEntryID(),
			AccountID:     a.ID,
			Type:          req.Type,
			Amount:        req.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Status:        status,
			Reference:     req.Reference,
			Metadata:      req.Metadata,
		}
		if err := le.CheckBalanceIdentity(); err != nil {
			e.plugins.EmitInvariantViolation(ctx, a.ID.String(), err.Error())
			e.logger.Error("balance identity violation", "error", err)
			return nil, ErrBalanceInvariant
		}

		updated := a.Clone()
		updated.Balance = after
		switch req.Type.Direction() {
		case entry.DirectionCredit:
			updated.TotalEarned = updated.TotalEarned.Add(req.Amount)
			if req.Type == entry.TypePurchase {
				updated.TotalPurchased = updated.TotalPurchased.Add(req.Amount)
			}
		case entry.DirectionDebit:
			updated.TotalSpent = updated.TotalSpent.Add(req.Amount)
		}
		updated.Version++
		updated.Touch()

		err = e.store.ApplyEntry(ctx, updated, le)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.plugins.EmitEntryApplied(ctx, updated, le)
		if req.Type.Direction() == entry.DirectionDebit {
			if updated.BelowLowBalance() {
				e.plugins.EmitLowBalance(ctx, updated)
			}
			if updated.NeedsRecharge() {
				e.queueRecharge(updated)
			}
		}
		return le, nil
	}

	return nil, ErrTooManyConflicts
}

// checkSpendLimits rejects a debit that would push the rolling daily or
// monthly debit total past the account's configured ceiling. Pending
// debits count against the limits.
func (e *Engine) checkSpendLimits(ctx context.Context, a *account.Account, amount types.Credits) error {
	now := time.Now().UTC()

	if a.DailySpendLimit.IsPositive() {
		spent, err := e.store.SumDebits(ctx, a.ID, startOfDay(now))
		if err != nil {
			return err
		}
		if types.Micro(spent).Add(amount).GreaterThan(a.DailySpendLimit) {
			return ErrSpendLimitReached
		}
	}

	if a.MonthlySpendLimit.IsPositive() {
		spent, err := e.store.SumDebits(ctx, a.ID, startOfMonth(now))
		if err != nil {
			return err
		}
		if types.Micro(spent).Add(amount).GreaterThan(a.MonthlySpendLimit) {
			return ErrSpendLimitReached
		}
	}

	return nil
}

// Finalize resolves a pending entry. A completed outcome confirms the held
// delta as-is; failed, cancelled, and reversed outcomes put the held
// amount back under the same optimistic concurrency control the original
// application used.
func (e *Engine) Finalize(ctx context.Context, entryID id.EntryID, outcome entry.Status) (*entry.LedgerEntry, error) {
	if !outcome.Terminal() {
		return nil, &ValidationError{Field: "status", Message: "finalize outcome must be terminal"}
	}

	for attempt := 0; attempt < e.applyMaxAttempts; attempt++ {
		le, err := e.store.GetEntry(ctx, entryID)
		if err != nil {
			return nil, err
		}
		if le.Status != entry.StatusPending {
			return nil, ErrEntryNotPending
		}

		a, err := e.store.GetAccount(ctx, le.AccountID)
		if err != nil {
			return nil, err
		}

		updated := a.Clone()
		if outcome != entry.StatusCompleted {
			// Compensate the held delta.
			switch le.Type.Direction() {
			case entry.DirectionCredit:
				reverted := updated.Balance.Subtract(le.Amount)
				if reverted.IsNegative() {
					return nil, ErrInsufficientFunds
				}
				updated.Balance = reverted
				updated.TotalEarned = updated.TotalEarned.Subtract(le.Amount)
				if le.Type == entry.TypePurchase {
					updated.TotalPurchased = updated.TotalPurchased.Subtract(le.Amount)
				}
			case entry.DirectionDebit:
				updated.Balance = updated.Balance.Add(le.Amount)
				updated.TotalSpent = updated.TotalSpent.Subtract(le.Amount)
			}
		}
		updated.Version++
		updated.Touch()

		fle := *le
		fle.Status = outcome
		fle.Touch()

		err = e.store.FinalizeEntry(ctx, updated, &fle)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.plugins.EmitEntryFinalized(ctx, updated, &fle)
		return &fle, nil
	}

	return nil, ErrTooManyConflicts
}

// ──────────────────────────────────────────────────
// Ledger queries
// ──────────────────────────────────────────────────

// GetEntry retrieves a ledger entry by ID.
func (e *Engine) GetEntry(ctx context.Context, entryID id.EntryID) (*entry.LedgerEntry, error) {
	le, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	a, err := e.store.GetAccount(ctx, le.AccountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return le, nil
}

// ListEntries lists an account's ledger entries, newest first.
func (e *Engine) ListEntries(ctx context.Context, accountID id.AccountID, opts entry.ListOpts) ([]*entry.LedgerEntry, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return e.store.ListEntries(ctx, accountID, opts)
}
