package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// CreateAccount creates a new credit account. Accounts open active, with a
// zero balance and version 1.
func (e *Engine) CreateAccount(ctx context.Context, a *account.Account) error {
	if a.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "required"}
	}
	if a.DiscountRate < 0 || a.DiscountRate > 1 {
		return &ValidationError{Field: "discount_rate", Message: "must be in [0, 1]"}
	}

	if a.ID == (id.AccountID{}) {
		a.ID = id.NewAccountID()
	}
	a.Entity = types.NewEntity()

	if a.Status == "" {
		a.Status = account.StatusActive
	}
	if a.Tier == "" {
		a.Tier = account.TierFree
	}
	a.Balance = types.ZeroCredits()
	a.TotalEarned = types.ZeroCredits()
	a.TotalSpent = types.ZeroCredits()
	a.TotalPurchased = types.ZeroCredits()
	a.Version = 1

	return e.store.CreateAccount(ctx, a)
}

// GetAccount retrieves an account by ID.
func (e *Engine) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccountByUser retrieves the account owned by a user.
func (e *Engine) GetAccountByUser(ctx context.Context, userID string) (*account.Account, error) {
	return e.store.GetAccountByUser(ctx, userID)
}

// ListAccounts lists accounts matching the filter.
func (e *Engine) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return e.store.ListAccounts(ctx, opts)
}

// GetBalance returns the current spendable balance.
func (e *Engine) GetBalance(ctx context.Context, accountID id.AccountID) (types.Credits, error) {
	a, err := e.GetAccount(ctx, accountID)
	if err != nil {
		return types.ZeroCredits(), err
	}
	return a.Balance, nil
}

// updateAccount runs a bounded read-mutate-CAS loop against the account.
// The mutation never touches the balance; balance changes go through the
// ledger only.
func (e *Engine) updateAccount(ctx context.Context, accountID id.AccountID, mutate func(*account.Account) error) (*account.Account, error) {
	for attempt := 0; attempt < e.applyMaxAttempts; attempt++ {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}

		if err := mutate(a); err != nil {
			return nil, err
		}
		a.Version++
		a.Touch()

		err = e.store.UpdateAccount(ctx, a)
		if err == nil {
			return a, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, ErrTooManyConflicts
}

// SetSpendLimits sets the daily and monthly debit ceilings. Zero disables
// a limit.
func (e *Engine) SetSpendLimits(ctx context.Context, accountID id.AccountID, daily, monthly types.Credits) (*account.Account, error) {
	if daily.IsNegative() || monthly.IsNegative() {
		return nil, &ValidationError{Field: "spend_limit", Message: "must not be negative"}
	}
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		a.DailySpendLimit = daily
		a.MonthlySpendLimit = monthly
		return nil
	})
}

// SetLowBalanceThreshold sets the balance level that triggers low-balance
// notifications. Zero disables the check.
func (e *Engine) SetLowBalanceThreshold(ctx context.Context, accountID id.AccountID, threshold types.Credits) (*account.Account, error) {
	if threshold.IsNegative() {
		return nil, &ValidationError{Field: "low_balance_threshold", Message: "must not be negative"}
	}
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		a.LowBalanceThreshold = threshold
		return nil
	})
}

// ConfigureAutoRecharge sets the automatic top-up policy.
func (e *Engine) ConfigureAutoRecharge(ctx context.Context, accountID id.AccountID, cfg account.AutoRecharge) (*account.Account, error) {
	if cfg.Enabled && !cfg.TopUp.IsPositive() {
		return nil, &ValidationError{Field: "auto_recharge.top_up", Message: "must be positive when enabled"}
	}
	if cfg.Threshold.IsNegative() {
		return nil, &ValidationError{Field: "auto_recharge.threshold", Message: "must not be negative"}
	}
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		a.AutoRecharge = cfg
		return nil
	})
}

// SetTier changes the account's billing tier and discount rate.
func (e *Engine) SetTier(ctx context.Context, accountID id.AccountID, tier account.Tier, discountRate float64) (*account.Account, error) {
	if discountRate < 0 || discountRate > 1 {
		return nil, &ValidationError{Field: "discount_rate", Message: "must be in [0, 1]"}
	}
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		a.Tier = tier
		a.DiscountRate = discountRate
		return nil
	})
}

// SuspendAccount blocks all credit movement until reactivation.
func (e *Engine) SuspendAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		if a.Status == account.StatusClosed {
			return ErrAccountClosed
		}
		a.Status = account.StatusSuspended
		return nil
	})
}

// ReactivateAccount returns a suspended or frozen account to active.
func (e *Engine) ReactivateAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		if a.Status == account.StatusClosed {
			return ErrAccountClosed
		}
		a.Status = account.StatusActive
		return nil
	})
}

// CloseAccount permanently closes an account. Closed accounts keep their
// ledger history but admit no further movement.
func (e *Engine) CloseAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.updateAccount(ctx, accountID, func(a *account.Account) error {
		a.Status = account.StatusClosed
		return nil
	})
}

// GetDailySpend returns the total debited since midnight UTC, counting
// completed and pending debit-direction entries.
func (e *Engine) GetDailySpend(ctx context.Context, accountID id.AccountID) (types.Credits, error) {
	micros, err := e.store.SumDebits(ctx, accountID, startOfDay(time.Now().UTC()))
	if err != nil {
		return types.ZeroCredits(), err
	}
	return types.Micro(micros), nil
}

// GetMonthlySpend returns the total debited since the first of the current
// month, UTC.
func (e *Engine) GetMonthlySpend(ctx context.Context, accountID id.AccountID) (types.Credits, error) {
	micros, err := e.store.SumDebits(ctx, accountID, startOfMonth(time.Now().UTC()))
	if err != nil {
		return types.ZeroCredits(), err
	}
	return types.Micro(micros), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
