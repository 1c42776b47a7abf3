// Package account defines the balance-holding entity for one end user.
package account

import (
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusFrozen    Status = "frozen"
	StatusClosed    Status = "closed"
)

// Tier is the account's billing tier. It selects the tier multiplier
// applied when a workflow deduction is computed.
type Tier string

const (
	TierFree       Tier = "free"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// AutoRecharge is the account's automatic top-up configuration. When the
// balance drops to Threshold or below after a debit, the engine opens a
// pending payment intent for TopUp credits.
type AutoRecharge struct {
	Enabled   bool          `json:"enabled"`
	Threshold types.Credits `json:"threshold"`
	TopUp     types.Credits `json:"top_up"`
}

// Account holds one user's spendable credit balance. The balance is only
// ever mutated through ledger entry application; Version is the optimistic
// concurrency token the store checks on every balance write.
type Account struct {
	types.Entity
	ID      id.AccountID  `json:"id"`
	UserID  string        `json:"user_id"`
	Balance types.Credits `json:"current_balance"`

	TotalEarned    types.Credits `json:"total_earned"`
	TotalSpent     types.Credits `json:"total_spent"`
	TotalPurchased types.Credits `json:"total_purchased"`

	DailySpendLimit     types.Credits `json:"daily_spend_limit"`
	MonthlySpendLimit   types.Credits `json:"monthly_spend_limit"`
	LowBalanceThreshold types.Credits `json:"low_balance_threshold"`

	Status       Status       `json:"status"`
	AutoRecharge AutoRecharge `json:"auto_recharge"`
	Tier         Tier         `json:"billing_tier"`
	DiscountRate float64      `json:"discount_rate"` // [0,1]

	// Version increments on every balance mutation. Stores reject writes
	// whose expected prior version no longer matches.
	Version int64 `json:"version"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsActive reports whether the account may send or receive credits.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// BelowLowBalance reports whether the balance has crossed the configured
// low-balance threshold. A zero threshold disables the check.
func (a *Account) BelowLowBalance() bool {
	return a.LowBalanceThreshold.IsPositive() && a.Balance.LessThan(a.LowBalanceThreshold)
}

// NeedsRecharge reports whether auto-recharge should trigger for the
// current balance.
func (a *Account) NeedsRecharge() bool {
	return a.AutoRecharge.Enabled &&
		a.AutoRecharge.TopUp.IsPositive() &&
		!a.Balance.GreaterThan(a.AutoRecharge.Threshold)
}

// Clone returns a deep copy safe to mutate without touching the original.
func (a *Account) Clone() *Account {
	c := *a
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ListOpts filters account listings.
type ListOpts struct {
	Status Status
	Tier   Tier
	Limit  int
	Offset int
}
