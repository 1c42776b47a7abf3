// Package entry defines the immutable ledger entry: one directionally-signed
// movement of credits against one account.
package entry

import (
	"fmt"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Type classifies a credit movement. Every type has a fixed direction;
// the direction decides whether Amount is added to or subtracted from
// the account balance.
type Type string

const (
	TypeDebit              Type = "debit"
	TypeCredit             Type = "credit"
	TypePurchase           Type = "purchase"
	TypeRefund             Type = "refund"
	TypeTransferIn         Type = "transfer_in"
	TypeTransferOut        Type = "transfer_out"
	TypeBonus              Type = "bonus"
	TypePenalty            Type = "penalty"
	TypeWorkflowCost       Type = "workflow_cost"
	TypeSubscriptionCharge Type = "subscription_charge"
)

// Direction is the sign a Type applies to the balance.
type Direction int

const (
	DirectionCredit Direction = 1  // balance_after = balance_before + amount
	DirectionDebit  Direction = -1 // balance_after = balance_before - amount
)

// Direction returns the fixed direction of the entry type.
func (t Type) Direction() Direction {
	switch t {
	case TypeCredit, TypePurchase, TypeRefund, TypeTransferIn, TypeBonus:
		return DirectionCredit
	default:
		return DirectionDebit
	}
}

// Valid reports whether t is one of the ten known movement types.
func (t Type) Valid() bool {
	switch t {
	case TypeDebit, TypeCredit, TypePurchase, TypeRefund,
		TypeTransferIn, TypeTransferOut, TypeBonus, TypePenalty,
		TypeWorkflowCost, TypeSubscriptionCharge:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a ledger entry. Completed entries are
// immutable; pending entries may be finalized exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusReversed  Status = "reversed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed ||
		s == StatusCancelled || s == StatusReversed
}

// Reference kinds for linking an entry to the external entity that caused it.
const (
	RefPurchase     = "purchase"
	RefRefund       = "refund"
	RefWorkflowRun  = "workflow_run"
	RefSubscription = "subscription"
	RefTransfer     = "transfer"
)

// Reference points at the external entity a movement settles.
type Reference struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// LedgerEntry is one append-only credit movement. Balance snapshots are
// recorded at apply time so the ledger is auditable without replay.
type LedgerEntry struct {
	types.Entity
	ID        id.EntryID   `json:"id"`
	AccountID id.AccountID `json:"account_id"`
	Type      Type         `json:"type"`

	Amount        types.Credits `json:"amount"` // always > 0; direction comes from Type
	BalanceBefore types.Credits `json:"balance_before"`
	BalanceAfter  types.Credits `json:"balance_after"`

	Status    Status            `json:"status"`
	Reference *Reference        `json:"reference,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CheckBalanceIdentity verifies the directional arithmetic identity:
// credit types add, debit types subtract, exactly. A failure here is a
// programming error, not a data error.
func (e *LedgerEntry) CheckBalanceIdentity() error {
	var want types.Credits
	switch e.Type.Direction() {
	case DirectionCredit:
		want = e.BalanceBefore.Add(e.Amount)
	case DirectionDebit:
		want = e.BalanceBefore.Subtract(e.Amount)
	}

	if !e.BalanceAfter.Equal(want) {
		return fmt.Errorf("entry %s: balance identity broken: %s %s %s, before=%s after=%s want=%s",
			e.ID, e.Type, e.Type.Direction().symbol(), e.Amount.Format(),
			e.BalanceBefore.Format(), e.BalanceAfter.Format(), want.Format())
	}
	return nil
}

func (d Direction) symbol() string {
	if d == DirectionCredit {
		return "+"
	}
	return "-"
}

// ListOpts filters ledger entry listings.
type ListOpts struct {
	Type   Type
	Status Status
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
