package entry

import (
	"testing"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

func TestTypeDirection(t *testing.T) {
	tests := []struct {
		typ  Type
		want Direction
	}{
		{TypeDebit, DirectionDebit},
		{TypeCredit, DirectionCredit},
		{TypePurchase, DirectionCredit},
		{TypeRefund, DirectionCredit},
		{TypeTransferIn, DirectionCredit},
		{TypeTransferOut, DirectionDebit},
		{TypeBonus, DirectionCredit},
		{TypePenalty, DirectionDebit},
		{TypeWorkflowCost, DirectionDebit},
		{TypeSubscriptionCharge, DirectionDebit},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.Direction(); got != tt.want {
				t.Errorf("Direction: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTypeValid(t *testing.T) {
	valid := []Type{
		TypeDebit, TypeCredit, TypePurchase, TypeRefund,
		TypeTransferIn, TypeTransferOut, TypeBonus, TypePenalty,
		TypeWorkflowCost, TypeSubscriptionCharge,
	}
	for _, typ := range valid {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}

	invalid := []Type{"", "deposit", "DEBIT", "workflow"}
	for _, typ := range invalid {
		if typ.Valid() {
			t.Errorf("%q should be invalid", typ)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusReversed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Errorf("Terminal: got %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestCheckBalanceIdentity(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		amount  types.Credits
		before  types.Credits
		after   types.Credits
		wantErr bool
	}{
		{"credit adds", TypePurchase, types.FromUnits(10), types.FromUnits(5), types.FromUnits(15), false},
		{"debit subtracts", TypeWorkflowCost, types.FromUnits(3), types.FromUnits(10), types.FromUnits(7), false},
		{"debit to zero", TypeDebit, types.FromUnits(10), types.FromUnits(10), types.ZeroCredits(), false},
		{"credit wrong after", TypeBonus, types.FromUnits(10), types.FromUnits(5), types.FromUnits(14), true},
		{"debit wrong sign", TypeDebit, types.FromUnits(3), types.FromUnits(10), types.FromUnits(13), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &LedgerEntry{
				ID:            id.NewEntryID(),
				Type:          tt.typ,
				Amount:        tt.amount,
				BalanceBefore: tt.before,
				BalanceAfter:  tt.after,
			}
			err := e.CheckBalanceIdentity()
			if tt.wantErr && err == nil {
				t.Error("expected identity violation, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
