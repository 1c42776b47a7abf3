package credits_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/types"
)

// newTestEngine builds an engine over the in-memory store with logging
// silenced. Workers are not started; tests exercise operations directly.
func newTestEngine(t *testing.T, opts ...credits.Option) *credits.Engine {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	all := append([]credits.Option{credits.WithLogger(quiet)}, opts...)
	return credits.New(memory.New(), all...)
}

// newTestAccount creates an active account for the given user.
func newTestAccount(t *testing.T, e *credits.Engine, userID string) *account.Account {
	t.Helper()
	a := &account.Account{UserID: userID}
	if err := e.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return a
}

// fund credits an account directly through the ledger.
func fund(t *testing.T, e *credits.Engine, a *account.Account, amount types.Credits) {
	t.Helper()
	if _, err := e.Apply(context.Background(), credits.ApplyRequest{
		AccountID: a.ID,
		Type:      entry.TypeCredit,
		Amount:    amount,
	}); err != nil {
		t.Fatalf("funding apply failed: %v", err)
	}
}

// balance reads the current balance or fails the test.
func balance(t *testing.T, e *credits.Engine, a *account.Account) types.Credits {
	t.Helper()
	b, err := e.GetBalance(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return b
}
