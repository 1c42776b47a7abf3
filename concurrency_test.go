package credits_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/types"
)

// TestConcurrentDebits races 100 one-credit debits against a balance of 50.
// Exactly 50 must succeed and the balance must land on exactly zero, never
// negative.
func TestConcurrentDebits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_race")
	fund(t, e, a, types.FromUnits(50))

	const workers = 100

	var succeeded, insufficient atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				_, err := e.Apply(ctx, credits.ApplyRequest{
					AccountID: a.ID,
					Type:      entry.TypeDebit,
					Amount:    types.FromUnits(1),
				})
				if errors.Is(err, credits.ErrTooManyConflicts) {
					continue
				}
				if errors.Is(err, credits.ErrInsufficientFunds) {
					insufficient.Add(1)
					return
				}
				if err != nil {
					t.Errorf("unexpected apply error: %v", err)
					return
				}
				succeeded.Add(1)
				return
			}
		}()
	}
	wg.Wait()

	if got := succeeded.Load(); got != 50 {
		t.Errorf("succeeded: got %d, want 50", got)
	}
	if got := insufficient.Load(); got != 50 {
		t.Errorf("insufficient: got %d, want 50", got)
	}

	if got := balance(t, e, a); !got.IsZero() {
		t.Errorf("final balance: got %v, want zero", got)
	}

	acct, err := e.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.TotalSpent.Equal(types.FromUnits(50)) {
		t.Errorf("TotalSpent: got %v, want %v", acct.TotalSpent, types.FromUnits(50))
	}

	debits, err := e.ListEntries(ctx, a.ID, entry.ListOpts{Type: entry.TypeDebit})
	if err != nil {
		t.Fatal(err)
	}
	if len(debits) != 50 {
		t.Errorf("debit entries: got %d, want 50", len(debits))
	}

	// Every written entry satisfies the balance identity.
	for _, le := range debits {
		if err := le.CheckBalanceIdentity(); err != nil {
			t.Errorf("identity violated: %v", err)
		}
	}
}

// TestConcurrentMixedMovements races credits against debits and checks the
// final balance equals the arithmetic sum of the applied entries.
func TestConcurrentMixedMovements(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := newTestAccount(t, e, "user_mixed")
	fund(t, e, a, types.FromUnits(1000))

	const pairs = 25

	var wg sync.WaitGroup
	wg.Add(pairs * 2)
	for i := 0; i < pairs; i++ {
		go func() {
			defer wg.Done()
			for {
				_, err := e.Apply(ctx, credits.ApplyRequest{
					AccountID: a.ID, Type: entry.TypeCredit, Amount: types.FromUnits(2),
				})
				if errors.Is(err, credits.ErrTooManyConflicts) {
					continue
				}
				if err != nil {
					t.Errorf("credit failed: %v", err)
				}
				return
			}
		}()
		go func() {
			defer wg.Done()
			for {
				_, err := e.Apply(ctx, credits.ApplyRequest{
					AccountID: a.ID, Type: entry.TypeDebit, Amount: types.FromUnits(3),
				})
				if errors.Is(err, credits.ErrTooManyConflicts) {
					continue
				}
				if err != nil {
					t.Errorf("debit failed: %v", err)
				}
				return
			}
		}()
	}
	wg.Wait()

	// 1000 + 25×2 − 25×3 = 975.
	if got := balance(t, e, a); !got.Equal(types.FromUnits(975)) {
		t.Errorf("final balance: got %v, want %v", got, types.FromUnits(975))
	}
}
