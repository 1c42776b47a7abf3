package store

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/usage"
)

// Store is the unified storage interface for all engine entities.
// Instead of embedding per-entity sub-interfaces, all methods are declared
// explicitly to avoid naming conflicts.
//
// ApplyEntry and FinalizeEntry pair the entry write with the account
// write (conditioned on the version the caller read), returning
// ErrVersionConflict when a concurrent writer won. Backends without a
// multi-write transaction order the pair entry-first, so the ledger can
// over-report a movement in a crash window but never hide one.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountByUser(ctx context.Context, userID string) (*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)

	// Ledger methods
	ApplyEntry(ctx context.Context, a *account.Account, e *entry.LedgerEntry) error
	FinalizeEntry(ctx context.Context, a *account.Account, e *entry.LedgerEntry) error
	GetEntry(ctx context.Context, entryID id.EntryID) (*entry.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID id.AccountID, opts entry.ListOpts) ([]*entry.LedgerEntry, error)
	SumDebits(ctx context.Context, accountID id.AccountID, since time.Time) (int64, error)

	// Payment intent methods. TransitionIntent writes the intent only when
	// its stored status still matches from, returning ErrIntentConflict
	// when a concurrent delivery won; the engine re-reads and re-dispatches.
	CreateIntent(ctx context.Context, i *payment.Intent) error
	GetIntent(ctx context.Context, externalID string) (*payment.Intent, error)
	TransitionIntent(ctx context.Context, i *payment.Intent, from payment.Status) error
	ListIntents(ctx context.Context, accountID id.AccountID, opts payment.ListOpts) ([]*payment.Intent, error)

	// Billing record methods
	CreateBillingRecord(ctx context.Context, r *payment.BillingRecord) error
	ListBillingRecords(ctx context.Context, accountID id.AccountID, opts payment.BillingListOpts) ([]*payment.BillingRecord, error)

	// Cost estimate methods
	UpsertEstimate(ctx context.Context, e *estimate.CostEstimate) error
	GetEstimate(ctx context.Context, workflowID string, accountID id.AccountID) (*estimate.CostEstimate, error)
	ListEstimates(ctx context.Context, accountID id.AccountID, opts estimate.ListOpts) ([]*estimate.CostEstimate, error)
	PurgeEstimates(ctx context.Context, before time.Time) (int64, error)

	// Usage record methods
	CreateUsageRecord(ctx context.Context, r *usage.Record) error
	GetUsageRecord(ctx context.Context, recordID id.UsageRecordID) (*usage.Record, error)
	GetOpenUsageRecord(ctx context.Context, workflowID string, accountID id.AccountID, runID string) (*usage.Record, error)
	UpdateUsageRecord(ctx context.Context, r *usage.Record) error
	ListUsageRecords(ctx context.Context, accountID id.AccountID, opts usage.ListOpts) ([]*usage.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
