// Package memory provides an in-memory Store for tests and development.
// All state lives behind one RWMutex; ApplyEntry and FinalizeEntry are
// atomic by construction.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/usage"
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[string]*account.Account
	byUser   map[string]string // userID -> accountID

	// Ledger storage, append order preserved
	entries       map[string]*entry.LedgerEntry
	entriesByAcct map[string][]string

	// Payment storage
	intents        map[string]*payment.Intent // keyed by external ID
	billingRecords []*payment.BillingRecord

	// Estimate storage, keyed by workflowID + accountID
	estimates map[string]*estimate.CostEstimate

	// Usage storage
	usageRecords map[string]*usage.Record
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:      make(map[string]*account.Account),
		byUser:        make(map[string]string),
		entries:       make(map[string]*entry.LedgerEntry),
		entriesByAcct: make(map[string][]string),
		intents:       make(map[string]*payment.Intent),
		estimates:     make(map[string]*estimate.CostEstimate),
		usageRecords:  make(map[string]*usage.Record),
	}
}

// Account Store implementation

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	if a.UserID != "" {
		if _, exists := s.byUser[a.UserID]; exists {
			return credits.ErrAccountExists
		}
		s.byUser[a.UserID] = a.ID.String()
	}
	s.accounts[a.ID.String()] = a.Clone()
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return a.Clone(), nil
	}
	return nil, credits.ErrAccountNotFound
}

func (s *Store) GetAccountByUser(_ context.Context, userID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if accountID, ok := s.byUser[userID]; ok {
		return s.accounts[accountID].Clone(), nil
	}
	return nil, credits.ErrAccountNotFound
}

// UpdateAccount writes non-balance fields with the same version check as
// ApplyEntry, so config updates cannot clobber a concurrent balance write.
func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.casAccountLocked(a)
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.Tier != "" && a.Tier != opts.Tier {
			continue
		}
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return page(result, opts.Offset, opts.Limit), nil
}

// casAccountLocked replaces the stored account iff the stored version is
// exactly one behind the incoming one. Callers hold the write lock.
func (s *Store) casAccountLocked(a *account.Account) error {
	current, ok := s.accounts[a.ID.String()]
	if !ok {
		return credits.ErrAccountNotFound
	}
	if current.Version != a.Version-1 {
		return credits.ErrVersionConflict
	}
	s.accounts[a.ID.String()] = a.Clone()
	return nil
}

// Ledger Store implementation

func (s *Store) ApplyEntry(_ context.Context, a *account.Account, e *entry.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	if err := s.casAccountLocked(a); err != nil {
		return err
	}
	s.putEntryLocked(e)
	return nil
}

func (s *Store) FinalizeEntry(_ context.Context, a *account.Account, e *entry.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[e.ID.String()]
	if !ok {
		return credits.ErrEntryNotFound
	}
	if current.Status != entry.StatusPending {
		return credits.ErrEntryNotPending
	}
	if err := s.casAccountLocked(a); err != nil {
		return err
	}
	cp := *e
	s.entries[e.ID.String()] = &cp
	return nil
}

func (s *Store) putEntryLocked(e *entry.LedgerEntry) {
	cp := *e
	key := e.ID.String()
	s.entries[key] = &cp
	acctKey := e.AccountID.String()
	s.entriesByAcct[acctKey] = append(s.entriesByAcct[acctKey], key)
}

func (s *Store) GetEntry(_ context.Context, entryID id.EntryID) (*entry.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[entryID.String()]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, credits.ErrEntryNotFound
}

func (s *Store) ListEntries(_ context.Context, accountID id.AccountID, opts entry.ListOpts) ([]*entry.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.entriesByAcct[accountID.String()]
	result := make([]*entry.LedgerEntry, 0, len(keys))
	// Newest first
	for i := len(keys) - 1; i >= 0; i-- {
		e := s.entries[keys[i]]
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		if !opts.Start.IsZero() && e.CreatedAt.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !e.CreatedAt.Before(opts.End) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return page(result, opts.Offset, opts.Limit), nil
}

// SumDebits totals completed and pending debit-direction amounts since the
// given instant, in micro-credits. Used for spend limit checks.
func (s *Store) SumDebits(_ context.Context, accountID id.AccountID, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, key := range s.entriesByAcct[accountID.String()] {
		e := s.entries[key]
		if e.Type.Direction() != entry.DirectionDebit {
			continue
		}
		if e.Status != entry.StatusCompleted && e.Status != entry.StatusPending {
			continue
		}
		if e.CreatedAt.Before(since) {
			continue
		}
		total += e.Amount.Micros
	}
	return total, nil
}

// Payment Store implementation

func (s *Store) CreateIntent(_ context.Context, i *payment.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[i.ExternalID]; exists {
		return credits.ErrDuplicateIntent
	}
	cp := *i
	s.intents[i.ExternalID] = &cp
	return nil
}

func (s *Store) GetIntent(_ context.Context, externalID string) (*payment.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.intents[externalID]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, credits.ErrIntentNotFound
}

// TransitionIntent replaces the stored intent iff its status still matches
// from, so concurrent deliveries of the same gateway event collapse to one
// winner.
func (s *Store) TransitionIntent(_ context.Context, i *payment.Intent, from payment.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.intents[i.ExternalID]
	if !exists {
		return credits.ErrIntentNotFound
	}
	if current.Status != from {
		return credits.ErrIntentConflict
	}
	cp := *i
	s.intents[i.ExternalID] = &cp
	return nil
}

func (s *Store) ListIntents(_ context.Context, accountID id.AccountID, opts payment.ListOpts) ([]*payment.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Intent, 0)
	for _, i := range s.intents {
		if i.AccountID.String() != accountID.String() {
			continue
		}
		if opts.Status != "" && i.Status != opts.Status {
			continue
		}
		cp := *i
		result = append(result, &cp)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].CreatedAt.Before(result[b].CreatedAt) })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CreateBillingRecord(_ context.Context, r *payment.BillingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.billingRecords = append(s.billingRecords, &cp)
	return nil
}

func (s *Store) ListBillingRecords(_ context.Context, accountID id.AccountID, opts payment.BillingListOpts) ([]*payment.BillingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.BillingRecord, 0)
	for _, r := range s.billingRecords {
		if r.AccountID.String() != accountID.String() {
			continue
		}
		if opts.Kind != "" && r.Kind != opts.Kind {
			continue
		}
		if !opts.Start.IsZero() && r.CreatedAt.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !r.CreatedAt.Before(opts.End) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	return page(result, opts.Offset, opts.Limit), nil
}

// Estimate Store implementation

func estimateKey(workflowID string, accountID id.AccountID) string {
	return workflowID + "|" + accountID.String()
}

func (s *Store) UpsertEstimate(_ context.Context, e *estimate.CostEstimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.Findings = append([]estimate.Finding(nil), e.Findings...)
	s.estimates[estimateKey(e.WorkflowID, e.AccountID)] = &cp
	return nil
}

func (s *Store) GetEstimate(_ context.Context, workflowID string, accountID id.AccountID) (*estimate.CostEstimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.estimates[estimateKey(workflowID, accountID)]; ok {
		cp := *e
		cp.Findings = append([]estimate.Finding(nil), e.Findings...)
		return &cp, nil
	}
	return nil, credits.ErrEstimateNotFound
}

func (s *Store) ListEstimates(_ context.Context, accountID id.AccountID, opts estimate.ListOpts) ([]*estimate.CostEstimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suffix := "|" + accountID.String()
	result := make([]*estimate.CostEstimate, 0)
	for key, e := range s.estimates {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WorkflowID < result[j].WorkflowID })
	return page(result, opts.Offset, opts.Limit), nil
}

// PurgeEstimates drops cache-expired estimates older than the cutoff.
func (s *Store) PurgeEstimates(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, e := range s.estimates {
		if e.IsCached && !e.CacheExpiresAt.IsZero() && e.CacheExpiresAt.Before(before) {
			delete(s.estimates, key)
			purged++
		}
	}
	return purged, nil
}

// Usage Store implementation

func (s *Store) CreateUsageRecord(_ context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usageRecords[r.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	cp := *r
	s.usageRecords[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetUsageRecord(_ context.Context, recordID id.UsageRecordID) (*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.usageRecords[recordID.String()]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, credits.ErrUsageNotFound
}

func (s *Store) GetOpenUsageRecord(_ context.Context, workflowID string, accountID id.AccountID, runID string) (*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.usageRecords {
		if r.WorkflowID != workflowID || r.AccountID.String() != accountID.String() {
			continue
		}
		if runID != "" && r.RunID != runID {
			continue
		}
		if r.Status.Terminal() {
			continue
		}
		cp := *r
		return &cp, nil
	}
	return nil, credits.ErrUsageNotFound
}

func (s *Store) UpdateUsageRecord(_ context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.usageRecords[r.ID.String()]
	if !exists {
		return credits.ErrUsageNotFound
	}
	if current.Status.Terminal() {
		return credits.ErrRunFinalized
	}
	cp := *r
	s.usageRecords[r.ID.String()] = &cp
	return nil
}

func (s *Store) ListUsageRecords(_ context.Context, accountID id.AccountID, opts usage.ListOpts) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*usage.Record, 0)
	for _, r := range s.usageRecords {
		if r.AccountID.String() != accountID.String() {
			continue
		}
		if opts.WorkflowID != "" && r.WorkflowID != opts.WorkflowID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if !opts.Start.IsZero() && r.CreatedAt.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !r.CreatedAt.Before(opts.End) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return page(result, opts.Offset, opts.Limit), nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
