// Package sqlite implements the credits store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	creditstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/usage"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("credits/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("credits/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) GetAccountByUser(ctx context.Context, userID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

// UpdateAccount writes the account guarded by its version. The incoming
// account carries the already-incremented version; the predicate matches
// only the row still holding the prior one.
func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("version = ?", a.Version-1).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, gerr := s.GetAccount(ctx, a.ID); gerr != nil {
			return gerr
		}
		return credits.ErrVersionConflict
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Tier != "" {
		q = q.Where("tier = ?", string(opts.Tier))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Ledger Store ====================

// ApplyEntry inserts the entry, then writes the version-guarded account
// update. A lost account race deletes the just-inserted entry; a crash
// between the writes leaves an entry whose balance never moved, which
// over-reports the ledger rather than hiding a balance move.
func (s *Store) ApplyEntry(ctx context.Context, a *account.Account, e *entry.LedgerEntry) error {
	if _, err := s.sdb.NewInsert(toEntryModel(e)).Exec(ctx); err != nil {
		return err
	}
	if err := s.UpdateAccount(ctx, a); err != nil {
		if _, derr := s.sdb.NewDelete((*entryModel)(nil)).
			Where("id = ?", e.ID.String()).
			Exec(ctx); derr != nil {
			return derr
		}
		return err
	}
	return nil
}

// FinalizeEntry settles a pending entry. The entry update is predicated on
// pending status so a double finalize is rejected, then the account is
// written under the same version guard as ApplyEntry. A lost account race
// reverts the entry to pending so the caller can retry the finalize.
func (s *Store) FinalizeEntry(ctx context.Context, a *account.Account, e *entry.LedgerEntry) error {
	m := toEntryModel(e)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("status = ?", string(entry.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, gerr := s.GetEntry(ctx, e.ID); gerr != nil {
			return gerr
		}
		return credits.ErrEntryNotPending
	}
	if err := s.UpdateAccount(ctx, a); err != nil {
		revert := toEntryModel(e)
		revert.Status = string(entry.StatusPending)
		revert.UpdatedAt = now()
		if _, rerr := s.sdb.NewUpdate(revert).WherePK().Exec(ctx); rerr != nil {
			return rerr
		}
		return err
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*entry.LedgerEntry, error) {
	m := new(entryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", entryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

func (s *Store) ListEntries(ctx context.Context, accountID id.AccountID, opts entry.ListOpts) ([]*entry.LedgerEntry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())

	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.Start.IsZero() {
		q = q.Where("created_at >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("created_at < ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*entry.LedgerEntry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) SumDebits(ctx context.Context, accountID id.AccountID, since time.Time) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount_micros), 0) FROM credit_ledger_entries
		WHERE account_id = ? AND status IN ('completed', 'pending')
		  AND type IN ('debit', 'transfer_out', 'penalty', 'workflow_cost', 'subscription_charge')
		  AND created_at >= ?
	`, accountID.String(), since).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ==================== Payment Store ====================

func (s *Store) CreateIntent(ctx context.Context, i *payment.Intent) error {
	var count int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM credit_payment_intents WHERE external_id = ?
	`, i.ExternalID).Scan(ctx, &count)
	if err != nil {
		return err
	}
	if count > 0 {
		return credits.ErrDuplicateIntent
	}
	_, err = s.sdb.NewInsert(toIntentModel(i)).Exec(ctx)
	return err
}

func (s *Store) GetIntent(ctx context.Context, externalID string) (*payment.Intent, error) {
	m := new(intentModel)
	err := s.sdb.NewSelect(m).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrIntentNotFound
		}
		return nil, err
	}
	return fromIntentModel(m)
}

// TransitionIntent writes the intent only while its stored status still
// matches from. A matched count of zero with an existing row means a
// concurrent delivery won.
func (s *Store) TransitionIntent(ctx context.Context, i *payment.Intent, from payment.Status) error {
	m := toIntentModel(i)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, gerr := s.GetIntent(ctx, i.ExternalID); gerr != nil {
			return gerr
		}
		return credits.ErrIntentConflict
	}
	return nil
}

func (s *Store) ListIntents(ctx context.Context, accountID id.AccountID, opts payment.ListOpts) ([]*payment.Intent, error) {
	var models []intentModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payment.Intent, len(models))
	for i := range models {
		in, err := fromIntentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = in
	}
	return result, nil
}

func (s *Store) CreateBillingRecord(ctx context.Context, r *payment.BillingRecord) error {
	_, err := s.sdb.NewInsert(toBillingModel(r)).Exec(ctx)
	return err
}

func (s *Store) ListBillingRecords(ctx context.Context, accountID id.AccountID, opts payment.BillingListOpts) ([]*payment.BillingRecord, error) {
	var models []billingModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if !opts.Start.IsZero() {
		q = q.Where("created_at >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("created_at < ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payment.BillingRecord, len(models))
	for i := range models {
		r, err := fromBillingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Estimate Store ====================

func (s *Store) UpsertEstimate(ctx context.Context, e *estimate.CostEstimate) error {
	m := toEstimateModel(e)
	m.UpdatedAt = now()
	_, err := s.sdb.NewInsert(m).
		OnConflict("(workflow_id, account_id) DO UPDATE").
		Set("content_hash = EXCLUDED.content_hash").
		Set("cpu_millicores = EXCLUDED.cpu_millicores").
		Set("memory_mb = EXCLUDED.memory_mb").
		Set("gpu_minutes = EXCLUDED.gpu_minutes").
		Set("storage_mb = EXCLUDED.storage_mb").
		Set("cost_per_run_micros = EXCLUDED.cost_per_run_micros").
		Set("base_cost_micros = EXCLUDED.base_cost_micros").
		Set("complexity_cost_micros = EXCLUDED.complexity_cost_micros").
		Set("ai_cost_micros = EXCLUDED.ai_cost_micros").
		Set("integration_cost_micros = EXCLUDED.integration_cost_micros").
		Set("storage_cost_micros = EXCLUDED.storage_cost_micros").
		Set("node_count = EXCLUDED.node_count").
		Set("supported_node_count = EXCLUDED.supported_node_count").
		Set("complexity_score = EXCLUDED.complexity_score").
		Set("security_score = EXCLUDED.security_score").
		Set("findings = EXCLUDED.findings").
		Set("status = EXCLUDED.status").
		Set("is_cached = EXCLUDED.is_cached").
		Set("cache_expires_at = EXCLUDED.cache_expires_at").
		Set("actual_runs = EXCLUDED.actual_runs").
		Set("average_actual_cost_micros = EXCLUDED.average_actual_cost_micros").
		Set("prediction_accuracy = EXCLUDED.prediction_accuracy").
		Set("last_actual_cost_micros = EXCLUDED.last_actual_cost_micros").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetEstimate(ctx context.Context, workflowID string, accountID id.AccountID) (*estimate.CostEstimate, error) {
	m := new(estimateModel)
	err := s.sdb.NewSelect(m).
		Where("workflow_id = ?", workflowID).
		Where("account_id = ?", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrEstimateNotFound
		}
		return nil, err
	}
	return fromEstimateModel(m)
}

func (s *Store) ListEstimates(ctx context.Context, accountID id.AccountID, opts estimate.ListOpts) ([]*estimate.CostEstimate, error) {
	var models []estimateModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("workflow_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*estimate.CostEstimate, len(models))
	for i := range models {
		e, err := fromEstimateModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) PurgeEstimates(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*estimateModel)(nil)).
		Where("is_cached = ?", true).
		Where("cache_expires_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Usage Store ====================

func (s *Store) CreateUsageRecord(ctx context.Context, r *usage.Record) error {
	_, err := s.sdb.NewInsert(toUsageModel(r)).Exec(ctx)
	return err
}

func (s *Store) GetUsageRecord(ctx context.Context, recordID id.UsageRecordID) (*usage.Record, error) {
	m := new(usageModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", recordID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrUsageNotFound
		}
		return nil, err
	}
	return fromUsageModel(m)
}

func (s *Store) GetOpenUsageRecord(ctx context.Context, workflowID string, accountID id.AccountID, runID string) (*usage.Record, error) {
	m := new(usageModel)
	q := s.sdb.NewSelect(m).
		Where("workflow_id = ?", workflowID).
		Where("account_id = ?", accountID.String()).
		Where("status IN (?, ?)", string(usage.StatusQueued), string(usage.StatusRunning))
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	err := q.OrderExpr("created_at DESC").Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrUsageNotFound
		}
		return nil, err
	}
	return fromUsageModel(m)
}

func (s *Store) UpdateUsageRecord(ctx context.Context, r *usage.Record) error {
	m := toUsageModel(r)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("status IN (?, ?)", string(usage.StatusQueued), string(usage.StatusRunning)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, gerr := s.GetUsageRecord(ctx, r.ID); gerr != nil {
			return gerr
		}
		return credits.ErrRunFinalized
	}
	return nil
}

func (s *Store) ListUsageRecords(ctx context.Context, accountID id.AccountID, opts usage.ListOpts) ([]*usage.Record, error) {
	var models []usageModel
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())

	if opts.WorkflowID != "" {
		q = q.Where("workflow_id = ?", opts.WorkflowID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.Start.IsZero() {
		q = q.Where("created_at >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("created_at < ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*usage.Record, len(models))
	for i := range models {
		r, err := fromUsageModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
