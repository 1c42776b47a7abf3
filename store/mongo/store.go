// Package mongo implements the credits store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	creditstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/usage"
)

// Collection name constants.
const (
	colAccounts       = "credit_accounts"
	colEntries        = "credit_ledger_entries"
	colIntents        = "credit_payment_intents"
	colBillingRecords = "credit_billing_records"
	colEstimates      = "credit_cost_estimates"
	colUsageRecords   = "credit_usage_records"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetAccountByUser(ctx context.Context, userID string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get account by user: %w", err)
	}
	return fromAccountModel(&m)
}

// UpdateAccount replaces the account document conditioned on the version
// the caller read. A matched count of zero with an existing document means
// a concurrent writer won.
func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": a.Version - 1}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, gerr := s.GetAccount(ctx, a.ID); gerr != nil {
			return gerr
		}
		return credits.ErrVersionConflict
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Tier != "" {
		filter["tier"] = string(opts.Tier)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
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

// ApplyEntry inserts the entry document, then performs the version-guarded
// account replace. A lost account race deletes the just-inserted entry; a
// crash between the writes leaves an entry whose balance never moved,
// which over-reports the ledger rather than hiding a balance move.
func (s *Store) ApplyEntry(ctx context.Context, a *account.Account, e *entry.LedgerEntry) error {
	m := toEntryModel(e)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("credits/mongo: apply entry: %w", err)
	}
	if err := s.UpdateAccount(ctx, a); err != nil {
		if _, derr := s.mdb.NewDelete((*entryModel)(nil)).
			Filter(bson.M{"_id": m.ID}).
			Exec(ctx); derr != nil {
			return fmt.Errorf("credits/mongo: apply entry rollback: %w", derr)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "status": string(entry.StatusPending)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: finalize entry: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, gerr := s.GetEntry(ctx, e.ID); gerr != nil {
			return gerr
		}
		return credits.ErrEntryNotPending
	}
	if err := s.UpdateAccount(ctx, a); err != nil {
		revert := toEntryModel(e)
		revert.Status = string(entry.StatusPending)
		revert.UpdatedAt = now()
		if _, rerr := s.mdb.NewUpdate(revert).
			Filter(bson.M{"_id": revert.ID}).
			Exec(ctx); rerr != nil {
			return fmt.Errorf("credits/mongo: finalize entry rollback: %w", rerr)
		}
		return err
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*entry.LedgerEntry, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrEntryNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get entry: %w", err)
	}
	return fromEntryModel(&m)
}

func (s *Store) ListEntries(ctx context.Context, accountID id.AccountID, opts entry.ListOpts) ([]*entry.LedgerEntry, error) {
	var models []entryModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if created := rangeFilter(opts.Start, opts.End); created != nil {
		filter["created_at"] = created
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list entries: %w", err)
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
	debitTypes := []string{
		string(entry.TypeDebit),
		string(entry.TypeTransferOut),
		string(entry.TypePenalty),
		string(entry.TypeWorkflowCost),
		string(entry.TypeSubscriptionCharge),
	}

	pipeline := bson.A{
		bson.M{
			"$match": bson.M{
				"account_id": accountID.String(),
				"type":       bson.M{"$in": debitTypes},
				"status":     bson.M{"$in": []string{string(entry.StatusCompleted), string(entry.StatusPending)}},
				"created_at": bson.M{"$gte": since},
			},
		},
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$amount_micros"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colEntries).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("credits/mongo: sum debits: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total int64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("credits/mongo: sum debits decode: %w", err)
		}
	}
	return result.Total, nil
}

// ==================== Payment Store ====================

func (s *Store) CreateIntent(ctx context.Context, i *payment.Intent) error {
	count, err := s.mdb.Collection(colIntents).CountDocuments(ctx, bson.M{"external_id": i.ExternalID})
	if err != nil {
		return fmt.Errorf("credits/mongo: check intent: %w", err)
	}
	if count > 0 {
		return credits.ErrDuplicateIntent
	}
	_, err = s.mdb.NewInsert(toIntentModel(i)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create intent: %w", err)
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, externalID string) (*payment.Intent, error) {
	var m intentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"external_id": externalID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrIntentNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get intent: %w", err)
	}
	return fromIntentModel(&m)
}

// TransitionIntent replaces the intent document only while its stored
// status still matches from. A matched count of zero with an existing
// document means a concurrent delivery won.
func (s *Store) TransitionIntent(ctx context.Context, i *payment.Intent, from payment.Status) error {
	m := toIntentModel(i)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "status": string(from)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: transition intent: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, gerr := s.GetIntent(ctx, i.ExternalID); gerr != nil {
			return gerr
		}
		return credits.ErrIntentConflict
	}
	return nil
}

func (s *Store) ListIntents(ctx context.Context, accountID id.AccountID, opts payment.ListOpts) ([]*payment.Intent, error) {
	var models []intentModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list intents: %w", err)
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
	_, err := s.mdb.NewInsert(toBillingModel(r)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create billing record: %w", err)
	}
	return nil
}

func (s *Store) ListBillingRecords(ctx context.Context, accountID id.AccountID, opts payment.BillingListOpts) ([]*payment.BillingRecord, error) {
	var models []billingModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if created := rangeFilter(opts.Start, opts.End); created != nil {
		filter["created_at"] = created
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list billing records: %w", err)
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

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"workflow_id": m.WorkflowID, "account_id": m.AccountID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"workflow_id":                m.WorkflowID,
				"account_id":                 m.AccountID,
				"content_hash":               m.ContentHash,
				"resources":                  m.Resources,
				"cost_per_run_micros":        m.CostPerRunMicros,
				"breakdown":                  m.Breakdown,
				"node_count":                 m.NodeCount,
				"supported_node_count":       m.SupportedNodeCount,
				"complexity_score":           m.ComplexityScore,
				"security_score":             m.SecurityScore,
				"findings":                   m.Findings,
				"status":                     m.Status,
				"is_cached":                  m.IsCached,
				"cache_expires_at":           m.CacheExpiresAt,
				"actual_runs":                m.ActualRuns,
				"average_actual_cost_micros": m.AverageActualCostMicros,
				"prediction_accuracy":        m.PredictionAccuracy,
				"last_actual_cost_micros":    m.LastActualCostMicros,
				"updated_at":                 m.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"_id":        m.ID,
				"created_at": m.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: upsert estimate: %w", err)
	}
	return nil
}

func (s *Store) GetEstimate(ctx context.Context, workflowID string, accountID id.AccountID) (*estimate.CostEstimate, error) {
	var m estimateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"workflow_id": workflowID, "account_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrEstimateNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get estimate: %w", err)
	}
	return fromEstimateModel(&m)
}

func (s *Store) ListEstimates(ctx context.Context, accountID id.AccountID, opts estimate.ListOpts) ([]*estimate.CostEstimate, error) {
	var models []estimateModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "workflow_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list estimates: %w", err)
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
	res, err := s.mdb.NewDelete((*estimateModel)(nil)).
		Filter(bson.M{
			"is_cached":        true,
			"cache_expires_at": bson.M{"$lt": before},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("credits/mongo: purge estimates: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Usage Store ====================

func (s *Store) CreateUsageRecord(ctx context.Context, r *usage.Record) error {
	_, err := s.mdb.NewInsert(toUsageModel(r)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: create usage record: %w", err)
	}
	return nil
}

func (s *Store) GetUsageRecord(ctx context.Context, recordID id.UsageRecordID) (*usage.Record, error) {
	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": recordID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrUsageNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get usage record: %w", err)
	}
	return fromUsageModel(&m)
}

func (s *Store) GetOpenUsageRecord(ctx context.Context, workflowID string, accountID id.AccountID, runID string) (*usage.Record, error) {
	filter := bson.M{
		"workflow_id": workflowID,
		"account_id":  accountID.String(),
		"status":      bson.M{"$in": []string{string(usage.StatusQueued), string(usage.StatusRunning)}},
	}
	if runID != "" {
		filter["run_id"] = runID
	}

	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrUsageNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get open usage record: %w", err)
	}
	return fromUsageModel(&m)
}

func (s *Store) UpdateUsageRecord(ctx context.Context, r *usage.Record) error {
	m := toUsageModel(r)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{
			"_id":    m.ID,
			"status": bson.M{"$in": []string{string(usage.StatusQueued), string(usage.StatusRunning)}},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: update usage record: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, gerr := s.GetUsageRecord(ctx, r.ID); gerr != nil {
			return gerr
		}
		return credits.ErrRunFinalized
	}
	return nil
}

func (s *Store) ListUsageRecords(ctx context.Context, accountID id.AccountID, opts usage.ListOpts) ([]*usage.Record, error) {
	var models []usageModel

	filter := bson.M{"account_id": accountID.String()}
	if opts.WorkflowID != "" {
		filter["workflow_id"] = opts.WorkflowID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if created := rangeFilter(opts.Start, opts.End); created != nil {
		filter["created_at"] = created
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("credits/mongo: list usage records: %w", err)
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

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// rangeFilter builds a created_at range filter, or nil when both bounds
// are zero.
func rangeFilter(start, end time.Time) bson.M {
	if start.IsZero() && end.IsZero() {
		return nil
	}
	f := bson.M{}
	if !start.IsZero() {
		f["$gte"] = start
	}
	if !end.IsZero() {
		f["$lt"] = end
	}
	return f
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "tier", Value: 1}}},
		},
		colEntries: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "reference.kind", Value: 1}, {Key: "reference.id", Value: 1}}},
		},
		colIntents: {
			{
				Keys:    bson.D{{Key: "external_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colBillingRecords: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "intent_id", Value: 1}}},
		},
		colEstimates: {
			{
				Keys:    bson.D{{Key: "workflow_id", Value: 1}, {Key: "account_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
			{Keys: bson.D{{Key: "is_cached", Value: 1}, {Key: "cache_expires_at", Value: 1}}},
		},
		colUsageRecords: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "account_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "run_id", Value: 1}}},
		},
	}
}
