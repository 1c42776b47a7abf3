package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/estimate"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

func now() time.Time { return time.Now().UTC() }

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:credit_accounts"`

	ID                        string            `grove:"id,pk"`
	UserID                    string            `grove:"user_id"`
	BalanceMicros             int64             `grove:"balance_micros"`
	TotalEarnedMicros         int64             `grove:"total_earned_micros"`
	TotalSpentMicros          int64             `grove:"total_spent_micros"`
	TotalPurchasedMicros      int64             `grove:"total_purchased_micros"`
	DailySpendLimitMicros     int64             `grove:"daily_spend_limit_micros"`
	MonthlySpendLimitMicros   int64             `grove:"monthly_spend_limit_micros"`
	LowBalanceThresholdMicros int64             `grove:"low_balance_threshold_micros"`
	Status                    string            `grove:"status"`
	AutoRechargeEnabled       bool              `grove:"auto_recharge_enabled"`
	AutoRechargeThreshold     int64             `grove:"auto_recharge_threshold_micros"`
	AutoRechargeTopUp         int64             `grove:"auto_recharge_topup_micros"`
	Tier                      string            `grove:"tier"`
	DiscountRate              float64           `grove:"discount_rate"`
	Version                   int64             `grove:"version"`
	Metadata                  map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt                 time.Time         `grove:"created_at"`
	UpdatedAt                 time.Time         `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:                        a.ID.String(),
		UserID:                    a.UserID,
		BalanceMicros:             a.Balance.Micros,
		TotalEarnedMicros:         a.TotalEarned.Micros,
		TotalSpentMicros:          a.TotalSpent.Micros,
		TotalPurchasedMicros:      a.TotalPurchased.Micros,
		DailySpendLimitMicros:     a.DailySpendLimit.Micros,
		MonthlySpendLimitMicros:   a.MonthlySpendLimit.Micros,
		LowBalanceThresholdMicros: a.LowBalanceThreshold.Micros,
		Status:                    string(a.Status),
		AutoRechargeEnabled:       a.AutoRecharge.Enabled,
		AutoRechargeThreshold:     a.AutoRecharge.Threshold.Micros,
		AutoRechargeTopUp:         a.AutoRecharge.TopUp.Micros,
		Tier:                      string(a.Tier),
		DiscountRate:              a.DiscountRate,
		Version:                   a.Version,
		Metadata:                  a.Metadata,
		CreatedAt:                 a.CreatedAt,
		UpdatedAt:                 a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  accountID,
		UserID:              m.UserID,
		Balance:             types.Micro(m.BalanceMicros),
		TotalEarned:         types.Micro(m.TotalEarnedMicros),
		TotalSpent:          types.Micro(m.TotalSpentMicros),
		TotalPurchased:      types.Micro(m.TotalPurchasedMicros),
		DailySpendLimit:     types.Micro(m.DailySpendLimitMicros),
		MonthlySpendLimit:   types.Micro(m.MonthlySpendLimitMicros),
		LowBalanceThreshold: types.Micro(m.LowBalanceThresholdMicros),
		Status:              account.Status(m.Status),
		AutoRecharge: account.AutoRecharge{
			Enabled:   m.AutoRechargeEnabled,
			Threshold: types.Micro(m.AutoRechargeThreshold),
			TopUp:     types.Micro(m.AutoRechargeTopUp),
		},
		Tier:         account.Tier(m.Tier),
		DiscountRate: m.DiscountRate,
		Version:      m.Version,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Ledger entry models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:credit_ledger_entries"`

	ID                  string            `grove:"id,pk"`
	AccountID           string            `grove:"account_id"`
	Type                string            `grove:"type"`
	AmountMicros        int64             `grove:"amount_micros"`
	BalanceBeforeMicros int64             `grove:"balance_before_micros"`
	BalanceAfterMicros  int64             `grove:"balance_after_micros"`
	Status              string            `grove:"status"`
	RefKind             string            `grove:"ref_kind"`
	RefID               string            `grove:"ref_id"`
	Metadata            map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt           time.Time         `grove:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"`
}

func toEntryModel(e *entry.LedgerEntry) *entryModel {
	m := &entryModel{
		ID:                  e.ID.String(),
		AccountID:           e.AccountID.String(),
		Type:                string(e.Type),
		AmountMicros:        e.Amount.Micros,
		BalanceBeforeMicros: e.BalanceBefore.Micros,
		BalanceAfterMicros:  e.BalanceAfter.Micros,
		Status:              string(e.Status),
		Metadata:            e.Metadata,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
	if e.Reference != nil {
		m.RefKind = e.Reference.Kind
		m.RefID = e.Reference.ID
	}
	return m
}

func fromEntryModel(m *entryModel) (*entry.LedgerEntry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}

	var ref *entry.Reference
	if m.RefKind != "" {
		ref = &entry.Reference{Kind: m.RefKind, ID: m.RefID}
	}

	return &entry.LedgerEntry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            entryID,
		AccountID:     accountID,
		Type:          entry.Type(m.Type),
		Amount:        types.Micro(m.AmountMicros),
		BalanceBefore: types.Micro(m.BalanceBeforeMicros),
		BalanceAfter:  types.Micro(m.BalanceAfterMicros),
		Status:        entry.Status(m.Status),
		Reference:     ref,
		Metadata:      m.Metadata,
	}, nil
}

// ==================== Payment intent models ====================

type intentModel struct {
	grove.BaseModel `grove:"table:credit_payment_intents"`

	ID              string            `grove:"id,pk"`
	ExternalID      string            `grove:"external_id"`
	AccountID       string            `grove:"account_id"`
	PackageID       string            `grove:"package_id"`
	CreditMicros    int64             `grove:"credit_micros"`
	BonusMicros     int64             `grove:"bonus_micros"`
	FiatAmountCents int64             `grove:"fiat_amount_cents"`
	FiatCurrency    string            `grove:"fiat_currency"`
	Status          string            `grove:"status"`
	RetryCount      int               `grove:"retry_count"`
	LastError       string            `grove:"last_error"`
	Metadata        map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time         `grove:"created_at"`
	UpdatedAt       time.Time         `grove:"updated_at"`
}

func toIntentModel(i *payment.Intent) *intentModel {
	return &intentModel{
		ID:              i.ID.String(),
		ExternalID:      i.ExternalID,
		AccountID:       i.AccountID.String(),
		PackageID:       i.PackageID,
		CreditMicros:    i.CreditAmount.Micros,
		BonusMicros:     i.BonusCredits.Micros,
		FiatAmountCents: i.FiatAmount.Amount,
		FiatCurrency:    i.FiatAmount.Currency,
		Status:          string(i.Status),
		RetryCount:      i.RetryCount,
		LastError:       i.LastError,
		Metadata:        i.Metadata,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

func fromIntentModel(m *intentModel) (*payment.Intent, error) {
	intentID, err := id.ParsePaymentIntentID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}

	return &payment.Intent{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           intentID,
		ExternalID:   m.ExternalID,
		AccountID:    accountID,
		PackageID:    m.PackageID,
		CreditAmount: types.Micro(m.CreditMicros),
		BonusCredits: types.Micro(m.BonusMicros),
		FiatAmount:   types.Money{Amount: m.FiatAmountCents, Currency: m.FiatCurrency},
		Status:       payment.Status(m.Status),
		RetryCount:   m.RetryCount,
		LastError:    m.LastError,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Billing record models ====================

type billingModel struct {
	grove.BaseModel `grove:"table:credit_billing_records"`

	ID                string            `grove:"id,pk"`
	AccountID         string            `grove:"account_id"`
	IntentID          string            `grove:"intent_id"`
	EntryID           string            `grove:"entry_id"`
	Kind              string            `grove:"kind"`
	CreditsMicros     int64             `grove:"credits_micros"`
	FiatAmountCents   int64             `grove:"fiat_amount_cents"`
	FiatCurrency      string            `grove:"fiat_currency"`
	ExchangeRate      float64           `grove:"exchange_rate"`
	TaxAmountCents    int64             `grove:"tax_amount_cents"`
	TaxCurrency       string            `grove:"tax_currency"`
	RiskScore         float64           `grove:"risk_score"`
	InvoiceNumber     string            `grove:"invoice_number"`
	Processor         string            `grove:"processor"`
	ProcessorMetadata map[string]string `grove:"processor_metadata,type:jsonb"`
	CreatedAt         time.Time         `grove:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"`
}

func toBillingModel(r *payment.BillingRecord) *billingModel {
	return &billingModel{
		ID:                r.ID.String(),
		AccountID:         r.AccountID.String(),
		IntentID:          r.IntentID.String(),
		EntryID:           r.EntryID.String(),
		Kind:              string(r.Kind),
		CreditsMicros:     r.Credits.Micros,
		FiatAmountCents:   r.FiatAmount.Amount,
		FiatCurrency:      r.FiatAmount.Currency,
		ExchangeRate:      r.ExchangeRate,
		TaxAmountCents:    r.TaxAmount.Amount,
		TaxCurrency:       r.TaxAmount.Currency,
		RiskScore:         r.RiskScore,
		InvoiceNumber:     r.InvoiceNumber,
		Processor:         r.Processor,
		ProcessorMetadata: r.ProcessorMetadata,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func fromBillingModel(m *billingModel) (*payment.BillingRecord, error) {
	recordID, err := id.ParseBillingRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	intentID, err := id.ParsePaymentIntentID(m.IntentID)
	if err != nil {
		return nil, err
	}
	entryID, err := id.ParseEntryID(m.EntryID)
	if err != nil {
		return nil, err
	}

	return &payment.BillingRecord{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                recordID,
		AccountID:         accountID,
		IntentID:          intentID,
		EntryID:           entryID,
		Kind:              payment.BillingKind(m.Kind),
		Credits:           types.Micro(m.CreditsMicros),
		FiatAmount:        types.Money{Amount: m.FiatAmountCents, Currency: m.FiatCurrency},
		ExchangeRate:      m.ExchangeRate,
		TaxAmount:         types.Money{Amount: m.TaxAmountCents, Currency: m.TaxCurrency},
		RiskScore:         m.RiskScore,
		InvoiceNumber:     m.InvoiceNumber,
		Processor:         m.Processor,
		ProcessorMetadata: m.ProcessorMetadata,
	}, nil
}

// ==================== Cost estimate models ====================

type estimateModel struct {
	grove.BaseModel `grove:"table:credit_cost_estimates"`

	ID          string `grove:"id,pk"`
	WorkflowID  string `grove:"workflow_id"`
	AccountID   string `grove:"account_id"`
	ContentHash string `grove:"content_hash"`

	CPUMillicores int64 `grove:"cpu_millicores"`
	MemoryMB      int64 `grove:"memory_mb"`
	GPUMinutes    int64 `grove:"gpu_minutes"`
	StorageMB     int64 `grove:"storage_mb"`

	CostPerRunMicros       int64 `grove:"cost_per_run_micros"`
	BaseCostMicros         int64 `grove:"base_cost_micros"`
	ComplexityCostMicros   int64 `grove:"complexity_cost_micros"`
	AICostMicros           int64 `grove:"ai_cost_micros"`
	IntegrationCostMicros  int64 `grove:"integration_cost_micros"`
	StorageCostMicros      int64 `grove:"storage_cost_micros"`

	NodeCount          int     `grove:"node_count"`
	SupportedNodeCount int     `grove:"supported_node_count"`
	ComplexityScore    float64 `grove:"complexity_score"`
	SecurityScore      float64 `grove:"security_score"`

	Findings json.RawMessage `grove:"findings,type:jsonb"`

	Status         string    `grove:"status"`
	IsCached       bool      `grove:"is_cached"`
	CacheExpiresAt time.Time `grove:"cache_expires_at"`

	ActualRuns              int64   `grove:"actual_runs"`
	AverageActualCostMicros int64   `grove:"average_actual_cost_micros"`
	PredictionAccuracy      float64 `grove:"prediction_accuracy"`
	LastActualCostMicros    int64   `grove:"last_actual_cost_micros"`

	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toEstimateModel(e *estimate.CostEstimate) *estimateModel {
	findings, _ := json.Marshal(e.Findings) //nolint:errcheck // best-effort

	return &estimateModel{
		ID:          e.ID.String(),
		WorkflowID:  e.WorkflowID,
		AccountID:   e.AccountID.String(),
		ContentHash: e.ContentHash,

		CPUMillicores: e.Resources.CPUMillicores,
		MemoryMB:      e.Resources.MemoryMB,
		GPUMinutes:    e.Resources.GPUMinutes,
		StorageMB:     e.Resources.StorageMB,

		CostPerRunMicros:      e.CostPerRun.Micros,
		BaseCostMicros:        e.Breakdown.Base.Micros,
		ComplexityCostMicros:  e.Breakdown.Complexity.Micros,
		AICostMicros:          e.Breakdown.AI.Micros,
		IntegrationCostMicros: e.Breakdown.Integration.Micros,
		StorageCostMicros:     e.Breakdown.Storage.Micros,

		NodeCount:          e.NodeCount,
		SupportedNodeCount: e.SupportedNodeCount,
		ComplexityScore:    e.ComplexityScore,
		SecurityScore:      e.SecurityScore,

		Findings: findings,

		Status:         string(e.Status),
		IsCached:       e.IsCached,
		CacheExpiresAt: e.CacheExpiresAt,

		ActualRuns:              e.ActualRuns,
		AverageActualCostMicros: e.AverageActualCost.Micros,
		PredictionAccuracy:      e.PredictionAccuracy,
		LastActualCostMicros:    e.LastActualCost.Micros,

		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromEstimateModel(m *estimateModel) (*estimate.CostEstimate, error) {
	estimateID, err := id.ParseEstimateID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}

	var findings []estimate.Finding
	if len(m.Findings) > 0 && string(m.Findings) != "null" {
		_ = json.Unmarshal(m.Findings, &findings) //nolint:errcheck // best-effort
	}

	return &estimate.CostEstimate{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          estimateID,
		WorkflowID:  m.WorkflowID,
		AccountID:   accountID,
		ContentHash: m.ContentHash,
		Resources: estimate.ResourceEstimate{
			CPUMillicores: m.CPUMillicores,
			MemoryMB:      m.MemoryMB,
			GPUMinutes:    m.GPUMinutes,
			StorageMB:     m.StorageMB,
		},
		CostPerRun: types.Micro(m.CostPerRunMicros),
		Breakdown: estimate.Breakdown{
			Base:        types.Micro(m.BaseCostMicros),
			Complexity:  types.Micro(m.ComplexityCostMicros),
			AI:          types.Micro(m.AICostMicros),
			Integration: types.Micro(m.IntegrationCostMicros),
			Storage:     types.Micro(m.StorageCostMicros),
		},
		NodeCount:          m.NodeCount,
		SupportedNodeCount: m.SupportedNodeCount,
		ComplexityScore:    m.ComplexityScore,
		SecurityScore:      m.SecurityScore,
		Findings:           findings,
		Status:             estimate.Status(m.Status),
		IsCached:           m.IsCached,
		CacheExpiresAt:     m.CacheExpiresAt,
		ActualRuns:         m.ActualRuns,
		AverageActualCost:  types.Micro(m.AverageActualCostMicros),
		PredictionAccuracy: m.PredictionAccuracy,
		LastActualCost:     types.Micro(m.LastActualCostMicros),
	}, nil
}

// ==================== Usage record models ====================

type usageModel struct {
	grove.BaseModel `grove:"table:credit_usage_records"`

	ID         string `grove:"id,pk"`
	WorkflowID string `grove:"workflow_id"`
	AccountID  string `grove:"account_id"`
	RunID      string `grove:"run_id"`

	EstimatedCostMicros int64   `grove:"estimated_cost_micros"`
	ActualCostMicros    int64   `grove:"actual_cost_micros"`
	VarianceMicros      int64   `grove:"variance_micros"`
	VariancePct         float64 `grove:"variance_pct"`

	ExecutionSeconds float64 `grove:"execution_seconds"`
	CPUSeconds       float64 `grove:"cpu_seconds"`
	MemoryMBSeconds  float64 `grove:"memory_mb_seconds"`
	StorageMB        int64   `grove:"storage_mb"`
	ErrorCount       int     `grove:"error_count"`

	Status    string            `grove:"status"`
	Metadata  map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toUsageModel(r *usage.Record) *usageModel {
	return &usageModel{
		ID:         r.ID.String(),
		WorkflowID: r.WorkflowID,
		AccountID:  r.AccountID.String(),
		RunID:      r.RunID,

		EstimatedCostMicros: r.EstimatedCost.Micros,
		ActualCostMicros:    r.ActualCost.Micros,
		VarianceMicros:      r.Variance.Micros,
		VariancePct:         r.VariancePct,

		ExecutionSeconds: r.ExecutionSeconds,
		CPUSeconds:       r.Resources.CPUSeconds,
		MemoryMBSeconds:  r.Resources.MemoryMBSeconds,
		StorageMB:        r.Resources.StorageMB,
		ErrorCount:       r.Resources.ErrorCount,

		Status:    string(r.Status),
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromUsageModel(m *usageModel) (*usage.Record, error) {
	recordID, err := id.ParseUsageRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}

	return &usage.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            recordID,
		WorkflowID:    m.WorkflowID,
		AccountID:     accountID,
		RunID:         m.RunID,
		EstimatedCost: types.Micro(m.EstimatedCostMicros),
		ActualCost:    types.Micro(m.ActualCostMicros),
		Variance:      types.Micro(m.VarianceMicros),
		VariancePct:   m.VariancePct,
		Resources: usage.ResourceUsage{
			CPUSeconds:      m.CPUSeconds,
			MemoryMBSeconds: m.MemoryMBSeconds,
			StorageMB:       m.StorageMB,
			ErrorCount:      m.ErrorCount,
		},
		ExecutionSeconds: m.ExecutionSeconds,
		Status:           usage.ExecutionStatus(m.Status),
		Metadata:         m.Metadata,
	}, nil
}
