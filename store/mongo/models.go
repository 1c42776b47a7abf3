package mongo

import (
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

// ==================== Account models ====================

type autoRechargeModel struct {
	Enabled         bool  `bson:"enabled"`
	ThresholdMicros int64 `bson:"threshold_micros"`
	TopUpMicros     int64 `bson:"topup_micros"`
}

type accountModel struct {
	grove.BaseModel `grove:"table:credit_accounts"`

	ID                        string            `grove:"id,pk"                        bson:"_id"`
	UserID                    string            `grove:"user_id"                      bson:"user_id"`
	BalanceMicros             int64             `grove:"balance_micros"               bson:"balance_micros"`
	TotalEarnedMicros         int64             `grove:"total_earned_micros"          bson:"total_earned_micros"`
	TotalSpentMicros          int64             `grove:"total_spent_micros"           bson:"total_spent_micros"`
	TotalPurchasedMicros      int64             `grove:"total_purchased_micros"       bson:"total_purchased_micros"`
	DailySpendLimitMicros     int64             `grove:"daily_spend_limit_micros"     bson:"daily_spend_limit_micros"`
	MonthlySpendLimitMicros   int64             `grove:"monthly_spend_limit_micros"   bson:"monthly_spend_limit_micros"`
	LowBalanceThresholdMicros int64             `grove:"low_balance_threshold_micros" bson:"low_balance_threshold_micros"`
	Status                    string            `grove:"status"                       bson:"status"`
	AutoRecharge              autoRechargeModel `grove:"auto_recharge"                bson:"auto_recharge"`
	Tier                      string            `grove:"tier"                         bson:"tier"`
	DiscountRate              float64           `grove:"discount_rate"                bson:"discount_rate"`
	Version                   int64             `grove:"version"                      bson:"version"`
	Metadata                  map[string]string `grove:"metadata"                     bson:"metadata,omitempty"`
	CreatedAt                 time.Time         `grove:"created_at"                   bson:"created_at"`
	UpdatedAt                 time.Time         `grove:"updated_at"                   bson:"updated_at"`
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
		AutoRecharge: autoRechargeModel{
			Enabled:         a.AutoRecharge.Enabled,
			ThresholdMicros: a.AutoRecharge.Threshold.Micros,
			TopUpMicros:     a.AutoRecharge.TopUp.Micros,
		},
		Tier:         string(a.Tier),
		DiscountRate: a.DiscountRate,
		Version:      a.Version,
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
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
			Enabled:   m.AutoRecharge.Enabled,
			Threshold: types.Micro(m.AutoRecharge.ThresholdMicros),
			TopUp:     types.Micro(m.AutoRecharge.TopUpMicros),
		},
		Tier:         account.Tier(m.Tier),
		DiscountRate: m.DiscountRate,
		Version:      m.Version,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Ledger entry models ====================

type referenceModel struct {
	Kind string `bson:"kind"`
	ID   string `bson:"id"`
}

type entryModel struct {
	grove.BaseModel `grove:"table:credit_ledger_entries"`

	ID                  string            `grove:"id,pk"                 bson:"_id"`
	AccountID           string            `grove:"account_id"            bson:"account_id"`
	Type                string            `grove:"type"                  bson:"type"`
	AmountMicros        int64             `grove:"amount_micros"         bson:"amount_micros"`
	BalanceBeforeMicros int64             `grove:"balance_before_micros" bson:"balance_before_micros"`
	BalanceAfterMicros  int64             `grove:"balance_after_micros"  bson:"balance_after_micros"`
	Status              string            `grove:"status"                bson:"status"`
	Reference           *referenceModel   `grove:"reference"             bson:"reference,omitempty"`
	Metadata            map[string]string `grove:"metadata"              bson:"metadata,omitempty"`
	CreatedAt           time.Time         `grove:"created_at"            bson:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"            bson:"updated_at"`
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
		m.Reference = &referenceModel{Kind: e.Reference.Kind, ID: e.Reference.ID}
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
	if m.Reference != nil {
		ref = &entry.Reference{Kind: m.Reference.Kind, ID: m.Reference.ID}
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

type moneyModel struct {
	AmountCents int64  `bson:"amount_cents"`
	Currency    string `bson:"currency"`
}

type intentModel struct {
	grove.BaseModel `grove:"table:credit_payment_intents"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	ExternalID   string            `grove:"external_id"   bson:"external_id"`
	AccountID    string            `grove:"account_id"    bson:"account_id"`
	PackageID    string            `grove:"package_id"    bson:"package_id"`
	CreditMicros int64             `grove:"credit_micros" bson:"credit_micros"`
	BonusMicros  int64             `grove:"bonus_micros"  bson:"bonus_micros"`
	FiatAmount   moneyModel        `grove:"fiat_amount"   bson:"fiat_amount"`
	Status       string            `grove:"status"        bson:"status"`
	RetryCount   int               `grove:"retry_count"   bson:"retry_count"`
	LastError    string            `grove:"last_error"    bson:"last_error"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

func toIntentModel(i *payment.Intent) *intentModel {
	return &intentModel{
		ID:           i.ID.String(),
		ExternalID:   i.ExternalID,
		AccountID:    i.AccountID.String(),
		PackageID:    i.PackageID,
		CreditMicros: i.CreditAmount.Micros,
		BonusMicros:  i.BonusCredits.Micros,
		FiatAmount:   moneyModel{AmountCents: i.FiatAmount.Amount, Currency: i.FiatAmount.Currency},
		Status:       string(i.Status),
		RetryCount:   i.RetryCount,
		LastError:    i.LastError,
		Metadata:     i.Metadata,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
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
		FiatAmount:   types.Money{Amount: m.FiatAmount.AmountCents, Currency: m.FiatAmount.Currency},
		Status:       payment.Status(m.Status),
		RetryCount:   m.RetryCount,
		LastError:    m.LastError,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Billing record models ====================

type billingModel struct {
	grove.BaseModel `grove:"table:credit_billing_records"`

	ID                string            `grove:"id,pk"              bson:"_id"`
	AccountID         string            `grove:"account_id"         bson:"account_id"`
	IntentID          string            `grove:"intent_id"          bson:"intent_id"`
	EntryID           string            `grove:"entry_id"           bson:"entry_id"`
	Kind              string            `grove:"kind"               bson:"kind"`
	CreditsMicros     int64             `grove:"credits_micros"     bson:"credits_micros"`
	FiatAmount        moneyModel        `grove:"fiat_amount"        bson:"fiat_amount"`
	ExchangeRate      float64           `grove:"exchange_rate"      bson:"exchange_rate"`
	TaxAmount         moneyModel        `grove:"tax_amount"         bson:"tax_amount"`
	RiskScore         float64           `grove:"risk_score"         bson:"risk_score"`
	InvoiceNumber     string            `grove:"invoice_number"     bson:"invoice_number"`
	Processor         string            `grove:"processor"          bson:"processor"`
	ProcessorMetadata map[string]string `grove:"processor_metadata" bson:"processor_metadata,omitempty"`
	CreatedAt         time.Time         `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"         bson:"updated_at"`
}

func toBillingModel(r *payment.BillingRecord) *billingModel {
	return &billingModel{
		ID:                r.ID.String(),
		AccountID:         r.AccountID.String(),
		IntentID:          r.IntentID.String(),
		EntryID:           r.EntryID.String(),
		Kind:              string(r.Kind),
		CreditsMicros:     r.Credits.Micros,
		FiatAmount:        moneyModel{AmountCents: r.FiatAmount.Amount, Currency: r.FiatAmount.Currency},
		ExchangeRate:      r.ExchangeRate,
		TaxAmount:         moneyModel{AmountCents: r.TaxAmount.Amount, Currency: r.TaxAmount.Currency},
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
		FiatAmount:        types.Money{Amount: m.FiatAmount.AmountCents, Currency: m.FiatAmount.Currency},
		ExchangeRate:      m.ExchangeRate,
		TaxAmount:         types.Money{Amount: m.TaxAmount.AmountCents, Currency: m.TaxAmount.Currency},
		RiskScore:         m.RiskScore,
		InvoiceNumber:     m.InvoiceNumber,
		Processor:         m.Processor,
		ProcessorMetadata: m.ProcessorMetadata,
	}, nil
}

// ==================== Cost estimate models ====================

type resourceEstimateModel struct {
	CPUMillicores int64 `bson:"cpu_millicores"`
	MemoryMB      int64 `bson:"memory_mb"`
	GPUMinutes    int64 `bson:"gpu_minutes"`
	StorageMB     int64 `bson:"storage_mb"`
}

type breakdownModel struct {
	BaseMicros        int64 `bson:"base_micros"`
	ComplexityMicros  int64 `bson:"complexity_micros"`
	AIMicros          int64 `bson:"ai_micros"`
	IntegrationMicros int64 `bson:"integration_micros"`
	StorageMicros     int64 `bson:"storage_micros"`
}

type findingModel struct {
	Code     string `bson:"code"`
	Severity string `bson:"severity"`
	Message  string `bson:"message"`
	NodeID   string `bson:"node_id,omitempty"`
}

type estimateModel struct {
	grove.BaseModel `grove:"table:credit_cost_estimates"`

	ID          string                `grove:"id,pk"        bson:"_id"`
	WorkflowID  string                `grove:"workflow_id"  bson:"workflow_id"`
	AccountID   string                `grove:"account_id"   bson:"account_id"`
	ContentHash string                `grove:"content_hash" bson:"content_hash"`
	Resources   resourceEstimateModel `grove:"resources"    bson:"resources"`

	CostPerRunMicros int64          `grove:"cost_per_run_micros" bson:"cost_per_run_micros"`
	Breakdown        breakdownModel `grove:"breakdown"           bson:"breakdown"`

	NodeCount          int     `grove:"node_count"           bson:"node_count"`
	SupportedNodeCount int     `grove:"supported_node_count" bson:"supported_node_count"`
	ComplexityScore    float64 `grove:"complexity_score"     bson:"complexity_score"`
	SecurityScore      float64 `grove:"security_score"       bson:"security_score"`

	Findings []findingModel `grove:"findings" bson:"findings,omitempty"`

	Status         string    `grove:"status"           bson:"status"`
	IsCached       bool      `grove:"is_cached"        bson:"is_cached"`
	CacheExpiresAt time.Time `grove:"cache_expires_at" bson:"cache_expires_at"`

	ActualRuns              int64   `grove:"actual_runs"                bson:"actual_runs"`
	AverageActualCostMicros int64   `grove:"average_actual_cost_micros" bson:"average_actual_cost_micros"`
	PredictionAccuracy      float64 `grove:"prediction_accuracy"        bson:"prediction_accuracy"`
	LastActualCostMicros    int64   `grove:"last_actual_cost_micros"    bson:"last_actual_cost_micros"`

	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toEstimateModel(e *estimate.CostEstimate) *estimateModel {
	findings := make([]findingModel, len(e.Findings))
	for i, f := range e.Findings {
		findings[i] = findingModel{Code: f.Code, Severity: f.Severity, Message: f.Message, NodeID: f.NodeID}
	}

	return &estimateModel{
		ID:          e.ID.String(),
		WorkflowID:  e.WorkflowID,
		AccountID:   e.AccountID.String(),
		ContentHash: e.ContentHash,
		Resources: resourceEstimateModel{
			CPUMillicores: e.Resources.CPUMillicores,
			MemoryMB:      e.Resources.MemoryMB,
			GPUMinutes:    e.Resources.GPUMinutes,
			StorageMB:     e.Resources.StorageMB,
		},
		CostPerRunMicros: e.CostPerRun.Micros,
		Breakdown: breakdownModel{
			BaseMicros:        e.Breakdown.Base.Micros,
			ComplexityMicros:  e.Breakdown.Complexity.Micros,
			AIMicros:          e.Breakdown.AI.Micros,
			IntegrationMicros: e.Breakdown.Integration.Micros,
			StorageMicros:     e.Breakdown.Storage.Micros,
		},
		NodeCount:          e.NodeCount,
		SupportedNodeCount: e.SupportedNodeCount,
		ComplexityScore:    e.ComplexityScore,
		SecurityScore:      e.SecurityScore,
		Findings:           findings,
		Status:             string(e.Status),
		IsCached:           e.IsCached,
		CacheExpiresAt:     e.CacheExpiresAt,

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
	if len(m.Findings) > 0 {
		findings = make([]estimate.Finding, len(m.Findings))
		for i, f := range m.Findings {
			findings[i] = estimate.Finding{Code: f.Code, Severity: f.Severity, Message: f.Message, NodeID: f.NodeID}
		}
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
			CPUMillicores: m.Resources.CPUMillicores,
			MemoryMB:      m.Resources.MemoryMB,
			GPUMinutes:    m.Resources.GPUMinutes,
			StorageMB:     m.Resources.StorageMB,
		},
		CostPerRun: types.Micro(m.CostPerRunMicros),
		Breakdown: estimate.Breakdown{
			Base:        types.Micro(m.Breakdown.BaseMicros),
			Complexity:  types.Micro(m.Breakdown.ComplexityMicros),
			AI:          types.Micro(m.Breakdown.AIMicros),
			Integration: types.Micro(m.Breakdown.IntegrationMicros),
			Storage:     types.Micro(m.Breakdown.StorageMicros),
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

type resourceUsageModel struct {
	CPUSeconds      float64 `bson:"cpu_seconds"`
	MemoryMBSeconds float64 `bson:"memory_mb_seconds"`
	StorageMB       int64   `bson:"storage_mb"`
	ErrorCount      int     `bson:"error_count"`
}

type usageModel struct {
	grove.BaseModel `grove:"table:credit_usage_records"`

	ID         string `grove:"id,pk"       bson:"_id"`
	WorkflowID string `grove:"workflow_id" bson:"workflow_id"`
	AccountID  string `grove:"account_id"  bson:"account_id"`
	RunID      string `grove:"run_id"      bson:"run_id"`

	EstimatedCostMicros int64   `grove:"estimated_cost_micros" bson:"estimated_cost_micros"`
	ActualCostMicros    int64   `grove:"actual_cost_micros"    bson:"actual_cost_micros"`
	VarianceMicros      int64   `grove:"variance_micros"       bson:"variance_micros"`
	VariancePct         float64 `grove:"variance_pct"          bson:"variance_pct"`

	ExecutionSeconds float64            `grove:"execution_seconds" bson:"execution_seconds"`
	Resources        resourceUsageModel `grove:"resources"         bson:"resources"`

	Status    string            `grove:"status"     bson:"status"`
	Metadata  map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
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
		Resources: resourceUsageModel{
			CPUSeconds:      r.Resources.CPUSeconds,
			MemoryMBSeconds: r.Resources.MemoryMBSeconds,
			StorageMB:       r.Resources.StorageMB,
			ErrorCount:      r.Resources.ErrorCount,
		},

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
			CPUSeconds:      m.Resources.CPUSeconds,
			MemoryMBSeconds: m.Resources.MemoryMBSeconds,
			StorageMB:       m.Resources.StorageMB,
			ErrorCount:      m.Resources.ErrorCount,
		},
		ExecutionSeconds: m.ExecutionSeconds,
		Status:           usage.ExecutionStatus(m.Status),
		Metadata:         m.Metadata,
	}, nil
}
