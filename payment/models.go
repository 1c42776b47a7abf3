// Package payment defines the external-payment side of the engine: the
// gateway-tracked PaymentIntent state machine, the lifecycle events the
// gateway delivers, and the settled BillingRecord history.
package payment

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status is the gateway-driven lifecycle state of a payment intent.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether the status is final. Completed intents admit
// exactly one further transition: completed → refunded.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed ||
		s == StatusCanceled || s == StatusRefunded
}

// Intent tracks one fiat payment attempt. ExternalID is the gateway's
// identifier and the natural idempotency key: event redelivery for an
// intent already in a terminal state is a no-op.
type Intent struct {
	types.Entity
	ID         id.PaymentIntentID `json:"id"`
	ExternalID string             `json:"external_id"`
	AccountID  id.AccountID       `json:"account_id"`

	PackageID    string        `json:"package_id,omitempty"`
	CreditAmount types.Credits `json:"credit_amount"`
	BonusCredits types.Credits `json:"bonus_credits"`
	FiatAmount   types.Money   `json:"fiat_amount"`

	Status     Status `json:"status"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// TotalCredits returns the credits granted when the intent completes.
func (i *Intent) TotalCredits() types.Credits {
	return i.CreditAmount.Add(i.BonusCredits)
}

// GatewayEvent is one payment lifecycle event as delivered by the gateway.
// Delivery is at-least-once; consumers must treat events as idempotent by
// ExternalID.
type GatewayEvent struct {
	ExternalID        string            `json:"external_id"`
	Status            Status            `json:"status"`
	FiatAmount        types.Money       `json:"fiat_amount"`
	Error             string            `json:"error,omitempty"`
	ProcessorMetadata map[string]string `json:"processor_metadata,omitempty"`
	OccurredAt        time.Time         `json:"occurred_at"`
}

// BillingKind classifies a settled financial event.
type BillingKind string

const (
	BillingPurchase BillingKind = "purchase"
	BillingRefund   BillingKind = "refund"
)

// BillingRecord is the append-only history of one settled financial event.
// It lives apart from the ledger because it carries fiat, tax, risk, and
// invoice metadata the ledger does not need. Tax and risk values are
// populated by registered plugins; the engine only carries the fields.
type BillingRecord struct {
	types.Entity
	ID        id.BillingRecordID `json:"id"`
	AccountID id.AccountID       `json:"account_id"`
	IntentID  id.PaymentIntentID `json:"intent_id"`
	EntryID   id.EntryID         `json:"entry_id"`

	Kind    BillingKind   `json:"kind"`
	Credits types.Credits `json:"credits"`

	FiatAmount   types.Money `json:"fiat_amount"`
	ExchangeRate float64     `json:"exchange_rate"` // credits per fiat major unit
	TaxAmount    types.Money `json:"tax_amount"`
	RiskScore    float64     `json:"risk_score"`

	InvoiceNumber     string            `json:"invoice_number,omitempty"`
	Processor         string            `json:"processor,omitempty"`
	ProcessorMetadata map[string]string `json:"processor_metadata,omitempty"`
}

// ListOpts filters payment intent listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

// BillingListOpts filters billing record listings.
type BillingListOpts struct {
	Kind   BillingKind
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
