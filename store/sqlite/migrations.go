package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credits store (SQLite).
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credit_accounts",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_accounts (
    id                           TEXT PRIMARY KEY,
    user_id                      TEXT NOT NULL DEFAULT '',
    balance_micros               INTEGER NOT NULL DEFAULT 0,
    total_earned_micros          INTEGER NOT NULL DEFAULT 0,
    total_spent_micros           INTEGER NOT NULL DEFAULT 0,
    total_purchased_micros       INTEGER NOT NULL DEFAULT 0,
    daily_spend_limit_micros     INTEGER NOT NULL DEFAULT 0,
    monthly_spend_limit_micros   INTEGER NOT NULL DEFAULT 0,
    low_balance_threshold_micros INTEGER NOT NULL DEFAULT 0,
    status                       TEXT NOT NULL DEFAULT 'active',
    auto_recharge_enabled        INTEGER NOT NULL DEFAULT 0,
    auto_recharge_threshold_micros INTEGER NOT NULL DEFAULT 0,
    auto_recharge_topup_micros   INTEGER NOT NULL DEFAULT 0,
    tier                         TEXT NOT NULL DEFAULT 'free',
    discount_rate                REAL NOT NULL DEFAULT 0,
    version                      INTEGER NOT NULL DEFAULT 0,
    metadata                     TEXT NOT NULL DEFAULT '{}',
    created_at                   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at                   TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (balance_micros >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_accounts_user ON credit_accounts (user_id) WHERE user_id != '';
CREATE INDEX IF NOT EXISTS idx_credit_accounts_status ON credit_accounts (status);
CREATE INDEX IF NOT EXISTS idx_credit_accounts_tier ON credit_accounts (tier);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credit_ledger_entries",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_ledger_entries (
    id                    TEXT PRIMARY KEY,
    account_id            TEXT NOT NULL,
    type                  TEXT NOT NULL,
    amount_micros         INTEGER NOT NULL,
    balance_before_micros INTEGER NOT NULL DEFAULT 0,
    balance_after_micros  INTEGER NOT NULL DEFAULT 0,
    status                TEXT NOT NULL DEFAULT 'completed',
    ref_kind              TEXT NOT NULL DEFAULT '',
    ref_id                TEXT NOT NULL DEFAULT '',
    metadata              TEXT NOT NULL DEFAULT '{}',
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (amount_micros > 0)
);

CREATE INDEX IF NOT EXISTS idx_credit_entries_account ON credit_ledger_entries (account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credit_entries_type ON credit_ledger_entries (account_id, type);
CREATE INDEX IF NOT EXISTS idx_credit_entries_status ON credit_ledger_entries (account_id, status);
CREATE INDEX IF NOT EXISTS idx_credit_entries_ref ON credit_ledger_entries (ref_kind, ref_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_ledger_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credit_payment_intents",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_payment_intents (
    id                TEXT PRIMARY KEY,
    external_id       TEXT NOT NULL,
    account_id        TEXT NOT NULL,
    package_id        TEXT NOT NULL DEFAULT '',
    credit_micros     INTEGER NOT NULL DEFAULT 0,
    bonus_micros      INTEGER NOT NULL DEFAULT 0,
    fiat_amount_cents INTEGER NOT NULL DEFAULT 0,
    fiat_currency     TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'pending',
    retry_count       INTEGER NOT NULL DEFAULT 0,
    last_error        TEXT NOT NULL DEFAULT '',
    metadata          TEXT NOT NULL DEFAULT '{}',
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_intents_external ON credit_payment_intents (external_id);
CREATE INDEX IF NOT EXISTS idx_credit_intents_account ON credit_payment_intents (account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credit_intents_status ON credit_payment_intents (account_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_payment_intents`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credit_billing_records",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_billing_records (
    id                 TEXT PRIMARY KEY,
    account_id         TEXT NOT NULL,
    intent_id          TEXT NOT NULL DEFAULT '',
    entry_id           TEXT NOT NULL DEFAULT '',
    kind               TEXT NOT NULL,
    credits_micros     INTEGER NOT NULL DEFAULT 0,
    fiat_amount_cents  INTEGER NOT NULL DEFAULT 0,
    fiat_currency      TEXT NOT NULL DEFAULT '',
    exchange_rate      REAL NOT NULL DEFAULT 0,
    tax_amount_cents   INTEGER NOT NULL DEFAULT 0,
    tax_currency       TEXT NOT NULL DEFAULT '',
    risk_score         REAL NOT NULL DEFAULT 0,
    invoice_number     TEXT NOT NULL DEFAULT '',
    processor          TEXT NOT NULL DEFAULT '',
    processor_metadata TEXT NOT NULL DEFAULT '{}',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credit_billing_account ON credit_billing_records (account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credit_billing_intent ON credit_billing_records (intent_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_billing_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credit_cost_estimates",
			Version: "20250601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_cost_estimates (
    id                         TEXT PRIMARY KEY,
    workflow_id                TEXT NOT NULL,
    account_id                 TEXT NOT NULL,
    content_hash               TEXT NOT NULL DEFAULT '',
    cpu_millicores             INTEGER NOT NULL DEFAULT 0,
    memory_mb                  INTEGER NOT NULL DEFAULT 0,
    gpu_minutes                INTEGER NOT NULL DEFAULT 0,
    storage_mb                 INTEGER NOT NULL DEFAULT 0,
    cost_per_run_micros        INTEGER NOT NULL DEFAULT 0,
    base_cost_micros           INTEGER NOT NULL DEFAULT 0,
    complexity_cost_micros     INTEGER NOT NULL DEFAULT 0,
    ai_cost_micros             INTEGER NOT NULL DEFAULT 0,
    integration_cost_micros    INTEGER NOT NULL DEFAULT 0,
    storage_cost_micros        INTEGER NOT NULL DEFAULT 0,
    node_count                 INTEGER NOT NULL DEFAULT 0,
    supported_node_count       INTEGER NOT NULL DEFAULT 0,
    complexity_score           REAL NOT NULL DEFAULT 0,
    security_score             REAL NOT NULL DEFAULT 0,
    findings                   TEXT NOT NULL DEFAULT '[]',
    status                     TEXT NOT NULL DEFAULT 'active',
    is_cached                  INTEGER NOT NULL DEFAULT 0,
    cache_expires_at           TEXT,
    actual_runs                INTEGER NOT NULL DEFAULT 0,
    average_actual_cost_micros INTEGER NOT NULL DEFAULT 0,
    prediction_accuracy        REAL NOT NULL DEFAULT 0,
    last_actual_cost_micros    INTEGER NOT NULL DEFAULT 0,
    created_at                 TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at                 TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_estimates_workflow_account ON credit_cost_estimates (workflow_id, account_id);
CREATE INDEX IF NOT EXISTS idx_credit_estimates_account ON credit_cost_estimates (account_id);
CREATE INDEX IF NOT EXISTS idx_credit_estimates_expiry ON credit_cost_estimates (is_cached, cache_expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_cost_estimates`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credit_usage_records",
			Version: "20250601000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_usage_records (
    id                    TEXT PRIMARY KEY,
    workflow_id           TEXT NOT NULL,
    account_id            TEXT NOT NULL,
    run_id                TEXT NOT NULL DEFAULT '',
    estimated_cost_micros INTEGER NOT NULL DEFAULT 0,
    actual_cost_micros    INTEGER NOT NULL DEFAULT 0,
    variance_micros       INTEGER NOT NULL DEFAULT 0,
    variance_pct          REAL NOT NULL DEFAULT 0,
    execution_seconds     REAL NOT NULL DEFAULT 0,
    cpu_seconds           REAL NOT NULL DEFAULT 0,
    memory_mb_seconds     REAL NOT NULL DEFAULT 0,
    storage_mb            INTEGER NOT NULL DEFAULT 0,
    error_count           INTEGER NOT NULL DEFAULT 0,
    status                TEXT NOT NULL DEFAULT 'queued',
    metadata              TEXT NOT NULL DEFAULT '{}',
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credit_usage_account ON credit_usage_records (account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credit_usage_workflow ON credit_usage_records (workflow_id, account_id, status);
CREATE INDEX IF NOT EXISTS idx_credit_usage_run ON credit_usage_records (run_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_usage_records`)
				return err
			},
		},
	)
}
