// Package credits provides a metered-credit accounting engine for Go
// applications running workflow-execution platforms.
//
// Credits is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A non-negative credit balance per account with optimistic concurrency
//   - An append-only ledger of typed, directional credit movements
//   - Idempotent payment-gateway reconciliation with retry accounting
//   - Cached per-workflow cost estimation with accuracy tracking
//   - Tier- and region-aware run deductions with a never-block fallback
//   - Post-run usage reconciliation (estimated vs actual, variance)
//   - A plugin hook system for billing, fraud, tax, and audit concerns
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	eng := credits.New(store)
//
//	// Start the engine (runs migrations, begins background workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Accounts hold one user's spendable balance:
//
//	acct := &account.Account{UserID: "user_123", Tier: account.TierStandard}
//	err := eng.CreateAccount(ctx, acct)
//
// The ledger is the only way a balance moves. Every movement is an entry
// with a type, a fixed direction, and balance snapshots taken at apply
// time:
//
//	le, err := eng.Apply(ctx, credits.ApplyRequest{
//	    AccountID: acct.ID,
//	    Type:      entry.TypeWorkflowCost,
//	    Amount:    credits.FromMilli(250),
//	})
//
// Workflow runs are priced from cached cost estimates and charged in one
// call:
//
//	ded, rec, err := eng.ChargeRun(ctx, credits.DeductionRequest{
//	    WorkflowID: "wf_42", AccountID: acct.ID, RunID: "run_7",
//	})
//
// After the run, reconcile what actually happened:
//
//	_, err = eng.RecordActual(ctx, credits.ActualUsage{
//	    WorkflowID: "wf_42", AccountID: acct.ID, RunID: "run_7",
//	    ActualCost: credits.FromMilli(231),
//	})
//
// # Arithmetic
//
// All balance calculations use integer arithmetic to avoid floating-point
// precision issues. The Credits type stores micro-credits (six fractional
// digits); multipliers are applied in basis points. Fiat amounts on the
// payment side use the Money type in the smallest currency unit.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	lent_01h2xcejqtf2nbrexx3vqjhp41  // Ledger entry ID
//	est_01h455vb4pex5vsknk084sn02q   // Cost estimate ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package credits
