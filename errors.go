package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")
	ErrInvalidInput  = errors.New("credits: invalid input")
	ErrUnauthorized  = errors.New("credits: unauthorized")
	ErrForbidden     = errors.New("credits: forbidden")

	// Account errors
	ErrAccountNotFound   = errors.New("credits: account not found")
	ErrAccountExists     = errors.New("credits: account already exists for user")
	ErrAccountNotActive  = errors.New("credits: account is not active")
	ErrAccountClosed     = errors.New("credits: account is closed")
	ErrVersionConflict   = errors.New("credits: account version conflict")
	ErrTooManyConflicts  = errors.New("credits: too many version conflicts")
	ErrSpendLimitReached = errors.New("credits: spend limit reached")

	// Ledger errors
	ErrInvalidAmount     = errors.New("credits: amount must be positive")
	ErrInvalidEntryType  = errors.New("credits: unknown entry type")
	ErrInsufficientFunds = errors.New("credits: insufficient funds")
	ErrBalanceInvariant  = errors.New("credits: balance identity violated")
	ErrEntryNotFound     = errors.New("credits: ledger entry not found")
	ErrEntryNotPending   = errors.New("credits: ledger entry is not pending")

	// Payment errors
	ErrIntentNotFound       = errors.New("credits: payment intent not found")
	ErrDuplicateIntent      = errors.New("credits: payment intent already exists")
	ErrIntentTerminal       = errors.New("credits: payment intent already in terminal state")
	ErrIntentConflict       = errors.New("credits: payment intent status conflict")
	ErrIntentNotRefundable  = errors.New("credits: payment intent is not refundable")
	ErrPaymentRetryExceeded = errors.New("credits: payment retry limit exceeded")

	// Estimate errors
	ErrEstimateNotFound = errors.New("credits: cost estimate not found")
	ErrEstimateExpired  = errors.New("credits: cost estimate cache expired")
	ErrEstimateInvalid  = errors.New("credits: cost estimate invalid")

	// Usage errors
	ErrUsageNotFound = errors.New("credits: usage record not found")
	ErrRunFinalized  = errors.New("credits: usage record already finalized")

	// Store errors
	ErrStoreNotReady   = errors.New("credits: store not ready")
	ErrStoreClosed     = errors.New("credits: store is closed")
	ErrMigrationFailed = errors.New("credits: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrIntentNotFound) ||
		errors.Is(err, ErrEstimateNotFound) ||
		errors.Is(err, ErrUsageNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried against a freshly-read account.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrIntentConflict) ||
		errors.Is(err, ErrStoreNotReady)
}

// IsFatal returns true for errors that indicate a programming or data
// corruption problem rather than a caller mistake. These should page.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBalanceInvariant)
}
