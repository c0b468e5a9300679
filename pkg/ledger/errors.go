package ledger

import "errors"

// Sentinel errors for the ledger's distinguished failure kinds (spec §7).
// Callers use errors.Is, never string matching.
var (
	// ErrInsufficientBalance is returned by debit when allowNegative is
	// false and the tenant's balance would go below zero.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrDuplicateReference is returned when a referenceId collides with an
	// existing transaction. Webhook handlers treat this as a no-op success.
	ErrDuplicateReference = errors.New("ledger: duplicate reference id")

	// ErrInvalidAmount is returned when amount <= 0 is passed to credit or debit.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)
