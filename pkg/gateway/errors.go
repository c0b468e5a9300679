package gateway

import "errors"

// ErrCreditsExhausted names the outcome where the tenant's balance is at or
// below the negative grace buffer (spec.md §4.E). PreCheck reports this
// outcome as DecisionCreditsExhausted and does not return this error.
var ErrCreditsExhausted = errors.New("gateway: credits exhausted")

// ErrInsufficientCredits names the outcome where the balance is
// non-negative but below the estimated cost. PreCheck reports this outcome
// as DecisionInsufficientCredits and does not return this error.
var ErrInsufficientCredits = errors.New("gateway: insufficient credits")

// ErrInvalidMultiplier is returned at config load time when a margin rule
// multiplier falls outside [1.0, 3.0] (spec.md §4.E).
var ErrInvalidMultiplier = errors.New("gateway: margin multiplier out of range")
