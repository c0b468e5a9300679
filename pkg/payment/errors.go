package payment

import "errors"

// ErrInvalidSignature is returned when the processor rejects the webhook
// signature; the handler must not process the event (spec.md §4.D step 1).
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")
