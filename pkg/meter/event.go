// Package meter implements the usage-metering pipeline: emit → WAL →
// batched flush → periodic aggregate into billing-period summaries.
package meter

import (
	"time"

	"github.com/google/uuid"
)

// Event is one billable unit of external usage. Cost and Charge are
// expressed in US dollars as float64 here only because this is the wire/WAL
// representation directly mirroring spec.md §6's JSON line format; all
// arithmetic that feeds the ledger goes through money.Amount before being
// persisted as a transaction.
type Event struct {
	ID         string    `json:"id"`
	Tenant     string    `json:"tenant"`
	Capability string    `json:"capability"`
	Provider   string    `json:"provider"`
	Cost       float64   `json:"cost"`
	Charge     float64   `json:"charge"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  *string   `json:"sessionId,omitempty"`
	Duration   *float64  `json:"duration,omitempty"`
	// Retries counts flush failures for this event and must survive WAL
	// compaction: Compact rewrites retried events on every failed flush
	// cycle, so if this weren't serialized the counter would reset to
	// zero each time and the DLQ threshold would never trip.
	Retries int `json:"retries"`
}

// NewEvent assigns a UUID id if absent and returns a ready-to-append Event.
func NewEvent(tenant, capability, provider string, cost, charge float64, sessionID *string, duration *float64) Event {
	return Event{
		ID:         uuid.New().String(),
		Tenant:     tenant,
		Capability: capability,
		Provider:   provider,
		Cost:       cost,
		Charge:     charge,
		Timestamp:  time.Now().UTC(),
		SessionID:  sessionID,
		Duration:   duration,
	}
}

// DeadLetterEvent is an Event plus the failure metadata recorded when it is
// moved to the DLQ (spec.md §6).
type DeadLetterEvent struct {
	Event
	DLQTimestamp time.Time `json:"dlq_timestamp"`
	DLQError     string    `json:"dlq_error"`
	DLQRetries   int       `json:"dlq_retries"`
}

// WithRetryIncremented returns a copy of e with its retry counter
// incremented by one, for flush failure handling.
func (e Event) WithRetryIncremented() Event {
	e.Retries++
	return e
}

// RetryCount returns the persisted retry counter.
func (e Event) RetryCount() int {
	return e.Retries
}

// PeriodStart returns the start of the fixed-length period containing t,
// per spec.md §3: floor(t/P)·P.
func PeriodStart(t time.Time, period time.Duration) time.Time {
	unix := t.UnixNano()
	p := period.Nanoseconds()
	floored := (unix / p) * p
	return time.Unix(0, floored).UTC()
}
