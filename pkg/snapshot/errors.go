package snapshot

import "errors"

// ErrNotFound is returned by Restore and Delete for a missing or
// soft-deleted snapshot (spec.md §4.F: "if missing or soft-deleted,
// fails with not found").
var ErrNotFound = errors.New("snapshot: not found")

// ErrQuotaExceeded is returned by Create when the tenant is at its tier's
// on-demand snapshot cap (spec.md §4.F: "violating the cap fails with
// quota exceeded before any work").
var ErrQuotaExceeded = errors.New("snapshot: quota exceeded")
