package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/botfleet/creditcore/internal/audit"
	"github.com/botfleet/creditcore/pkg/snapshot"
)

// anonymizationToken bcrypt-hashes the identifier being scrubbed from the
// admin audit log. An investigator who already suspects a specific tenant
// or user id can verify it against the stored hash with bcrypt.CompareHashAndPassword;
// nobody can recover the identifier from the hash alone.
func anonymizationToken(identifier string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(identifier), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing anonymized identifier: %w", err)
	}
	return string(hash), nil
}

// StepError records one purge step's failure without aborting the
// remaining steps (spec.md §4.H).
type StepError struct {
	Step  string
	Error string
}

// Report is the result of executing a tenant deletion: the row count
// deleted per store and the list of step failures (spec.md §4.H, "The
// result report enumerates the row-count deleted per store and the
// errors list").
type Report struct {
	TenantID  uuid.UUID
	Counts    map[string]int64
	Errors    []StepError
	StartedAt time.Time
	EndedAt   time.Time
}

// Processor is the narrow slice of the payment processor the executor
// needs: best-effort deletion of the external customer record (spec.md
// §4.H step 1).
type Processor interface {
	DeleteCustomer(ctx context.Context, processorCustomerID string) error
}

// Executor runs the fixed ordered purge sequence for one tenant (spec.md
// §4.H). The purge is not transactional across stores: a retry on a
// partially-purged tenant is safe because every step deletes at most the
// rows that still exist.
type Executor struct {
	pool       *pgxpool.Pool
	object     snapshot.ObjectStore
	processor  Processor
	auditWriter *audit.Writer
	logger     *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(pool *pgxpool.Pool, object snapshot.ObjectStore, processor Processor, auditWriter *audit.Writer, logger *slog.Logger) *Executor {
	return &Executor{pool: pool, object: object, processor: processor, auditWriter: auditWriter, logger: logger}
}

// step wraps one purge operation so its failure is recorded into the
// report's errors list rather than aborting subsequent steps (spec.md
// §4.H, §7: "does not surface the first failure").
func (e *Executor) step(ctx context.Context, report *Report, name string, fn func(ctx context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		report.Errors = append(report.Errors, StepError{Step: name, Error: err.Error()})
		e.logger.Error("deletion step failed", "error", err, "step", name, "tenant_id", report.TenantID)
		return
	}
	report.Counts[name] += count
}

// execOne runs a single DELETE/UPDATE statement and returns rows affected.
func (e *Executor) execOne(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Execute runs the full 8-step purge sequence for tenantID (spec.md §4.H).
func (e *Executor) Execute(ctx context.Context, tenantID uuid.UUID, processorCustomerID string) Report {
	report := Report{TenantID: tenantID, Counts: map[string]int64{}, StartedAt: time.Now().UTC()}

	// Step 1: external payment-processor customer (best-effort).
	e.step(ctx, &report, "payment_processor_customer", func(ctx context.Context) (int64, error) {
		if processorCustomerID == "" || e.processor == nil {
			return 0, nil
		}
		if err := e.processor.DeleteCustomer(ctx, processorCustomerID); err != nil {
			return 0, fmt.Errorf("deleting processor customer: %w", err)
		}
		return 1, nil
	})

	// Step 2: bot instances; credit transactions; credit balances; raw-table
	// credit adjustments.
	e.step(ctx, &report, "bot_instances", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM bot_instances WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "credit_transactions", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM credit_transactions WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "credit_balances", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM credit_balances WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "credit_adjustments", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM credit_adjustments WHERE tenant_id = $1`, tenantID)
	})

	// Step 3: meter events; usage summaries; billing-period summaries;
	// external-usage reports. usage_summaries and external_usage_reports
	// are owned by other services sharing this schema; this module never
	// writes them, only purges them on tenant deletion (spec.md §4.H step 3).
	e.step(ctx, &report, "meter_events", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM meter_events WHERE tenant = $1`, tenantID.String())
	})
	e.step(ctx, &report, "usage_summaries", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM usage_summaries WHERE tenant = $1`, tenantID.String())
	})
	e.step(ctx, &report, "billing_period_summaries", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM billing_period_summaries WHERE tenant = $1`, tenantID.String())
	})
	e.step(ctx, &report, "external_usage_reports", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM external_usage_reports WHERE tenant_id = $1`, tenantID)
	})

	// Step 4: notification queue; notification preferences; email
	// notifications.
	e.step(ctx, &report, "notification_queue", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM notification_queue WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "notification_preferences", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM notification_preferences WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "email_notifications", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM email_notifications WHERE tenant_id = $1`, tenantID)
	})

	// Step 5: tenant-visible audit log entries deleted; admin audit log
	// entries anonymised in place for regulatory retention (spec.md §4.H).
	e.step(ctx, &report, "audit_log", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM audit_log WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "admin_audit_log_anonymized", func(ctx context.Context) (int64, error) {
		token, err := anonymizationToken(tenantID.String())
		if err != nil {
			return 0, err
		}
		return e.execOne(ctx,
			`UPDATE admin_audit_log SET target_tenant = $2, target_user = $2
			 WHERE target_tenant = $1 OR target_user = $1`,
			tenantID.String(), token,
		)
	})

	// Step 6: admin notes.
	e.step(ctx, &report, "admin_notes", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM admin_notes WHERE tenant_id = $1`, tenantID)
	})

	// Step 7: snapshot object-store objects (best-effort per row), then
	// snapshot rows, then container backups.
	e.step(ctx, &report, "snapshot_objects", func(ctx context.Context) (int64, error) {
		return e.purgeSnapshotObjects(ctx, tenantID)
	})
	e.step(ctx, &report, "snapshots", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM snapshots WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "container_backups", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM container_backups WHERE tenant_id = $1`, tenantID)
	})

	// Step 8: external payment-charge records; tenant status; user roles
	// (both as tenant and as scope); tenant-processor customer mapping;
	// finally the auth user record and its sessions, accounts, and
	// verification tokens.
	e.step(ctx, &report, "payment_charges", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM payment_charges WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "tenant_status", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM tenant_status WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "user_roles_as_tenant", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM user_roles WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "user_roles_as_scope", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM user_roles WHERE scope_tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "payment_schedules", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM payment_schedules WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "tenant_processor_customers", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM tenant_processor_customers WHERE tenant_id = $1`, tenantID)
	})
	e.step(ctx, &report, "auth_sessions", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, tenantID)
	})
	e.step(ctx, &report, "auth_accounts", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM auth_accounts WHERE user_id = $1`, tenantID)
	})
	e.step(ctx, &report, "auth_verification_tokens", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM auth_verification_tokens WHERE identifier = $1`, tenantID.String())
	})
	e.step(ctx, &report, "auth_users", func(ctx context.Context) (int64, error) {
		return e.execOne(ctx, `DELETE FROM auth_users WHERE id = $1`, tenantID)
	})

	report.EndedAt = time.Now().UTC()

	detail := fmt.Sprintf(`{"error_count":%d}`, len(report.Errors))
	e.auditWriter.Log(audit.Entry{
		Action:     "delete_tenant",
		Resource:   "tenant",
		ResourceID: tenantID,
		Detail:     []byte(detail),
	})

	return report
}

// purgeSnapshotObjects best-effort removes every object-store object for
// a tenant's snapshots, independent of whether the row delete succeeds.
func (e *Executor) purgeSnapshotObjects(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	rows, err := e.pool.Query(ctx, `SELECT storage_path FROM snapshots WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("listing snapshot storage paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return 0, fmt.Errorf("scanning storage path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var removed int64
	for _, p := range paths {
		if err := e.object.Remove(p); err != nil {
			e.logger.Error("removing snapshot object", "error", err, "path", p)
			continue
		}
		removed++
	}
	return removed, nil
}
