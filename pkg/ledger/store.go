package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botfleet/creditcore/pkg/money"
)

// pgUniqueViolation is the Postgres error code for a unique constraint
// violation. The ledger relies on a database-level unique index on
// reference_id rather than a pre-check (spec.md §6).
const pgUniqueViolation = "23505"

// Store provides transactional operations on the credit ledger, backed by
// the global connection pool. All tenants share one schema, distinguished
// by a tenant_id column.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a ledger Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreditParams holds parameters for Credit.
type CreditParams struct {
	TenantID         uuid.UUID
	Amount           money.Amount // must be > 0
	Type             string
	Description      string
	ReferenceID      *string
	FundingSource    *string
	AttributedUserID *uuid.UUID
}

// Credit posts a positive transaction, upserting the balance row inside one
// transaction (spec.md §4.B, §5: "credit/debit pairs the balance row with
// the transaction row").
func (s *Store) Credit(ctx context.Context, p CreditParams) (Transaction, error) {
	if p.Amount.IsZero() || p.Amount.IsNegative() {
		return Transaction{}, ErrInvalidAmount
	}
	return s.post(ctx, p.TenantID, p.Amount, p.Type, p.Description, p.ReferenceID, p.FundingSource, p.AttributedUserID, false)
}

// DebitParams holds parameters for Debit.
type DebitParams struct {
	TenantID         uuid.UUID
	Amount           money.Amount // must be > 0; stored as a negative transaction
	Type             string
	Description      string
	ReferenceID      *string
	AllowNegative    bool
	AttributedUserID *uuid.UUID
}

// Debit posts a negative transaction. If AllowNegative is false and the
// resulting balance would be negative, returns ErrInsufficientBalance and
// writes nothing.
func (s *Store) Debit(ctx context.Context, p DebitParams) (Transaction, error) {
	if p.Amount.IsZero() || p.Amount.IsNegative() {
		return Transaction{}, ErrInvalidAmount
	}
	return s.post(ctx, p.TenantID, money.Zero.Subtract(p.Amount), p.Type, p.Description, p.ReferenceID, nil, p.AttributedUserID, p.AllowNegative)
}

// post is the shared credit/debit implementation. signedAmount is already
// signed (positive for credit, negative for debit).
func (s *Store) post(
	ctx context.Context,
	tenantID uuid.UUID,
	signedAmount money.Amount,
	txType, description string,
	referenceID, fundingSource *string,
	attributedUserID *uuid.UUID,
	allowNegative bool,
) (Transaction, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, fmt.Errorf("beginning ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current money.Amount
	row := tx.QueryRow(ctx, `SELECT amount FROM credit_balances WHERE tenant_id = $1 FOR UPDATE`, tenantID)
	if err := row.Scan(&current); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("reading balance: %w", err)
		}
		current = money.Zero
	}

	newBalance := current.Add(signedAmount)
	if signedAmount.IsNegative() && !allowNegative && newBalance.IsNegative() {
		return Transaction{}, ErrInsufficientBalance
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO credit_balances (tenant_id, amount, last_updated) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id) DO UPDATE SET amount = $2, last_updated = $3`,
		tenantID, newBalance, now,
	); err != nil {
		return Transaction{}, fmt.Errorf("upserting balance: %w", err)
	}

	txn := Transaction{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Amount:           signedAmount,
		BalanceAfter:     newBalance,
		Type:             txType,
		Description:      description,
		ReferenceID:      referenceID,
		FundingSource:    fundingSource,
		AttributedUserID: attributedUserID,
		CreatedAt:        now,
	}

	row = tx.QueryRow(ctx,
		`INSERT INTO credit_transactions
		   (id, tenant_id, amount, balance_after, type, description, reference_id, funding_source, attributed_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		txn.ID, txn.TenantID, txn.Amount, txn.BalanceAfter, txn.Type, txn.Description,
		txn.ReferenceID, txn.FundingSource, txn.AttributedUserID, txn.CreatedAt,
	)
	if err := row.Scan(&txn.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, fmt.Errorf("inserting transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("committing ledger transaction: %w", err)
	}

	return txn, nil
}

// Balance returns the current balance row for tenant, or the zero amount if absent.
func (s *Store) Balance(ctx context.Context, tenantID uuid.UUID) (Balance, error) {
	row := s.pool.QueryRow(ctx, `SELECT amount, last_updated FROM credit_balances WHERE tenant_id = $1`, tenantID)

	var b Balance
	b.TenantID = tenantID
	err := row.Scan(&b.Amount, &b.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{TenantID: tenantID, Amount: money.Zero}, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("reading balance: %w", err)
	}
	return b, nil
}

// HasReferenceID reports whether any transaction carries referenceID.
func (s *Store) HasReferenceID(ctx context.Context, referenceID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM credit_transactions WHERE reference_id = $1)`, referenceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking reference id: %w", err)
	}
	return exists, nil
}

var transactionColumns = `id, tenant_id, amount, balance_after, type, description, reference_id, funding_source, attributed_user_id, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var description *string
	err := row.Scan(&t.ID, &t.TenantID, &t.Amount, &t.BalanceAfter, &t.Type, &description,
		&t.ReferenceID, &t.FundingSource, &t.AttributedUserID, &t.CreatedAt)
	if description != nil {
		t.Description = *description
	}
	return t, err
}

// History returns a page of transactions for tenant, newest first.
func (s *Store) History(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	filter = filter.Clamp()

	query := `SELECT ` + transactionColumns + ` FROM credit_transactions WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, *filter.Type)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemberUsage groups negative transactions by attributed_user_id.
func (s *Store) MemberUsage(ctx context.Context, tenantID uuid.UUID) ([]MemberUsage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT attributed_user_id, sum(-amount), count(*)
		 FROM credit_transactions
		 WHERE tenant_id = $1 AND amount < 0 AND attributed_user_id IS NOT NULL
		 GROUP BY attributed_user_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating member usage: %w", err)
	}
	defer rows.Close()

	var out []MemberUsage
	for rows.Next() {
		var m MemberUsage
		if err := rows.Scan(&m.UserID, &m.TotalDebit, &m.TransactionCount); err != nil {
			return nil, fmt.Errorf("scanning member usage: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TenantsWithBalance lists all tenants whose balance is strictly positive.
func (s *Store) TenantsWithBalance(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT tenant_id FROM credit_balances WHERE amount > 0`)
	if err != nil {
		return nil, fmt.Errorf("listing tenants with balance: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Correct posts a reversal transaction for txID, crediting or debiting the
// inverse amount with type TypeCorrection. This supplements spec.md §4.B:
// the spec requires corrections to go through the ledger rather than
// editing history in place, matching the append-only design of
// other_examples' generic ledger ("corrections via reversal, not edit").
func (s *Store) Correct(ctx context.Context, txID uuid.UUID, description string, referenceID *string) (Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM credit_transactions WHERE id = $1`, txID)
	original, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("correcting transaction: %w: transaction not found", pgx.ErrNoRows)
		}
		return Transaction{}, fmt.Errorf("reading original transaction: %w", err)
	}

	reversal := money.Zero.Subtract(original.Amount)
	return s.post(ctx, original.TenantID, reversal, TypeCorrection, description, referenceID, nil, original.AttributedUserID, true)
}
