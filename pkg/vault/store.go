package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides relational persistence for credential rows. The
// encrypted value is stored as a jsonb column holding the {iv, authTag,
// ciphertext} object (spec.md §6).
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a vault Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var credentialColumns = `id, provider, key_name, encrypted_value, auth_type, auth_header,
	is_active, last_validated, created_at, rotated_at, created_by`

func scanCredential(row pgx.Row) (Credential, error) {
	var c Credential
	var encrypted []byte
	err := row.Scan(&c.ID, &c.Provider, &c.KeyName, &encrypted, &c.AuthType, &c.AuthHeader,
		&c.IsActive, &c.LastValidated, &c.CreatedAt, &c.RotatedAt, &c.CreatedBy)
	if err != nil {
		return Credential{}, err
	}
	if err := json.Unmarshal(encrypted, &c.EncryptedValue); err != nil {
		return Credential{}, fmt.Errorf("decoding encrypted value: %w", err)
	}
	return c, nil
}

// Insert writes a new credential row.
func (s *Store) Insert(ctx context.Context, c Credential) error {
	encoded, err := json.Marshal(c.EncryptedValue)
	if err != nil {
		return fmt.Errorf("encoding encrypted value: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO credentials (`+credentialColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Provider, c.KeyName, encoded, c.AuthType, c.AuthHeader,
		c.IsActive, c.LastValidated, c.CreatedAt, c.RotatedAt, c.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

// Get reads a single credential by id, including the decryptable value.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("reading credential: %w", err)
	}
	return c, nil
}

// ListByProvider returns all credentials registered for a provider, newest
// first.
func (s *Store) ListByProvider(ctx context.Context, provider string) ([]Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE provider = $1 ORDER BY created_at DESC`, provider)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns every credential, newest first.
func (s *Store) List(ctx context.Context) ([]Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateEncryptedValue replaces a credential's encrypted value and stamps
// rotatedAt (spec.md §4.I, "rotation replaces the encrypted value and
// records rotatedAt").
func (s *Store) UpdateEncryptedValue(ctx context.Context, id uuid.UUID, ev EncryptedValue, rotatedAt time.Time) error {
	encoded, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding encrypted value: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE credentials SET encrypted_value = $2, rotated_at = $3 WHERE id = $1`,
		id, encoded, rotatedAt,
	)
	if err != nil {
		return fmt.Errorf("rotating credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips a credential's active flag.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE credentials SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("updating credential active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordValidation stamps lastValidated after a successful liveness check
// against the provider.
func (s *Store) RecordValidation(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE credentials SET last_validated = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("recording credential validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete permanently removes a credential row.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
