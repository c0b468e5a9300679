package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/audit"
	"github.com/botfleet/creditcore/internal/telemetry"
)

// ErrInvalidAuthType is returned when a credential's authType is not one
// of header, bearer, or basic (spec.md §3).
var ErrInvalidAuthType = errors.New("vault: auth type must be header, bearer, or basic")

// Vault is the credential-vault service: it owns the platform secret and
// mediates every encrypt/decrypt against the Store, emitting an audit
// entry on every mutation (spec.md §4.I).
type Vault struct {
	store  *Store
	secret []byte
	audit  *audit.Writer
	logger *slog.Logger
}

// NewVault constructs a Vault. secret is the platform-wide key-derivation
// secret; callers generate a random one at init for tests (spec.md §4.I).
func NewVault(store *Store, secret []byte, auditWriter *audit.Writer, logger *slog.Logger) *Vault {
	return &Vault{store: store, secret: secret, audit: auditWriter, logger: logger}
}

func validAuthType(t string) bool {
	switch t {
	case AuthTypeHeader, AuthTypeBearer, AuthTypeBasic:
		return true
	default:
		return false
	}
}

// StoreParams are the inputs for registering a new credential.
type StoreParams struct {
	Provider   string
	KeyName    string
	Plaintext  string
	AuthType   string
	AuthHeader *string
	CreatedBy  string
}

// Store seals plaintext under the platform secret and persists a new
// credential row.
func (v *Vault) Store(ctx context.Context, p StoreParams) (Summary, error) {
	if !validAuthType(p.AuthType) {
		return Summary{}, ErrInvalidAuthType
	}

	ev, err := Encrypt(v.secret, p.Plaintext)
	if err != nil {
		return Summary{}, fmt.Errorf("sealing credential: %w", err)
	}

	c := Credential{
		ID:             uuid.New(),
		Provider:       p.Provider,
		KeyName:        p.KeyName,
		EncryptedValue: ev,
		AuthType:       p.AuthType,
		AuthHeader:     p.AuthHeader,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      p.CreatedBy,
	}
	if err := v.store.Insert(ctx, c); err != nil {
		return Summary{}, err
	}

	v.emitAudit(ctx, "vault_credential_created", c.ID, p.CreatedBy)
	return c.ToSummary(), nil
}

// Reveal decrypts and returns the plaintext for a credential. This is the
// only path by which a caller ever sees the secret; it is not exposed by
// any list/summary endpoint (spec.md §4.I).
func (v *Vault) Reveal(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	plaintext, err := Decrypt(v.secret, c.EncryptedValue)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// Rotate reseals a new plaintext under the platform secret, replacing the
// stored encrypted value and stamping rotatedAt (spec.md §4.I).
func (v *Vault) Rotate(ctx context.Context, id uuid.UUID, newPlaintext string, rotatedBy string) (Summary, error) {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}

	ev, err := Encrypt(v.secret, newPlaintext)
	if err != nil {
		return Summary{}, fmt.Errorf("sealing rotated credential: %w", err)
	}

	rotatedAt := time.Now().UTC()
	if err := v.store.UpdateEncryptedValue(ctx, id, ev, rotatedAt); err != nil {
		return Summary{}, err
	}

	v.emitAudit(ctx, "vault_credential_rotated", id, rotatedBy)

	c.EncryptedValue = ev
	c.RotatedAt = &rotatedAt
	return c.ToSummary(), nil
}

// SetActive enables or disables a credential without deleting it.
func (v *Vault) SetActive(ctx context.Context, id uuid.UUID, active bool, actor string) error {
	if err := v.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	action := "vault_credential_disabled"
	if active {
		action = "vault_credential_enabled"
	}
	v.emitAudit(ctx, action, id, actor)
	return nil
}

// RecordValidation stamps lastValidated after the caller confirms the
// credential still authenticates against the provider.
func (v *Vault) RecordValidation(ctx context.Context, id uuid.UUID) error {
	return v.store.RecordValidation(ctx, id, time.Now().UTC())
}

// Delete permanently removes a credential.
func (v *Vault) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	if err := v.store.Delete(ctx, id); err != nil {
		return err
	}
	v.emitAudit(ctx, "vault_credential_deleted", id, actor)
	return nil
}

// Get returns the non-secret summary of a single credential.
func (v *Vault) Get(ctx context.Context, id uuid.UUID) (Summary, error) {
	c, err := v.store.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return c.ToSummary(), nil
}

// ListByProvider returns non-secret summaries for every credential
// registered to a provider (spec.md §4.I, "summary listing never includes
// ciphertext").
func (v *Vault) ListByProvider(ctx context.Context, provider string) ([]Summary, error) {
	creds, err := v.store.ListByProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.ToSummary())
	}
	return out, nil
}

// List returns non-secret summaries for every credential.
func (v *Vault) List(ctx context.Context) ([]Summary, error) {
	creds, err := v.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.ToSummary())
	}
	return out, nil
}

func (v *Vault) emitAudit(ctx context.Context, action string, credentialID uuid.UUID, actor string) {
	telemetry.VaultCredentialMutationsTotal.WithLabelValues(action).Inc()

	detail, _ := json.Marshal(map[string]string{"actor": actor})
	v.audit.Log(audit.Entry{
		Subject:    actor,
		Action:     action,
		Resource:   "credential",
		ResourceID: credentialID,
		Detail:     detail,
	})
}
