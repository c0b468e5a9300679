package vault

import (
	"time"

	"github.com/google/uuid"
)

// Auth type constants (spec.md §3).
const (
	AuthTypeHeader = "header"
	AuthTypeBearer = "bearer"
	AuthTypeBasic  = "basic"
)

// ErrNotFound is returned when a credential id does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "vault: credential not found" }

// Credential is a stored third-party provider secret. EncryptedValue holds
// the AES-256-GCM sealed payload; the plaintext is never persisted and
// never appears in a Summary (spec.md §4.I, §6).
type Credential struct {
	ID             uuid.UUID
	Provider       string
	KeyName        string
	EncryptedValue EncryptedValue
	AuthType       string
	AuthHeader     *string
	IsActive       bool
	LastValidated  *time.Time
	CreatedAt      time.Time
	RotatedAt      *time.Time
	CreatedBy      string
}

// Summary is the credential projection safe to return from list/get
// endpoints: everything about a credential except its encrypted value
// (spec.md §4.I, "summary listing never includes ciphertext").
type Summary struct {
	ID            uuid.UUID  `json:"id"`
	Provider      string     `json:"provider"`
	KeyName       string     `json:"keyName"`
	AuthType      string     `json:"authType"`
	AuthHeader    *string    `json:"authHeader,omitempty"`
	IsActive      bool       `json:"isActive"`
	LastValidated *time.Time `json:"lastValidated,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	RotatedAt     *time.Time `json:"rotatedAt,omitempty"`
	CreatedBy     string     `json:"createdBy"`
}

// ToSummary projects a Credential down to its non-secret fields.
func (c Credential) ToSummary() Summary {
	return Summary{
		ID:            c.ID,
		Provider:      c.Provider,
		KeyName:       c.KeyName,
		AuthType:      c.AuthType,
		AuthHeader:    c.AuthHeader,
		IsActive:      c.IsActive,
		LastValidated: c.LastValidated,
		CreatedAt:     c.CreatedAt,
		RotatedAt:     c.RotatedAt,
		CreatedBy:     c.CreatedBy,
	}
}
