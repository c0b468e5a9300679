// Package identity carries the caller identity resolved by an external
// authentication collaborator (session/OIDC issuance is out of scope here;
// see SPEC_FULL.md §Non-goals). The HTTP layer trusts a narrow set of
// upstream-set headers and never issues or verifies credentials itself.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Roles recognised for authorization decisions. Only two: tenant-scoped
// callers act on their own tenant's resources, admin callers act across
// tenants (fleet control, deletion, vault rotation, admin audit).
const (
	RoleTenant = "tenant"
	RoleAdmin  = "admin"
)

// Identity represents the caller for the current request, as resolved by
// the upstream authentication gateway.
type Identity struct {
	TenantID uuid.UUID // zero value for admin-only callers with no tenant scope
	Role     string    // RoleTenant or RoleAdmin
	Subject  string    // opaque caller identifier, for audit trails
}

// IsAdmin reports whether the identity has the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

type ctxKey struct{}

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the identity from the context. The second return
// value is false if no identity was set.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// RequireTenant extracts the identity and checks it is scoped to tenantID,
// either directly or via an admin role. Returns an error otherwise.
func RequireTenant(ctx context.Context, tenantID uuid.UUID) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, fmt.Errorf("no identity in context")
	}
	if id.IsAdmin() {
		return id, nil
	}
	if id.TenantID != tenantID {
		return Identity{}, fmt.Errorf("identity is not scoped to tenant %s", tenantID)
	}
	return id, nil
}
