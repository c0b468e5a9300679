package identity

import (
	"net/http"

	"github.com/google/uuid"
)

// Header names set by the upstream authentication gateway. The gateway is
// responsible for verifying the caller and populating these; this service
// never parses a session cookie, JWT, or API key itself.
const (
	HeaderTenantID = "X-Identity-Tenant-Id"
	HeaderRole     = "X-Identity-Role"
	HeaderSubject  = "X-Identity-Subject"
)

// Middleware reads the identity headers set by the upstream gateway and
// stores the resolved Identity in the request context. Requests missing a
// recognised role are rejected with 401; route-level authorization (tenant
// scoping, admin-only) is left to handlers via RequireTenant.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get(HeaderRole)
		if role != RoleTenant && role != RoleAdmin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		id := Identity{
			Role:    role,
			Subject: r.Header.Get(HeaderSubject),
		}

		if tenantRaw := r.Header.Get(HeaderTenantID); tenantRaw != "" {
			tenantID, err := uuid.Parse(tenantRaw)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			id.TenantID = tenantID
		} else if role == RoleTenant {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		ctx := NewContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
