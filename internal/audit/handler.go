package audit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/identity"
)

// Row is a single audit log row as returned to API clients.
type Row struct {
	ID         uuid.UUID `json:"id"`
	TenantID   *string   `json:"tenant_id,omitempty"`
	Subject    string    `json:"subject"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID *string   `json:"resource_id,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates an audit log Handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

// handleList returns a page of audit log entries. Tenant callers see only
// their own tenant's entries; admin callers with no tenant scope see all
// admin-scoped entries (tenant_id IS NULL).
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, ok := identity.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}

	var rows pgx.Rows
	var total int
	ctx := r.Context()

	if id.IsAdmin() && id.TenantID == uuid.Nil {
		if err := h.pool.QueryRow(ctx, `SELECT count(*) FROM audit_log WHERE tenant_id IS NULL`).Scan(&total); err != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to count audit log")
			return
		}
		rows, err = h.pool.Query(ctx,
			`SELECT id, tenant_id, subject, action, resource, resource_id, created_at
			 FROM audit_log WHERE tenant_id IS NULL ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			params.PageSize, params.Offset)
	} else {
		if err := h.pool.QueryRow(ctx, `SELECT count(*) FROM audit_log WHERE tenant_id = $1`, id.TenantID).Scan(&total); err != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to count audit log")
			return
		}
		rows, err = h.pool.Query(ctx,
			`SELECT id, tenant_id, subject, action, resource, resource_id, created_at
			 FROM audit_log WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			id.TenantID, params.PageSize, params.Offset)
	}
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var row Row
		var tenantID *uuid.UUID
		var resourceID *uuid.UUID
		var createdAt time.Time
		if err := rows.Scan(&row.ID, &tenantID, &row.Subject, &row.Action, &row.Resource, &resourceID, &createdAt); err != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to scan audit log row")
			return
		}
		if tenantID != nil {
			s := tenantID.String()
			row.TenantID = &s
		}
		if resourceID != nil {
			s := resourceID.String()
			row.ResourceID = &s
		}
		row.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		items = append(items, row)
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}
