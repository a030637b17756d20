package audithandler

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
)

const exportLimit = 10000

// EventStore is the read side of audit.Service.
type EventStore interface {
	Count(ctx context.Context, tenantID string, filter audit.Filter) (int, error)
	List(ctx context.Context, tenantID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service EventStore
	Perms   middleware.PermissionStore
}

func NewHandler(service EventStore, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Use(middleware.RequireAnyPermission(h.Perms, auth.PermAuditRead, auth.PermSystemAdmin))
		r.Get("/events", h.handleListEvents)
		r.Get("/events/export", h.handleExportEvents)
	})
}

// parseFilter reads the list and export filters. Dates are whole days in
// UTC and the to date is included.
func parseFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	query := r.URL.Query()
	v := shared.NewValidator()
	filter := audit.Filter{
		Action:     strings.ToLower(strings.TrimSpace(query.Get("action"))),
		EntityType: strings.TrimSpace(query.Get("entityType")),
	}
	v.Enum("action", filter.Action, audit.Actions, "must be a known audit action")
	if raw := query.Get("actorUserId"); strings.TrimSpace(raw) != "" {
		filter.ActorUser = v.ID("actorUserId", raw)
	}
	if raw := query.Get("from"); raw != "" {
		filter.From, _ = v.Date("from", raw)
	}
	if raw := query.Get("to"); raw != "" {
		if to, ok := v.Date("to", raw); ok {
			filter.To = to.AddDate(0, 0, 1)
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		v.Add("from", "must be on or before to")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return audit.Filter{}, false
	}
	return filter, true
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	includeDetails := r.URL.Query().Get("includeDetails") == "true"
	events, err := h.Service.List(r.Context(), user.TenantID, filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		slog.WarnContext(r.Context(), "audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", requestID)
		return
	}
	if total, err := h.Service.Count(r.Context(), user.TenantID, filter); err != nil {
		slog.WarnContext(r.Context(), "audit count failed", "err", err)
	} else {
		shared.SetTotalCount(w, total)
	}
	api.Success(w, events, requestID)
}

var exportHeader = []string{"id", "actor_user_id", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	events, err := h.Service.List(r.Context(), user.TenantID, filter, false, exportLimit, 0)
	if err != nil {
		slog.WarnContext(r.Context(), "audit export failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", requestID)
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write(exportHeader)
	for _, evt := range events {
		_ = writer.Write([]string{
			evt.ID,
			evt.ActorID,
			evt.Action,
			safeCell(evt.EntityType),
			safeCell(evt.EntityID),
			safeCell(evt.RequestID),
			safeCell(evt.IP),
			evt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.WarnContext(r.Context(), "audit export encode failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", requestID)
		return
	}
	filename := "audit-events-" + time.Now().UTC().Format("20060102") + ".csv"
	api.Attachment(w, "text/csv; charset=utf-8", filename, buf.Bytes())
}

// safeCell stops spreadsheet apps from evaluating client-controlled text as
// a formula.
func safeCell(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}
