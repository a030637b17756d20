package leavehandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/domain/payroll"
	"leavedesk/internal/platform/jobs"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
)

// SnapshotRunner runs the balance snapshot job for one tenant on demand.
type SnapshotRunner interface {
	SnapshotTenant(ctx context.Context, tenantID string) (leave.SnapshotSummary, error)
}

type RunLister interface {
	List(ctx context.Context, tenantID, jobType string, limit int) ([]jobs.Run, error)
}

type Handler struct {
	Service *leave.Service
	Perms   middleware.PermissionStore
	Audit   audit.Recorder
	Jobs    SnapshotRunner
	Runs    RunLister
	Idem    middleware.IdempotencyStore
	Now     func() time.Time
}

func NewHandler(service *leave.Service, perms middleware.PermissionStore, auditSvc audit.Recorder, jobsSvc SnapshotRunner, runs RunLister, idem middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc, Jobs: jobsSvc, Runs: runs, Idem: idem, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	need := func(permission string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(permission, h.Perms)
	}
	r.Route("/leave", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(need(auth.PermLeaveRead))
			r.Get("/balances", h.handleBalances)
			r.Get("/days", h.handleLeaveDays)
			r.Get("/settings", h.handleGetSettings)
			r.Get("/calendar", h.handleGetCalendar)
			r.Get("/holidays", h.handleListHolidays)
			r.Get("/applications", h.handleListApplications)
			r.Get("/applications/{applicationID}", h.handleGetApplication)
		})
		r.Group(func(r chi.Router) {
			r.Use(need(auth.PermLeaveWrite))
			r.With(middleware.Idempotent(h.Idem, submitEndpoint)).Post("/applications", h.handleSubmitApplication)
			r.Post("/applications/{applicationID}/cancel", h.handleCancelApplication)
		})
		r.Group(func(r chi.Router) {
			r.Use(need(auth.PermLeaveApprove))
			r.Post("/applications/{applicationID}/approve", h.handleApproveApplication)
			r.Post("/applications/{applicationID}/reject", h.handleRejectApplication)
		})
		r.Group(func(r chi.Router) {
			r.Use(need(auth.PermLeaveAdmin))
			r.Put("/settings", h.handleUpdateSettings)
			r.Put("/calendar", h.handleUpdateCalendar)
			r.Post("/holidays", h.handleCreateHoliday)
			r.Delete("/holidays/{holidayID}", h.handleDeleteHoliday)
			r.Get("/overrides", h.handleListOverrides)
			r.Put("/overrides/{userID}/{year}/{month}", h.handleSaveOverride)
			r.Delete("/overrides/{userID}/{year}/{month}", h.handleDeleteOverride)
			r.Post("/snapshots/run", h.handleRunSnapshots)
			r.Get("/snapshots/runs", h.handleListSnapshotRuns)
		})
		r.With(need(auth.PermPayrollRead)).Get("/lop-deduction", h.handleLOPDeduction)
	})
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	err := h.Audit.Record(r.Context(), audit.Entry{
		TenantID:   user.TenantID,
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		Before:     before,
		After:      after,
	})
	if err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}

// failService maps leave errors onto HTTP responses. Anything unrecognised is
// logged and reported as a 500 with the given code.
func failService(w http.ResponseWriter, err error, code, message, requestID string) {
	switch {
	case errors.Is(err, leave.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "resource not found", requestID)
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "action not allowed for this user", requestID)
	case errors.Is(err, leave.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", "application is no longer pending", requestID)
	case errors.Is(err, leave.ErrNoWorkingDays):
		api.Fail(w, http.StatusUnprocessableEntity, "no_working_days", "range contains no working days", requestID)
	case errors.Is(err, leave.ErrRangeTooLong):
		api.Fail(w, http.StatusBadRequest, "range_too_long", fmt.Sprintf("range must not exceed %d days", leave.MaxRangeDays), requestID)
	case errors.Is(err, leave.ErrInvalidDate),
		errors.Is(err, leave.ErrInvalidRange),
		errors.Is(err, leave.ErrInvalidYear),
		errors.Is(err, leave.ErrInvalidMonth),
		errors.Is(err, leave.ErrInvalidOverride),
		errors.Is(err, leave.ErrInvalidType),
		errors.Is(err, leave.ErrInvalidLOP),
		errors.Is(err, leave.ErrInvalidRule):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	default:
		slog.Warn(message, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}

func pathID(r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	if _, err := uuid.Parse(raw); err != nil {
		return "", false
	}
	return raw, true
}

// targetUser resolves the userId query parameter. Callers may always read
// their own data; other users require an approver role and must exist.
func (h *Handler) targetUser(w http.ResponseWriter, r *http.Request, user auth.UserContext) (string, bool) {
	requestID := middleware.GetRequestID(r.Context())
	raw := strings.TrimSpace(r.URL.Query().Get("userId"))
	if raw == "" || raw == user.UserID {
		return user.UserID, true
	}
	if _, err := uuid.Parse(raw); err != nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "userId", Reason: "must be a valid id"}})
		return "", false
	}
	if !auth.IsApprover(user.RoleName) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot view other users' leave", requestID)
		return "", false
	}
	exists, err := h.Service.UserExists(r.Context(), user.TenantID, raw)
	if err != nil {
		failService(w, err, "user_lookup_failed", "failed to look up user", requestID)
		return "", false
	}
	if !exists {
		api.Fail(w, http.StatusNotFound, "user_not_found", "user not found", requestID)
		return "", false
	}
	return raw, true
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	query := r.URL.Query()
	v := shared.NewValidator()
	year := v.Year("year", query.Get("year"), h.now().Year())
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = "json"
	}
	v.Enum("format", format, []string{"json", "csv", "pdf"}, "must be one of: json, csv, pdf")
	if v.Reject(w, requestID) {
		return
	}
	userID, ok := h.targetUser(w, r, user)
	if !ok {
		return
	}

	sheet, err := h.Service.BalanceSheet(r.Context(), user.TenantID, userID, year)
	if err != nil {
		failService(w, err, "leave_balances_failed", "failed to compute leave balances", requestID)
		return
	}

	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := leave.WriteCSV(&buf, sheet); err != nil {
			failService(w, err, "leave_export_failed", "failed to export leave balances", requestID)
			return
		}
		api.Attachment(w, "text/csv", fmt.Sprintf("leave-balances-%d.csv", year), buf.Bytes())
	case "pdf":
		name, err := h.Service.UserName(r.Context(), user.TenantID, userID)
		if err != nil {
			slog.Warn("statement user name lookup failed", "userId", userID, "err", err)
			name = userID
		}
		out, err := leave.RenderStatementPDF(sheet, name)
		if err != nil {
			failService(w, err, "leave_export_failed", "failed to render leave statement", requestID)
			return
		}
		api.Attachment(w, "application/pdf", fmt.Sprintf("leave-statement-%d.pdf", year), out)
	default:
		api.Success(w, sheet, requestID)
	}
}

func (h *Handler) handleLeaveDays(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	start := strings.TrimSpace(r.URL.Query().Get("start"))
	end := strings.TrimSpace(r.URL.Query().Get("end"))
	startDate, startOK := v.Date("start", start)
	endDate, endOK := v.Date("end", end)
	if startOK && endOK {
		v.DateOrder("start", startDate, "end", endDate)
	}
	if v.Reject(w, requestID) {
		return
	}

	out, err := h.Service.LeaveDays(r.Context(), user.TenantID, start, end)
	if err != nil {
		failService(w, err, "leave_days_failed", "failed to count leave days", requestID)
		return
	}
	api.Success(w, out, requestID)
}

type lopResponse struct {
	UserID string `json:"userId"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	payroll.LOPResult
}

func (h *Handler) handleLOPDeduction(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	query := r.URL.Query()
	v := shared.NewValidator()
	year := v.Year("year", query.Get("year"), h.now().Year())
	month := v.Month("month", query.Get("month"))
	salary, err := decimal.NewFromString(strings.TrimSpace(query.Get("monthlySalary")))
	if err != nil || salary.IsNegative() {
		v.Add("monthlySalary", "must be a non-negative amount")
	}
	if v.Reject(w, requestID) {
		return
	}
	userID, ok := h.targetUser(w, r, user)
	if !ok {
		return
	}

	sheet, err := h.Service.BalanceSheet(r.Context(), user.TenantID, userID, year)
	if err != nil {
		failService(w, err, "leave_balances_failed", "failed to compute leave balances", requestID)
		return
	}
	workingDays, err := h.Service.WorkingDays(r.Context(), user.TenantID, year, month)
	if err != nil {
		failService(w, err, "working_days_failed", "failed to count working days", requestID)
		return
	}

	result, err := payroll.LOPDeduction(salary, workingDays, sheet.Months[month-1].LOPDays)
	if errors.Is(err, payroll.ErrNoWorkingDays) {
		api.Fail(w, http.StatusUnprocessableEntity, "no_working_days", "month has no working days", requestID)
		return
	}
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
		return
	}
	api.Success(w, lopResponse{UserID: userID, Year: year, Month: month, LOPResult: result}, requestID)
}
