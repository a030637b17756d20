package leavehandler

import (
	"net/http"
	"strings"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
)

const submitEndpoint = "leave.applications.submit"

type applicationPayload struct {
	StartDate string  `json:"startDate" validate:"required,isodate"`
	EndDate   string  `json:"endDate" validate:"required,isodate"`
	LeaveType string  `json:"leaveType" validate:"notblank"`
	IsLOP     bool    `json:"isLop"`
	LOPDays   float64 `json:"lopDays" validate:"gte=0"`
	Reason    string  `json:"reason" validate:"max=1000"`
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	query := r.URL.Query()
	v := shared.NewValidator()
	status := strings.ToLower(strings.TrimSpace(query.Get("status")))
	v.Enum("status", status, []string{leave.StatusPending, leave.StatusApproved, leave.StatusRejected, leave.StatusCancelled}, "must be one of: pending, approved, rejected, cancelled")
	year := v.Year("year", query.Get("year"), 0)
	if v.Reject(w, requestID) {
		return
	}

	filter := leave.ApplicationFilter{Status: status, Year: year}
	if auth.IsApprover(user.RoleName) {
		filter.UserID = strings.TrimSpace(query.Get("userId"))
	} else {
		filter.UserID = user.UserID
	}

	page := shared.ParsePagination(r, 50, 200)
	out, err := h.Service.ListApplications(r.Context(), user.TenantID, filter, page.Limit, page.Offset)
	if err != nil {
		failService(w, err, "leave_applications_failed", "failed to list leave applications", requestID)
		return
	}
	shared.SetTotalCount(w, out.Total)
	api.Success(w, out, requestID)
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	applicationID, ok := pathID(r, "applicationID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid application id", requestID)
		return
	}
	app, err := h.Service.GetApplication(r.Context(), user.TenantID, applicationID)
	if err != nil {
		failService(w, err, "leave_application_failed", "failed to load leave application", requestID)
		return
	}
	if app.UserID != user.UserID && !auth.IsApprover(user.RoleName) {
		api.Fail(w, http.StatusForbidden, "forbidden", "cannot view other users' leave", requestID)
		return
	}
	api.Success(w, app, requestID)
}

func (h *Handler) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload applicationPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}

	app, err := h.Service.Submit(r.Context(), user.TenantID, leave.Application{
		UserID:    user.UserID,
		StartDate: payload.StartDate,
		EndDate:   payload.EndDate,
		LeaveType: payload.LeaveType,
		IsLOP:     payload.IsLOP,
		LOPDays:   payload.LOPDays,
		Reason:    payload.Reason,
	})
	if err != nil {
		failService(w, err, "leave_application_submit_failed", "failed to submit leave application", requestID)
		return
	}
	h.record(r, user, audit.ActionApplicationSubmit, "leave_application", app.ID, nil, app)

	api.Created(w, app, requestID)
}

func (h *Handler) handleApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

func (h *Handler) handleRejectApplication(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	if !auth.IsApprover(user.RoleName) {
		api.Fail(w, http.StatusForbidden, "forbidden", "approver role required", requestID)
		return
	}

	applicationID, ok := pathID(r, "applicationID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid application id", requestID)
		return
	}
	app, err := h.Service.Decide(r.Context(), user.TenantID, applicationID, user.UserID, approve)
	if err != nil {
		failService(w, err, "leave_application_decide_failed", "failed to update leave application", requestID)
		return
	}
	h.record(r, user, audit.ActionApplicationDecide, "leave_application", app.ID, map[string]string{"status": leave.StatusPending}, map[string]string{"status": app.Status})
	api.Success(w, app, requestID)
}

func (h *Handler) handleCancelApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	applicationID, ok := pathID(r, "applicationID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid application id", requestID)
		return
	}
	app, err := h.Service.Cancel(r.Context(), user.TenantID, applicationID, user.UserID)
	if err != nil {
		failService(w, err, "leave_application_cancel_failed", "failed to cancel leave application", requestID)
		return
	}
	h.record(r, user, audit.ActionApplicationCancel, "leave_application", app.ID, map[string]string{"status": leave.StatusPending}, map[string]string{"status": app.Status})
	api.Success(w, app, requestID)
}
