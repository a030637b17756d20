package attendancehandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"leavedesk/internal/domain/attendance"
	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
)

type Handler struct {
	Service *attendance.Service
	Perms   middleware.PermissionStore
	Audit   audit.Recorder
}

func NewHandler(service *attendance.Service, perms middleware.PermissionStore, auditSvc audit.Recorder) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/attendance", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAttendanceWrite, h.Perms)).Post("/checkins", h.handleCheckIn)
		r.With(middleware.RequirePermission(auth.PermAttendanceWrite, h.Perms)).Get("/checkins", h.handleListCheckIns)
		r.With(middleware.RequirePermission(auth.PermAttendanceWrite, h.Perms)).Get("/site", h.handleGetSite)
		r.With(middleware.RequirePermission(auth.PermAttendanceAdmin, h.Perms)).Put("/site", h.handleUpdateSite)
	})
}

type checkInPayload struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type sitePayload struct {
	Name         string  `json:"name" validate:"notblank,max=120"`
	Latitude     float64 `json:"latitude" validate:"latitude"`
	Longitude    float64 `json:"longitude" validate:"longitude"`
	RadiusMeters float64 `json:"radiusMeters" validate:"gt=0,lte=100000"`
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload checkInPayload
	if r.ContentLength != 0 {
		if !shared.DecodeJSON(w, r, &payload, requestID) {
			return
		}
	}
	if (payload.Latitude == nil) != (payload.Longitude == nil) {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "latitude", Reason: "latitude and longitude must be sent together"}})
		return
	}

	record, err := h.Service.CheckIn(r.Context(), user.TenantID, user.UserID, attendance.Location{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
	})
	switch {
	case errors.Is(err, attendance.ErrLocationRequired):
		api.Fail(w, http.StatusBadRequest, "location_required", "location required for check-in", requestID)
		return
	case errors.Is(err, attendance.ErrInvalidCoordinates):
		api.Fail(w, http.StatusBadRequest, "invalid_coordinates", "invalid coordinates", requestID)
		return
	case errors.Is(err, attendance.ErrOutsideRadius):
		api.Fail(w, http.StatusForbidden, "outside_radius", "check-in location is outside the allowed radius", requestID)
		return
	case errors.Is(err, attendance.ErrSiteNotConfigured):
		api.Fail(w, http.StatusConflict, "site_not_configured", "attendance site not configured", requestID)
		return
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		api.Fail(w, http.StatusConflict, "already_checked_in", "already checked in today", requestID)
		return
	case err != nil:
		slog.Warn("check-in failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "checkin_failed", "failed to record check-in", requestID)
		return
	}
	api.Created(w, record, requestID)
}

func (h *Handler) handleListCheckIns(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		userID = user.UserID
	}
	if userID != user.UserID {
		if _, err := uuid.Parse(userID); err != nil {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "userId", Reason: "must be a valid id"}})
			return
		}
		if !auth.IsApprover(user.RoleName) {
			api.Fail(w, http.StatusForbidden, "forbidden", "cannot view other users' check-ins", requestID)
			return
		}
	}

	page := shared.ParsePagination(r, 31, 366)
	out, err := h.Service.History(r.Context(), user.TenantID, userID, page.Limit, page.Offset)
	if err != nil {
		slog.Warn("check-in history failed", "userId", userID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "checkin_list_failed", "failed to list check-ins", requestID)
		return
	}
	api.Success(w, out, requestID)
}

func (h *Handler) handleGetSite(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	site, err := h.Service.Site(r.Context(), user.TenantID)
	if errors.Is(err, attendance.ErrSiteNotConfigured) {
		api.Fail(w, http.StatusNotFound, "site_not_configured", "attendance site not configured", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "site_failed", "failed to load attendance site", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, site, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	if user.RoleName != auth.RoleHR {
		api.Fail(w, http.StatusForbidden, "forbidden", "hr role required", requestID)
		return
	}

	var payload sitePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}

	var before any
	if existing, err := h.Service.Site(r.Context(), user.TenantID); err == nil {
		before = existing
	}
	saved, err := h.Service.SaveSite(r.Context(), user.TenantID, attendance.Site{
		Name:         strings.TrimSpace(payload.Name),
		Latitude:     payload.Latitude,
		Longitude:    payload.Longitude,
		RadiusMeters: payload.RadiusMeters,
	})
	if errors.Is(err, attendance.ErrInvalidSite) {
		api.Fail(w, http.StatusBadRequest, "invalid_site", "invalid attendance site", requestID)
		return
	}
	if err != nil {
		slog.Warn("attendance site update failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "site_update_failed", "failed to update attendance site", requestID)
		return
	}
	if h.Audit != nil {
		entry := audit.Entry{
			TenantID:   user.TenantID,
			ActorID:    user.UserID,
			Action:     audit.ActionSiteUpdate,
			EntityType: "attendance_site",
			EntityID:   user.TenantID,
			RequestID:  requestID,
			IP:         shared.ClientIP(r),
			Before:     before,
			After:      saved,
		}
		if err := h.Audit.Record(r.Context(), entry); err != nil {
			slog.Warn("audit attendance.site.update failed", "err", err)
		}
	}
	api.Success(w, saved, requestID)
}
