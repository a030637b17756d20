package leavehandler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/platform/jobs"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
)

type settingsPayload struct {
	LeavesPerMonth    *float64 `json:"leavesPerMonth" validate:"required"`
	MaxCarryForward   *float64 `json:"maxCarryForward" validate:"required"`
	MaxLeavesPerMonth *float64 `json:"maxLeavesPerMonth" validate:"required"`
	GPSCheckinEnabled *bool    `json:"gpsCheckinEnabled"`
}

type calendarPayload struct {
	WeeklyOffRule string   `json:"weeklyOffRule" validate:"max=256"`
	ExtraOffDates []string `json:"extraOffDates" validate:"max=366,dive,required,isodate"`
}

type holidayPayload struct {
	Date            string `json:"date" validate:"required,isodate"`
	EndDate         string `json:"endDate" validate:"isodate"`
	Name            string `json:"name" validate:"notblank,max=120"`
	RecurringYearly bool   `json:"recurringYearly"`
}

type overridePayload struct {
	CarriedForward   *float64 `json:"carriedForward" validate:"omitempty,gte=0"`
	AdditionalCredit *float64 `json:"additionalCredit" validate:"omitempty,gte=0"`
	AdjustmentReason string   `json:"adjustmentReason" validate:"max=500"`
}

func requireHR(w http.ResponseWriter, r *http.Request, user auth.UserContext) bool {
	if user.RoleName != auth.RoleHR {
		api.Fail(w, http.StatusForbidden, "forbidden", "hr role required", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	settings, err := h.Service.Settings(r.Context(), user.TenantID)
	if err != nil {
		failService(w, err, "leave_settings_failed", "failed to load leave settings", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, settings, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload settingsPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	before, err := h.Service.Settings(r.Context(), user.TenantID)
	if err != nil {
		failService(w, err, "leave_settings_failed", "failed to load leave settings", requestID)
		return
	}
	next := leave.Settings{
		LeavesPerMonth:    *payload.LeavesPerMonth,
		MaxCarryForward:   *payload.MaxCarryForward,
		MaxLeavesPerMonth: *payload.MaxLeavesPerMonth,
		GPSCheckinEnabled: before.GPSCheckinEnabled,
	}
	if payload.GPSCheckinEnabled != nil {
		next.GPSCheckinEnabled = *payload.GPSCheckinEnabled
	}

	saved, err := h.Service.UpdateSettings(r.Context(), user.TenantID, next)
	if err != nil {
		failService(w, err, "leave_settings_update_failed", "failed to update leave settings", requestID)
		return
	}
	h.record(r, user, audit.ActionSettingsUpdate, "leave_settings", user.TenantID, before, saved)
	api.Success(w, saved, requestID)
}

func (h *Handler) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	cal, err := h.Service.Calendar(r.Context(), user.TenantID)
	if err != nil {
		failService(w, err, "leave_calendar_failed", "failed to load calendar", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, cal, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateCalendar(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload calendarPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	before, err := h.Service.Calendar(r.Context(), user.TenantID)
	if err != nil {
		failService(w, err, "leave_calendar_failed", "failed to load calendar", requestID)
		return
	}
	saved, err := h.Service.UpdateCalendar(r.Context(), user.TenantID, leave.Calendar{
		WeeklyOffRule: payload.WeeklyOffRule,
		ExtraOffDates: payload.ExtraOffDates,
	})
	if err != nil {
		failService(w, err, "leave_calendar_update_failed", "failed to update calendar", requestID)
		return
	}
	h.record(r, user, audit.ActionCalendarUpdate, "leave_calendar", user.TenantID, before, saved)
	api.Success(w, saved, requestID)
}

func (h *Handler) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	out, err := h.Service.ListHolidays(r.Context(), user.TenantID)
	if err != nil {
		failService(w, err, "holiday_list_failed", "failed to list holidays", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateHoliday(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload holidayPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	holiday, err := h.Service.CreateHoliday(r.Context(), user.TenantID, leave.Holiday{
		Date:            payload.Date,
		EndDate:         payload.EndDate,
		Name:            payload.Name,
		RecurringYearly: payload.RecurringYearly,
	})
	if err != nil {
		failService(w, err, "holiday_create_failed", "failed to create holiday", requestID)
		return
	}
	h.record(r, user, audit.ActionHolidayCreate, "holiday", holiday.ID, nil, holiday)
	api.Created(w, holiday, requestID)
}

func (h *Handler) handleDeleteHoliday(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	holidayID, ok := pathID(r, "holidayID")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid holiday id", requestID)
		return
	}
	if err := h.Service.DeleteHoliday(r.Context(), user.TenantID, holidayID); err != nil {
		failService(w, err, "holiday_delete_failed", "failed to delete holiday", requestID)
		return
	}
	h.record(r, user, audit.ActionHolidayDelete, "holiday", holidayID, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

func (h *Handler) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	query := r.URL.Query()
	v := shared.NewValidator()
	userID := v.ID("userId", query.Get("userId"))
	year := v.Year("year", query.Get("year"), h.now().Year())
	if v.Reject(w, requestID) {
		return
	}

	out, err := h.Service.ListOverrides(r.Context(), user.TenantID, userID, year)
	if err != nil {
		failService(w, err, "override_list_failed", "failed to list overrides", requestID)
		return
	}
	api.Success(w, out, requestID)
}

type overrideTarget struct {
	UserID string
	Year   int
	Month  int
}

func parseOverrideTarget(w http.ResponseWriter, r *http.Request) (overrideTarget, bool) {
	v := shared.NewValidator()
	userID := v.ID("userId", chi.URLParam(r, "userID"))
	rawYear := chi.URLParam(r, "year")
	if rawYear == "" {
		v.Add("year", shared.ErrInvalidYear.Error())
	}
	year := v.Year("year", rawYear, 0)
	month := v.Month("month", chi.URLParam(r, "month"))
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return overrideTarget{}, false
	}
	return overrideTarget{UserID: userID, Year: year, Month: month}, true
}

func (h *Handler) handleSaveOverride(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	target, ok := parseOverrideTarget(w, r)
	if !ok {
		return
	}
	var payload overridePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	exists, err := h.Service.UserExists(r.Context(), user.TenantID, target.UserID)
	if err != nil {
		failService(w, err, "user_lookup_failed", "failed to look up user", requestID)
		return
	}
	if !exists {
		api.Fail(w, http.StatusNotFound, "user_not_found", "user not found", requestID)
		return
	}

	override := leave.Override{
		Month:            target.Month,
		CarriedForward:   payload.CarriedForward,
		AdditionalCredit: payload.AdditionalCredit,
		AdjustmentReason: payload.AdjustmentReason,
		UpdatedBy:        user.UserID,
	}
	before, err := h.Service.SaveOverride(r.Context(), user.TenantID, target.UserID, target.Year, override)
	if err != nil {
		failService(w, err, "override_save_failed", "failed to save override", requestID)
		return
	}
	entityID := target.UserID + "/" + strconv.Itoa(target.Year) + "/" + strconv.Itoa(target.Month)
	h.record(r, user, audit.ActionOverrideUpsert, "leave_override", entityID, before, override)
	api.Success(w, override, requestID)
}

func (h *Handler) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	target, ok := parseOverrideTarget(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteOverride(r.Context(), user.TenantID, target.UserID, target.Year, target.Month); err != nil {
		failService(w, err, "override_delete_failed", "failed to delete override", requestID)
		return
	}
	entityID := target.UserID + "/" + strconv.Itoa(target.Year) + "/" + strconv.Itoa(target.Month)
	h.record(r, user, audit.ActionOverrideDelete, "leave_override", entityID, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

func (h *Handler) handleRunSnapshots(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if !requireHR(w, r, user) {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	if h.Jobs == nil {
		api.Fail(w, http.StatusServiceUnavailable, "jobs_unavailable", "background jobs are not configured", requestID)
		return
	}

	summary, err := h.Jobs.SnapshotTenant(r.Context(), user.TenantID)
	if err != nil {
		failService(w, err, "snapshot_run_failed", "failed to run balance snapshot", requestID)
		return
	}
	h.record(r, user, audit.ActionSnapshotRun, "job_run", jobs.JobLeaveSnapshot, nil, summary)
	api.Success(w, summary, requestID)
}

func (h *Handler) handleListSnapshotRuns(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	if h.Runs == nil {
		api.Success(w, []jobs.Run{}, requestID)
		return
	}

	page := shared.ParsePagination(r, 20, 100)
	runs, err := h.Runs.List(r.Context(), user.TenantID, jobs.JobLeaveSnapshot, page.Limit)
	if err != nil {
		failService(w, err, "snapshot_runs_failed", "failed to list snapshot runs", requestID)
		return
	}
	api.Success(w, runs, requestID)
}
