package authhandler

import (
	"errors"
	"log/slog"
	"net/http"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/platform/requestctx"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
)

type Handler struct {
	Service *auth.Service
}

func NewHandler(service *auth.Service) *Handler {
	return &Handler{Service: service}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode"`
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}

	result, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	case errors.Is(err, auth.ErrMFARequired):
		api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", requestID)
		return
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", requestID)
		return
	case err != nil:
		slog.Warn("login failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return
	}

	api.Success(w, map[string]any{
		"token": result.Token,
		"user":  map[string]string{"id": result.User.UserID, "tenantId": result.User.TenantID, "roleId": result.User.RoleID, "role": result.User.RoleName},
	}, requestID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok {
		h.Service.Logout(r.Context(), user)
	}
	api.Success(w, map[string]string{"status": "logged_out"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	token, ok := middleware.BearerToken(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	next, err := h.Service.Refresh(r.Context(), token)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	case errors.Is(err, auth.ErrSessionExpired):
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "session expired", requestID)
		return
	case err != nil:
		slog.Warn("token refresh failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to rotate session", requestID)
		return
	}
	api.Success(w, map[string]any{"token": next}, requestID)
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	setup, err := h.Service.SetupMFA(r.Context(), user)
	if errors.Is(err, auth.ErrMFAUnavailable) {
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", requestctx.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		slog.Warn("mfa setup failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to generate mfa secret", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, setup, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	h.setMFA(w, r, true)
}

func (h *Handler) HandleMFADisable(w http.ResponseWriter, r *http.Request) {
	h.setMFA(w, r, false)
}

func (h *Handler) setMFA(w http.ResponseWriter, r *http.Request, enabled bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	requestID := requestctx.GetRequestID(r.Context())

	var payload mfaCodeRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}

	err := h.Service.SetMFA(r.Context(), user, payload.Code, enabled)
	switch {
	case errors.Is(err, auth.ErrMFAUnavailable):
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", requestID)
		return
	case errors.Is(err, auth.ErrMFANotSetup):
		api.Fail(w, http.StatusBadRequest, "mfa_missing", "mfa setup required", requestID)
		return
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa code", requestID)
		return
	case err != nil:
		slog.Warn("mfa update failed", "userId", user.UserID, "enabled", enabled, "err", err)
		api.Fail(w, http.StatusInternalServerError, "mfa_update_failed", "failed to update mfa", requestID)
		return
	}

	status := "disabled"
	if enabled {
		status = "enabled"
	}
	api.Success(w, map[string]string{"status": status}, requestID)
}
