package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"leavedesk/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, roleID, permission string) (bool, error)
}

func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return RequireAnyPermission(store, permission)
}

// RequireAnyPermission admits callers whose role holds at least one of
// permissions, checked in order.
func RequireAnyPermission(store PermissionStore, permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
				return
			}
			granted, err := holdsAny(r.Context(), store, user.RoleID, permissions)
			if err != nil {
				slog.Warn("permission check failed", "roleId", user.RoleID, "permissions", permissions, "err", err)
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", requestID)
				return
			}
			if !granted {
				slog.Debug("permission denied", "userId", user.UserID, "role", user.RoleName, "path", r.URL.Path)
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func holdsAny(ctx context.Context, store PermissionStore, roleID string, permissions []string) (bool, error) {
	if store == nil {
		return false, nil
	}
	for _, permission := range permissions {
		ok, err := store.HasPermission(ctx, roleID, permission)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
