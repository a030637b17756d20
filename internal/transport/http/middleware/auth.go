package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/platform/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// SessionChecker rejects tokens whose session was revoked by logout.
type SessionChecker interface {
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
}

// Auth attaches the bearer token's user to the request context. Requests
// without a valid token pass through anonymous; RequirePermission rejects
// them where authentication matters.
func Auth(secret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if sessions != nil && claims.SessionID != "" {
				valid, err := sessions.SessionValid(r.Context(), claims.UserID, auth.HashToken(claims.SessionID))
				if err != nil {
					slog.Warn("session check failed", "userId", claims.UserID, "err", err)
				}
				if err != nil || !valid {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, claims.User())
			ctx = requestctx.WithTenantID(ctx, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}

// WithUser is used by tests and internal callers that already hold a user.
func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}
