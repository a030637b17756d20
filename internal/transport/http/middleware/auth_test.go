package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/platform/requestctx"
)

type sessionStub struct {
	valid bool
	err   error
	seen  string
}

func (s *sessionStub) SessionValid(_ context.Context, _ string, sessionHash string) (bool, error) {
	s.seen = sessionHash
	return s.valid, s.err
}

func mustToken(t *testing.T, secret string, claims auth.Claims) string {
	t.Helper()
	token, err := auth.GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

// authenticate runs Auth over a request and reports the user the next handler saw.
func authenticate(secret string, sessions SessionChecker, authorization string) (auth.UserContext, bool, string) {
	var (
		user   auth.UserContext
		ok     bool
		tenant string
	)
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		user, ok = GetUser(r.Context())
		tenant = requestctx.GetTenantID(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/balances", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	Auth(secret, sessions)(next).ServeHTTP(httptest.NewRecorder(), req)
	return user, ok, tenant
}

func TestAuthAttachesUserAndTenant(t *testing.T) {
	token := mustToken(t, "k", auth.Claims{UserID: "u1", TenantID: "t1", RoleID: "r1", RoleName: auth.RoleHR})

	user, ok, tenant := authenticate("k", nil, "Bearer "+token)
	if !ok {
		t.Fatal("expected a user on the context")
	}
	if user.UserID != "u1" || user.RoleName != auth.RoleHR {
		t.Fatalf("unexpected user %+v", user)
	}
	if tenant != "t1" {
		t.Fatalf("expected tenant t1 on the context, got %q", tenant)
	}
}

func TestAuthLeavesBadCredentialsAnonymous(t *testing.T) {
	token := mustToken(t, "k", auth.Claims{UserID: "u1", TenantID: "t1"})
	for name, header := range map[string]string{
		"missing":      "",
		"basic scheme": "Basic " + token,
		"empty bearer": "Bearer   ",
		"other secret": "Bearer " + mustToken(t, "other", auth.Claims{UserID: "u1", TenantID: "t1"}),
		"garbled":      "Bearer " + token[:len(token)-4],
	} {
		if _, ok, _ := authenticate("k", nil, header); ok {
			t.Fatalf("%s: expected anonymous request", name)
		}
	}
}

func TestAuthChecksSession(t *testing.T) {
	token := mustToken(t, "k", auth.Claims{UserID: "u1", TenantID: "t1", SessionID: "s1"})

	live := &sessionStub{valid: true}
	if _, ok, _ := authenticate("k", live, "bearer "+token); !ok {
		t.Fatal("expected live session to authenticate")
	}
	if live.seen != auth.HashToken("s1") {
		t.Fatalf("expected hashed session lookup, got %q", live.seen)
	}

	for name, sessions := range map[string]*sessionStub{
		"revoked":    {valid: false},
		"store down": {valid: true, err: errors.New("db down")},
	} {
		if _, ok, _ := authenticate("k", sessions, "Bearer "+token); ok {
			t.Fatalf("%s: expected request to stay anonymous", name)
		}
	}
}
