package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leavedesk/internal/domain/auth"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func jsonRequest(method, target, body, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	return req
}

func withUser(req *http.Request, tenantID, userID string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), ctxKeyUser, auth.UserContext{TenantID: tenantID, UserID: userID}))
}

func TestRateLimitKeysByUserAcrossAddresses(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	first := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/leave/balances", nil), "tenant-1", "user-1")
	first.RemoteAddr = "198.51.100.11:2222"
	if rec := serve(limited, first); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	second := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/leave/balances", nil), "tenant-1", "user-1")
	second.RemoteAddr = "198.51.100.12:3333"
	if rec := serve(limited, second); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by user key, got %d", rec.Code)
	}

	other := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/leave/balances", nil), "tenant-1", "user-2")
	other.RemoteAddr = "198.51.100.12:3333"
	if rec := serve(limited, other); rec.Code != http.StatusNoContent {
		t.Fatalf("expected a different user to have its own window, got %d", rec.Code)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	if rec := serve(limited, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", `{"email":"a@example.com"}`, "203.0.113.10:4444")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	if rec := serve(limited, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", `{"email":"b@example.com"}`, "203.0.113.10:5555")); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by ip key, got %d", rec.Code)
	}
}

func TestRateLimitWindowResets(t *testing.T) {
	clock := newFakeClock()
	limited := RateLimit(1, time.Minute, WithClock(clock.now))(noContent())

	req := func() *http.Request {
		return jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"a@example.com"}`, "192.0.2.20:1111")
	}
	if rec := serve(limited, req()); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	clock.t = clock.t.Add(59 * time.Second)
	if rec := serve(limited, req()); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected request inside the window to be throttled, got %d", rec.Code)
	}
	clock.t = clock.t.Add(time.Second)
	if rec := serve(limited, req()); rec.Code != http.StatusNoContent {
		t.Fatalf("expected request after the window to pass, got %d", rec.Code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	clock := newFakeClock()
	limited := RateLimit(2, time.Minute, WithClock(clock.now))(noContent())

	first := serve(limited, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{}`, "192.0.2.30:1234"))
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Fatalf("expected 1 remaining, got %q", got)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Fatalf("expected limit 2, got %q", got)
	}

	clock.t = clock.t.Add(20 * time.Second)
	serve(limited, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{}`, "192.0.2.30:1234"))
	rec := serve(limited, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{}`, "192.0.2.30:1234"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected throttled response, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "40" {
		t.Fatalf("expected Retry-After 40, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected 0 remaining, got %q", got)
	}
}

func TestSensitiveMutationRateLimitSkipsReads(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent())

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/settings", nil)
		req.RemoteAddr = "198.51.100.40:8888"
		if rec := serve(limited, req); rec.Code != http.StatusNoContent {
			t.Fatalf("expected read %d to bypass sensitive limits, got %d", i+1, rec.Code)
		}
	}
}

func TestSensitiveMutationRateLimitThrottlesApprovals(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent())

	for i := 0; i < 3; i++ {
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/leave/applications/a1/approve", nil), "tenant-1", "hr-1")
		rec := serve(limited, req)
		if i < 2 && rec.Code != http.StatusNoContent {
			t.Fatalf("expected approval %d to pass, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected third approval to be throttled, got %d", rec.Code)
		}
	}
}

func TestSensitiveMutationRateLimitKeysLoginByEmail(t *testing.T) {
	limited := SensitiveMutationRateLimit(8, time.Minute)(noContent())

	addrs := []string{"192.0.2.1:1000", "192.0.2.2:1000", "192.0.2.3:1000"}
	for i, addr := range addrs {
		rec := serve(limited, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"Victim@Example.com"}`, addr))
		if i < 2 && rec.Code != http.StatusNoContent {
			t.Fatalf("expected login %d to pass, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected third login for the same email to be throttled, got %d", rec.Code)
		}
	}
}

func TestPeekJSONStringRestoresBody(t *testing.T) {
	req := jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":" a@example.com ","password":"x"}`, "192.0.2.9:1")
	if got := peekJSONString(req, "email"); got != "a@example.com" {
		t.Fatalf("expected trimmed email, got %q", got)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(req.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if buf.String() != `{"email":" a@example.com ","password":"x"}` {
		t.Fatalf("expected body to be restored, got %q", buf.String())
	}
	if got := peekJSONString(jsonRequest(http.MethodPost, "/", `{"email":42}`, ""), "email"); got != "" {
		t.Fatalf("expected non-string field to be ignored, got %q", got)
	}
}

func TestClassifyMutation(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   mutationClass
	}{
		{http.MethodPost, "/api/v1/auth/login", mutationCredential},
		{http.MethodPost, "/api/v1/auth/mfa/enable", mutationCredential},
		{http.MethodPut, "/api/v1/leave/settings/", mutationAdmin},
		{http.MethodPut, "/api/v1/leave/overrides/u1/2024/3", mutationAdmin},
		{http.MethodDelete, "/api/v1/leave/holidays/h1", mutationAdmin},
		{http.MethodPost, "/api/v1/leave/applications/a1/reject", mutationAdmin},
		{http.MethodPost, "/api/v1/leave/applications", mutationNone},
		{http.MethodPost, "/api/v1/leave/applications/a1/cancel", mutationNone},
		{http.MethodGet, "/api/v1/auth/login", mutationNone},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if got := classifyMutation(req); got != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestWindowCounterSweepsExpiredKeys(t *testing.T) {
	clock := newFakeClock()
	c := newWindowCounter(5, time.Minute, nil, WithClock(clock.now))

	c.take("a")
	c.take("b")
	clock.t = clock.t.Add(2 * time.Minute)
	c.take("c")

	if len(c.windows) != 1 {
		t.Fatalf("expected expired windows to be swept, got %d", len(c.windows))
	}
	if _, ok := c.windows["c"]; !ok {
		t.Fatal("expected the live window to remain")
	}
}
