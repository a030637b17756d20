package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/shared"
)

// RateLimitKeyFunc picks the bucket a request is counted against.
type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*windowCounter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(c *windowCounter) {
		if fn != nil {
			c.keyFn = fn
		}
	}
}

// WithClock replaces time.Now for the counter.
func WithClock(now func() time.Time) RateLimitOption {
	return func(c *windowCounter) {
		if now != nil {
			c.now = now
		}
	}
}

// windowCounter is a fixed-window counter per key. Expired windows are swept
// at most once per window length.
type windowCounter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	keyFn     RateLimitKeyFunc
	now       func() time.Time
	windows   map[string]counterWindow
	lastSweep time.Time
}

type counterWindow struct {
	hits    int
	resetAt time.Time
}

type verdict struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

func newWindowCounter(limit int, window time.Duration, keyFn RateLimitKeyFunc, opts ...RateLimitOption) *windowCounter {
	c := &windowCounter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		now:     time.Now,
		windows: map[string]counterWindow{},
	}
	if c.keyFn == nil {
		c.keyFn = actorOrIPKey
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *windowCounter) take(key string) verdict {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= c.window {
		for k, w := range c.windows {
			if !now.Before(w.resetAt) {
				delete(c.windows, k)
			}
		}
		c.lastSweep = now
	}

	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = counterWindow{resetAt: now.Add(c.window)}
	}
	w.hits++
	c.windows[key] = w

	return verdict{
		allowed:   w.hits <= c.limit,
		remaining: max(c.limit-w.hits, 0),
		resetIn:   w.resetAt.Sub(now),
	}
}

// admit counts r and writes the rate limit headers. It writes the 429
// response itself and returns false when the caller is over the limit.
func (c *windowCounter) admit(w http.ResponseWriter, r *http.Request) bool {
	if c.limit <= 0 {
		return true
	}
	key := c.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	v := c.take(key)
	resetSec := ceilSeconds(v.resetIn)

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(c.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if v.allowed {
		return true
	}

	h.Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", c.limit, "window", c.window.String())
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// RateLimit throttles every request, keyed by the authenticated user and
// falling back to the client IP.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	counter := newWindowCounter(limit, window, actorOrIPKey, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if counter.admit(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit adds tighter limits on credential endpoints
// (per IP and per submitted email) and on administrative leave mutations
// (per actor). Other requests pass through untouched.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	credentialLimit := max(baseLimit/4, 1)
	adminLimit := max(baseLimit/2, 1)
	credentialByIP := newWindowCounter(credentialLimit, window, clientIPKey, opts...)
	credentialByEmail := newWindowCounter(credentialLimit, window, AuthEmailOrIPKey("email"), opts...)
	adminByActor := newWindowCounter(adminLimit, window, actorOrIPKey, opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch classifyMutation(r) {
			case mutationCredential:
				if !credentialByIP.admit(w, r) || !credentialByEmail.admit(w, r) {
					return
				}
			case mutationAdmin:
				if !adminByActor.admit(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthEmailOrIPKey keys credential requests by the email in their JSON body.
func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	field = strings.TrimSpace(field)
	if field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		if email := peekJSONString(r, field); email != "" {
			return "email:" + strings.ToLower(email)
		}
		return clientIPKey(r)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	return "ip:" + shared.ClientIP(r)
}

// peekJSONString reads one top-level string field from a JSON body and
// restores the body for the next handler.
func peekJSONString(r *http.Request, field string) string {
	if r == nil || r.Body == nil {
		return ""
	}
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(payload[field], &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

type mutationClass int

const (
	mutationNone mutationClass = iota
	mutationCredential
	mutationAdmin
)

// mutationRoutes lists the write routes under /api/v1 that get the tighter
// limits. Patterns use path.Match syntax.
var mutationRoutes = []struct {
	pattern string
	class   mutationClass
}{
	{"/auth/login", mutationCredential},
	{"/auth/refresh", mutationCredential},
	{"/auth/mfa/*", mutationCredential},
	{"/leave/settings", mutationAdmin},
	{"/leave/calendar", mutationAdmin},
	{"/leave/holidays", mutationAdmin},
	{"/leave/holidays/*", mutationAdmin},
	{"/leave/overrides/*/*/*", mutationAdmin},
	{"/leave/applications/*/approve", mutationAdmin},
	{"/leave/applications/*/reject", mutationAdmin},
	{"/leave/snapshots/run", mutationAdmin},
	{"/attendance/site", mutationAdmin},
}

func classifyMutation(r *http.Request) mutationClass {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return mutationNone
	}
	route := strings.TrimPrefix(strings.TrimSpace(r.URL.Path), "/api/v1")
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	route = strings.TrimSuffix(route, "/")
	for _, m := range mutationRoutes {
		if ok, _ := path.Match(m.pattern, route); ok {
			return m.class
		}
	}
	return mutationNone
}
