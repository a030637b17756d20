package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	Record(status int, duration time.Duration)
}

// responseTap remembers the status and size of what a handler wrote.
type responseTap struct {
	http.ResponseWriter
	status  int
	written int64
}

func (t *responseTap) WriteHeader(code int) {
	if t.status == 0 {
		t.status = code
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTap) Write(p []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	n, err := t.ResponseWriter.Write(p)
	t.written += int64(n)
	return n, err
}

func (t *responseTap) Unwrap() http.ResponseWriter { return t.ResponseWriter }

func (t *responseTap) code() int {
	if t.status == 0 {
		return http.StatusOK
	}
	return t.status
}

// Logger writes one access log line per request and feeds metrics. Server
// errors log at error level and client errors at warn.
func Logger(metrics RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tap := &responseTap{ResponseWriter: w}
			next.ServeHTTP(tap, r)
			elapsed := time.Since(start)
			status := tap.code()

			if metrics != nil {
				metrics.Record(status, elapsed)
			}

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("bytes", tap.written),
				slog.Int64("durationMs", elapsed.Milliseconds()),
			}
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if user, ok := GetUser(r.Context()); ok {
				attrs = append(attrs, slog.String("userId", user.UserID))
			}
			slog.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
