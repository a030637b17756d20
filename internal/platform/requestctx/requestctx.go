// Package requestctx carries per-request identifiers below the HTTP layer
// and stamps them onto log records.
package requestctx

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	tenantIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithTenantID tags ctx with the authenticated tenant.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	value, _ := ctx.Value(tenantIDKey).(string)
	return value
}

// LogHandler adds requestId and tenantId to records logged with a context
// that carries them.
type LogHandler struct {
	slog.Handler
}

func NewLogHandler(inner slog.Handler) *LogHandler {
	return &LogHandler{Handler: inner}
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if id := GetRequestID(ctx); id != "" {
		record.AddAttrs(slog.String("requestId", id))
	}
	if id := GetTenantID(ctx); id != "" {
		record.AddAttrs(slog.String("tenantId", id))
	}
	return h.Handler.Handle(ctx, record)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{Handler: h.Handler.WithGroup(name)}
}
