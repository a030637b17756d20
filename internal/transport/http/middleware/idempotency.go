package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"leavedesk/internal/transport/http/api"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255
)

var (
	ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")
	ErrIdempotencyInFlight = errors.New("idempotency key is held by a request in progress")
)

// IdempotencyKey scopes a client key to the caller and the endpoint it was
// sent to.
type IdempotencyKey struct {
	TenantID string
	UserID   string
	Endpoint string
	Key      string
}

// StoredResponse is what a replayed request receives.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore claims a key before the handler runs so concurrent
// retries cannot both execute it.
//
// Reserve returns found=true with the stored response when the key already
// completed, ErrIdempotencyConflict when it was used with another request
// hash, and ErrIdempotencyInFlight while another request holds it. A nil
// error with found=false means the caller now owns the key and must either
// Complete or Release it.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key IdempotencyKey, requestHash string) (StoredResponse, bool, error)
	Complete(ctx context.Context, key IdempotencyKey, requestHash string, resp StoredResponse) error
	Release(ctx context.Context, key IdempotencyKey) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Idempotent replays the stored response when an authenticated request
// repeats an Idempotency-Key with the same body. The key is reserved before
// the handler runs; a second request arriving meanwhile gets 409 and may
// retry. Only 2xx responses are kept, so a failed attempt releases the key
// and can be retried with it. Requests without the header or without a
// store run normally.
func Idempotent(store IdempotencyStore, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			user, ok := GetUser(r.Context())
			if store == nil || rawKey == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(rawKey) > maxIdempotencyKey {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", requestID)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
					return
				}
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := IdempotencyKey{TenantID: user.TenantID, UserID: user.UserID, Endpoint: endpoint, Key: rawKey}
			hash := RequestHash(body)
			stored, found, err := store.Reserve(r.Context(), key, hash)
			switch {
			case errors.Is(err, ErrIdempotencyConflict):
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", requestID)
				return
			case errors.Is(err, ErrIdempotencyInFlight):
				w.Header().Set("Retry-After", "1")
				api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is still running", requestID)
				return
			case err != nil:
				slog.WarnContext(r.Context(), "idempotency reserve failed", "endpoint", endpoint, "err", err)
				next.ServeHTTP(w, r)
				return
			case found:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(replayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			// The reservation outlives a cancelled request context.
			bg := context.WithoutCancel(r.Context())
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := store.Release(bg, key); err != nil {
					slog.WarnContext(bg, "idempotency release failed", "endpoint", endpoint, "err", err)
				}
			}()

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.status < 200 || capture.status > 299 || capture.body.Len() == 0 {
				return
			}
			resp := StoredResponse{Status: capture.status, Body: json.RawMessage(bytes.TrimSpace(capture.body.Bytes()))}
			if err := store.Complete(bg, key, hash, resp); err != nil {
				slog.WarnContext(bg, "idempotency save failed", "endpoint", endpoint, "err", err)
				return
			}
			completed = true
		})
	}
}

// captureWriter tees the response so it can be stored after the handler
// returns.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
