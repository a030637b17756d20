package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
)

const jsonContentType = "application/json; charset=utf-8"

// Error is the machine readable part of a failed response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every JSON body the API returns.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteJSON marshals before touching the response so an unencodable payload
// still produces a well-formed 500 envelope.
func WriteJSON(w http.ResponseWriter, status int, payload Envelope) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response failed", "status", status, "err", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Envelope{
			Error:     &Error{Code: "encode_failed", Message: "response could not be encoded"},
			RequestID: payload.RequestID,
		})
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}

func Success(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Created(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	FailWithDetails(w, status, code, message, nil, requestID)
}

func FailWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	WriteJSON(w, status, Envelope{Error: &Error{Code: code, Message: message, Details: details}, RequestID: requestID})
}

// Attachment sends a download such as a CSV export or PDF statement.
func Attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Debug("write attachment failed", "filename", filename, "err", err)
	}
}
