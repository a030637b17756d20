package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFailWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": []string{"year"}}, "req-1")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != "validation_error" || body.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if _, ok := body.Error.Details["fields"]; !ok {
		t.Fatalf("expected details to carry fields, got %v", body.Error.Details)
	}
}

func TestAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	Attachment(rec, "text/csv", "leave-2024.csv", []byte("a,b\n"))
	if rec.Header().Get("Content-Disposition") != `attachment; filename=leave-2024.csv` {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != "a,b\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestWriteJSONUnencodablePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]any{"bad": make(chan int)}, "req-9")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != jsonContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error == nil || body.Error.Code != "encode_failed" || body.RequestID != "req-9" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
}
