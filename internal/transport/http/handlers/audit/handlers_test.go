package audithandler

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/transport/http/middleware"
)

type fakeEvents struct {
	events  []audit.Event
	filter  audit.Filter
	listErr error
}

func (f *fakeEvents) Count(_ context.Context, _ string, filter audit.Filter) (int, error) {
	return len(f.events), nil
}

func (f *fakeEvents) List(_ context.Context, _ string, filter audit.Filter, _ bool, _, _ int) ([]audit.Event, error) {
	f.filter = filter
	return f.events, f.listErr
}

type allowAll struct{}

func (allowAll) HasPermission(context.Context, string, string) (bool, error) { return true, nil }

func serve(store *fakeEvents, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(store, allowAll{}).RegisterRoutes(r)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1", RoleName: auth.RoleHR}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListEventsPassesFilter(t *testing.T) {
	store := &fakeEvents{events: []audit.Event{{ID: "e1", Action: audit.ActionOverrideUpsert}}}
	rec := serve(store, "/audit/events?action="+audit.ActionOverrideUpsert+"&entityType=leave_override")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Total-Count") != "1" {
		t.Fatalf("expected total header 1, got %q", rec.Header().Get("X-Total-Count"))
	}
	if store.filter.Action != audit.ActionOverrideUpsert || store.filter.EntityType != "leave_override" {
		t.Fatalf("unexpected filter %+v", store.filter)
	}
}

func TestListEventsFailure(t *testing.T) {
	rec := serve(&fakeEvents{listErr: errors.New("boom")}, "/audit/events")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestExportEvents(t *testing.T) {
	created := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	store := &fakeEvents{events: []audit.Event{{ID: "e1", ActorID: "u1", Action: audit.ActionSettingsUpdate, EntityType: "leave_settings", EntityID: "t1", CreatedAt: created}}}
	rec := serve(store, "/audit/events/export")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}
	if records[1][7] != "2024-03-04T09:30:00Z" {
		t.Fatalf("unexpected timestamp %q", records[1][7])
	}
}

func TestListEventsValidatesFilter(t *testing.T) {
	for _, target := range []string{
		"/audit/events?action=payroll.run",
		"/audit/events?actorUserId=nope",
		"/audit/events?from=2024-03-10&to=2024-03-01",
		"/audit/events?from=10/03/2024",
	} {
		store := &fakeEvents{}
		rec := serve(store, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestListEventsDateRangeIncludesEndDay(t *testing.T) {
	store := &fakeEvents{}
	rec := serve(store, "/audit/events?from=2024-03-01&to=2024-03-31")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	wantFrom := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if !store.filter.From.Equal(wantFrom) || !store.filter.To.Equal(wantTo) {
		t.Fatalf("unexpected range %v - %v", store.filter.From, store.filter.To)
	}
}

func TestExportEscapesFormulaCells(t *testing.T) {
	store := &fakeEvents{events: []audit.Event{{ID: "e1", Action: audit.ActionHolidayCreate, EntityType: "holiday", EntityID: "=HYPERLINK(\"x\")", CreatedAt: time.Now()}}}
	rec := serve(store, "/audit/events/export")

	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if got := records[1][4]; got != `'=HYPERLINK("x")` {
		t.Fatalf("expected escaped cell, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
}
