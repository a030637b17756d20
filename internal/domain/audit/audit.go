package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leavedesk/internal/platform/querier"
)

const (
	ActionSettingsUpdate    = "leave.settings.update"
	ActionCalendarUpdate    = "leave.calendar.update"
	ActionHolidayCreate     = "leave.holiday.create"
	ActionHolidayDelete     = "leave.holiday.delete"
	ActionOverrideUpsert    = "leave.override.upsert"
	ActionOverrideDelete    = "leave.override.delete"
	ActionApplicationSubmit = "leave.application.submit"
	ActionApplicationDecide = "leave.application.decide"
	ActionApplicationCancel = "leave.application.cancel"
	ActionSnapshotRun       = "leave.snapshot.run"
	ActionSiteUpdate        = "attendance.site.update"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

// Actions lists every action the service writes, for filter validation.
var Actions = []string{
	ActionSettingsUpdate,
	ActionCalendarUpdate,
	ActionHolidayCreate,
	ActionHolidayDelete,
	ActionOverrideUpsert,
	ActionOverrideDelete,
	ActionApplicationSubmit,
	ActionApplicationDecide,
	ActionApplicationCancel,
	ActionSnapshotRun,
	ActionSiteUpdate,
}

// Entry is one change to record. Before and After are stored as JSON.
type Entry struct {
	TenantID   string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	IP         string
	Before     any
	After      any
}

// Filter narrows List and Count. Zero fields match everything; From is
// inclusive and To exclusive.
type Filter struct {
	Action     string
	EntityType string
	ActorUser  string
	From       time.Time
	To         time.Time
}

// Recorder is what handlers need to write an audit trail.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Service struct {
	DB querier.Querier
}

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	before, err := marshalOptional(e.Before)
	if err != nil {
		return fmt.Errorf("encode before: %w", err)
	}
	after, err := marshalOptional(e.After)
	if err != nil {
		return fmt.Errorf("encode after: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, e.TenantID, nullable(e.ActorID), e.Action, e.EntityType, e.EntityID, before, after, e.RequestID, e.IP)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Service) Count(ctx context.Context, tenantID string, filter Filter) (int, error) {
	where, args := whereClause(tenantID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM audit_events"+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, tenantID string, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	cols := "id, COALESCE(actor_user_id::text, ''), action, entity_type, entity_id, request_id, ip, created_at"
	if includeDetails {
		cols += ", before_json, after_json"
	}
	where, args := whereClause(tenantID, filter)
	query := "SELECT " + cols + " FROM audit_events" + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var evt Event
		dest := []any{&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.CreatedAt}
		if includeDetails {
			dest = append(dest, &evt.Before, &evt.After)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// whereClause renders the filter as " WHERE ..." with positional args.
func whereClause(tenantID string, filter Filter) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.ActorUser != "" {
		add("actor_user_id::text = $%d", filter.ActorUser)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func marshalOptional(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

// nullable stores system-initiated events with a NULL actor.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}
