package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) GetSettings(ctx context.Context, tenantID string) (Settings, error) {
	var out Settings
	err := s.DB.QueryRow(ctx, `
    SELECT leaves_per_month, max_carry_forward, max_leaves_per_month, gps_checkin_enabled
    FROM leave_settings
    WHERE tenant_id = $1
  `, tenantID).Scan(&out.LeavesPerMonth, &out.MaxCarryForward, &out.MaxLeavesPerMonth, &out.GPSCheckinEnabled)
	if err != nil {
		return Settings{}, notFound(err)
	}
	return out, nil
}

func (s *Store) UpdateSettings(ctx context.Context, tenantID string, settings Settings) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO leave_settings (tenant_id, leaves_per_month, max_carry_forward, max_leaves_per_month, gps_checkin_enabled)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (tenant_id)
      DO UPDATE SET leaves_per_month = EXCLUDED.leaves_per_month,
                    max_carry_forward = EXCLUDED.max_carry_forward,
                    max_leaves_per_month = EXCLUDED.max_leaves_per_month,
                    gps_checkin_enabled = EXCLUDED.gps_checkin_enabled,
                    updated_at = now()
  `, tenantID, settings.LeavesPerMonth, settings.MaxCarryForward, settings.MaxLeavesPerMonth, settings.GPSCheckinEnabled)
	return err
}

func (s *Store) ListApprovedLeaves(ctx context.Context, tenantID, userID string, year int) ([]Application, error) {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	rows, err := s.DB.Query(ctx, `
    SELECT id, user_id, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
           leave_type, is_lop, lop_days, chargeable_days, status, created_at
    FROM leave_applications
    WHERE tenant_id = $1 AND user_id = $2 AND status = $3
      AND start_date <= $5 AND end_date >= $4
    ORDER BY start_date, created_at
  `, tenantID, userID, StatusApproved, yearStart, yearEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.UserID, &app.StartDate, &app.EndDate, &app.LeaveType, &app.IsLOP, &app.LOPDays, &app.ChargeableDays, &app.Status, &app.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *Store) ListOverrides(ctx context.Context, tenantID, userID string, year int) (map[int]Override, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT month, carried_forward, additional_credit, adjustment_reason, COALESCE(updated_by::text, '')
    FROM leave_balance_overrides
    WHERE tenant_id = $1 AND user_id = $2 AND year = $3
  `, tenantID, userID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]Override)
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.Month, &o.CarriedForward, &o.AdditionalCredit, &o.AdjustmentReason, &o.UpdatedBy); err != nil {
			return nil, err
		}
		out[o.Month] = o
	}
	return out, rows.Err()
}

func (s *Store) GetOverride(ctx context.Context, tenantID, userID string, year, month int) (Override, error) {
	var o Override
	err := s.DB.QueryRow(ctx, `
    SELECT month, carried_forward, additional_credit, adjustment_reason, COALESCE(updated_by::text, '')
    FROM leave_balance_overrides
    WHERE tenant_id = $1 AND user_id = $2 AND year = $3 AND month = $4
  `, tenantID, userID, year, month).Scan(&o.Month, &o.CarriedForward, &o.AdditionalCredit, &o.AdjustmentReason, &o.UpdatedBy)
	if err != nil {
		return Override{}, notFound(err)
	}
	return o, nil
}

func (s *Store) UpsertOverride(ctx context.Context, tenantID, userID string, year int, override Override) error {
	var updatedBy any
	if override.UpdatedBy != "" {
		updatedBy = override.UpdatedBy
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO leave_balance_overrides (tenant_id, user_id, year, month, carried_forward, additional_credit, adjustment_reason, updated_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (tenant_id, user_id, year, month)
      DO UPDATE SET carried_forward = EXCLUDED.carried_forward,
                    additional_credit = EXCLUDED.additional_credit,
                    adjustment_reason = EXCLUDED.adjustment_reason,
                    updated_by = EXCLUDED.updated_by,
                    updated_at = now()
  `, tenantID, userID, year, override.Month, override.CarriedForward, override.AdditionalCredit, override.AdjustmentReason, updatedBy)
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, tenantID, userID string, year, month int) error {
	tag, err := s.DB.Exec(ctx, `
    DELETE FROM leave_balance_overrides
    WHERE tenant_id = $1 AND user_id = $2 AND year = $3 AND month = $4
  `, tenantID, userID, year, month)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetCalendar(ctx context.Context, tenantID string) (Calendar, error) {
	var cal Calendar
	err := s.DB.QueryRow(ctx, `
    SELECT weekly_off_rule, extra_off_dates
    FROM institution_calendars
    WHERE tenant_id = $1
  `, tenantID).Scan(&cal.WeeklyOffRule, &cal.ExtraOffDates)
	if err != nil {
		return Calendar{}, notFound(err)
	}
	return cal, nil
}

func (s *Store) UpdateCalendar(ctx context.Context, tenantID string, cal Calendar) error {
	extra := cal.ExtraOffDates
	if extra == nil {
		extra = []string{}
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO institution_calendars (tenant_id, weekly_off_rule, extra_off_dates)
    VALUES ($1,$2,$3)
    ON CONFLICT (tenant_id)
      DO UPDATE SET weekly_off_rule = EXCLUDED.weekly_off_rule,
                    extra_off_dates = EXCLUDED.extra_off_dates,
                    updated_at = now()
  `, tenantID, cal.WeeklyOffRule, extra)
	return err
}

func (s *Store) ListHolidays(ctx context.Context, tenantID string) ([]Holiday, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, to_char(date, 'YYYY-MM-DD'), COALESCE(to_char(end_date, 'YYYY-MM-DD'), ''), name, recurring_yearly
    FROM holidays
    WHERE tenant_id = $1
    ORDER BY date
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.ID, &h.Date, &h.EndDate, &h.Name, &h.RecurringYearly); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) CreateHoliday(ctx context.Context, tenantID string, holiday Holiday) (string, error) {
	var endDate any
	if strings.TrimSpace(holiday.EndDate) != "" {
		endDate = holiday.EndDate
	}
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO holidays (tenant_id, date, end_date, name, recurring_yearly)
    VALUES ($1,$2::date,$3::date,$4,$5)
    RETURNING id
  `, tenantID, holiday.Date, endDate, holiday.Name, holiday.RecurringYearly).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DeleteHoliday(ctx context.Context, tenantID, holidayID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM holidays WHERE tenant_id = $1 AND id = $2", tenantID, holidayID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateApplication(ctx context.Context, tenantID string, app Application) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_applications (tenant_id, user_id, start_date, end_date, leave_type, is_lop, lop_days, reason, status, chargeable_days)
    VALUES ($1,$2,$3::date,$4::date,$5,$6,$7,$8,$9,$10)
    RETURNING id
  `, tenantID, app.UserID, app.StartDate, app.EndDate, app.LeaveType, app.IsLOP, app.LOPDays, app.Reason, app.Status, app.ChargeableDays).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

const applicationColumns = `id, user_id, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
           leave_type, is_lop, lop_days, reason, status, chargeable_days,
           COALESCE(decided_by::text, ''), decided_at, created_at`

func scanApplication(row pgx.Row) (Application, error) {
	var app Application
	err := row.Scan(&app.ID, &app.UserID, &app.StartDate, &app.EndDate, &app.LeaveType, &app.IsLOP, &app.LOPDays, &app.Reason, &app.Status, &app.ChargeableDays, &app.DecidedBy, &app.DecidedAt, &app.CreatedAt)
	return app, err
}

func (s *Store) GetApplication(ctx context.Context, tenantID, applicationID string) (Application, error) {
	app, err := scanApplication(s.DB.QueryRow(ctx, `
    SELECT `+applicationColumns+`
    FROM leave_applications
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, applicationID))
	if err != nil {
		return Application{}, notFound(err)
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, tenantID string, filter ApplicationFilter, limit, offset int) (ApplicationList, error) {
	where := " WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		where += fmt.Sprintf(" AND (EXTRACT(YEAR FROM start_date) = $%d OR EXTRACT(YEAR FROM end_date) = $%d)", len(args), len(args))
	}

	var out ApplicationList
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM leave_applications"+where, args...).Scan(&out.Total); err != nil {
		return ApplicationList{}, err
	}

	query := "SELECT " + applicationColumns + " FROM leave_applications" + where +
		fmt.Sprintf(" ORDER BY start_date DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ApplicationList{}, err
	}
	defer rows.Close()

	out.Items = make([]Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return ApplicationList{}, err
		}
		out.Items = append(out.Items, app)
	}
	return out, rows.Err()
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, tenantID, applicationID, fromStatus, toStatus, actorID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_applications
    SET status = $1, decided_by = $2, decided_at = now()
    WHERE tenant_id = $3 AND id = $4 AND status = $5
  `, toStatus, actorID, tenantID, applicationID, fromStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (s *Store) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM users WHERE tenant_id = $1 AND id = $2
  `, tenantID, userID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) UserName(ctx context.Context, tenantID, userID string) (string, error) {
	var name string
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(NULLIF(full_name, ''), email) FROM users WHERE tenant_id = $1 AND id = $2
  `, tenantID, userID).Scan(&name)
	return name, notFound(err)
}
