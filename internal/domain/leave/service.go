package leave

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidOverride = errors.New("invalid override")
	ErrInvalidType     = errors.New("invalid leave type")
	ErrInvalidLOP      = errors.New("invalid lop days")
	ErrRangeTooLong    = errors.New("date range too long")
	ErrNoWorkingDays   = errors.New("no working days in range")
)

// MaxRangeDays bounds day-range queries and single applications.
const MaxRangeDays = 366

// Recorder receives calculator counters. *metrics.Collector satisfies it.
type Recorder interface {
	RecordBalanceComputation(rejected int)
}

type Service struct {
	Store    StoreAPI
	Defaults Settings
	Metrics  Recorder
}

func NewService(store StoreAPI, defaults Settings) *Service {
	return &Service{Store: store, Defaults: defaults.Normalize()}
}

func (s *Service) Settings(ctx context.Context, tenantID string) (Settings, error) {
	settings, err := s.Store.GetSettings(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return s.Defaults, nil
	}
	if err != nil {
		return Settings{}, err
	}
	return settings.Normalize(), nil
}

func (s *Service) UpdateSettings(ctx context.Context, tenantID string, settings Settings) (Settings, error) {
	settings = settings.Normalize()
	if err := s.Store.UpdateSettings(ctx, tenantID, settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func validYear(year int) bool {
	return year >= 1900 && year <= 9999
}

// BalanceSheet loads the inputs for one user and year and runs the monthly
// calculator. Rejected records are logged and returned alongside the rows.
func (s *Service) BalanceSheet(ctx context.Context, tenantID, userID string, year int) (BalanceSheet, error) {
	if !validYear(year) {
		return BalanceSheet{}, ErrInvalidYear
	}
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return BalanceSheet{}, fmt.Errorf("load settings: %w", err)
	}
	leaves, err := s.Store.ListApprovedLeaves(ctx, tenantID, userID, year)
	if err != nil {
		return BalanceSheet{}, fmt.Errorf("load approved leaves: %w", err)
	}
	overrides, err := s.Store.ListOverrides(ctx, tenantID, userID, year)
	if err != nil {
		return BalanceSheet{}, fmt.Errorf("load overrides: %w", err)
	}

	months, issues := CalculateMonthlyBalances(settings, year, overrides, leaves)
	logIssues(tenantID, userID, issues)
	if s.Metrics != nil {
		s.Metrics.RecordBalanceComputation(len(issues))
	}

	return BalanceSheet{
		UserID:   userID,
		Year:     year,
		Settings: settings,
		Months:   months,
		Summary:  SummarizeYear(months),
		Issues:   issues,
	}, nil
}

func (s *Service) Calendar(ctx context.Context, tenantID string) (Calendar, error) {
	cal, err := s.Store.GetCalendar(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return DefaultCalendar(), nil
	}
	if err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

func (s *Service) UpdateCalendar(ctx context.Context, tenantID string, cal Calendar) (Calendar, error) {
	cal.WeeklyOffRule = strings.TrimSpace(cal.WeeklyOffRule)
	if cal.WeeklyOffRule != "" {
		if _, err := ParseWeeklyOffRule(cal.WeeklyOffRule); err != nil {
			return Calendar{}, err
		}
	}
	dates := make([]string, 0, len(cal.ExtraOffDates))
	seen := map[string]struct{}{}
	for _, raw := range cal.ExtraOffDates {
		day, err := ParseDay(raw)
		if err != nil {
			return Calendar{}, err
		}
		key := dayKey(day)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, key)
	}
	sort.Strings(dates)
	cal.ExtraOffDates = dates
	if err := s.Store.UpdateCalendar(ctx, tenantID, cal); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

// LeaveDays runs the day-range calculator against the tenant calendar and
// holiday list.
func (s *Service) LeaveDays(ctx context.Context, tenantID, startDate, endDate string) (DayBreakdown, error) {
	start, end, err := ParseRange(startDate, endDate)
	if err != nil {
		return DayBreakdown{}, err
	}
	if days, _ := CalculateDays(start, end); days > MaxRangeDays {
		return DayBreakdown{}, ErrRangeTooLong
	}

	cal, err := s.Calendar(ctx, tenantID)
	if err != nil {
		return DayBreakdown{}, fmt.Errorf("load calendar: %w", err)
	}
	weekends, err := WeekendDates(cal, start, end)
	if err != nil {
		return DayBreakdown{}, fmt.Errorf("expand calendar: %w", err)
	}
	holidays, err := s.Store.ListHolidays(ctx, tenantID)
	if err != nil {
		return DayBreakdown{}, fmt.Errorf("load holidays: %w", err)
	}

	out, err := CalculateActualLeaveDays(dayKey(start), dayKey(end), weekends, holidays)
	if err != nil {
		return DayBreakdown{}, err
	}
	logIssues(tenantID, "", out.Issues)
	return out, nil
}

// WorkingDays returns the chargeable days of a calendar month.
func (s *Service) WorkingDays(ctx context.Context, tenantID string, year, month int) (int, error) {
	if !validYear(year) {
		return 0, ErrInvalidYear
	}
	if month < 1 || month > 12 {
		return 0, ErrInvalidMonth
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	out, err := s.LeaveDays(ctx, tenantID, dayKey(first), dayKey(last))
	if err != nil {
		return 0, err
	}
	return out.ActualLeaveDays, nil
}

func (s *Service) ListHolidays(ctx context.Context, tenantID string) ([]Holiday, error) {
	return s.Store.ListHolidays(ctx, tenantID)
}

func (s *Service) CreateHoliday(ctx context.Context, tenantID string, holiday Holiday) (Holiday, error) {
	holiday.Name = strings.TrimSpace(holiday.Name)
	start, err := ParseDay(holiday.Date)
	if err != nil {
		return Holiday{}, err
	}
	holiday.Date = dayKey(start)
	if strings.TrimSpace(holiday.EndDate) == "" {
		holiday.EndDate = ""
	} else {
		_, end, err := ParseRange(holiday.Date, holiday.EndDate)
		if err != nil {
			return Holiday{}, err
		}
		holiday.EndDate = dayKey(end)
	}
	id, err := s.Store.CreateHoliday(ctx, tenantID, holiday)
	if err != nil {
		return Holiday{}, err
	}
	holiday.ID = id
	return holiday, nil
}

func (s *Service) DeleteHoliday(ctx context.Context, tenantID, holidayID string) error {
	return s.Store.DeleteHoliday(ctx, tenantID, holidayID)
}

func (s *Service) ListOverrides(ctx context.Context, tenantID, userID string, year int) ([]Override, error) {
	if !validYear(year) {
		return nil, ErrInvalidYear
	}
	byMonth, err := s.Store.ListOverrides(ctx, tenantID, userID, year)
	if err != nil {
		return nil, err
	}
	out := make([]Override, 0, len(byMonth))
	for _, o := range byMonth {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func validateOverride(o Override) error {
	if o.Month < 1 || o.Month > 12 {
		return ErrInvalidMonth
	}
	for _, v := range []*float64{o.CarriedForward, o.AdditionalCredit} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return fmt.Errorf("%w: values must be non-negative", ErrInvalidOverride)
		}
	}
	if o.Month == 1 && o.CarriedForward != nil && *o.CarriedForward > 0 {
		return fmt.Errorf("%w: january cannot carry days from the previous year", ErrInvalidOverride)
	}
	return nil
}

// SaveOverride upserts a month override and returns the previous value, if
// any, for auditing.
func (s *Service) SaveOverride(ctx context.Context, tenantID, userID string, year int, override Override) (*Override, error) {
	if !validYear(year) {
		return nil, ErrInvalidYear
	}
	override.AdjustmentReason = strings.TrimSpace(override.AdjustmentReason)
	if err := validateOverride(override); err != nil {
		return nil, err
	}

	var before *Override
	existing, err := s.Store.GetOverride(ctx, tenantID, userID, year, override.Month)
	switch {
	case err == nil:
		before = &existing
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if err := s.Store.UpsertOverride(ctx, tenantID, userID, year, override); err != nil {
		return nil, err
	}
	return before, nil
}

func (s *Service) DeleteOverride(ctx context.Context, tenantID, userID string, year, month int) error {
	if !validYear(year) {
		return ErrInvalidYear
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return s.Store.DeleteOverride(ctx, tenantID, userID, year, month)
}

func (s *Service) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	return s.Store.UserExists(ctx, tenantID, userID)
}

// UserName resolves the display name printed on statements.
func (s *Service) UserName(ctx context.Context, tenantID, userID string) (string, error) {
	return s.Store.UserName(ctx, tenantID, userID)
}

// Submit records a pending application after computing its chargeable days.
// An LOP application without an explicit amount is charged in full.
func (s *Service) Submit(ctx context.Context, tenantID string, app Application) (Application, error) {
	app.LeaveType = strings.ToLower(strings.TrimSpace(app.LeaveType))
	if app.LeaveType != TypeSick && app.LeaveType != TypeCasual {
		return Application{}, ErrInvalidType
	}
	if math.IsNaN(app.LOPDays) || math.IsInf(app.LOPDays, 0) || app.LOPDays < 0 {
		return Application{}, ErrInvalidLOP
	}
	if !app.IsLOP {
		app.LOPDays = 0
	}

	days, err := s.LeaveDays(ctx, tenantID, app.StartDate, app.EndDate)
	if err != nil {
		return Application{}, err
	}
	if days.ActualLeaveDays == 0 {
		return Application{}, ErrNoWorkingDays
	}
	if app.IsLOP && app.LOPDays == 0 {
		app.LOPDays = float64(days.ActualLeaveDays)
	}
	if app.LOPDays > float64(days.TotalCalendarDays) {
		return Application{}, ErrInvalidLOP
	}

	start, end, _ := ParseRange(app.StartDate, app.EndDate)
	app.StartDate, app.EndDate = dayKey(start), dayKey(end)
	app.Reason = strings.TrimSpace(app.Reason)
	app.ChargeableDays = days.ActualLeaveDays
	app.Status = StatusPending

	id, err := s.Store.CreateApplication(ctx, tenantID, app)
	if err != nil {
		return Application{}, err
	}
	app.ID = id
	return app, nil
}

func (s *Service) GetApplication(ctx context.Context, tenantID, applicationID string) (Application, error) {
	return s.Store.GetApplication(ctx, tenantID, applicationID)
}

func (s *Service) ListApplications(ctx context.Context, tenantID string, filter ApplicationFilter, limit, offset int) (ApplicationList, error) {
	return s.Store.ListApplications(ctx, tenantID, filter, limit, offset)
}

// Decide approves or rejects a pending application.
func (s *Service) Decide(ctx context.Context, tenantID, applicationID, actorID string, approve bool) (Application, error) {
	app, err := s.Store.GetApplication(ctx, tenantID, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusPending {
		return Application{}, ErrInvalidState
	}
	if app.UserID == actorID {
		return Application{}, ErrForbidden
	}
	status := StatusRejected
	if approve {
		status = StatusApproved
	}
	if err := s.Store.UpdateApplicationStatus(ctx, tenantID, applicationID, StatusPending, status, actorID); err != nil {
		return Application{}, err
	}
	app.Status = status
	app.DecidedBy = actorID
	return app, nil
}

// Cancel withdraws the caller's own pending application.
func (s *Service) Cancel(ctx context.Context, tenantID, applicationID, userID string) (Application, error) {
	app, err := s.Store.GetApplication(ctx, tenantID, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.UserID != userID {
		return Application{}, ErrForbidden
	}
	if app.Status != StatusPending {
		return Application{}, ErrInvalidState
	}
	if err := s.Store.UpdateApplicationStatus(ctx, tenantID, applicationID, StatusPending, StatusCancelled, userID); err != nil {
		return Application{}, err
	}
	app.Status = StatusCancelled
	return app, nil
}
