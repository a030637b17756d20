package leave

import "time"

const (
	TypeSick   = "sick"
	TypeCasual = "casual"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

const dateLayout = "2006-01-02"

// Settings is the tenant leave policy. Use Normalize before computing.
type Settings struct {
	LeavesPerMonth    float64 `json:"leavesPerMonth"`
	MaxCarryForward   float64 `json:"maxCarryForward"`
	MaxLeavesPerMonth float64 `json:"maxLeavesPerMonth"`
	GPSCheckinEnabled bool    `json:"gpsCheckinEnabled"`
}

// Application is a leave request. Dates are kept as YYYY-MM-DD strings so
// malformed records can be reported instead of failing the whole load.
type Application struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId,omitempty"`
	StartDate      string     `json:"startDate"`
	EndDate        string     `json:"endDate"`
	LeaveType      string     `json:"leaveType"`
	IsLOP          bool       `json:"isLop"`
	LOPDays        float64    `json:"lopDays"`
	Reason         string     `json:"reason,omitempty"`
	Status         string     `json:"status,omitempty"`
	ChargeableDays int        `json:"chargeableDays"`
	DecidedBy      string     `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Override is a manual correction for one month of one user's year.
type Override struct {
	Month            int      `json:"month"`
	CarriedForward   *float64 `json:"carriedForward,omitempty"`
	AdditionalCredit *float64 `json:"additionalCredit,omitempty"`
	AdjustmentReason string   `json:"adjustmentReason,omitempty"`
	UpdatedBy        string   `json:"updatedBy,omitempty"`
}

type Holiday struct {
	ID              string `json:"id,omitempty"`
	Date            string `json:"date"`
	EndDate         string `json:"endDate,omitempty"`
	Name            string `json:"name"`
	RecurringYearly bool   `json:"recurringYearly"`
}

// Calendar describes an institution's non-working days. WeeklyOffRule is an
// RFC 5545 RRULE body such as FREQ=WEEKLY;BYDAY=FR.
type Calendar struct {
	WeeklyOffRule string   `json:"weeklyOffRule"`
	ExtraOffDates []string `json:"extraOffDates"`
}

type MonthlyBalance struct {
	Month            int     `json:"month"`
	MonthlyCredit    float64 `json:"monthlyCredit"`
	CarriedForward   float64 `json:"carriedForward"`
	AdditionalCredit float64 `json:"additionalCredit"`
	Available        float64 `json:"available"`
	SickLeaveUsed    float64 `json:"sickLeaveUsed"`
	CasualLeaveUsed  float64 `json:"casualLeaveUsed"`
	LOPDays          float64 `json:"lopDays"`
	Balance          float64 `json:"balance"`
	IsAutoCarried    bool    `json:"isAutoCarried"`
	AdjustmentReason string  `json:"adjustmentReason,omitempty"`
}

type YearSummary struct {
	TotalCredit      float64 `json:"totalCredit"`
	AdditionalCredit float64 `json:"additionalCredit"`
	SickLeaveUsed    float64 `json:"sickLeaveUsed"`
	CasualLeaveUsed  float64 `json:"casualLeaveUsed"`
	LOPDays          float64 `json:"lopDays"`
	ClosingBalance   float64 `json:"closingBalance"`
}

// RecordIssue reports an input record that was skipped.
type RecordIssue struct {
	RecordID string `json:"recordId,omitempty"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
}

type BalanceSheet struct {
	UserID   string           `json:"userId"`
	Year     int              `json:"year"`
	Settings Settings         `json:"settings"`
	Months   []MonthlyBalance `json:"months"`
	Summary  YearSummary      `json:"summary"`
	Issues   []RecordIssue    `json:"issues,omitempty"`
}

type DayBreakdown struct {
	TotalCalendarDays int           `json:"totalCalendarDays"`
	WeekendsInRange   int           `json:"weekendsInRange"`
	HolidaysInRange   int           `json:"holidaysInRange"`
	ActualLeaveDays   int           `json:"actualLeaveDays"`
	Issues            []RecordIssue `json:"issues,omitempty"`
}

type ApplicationFilter struct {
	UserID string
	Status string
	Year   int
}

type ApplicationList struct {
	Items []Application `json:"items"`
	Total int           `json:"total"`
}
