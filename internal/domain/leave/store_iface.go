package leave

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DataSource supplies the inputs of the balance calculator.
type DataSource interface {
	GetSettings(ctx context.Context, tenantID string) (Settings, error)
	ListApprovedLeaves(ctx context.Context, tenantID, userID string, year int) ([]Application, error)
	ListOverrides(ctx context.Context, tenantID, userID string, year int) (map[int]Override, error)
}

// CalendarSource supplies the inputs of the day-range calculator.
type CalendarSource interface {
	GetCalendar(ctx context.Context, tenantID string) (Calendar, error)
	ListHolidays(ctx context.Context, tenantID string) ([]Holiday, error)
}

type StoreAPI interface {
	DataSource
	CalendarSource
	UpdateSettings(ctx context.Context, tenantID string, settings Settings) error
	GetOverride(ctx context.Context, tenantID, userID string, year, month int) (Override, error)
	UpsertOverride(ctx context.Context, tenantID, userID string, year int, override Override) error
	DeleteOverride(ctx context.Context, tenantID, userID string, year, month int) error
	UpdateCalendar(ctx context.Context, tenantID string, cal Calendar) error
	CreateHoliday(ctx context.Context, tenantID string, holiday Holiday) (string, error)
	DeleteHoliday(ctx context.Context, tenantID, holidayID string) error
	CreateApplication(ctx context.Context, tenantID string, app Application) (string, error)
	GetApplication(ctx context.Context, tenantID, applicationID string) (Application, error)
	ListApplications(ctx context.Context, tenantID string, filter ApplicationFilter, limit, offset int) (ApplicationList, error)
	UpdateApplicationStatus(ctx context.Context, tenantID, applicationID, fromStatus, toStatus, actorID string) error
	UserExists(ctx context.Context, tenantID, userID string) (bool, error)
	UserName(ctx context.Context, tenantID, userID string) (string, error)
}

// SnapshotStore backs ApplySnapshots. The Tx methods read and write
// through the given transaction.
type SnapshotStore interface {
	DataSource
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	ListActiveUsersTx(ctx context.Context, tx pgx.Tx, tenantID string) ([]string, error)
	ListApprovedLeavesTx(ctx context.Context, tx pgx.Tx, tenantID, userID string, year int) ([]Application, error)
	ListOverridesTx(ctx context.Context, tx pgx.Tx, tenantID, userID string, year int) (map[int]Override, error)
	UpsertSnapshotTx(ctx context.Context, tx pgx.Tx, tenantID, userID string, year int, row MonthlyBalance) error
	RecordSnapshotRunTx(ctx context.Context, tx pgx.Tx, tenantID string, year, month, users int) error
}
