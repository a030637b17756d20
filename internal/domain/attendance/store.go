package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leavedesk/internal/platform/querier"
)

type StoreAPI interface {
	GetSite(ctx context.Context, tenantID string) (Site, error)
	UpsertSite(ctx context.Context, tenantID string, site Site) (Site, error)
	CreateCheckIn(ctx context.Context, tenantID string, checkIn CheckIn) (CheckIn, error)
	ListCheckIns(ctx context.Context, tenantID, userID string, limit, offset int) ([]CheckIn, error)
}

// Store keeps one site per tenant and one check-in per user per day.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) GetSite(ctx context.Context, tenantID string) (Site, error) {
	var site Site
	err := s.DB.QueryRow(ctx,
		`SELECT name, latitude, longitude, radius_meters, updated_at
		 FROM attendance_sites WHERE tenant_id = $1`,
		tenantID,
	).Scan(&site.Name, &site.Latitude, &site.Longitude, &site.RadiusMeters, &site.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Site{}, ErrSiteNotConfigured
	case err != nil:
		return Site{}, fmt.Errorf("load site: %w", err)
	}
	return site, nil
}

func (s *Store) UpsertSite(ctx context.Context, tenantID string, site Site) (Site, error) {
	err := s.DB.QueryRow(ctx,
		`INSERT INTO attendance_sites (tenant_id, name, latitude, longitude, radius_meters)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   name = EXCLUDED.name, latitude = EXCLUDED.latitude,
		   longitude = EXCLUDED.longitude, radius_meters = EXCLUDED.radius_meters,
		   updated_at = now()
		 RETURNING updated_at`,
		tenantID, site.Name, site.Latitude, site.Longitude, site.RadiusMeters,
	).Scan(&site.UpdatedAt)
	if err != nil {
		return Site{}, fmt.Errorf("save site: %w", err)
	}
	return site, nil
}

// CreateCheckIn maps the per-day unique constraint to ErrAlreadyCheckedIn.
func (s *Store) CreateCheckIn(ctx context.Context, tenantID string, c CheckIn) (CheckIn, error) {
	err := s.DB.QueryRow(ctx,
		`INSERT INTO attendance_checkins
		   (tenant_id, user_id, check_date, checked_in_at, latitude, longitude, distance_meters)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		tenantID, c.UserID, c.CheckDate, c.CheckedInAt, c.Latitude, c.Longitude, c.DistanceMeters,
	).Scan(&c.ID)
	switch {
	case querier.IsUniqueViolation(err, ""):
		return CheckIn{}, ErrAlreadyCheckedIn
	case err != nil:
		return CheckIn{}, fmt.Errorf("record check-in: %w", err)
	}
	return c, nil
}

func (s *Store) ListCheckIns(ctx context.Context, tenantID, userID string, limit, offset int) ([]CheckIn, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, user_id, to_char(check_date, 'YYYY-MM-DD'), checked_in_at, latitude, longitude, distance_meters
		 FROM attendance_checkins
		 WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY checked_in_at DESC, id
		 LIMIT $3 OFFSET $4`,
		tenantID, userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CheckIn, error) {
		var c CheckIn
		err := row.Scan(&c.ID, &c.UserID, &c.CheckDate, &c.CheckedInAt, &c.Latitude, &c.Longitude, &c.DistanceMeters)
		return c, err
	})
}
