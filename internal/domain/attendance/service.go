package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leavedesk/internal/domain/leave"
)

var (
	ErrSiteNotConfigured  = errors.New("attendance site not configured")
	ErrLocationRequired   = errors.New("location required for check-in")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrOutsideRadius      = errors.New("outside check-in radius")
	ErrAlreadyCheckedIn   = errors.New("already checked in today")
	ErrInvalidSite        = errors.New("invalid attendance site")
)

// SettingsSource supplies the tenant leave settings carrying the GPS flag.
type SettingsSource interface {
	Settings(ctx context.Context, tenantID string) (leave.Settings, error)
}

type Recorder interface {
	RecordCheckinRejected()
}

type Service struct {
	Store    StoreAPI
	Settings SettingsSource
	Metrics  Recorder
	Now      func() time.Time
}

func NewService(store StoreAPI, settings SettingsSource) *Service {
	return &Service{Store: store, Settings: settings, Now: time.Now}
}

func (s *Service) Site(ctx context.Context, tenantID string) (Site, error) {
	return s.Store.GetSite(ctx, tenantID)
}

func (s *Service) SaveSite(ctx context.Context, tenantID string, site Site) (Site, error) {
	if !validCoordinate(site.Latitude, site.Longitude) || !(site.RadiusMeters > 0) {
		return Site{}, ErrInvalidSite
	}
	return s.Store.UpsertSite(ctx, tenantID, site)
}

// CheckIn records today's check-in for userID. When the tenant enables GPS
// check-in the location must be present and within the site radius;
// otherwise any location sent is stored as given.
func (s *Service) CheckIn(ctx context.Context, tenantID, userID string, loc Location) (CheckIn, error) {
	settings, err := s.Settings.Settings(ctx, tenantID)
	if err != nil {
		return CheckIn{}, fmt.Errorf("load settings: %w", err)
	}

	now := s.Now().UTC()
	record := CheckIn{
		UserID:      userID,
		CheckDate:   now.Format("2006-01-02"),
		CheckedInAt: now,
	}
	if loc.present() {
		if !validCoordinate(*loc.Latitude, *loc.Longitude) {
			return CheckIn{}, ErrInvalidCoordinates
		}
		record.Latitude = loc.Latitude
		record.Longitude = loc.Longitude
	}

	if settings.GPSCheckinEnabled {
		if !loc.present() {
			s.rejected()
			return CheckIn{}, ErrLocationRequired
		}
		site, err := s.Store.GetSite(ctx, tenantID)
		if err != nil {
			return CheckIn{}, err
		}
		distance := DistanceMeters(site.Latitude, site.Longitude, *loc.Latitude, *loc.Longitude)
		// Written so a NaN distance is rejected too.
		if !(distance <= site.RadiusMeters) {
			s.rejected()
			slog.InfoContext(ctx, "check-in outside radius", "userId", userID, "distanceMeters", distance, "radiusMeters", site.RadiusMeters)
			return CheckIn{}, ErrOutsideRadius
		}
		record.DistanceMeters = &distance
	}

	return s.Store.CreateCheckIn(ctx, tenantID, record)
}

func (s *Service) History(ctx context.Context, tenantID, userID string, limit, offset int) ([]CheckIn, error) {
	return s.Store.ListCheckIns(ctx, tenantID, userID, limit, offset)
}

func (s *Service) rejected() {
	if s.Metrics != nil {
		s.Metrics.RecordCheckinRejected()
	}
}
