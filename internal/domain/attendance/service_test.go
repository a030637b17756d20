package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavedesk/internal/domain/leave"
)

type memoryStore struct {
	site     *Site
	checkIns []CheckIn
}

func (m *memoryStore) GetSite(context.Context, string) (Site, error) {
	if m.site == nil {
		return Site{}, ErrSiteNotConfigured
	}
	return *m.site, nil
}

func (m *memoryStore) UpsertSite(_ context.Context, _ string, site Site) (Site, error) {
	m.site = &site
	return site, nil
}

func (m *memoryStore) CreateCheckIn(_ context.Context, _ string, c CheckIn) (CheckIn, error) {
	for _, existing := range m.checkIns {
		if existing.UserID == c.UserID && existing.CheckDate == c.CheckDate {
			return CheckIn{}, ErrAlreadyCheckedIn
		}
	}
	c.ID = "c" + c.UserID
	m.checkIns = append(m.checkIns, c)
	return c, nil
}

func (m *memoryStore) ListCheckIns(context.Context, string, string, int, int) ([]CheckIn, error) {
	return m.checkIns, nil
}

type fixedSettings leave.Settings

func (f fixedSettings) Settings(context.Context, string) (leave.Settings, error) {
	return leave.Settings(f), nil
}

type countingRecorder struct{ rejected int }

func (c *countingRecorder) RecordCheckinRejected() { c.rejected++ }

func f(v float64) *float64 { return &v }

func newService(gps bool, store *memoryStore) (*Service, *countingRecorder) {
	svc := NewService(store, fixedSettings{GPSCheckinEnabled: gps})
	rec := &countingRecorder{}
	svc.Metrics = rec
	svc.Now = func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) }
	return svc, rec
}

var campus = Site{Name: "Main campus", Latitude: 12.9716, Longitude: 77.5946, RadiusMeters: 200}

func TestCheckInWithoutGPS(t *testing.T) {
	svc, _ := newService(false, &memoryStore{})
	got, err := svc.CheckIn(context.Background(), "t1", "u1", Location{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", got.CheckDate)
	assert.Nil(t, got.DistanceMeters)

	_, err = svc.CheckIn(context.Background(), "t1", "u1", Location{})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestCheckInWithGPS(t *testing.T) {
	site := campus
	svc, rec := newService(true, &memoryStore{site: &site})
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, "t1", "u1", Location{})
	assert.ErrorIs(t, err, ErrLocationRequired)

	// Roughly 1.1 km north of campus.
	_, err = svc.CheckIn(ctx, "t1", "u1", Location{Latitude: f(12.9816), Longitude: f(77.5946)})
	assert.ErrorIs(t, err, ErrOutsideRadius)
	assert.Equal(t, 2, rec.rejected)

	got, err := svc.CheckIn(ctx, "t1", "u1", Location{Latitude: f(12.9720), Longitude: f(77.5946)})
	require.NoError(t, err)
	require.NotNil(t, got.DistanceMeters)
	assert.Less(t, *got.DistanceMeters, 200.0)
}

func TestCheckInRejectsFarSideOfGlobe(t *testing.T) {
	site := Site{Name: "South pole station", Latitude: -86.78, Longitude: -179, RadiusMeters: 500}
	store := &memoryStore{site: &site}
	svc, rec := newService(true, store)

	_, err := svc.CheckIn(context.Background(), "t1", "u1", Location{Latitude: f(86.78), Longitude: f(1)})
	assert.ErrorIs(t, err, ErrOutsideRadius)
	assert.Equal(t, 1, rec.rejected)
	assert.Empty(t, store.checkIns)
}

func TestCheckInWithGPSNeedsSite(t *testing.T) {
	svc, _ := newService(true, &memoryStore{})
	_, err := svc.CheckIn(context.Background(), "t1", "u1", Location{Latitude: f(1), Longitude: f(1)})
	assert.ErrorIs(t, err, ErrSiteNotConfigured)
}

func TestCheckInRejectsBadCoordinates(t *testing.T) {
	svc, _ := newService(false, &memoryStore{})
	_, err := svc.CheckIn(context.Background(), "t1", "u1", Location{Latitude: f(95), Longitude: f(0)})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestSaveSite(t *testing.T) {
	store := &memoryStore{}
	svc, _ := newService(true, store)
	_, err := svc.SaveSite(context.Background(), "t1", Site{Name: "x", Latitude: 10, Longitude: 10})
	assert.ErrorIs(t, err, ErrInvalidSite)

	saved, err := svc.SaveSite(context.Background(), "t1", campus)
	require.NoError(t, err)
	assert.Equal(t, campus.RadiusMeters, saved.RadiusMeters)
}
