package attendance

import "time"

type Site struct {
	Name         string    `json:"name" validate:"required,max=120"`
	Latitude     float64   `json:"latitude" validate:"latitude"`
	Longitude    float64   `json:"longitude" validate:"longitude"`
	RadiusMeters float64   `json:"radiusMeters" validate:"gt=0,lte=100000"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CheckIn struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CheckDate      string    `json:"checkDate"`
	CheckedInAt    time.Time `json:"checkedInAt"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	DistanceMeters *float64  `json:"distanceMeters,omitempty"`
}

// Location is an optional device position sent with a check-in.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l Location) present() bool {
	return l.Latitude != nil && l.Longitude != nil
}
