package attendance

import (
	"math"
	"testing"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want, tolerance        float64
	}{
		{name: "same point", lat1: 12.97, lng1: 77.59, lat2: 12.97, lng2: 77.59, want: 0, tolerance: 0.001},
		{name: "one degree of latitude", lat1: 0, lng1: 0, lat2: 1, lng2: 0, want: 111195, tolerance: 5},
		{name: "antipodes", lat1: -86.78, lng1: -179, lat2: 86.78, lng2: 1, want: math.Pi * 6371000, tolerance: 1},
		{name: "paris to london", lat1: 48.8566, lng1: 2.3522, lat2: 51.5074, lng2: -0.1278, want: 343556, tolerance: 1000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceMeters(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("expected a finite distance, got %v", got)
			}
			if math.Abs(got-tc.want) > tc.tolerance {
				t.Fatalf("expected %.0f±%.0f, got %.1f", tc.want, tc.tolerance, got)
			}
		})
	}
}

func TestValidCoordinate(t *testing.T) {
	if !validCoordinate(-90, 180) {
		t.Fatal("expected boundary coordinate to be valid")
	}
	if validCoordinate(91, 0) || validCoordinate(0, -181) || validCoordinate(math.NaN(), 0) {
		t.Fatal("expected out of range coordinates to be invalid")
	}
}
