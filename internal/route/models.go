package route

import (
	"time"

	"backend-runistanbul/internal/shared/geo"
)

// Fix is a single raw GPS sample as reported by the mobile client.
// Speed and accuracy are optional; zero accuracy means unknown.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	SpeedMps  float64   `json:"speed_mps,omitempty"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
}

func (f Fix) point() geo.Point {
	return geo.Point{Lat: f.Lat, Lng: f.Lng}
}

// CleaningPolicy bounds what counts as a plausible fix.
type CleaningPolicy struct {
	MaxAccuracyM float64
	MaxSpeedMps  float64
}

// TerritoryShape is the slice of territory state the analyzer needs.
type TerritoryShape struct {
	ID       string
	Boundary geo.Polygon
}

// Candidate is a territory the cleaned route dwelled in, with the dwell
// totals the arbiter judges against the capture policy.
type Candidate struct {
	TerritoryID     string    `json:"territory_id"`
	DistanceInsideM float64   `json:"distance_inside_m"`
	TimeInsideSec   float64   `json:"time_inside_sec"`
	EnteredAt       time.Time `json:"entered_at"`
}

// Stats are whole-route figures over the cleaned fix sequence.
type Stats struct {
	DistanceM       float64 `json:"distance_m"`
	DurationSec     float64 `json:"duration_sec"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
	MaxSpeedKmh     float64 `json:"max_speed_kmh"`
	Calories        int     `json:"calories"`
	RetainedFixes   int     `json:"retained_fixes"`
}
