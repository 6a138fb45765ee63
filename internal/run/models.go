package run

import (
	"time"

	"backend-runistanbul/internal/capture"
)

// Status is the run lifecycle state. Completed, cancelled and failed
// runs are immutable.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the run can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	case StatusActive, StatusPaused:
		return false
	}
	return false
}

type Run struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DistanceM       float64   `json:"distance_m"`
	DurationSec     float64   `json:"duration_sec"`
	AverageSpeedKmh float64   `json:"average_speed_kmh"`
	MaxSpeedKmh     float64   `json:"max_speed_kmh"`
	Calories        int       `json:"calories"`
	RouteWKT        string    `json:"route,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Capture is the immutable audit record of one capture attempt during a
// run, successful or not.
type Capture struct {
	ID                   string         `json:"id"`
	RunID                string         `json:"run_id"`
	TerritoryID          string         `json:"territory_id"`
	UserID               string         `json:"user_id"`
	CapturedAt           time.Time      `json:"captured_at"`
	TimeInTerritorySec   float64        `json:"time_in_territory_sec"`
	DistanceInTerritoryM float64        `json:"distance_in_territory_m"`
	PointsAwarded        int            `json:"points_awarded"`
	WasSuccessful        bool           `json:"was_successful"`
	Reason               capture.Reason `json:"reason"`
}

// Summary is what a completed-run submission returns to the client.
type Summary struct {
	Run      Run       `json:"run"`
	Captures []Capture `json:"captures"`
}
