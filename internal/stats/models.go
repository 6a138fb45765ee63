package stats

import "time"

// UserStatistics aggregates a user's whole running history. All values
// are derived from completed runs and capture records at read time.
type UserStatistics struct {
	UserID              string     `json:"user_id"`
	TotalRuns           int        `json:"total_runs"`
	TotalDistanceKm     float64    `json:"total_distance_km"`
	TotalDurationSec    float64    `json:"total_duration_sec"`
	AverageSpeedKmh     float64    `json:"average_speed_kmh"`
	BestSpeedKmh        float64    `json:"best_speed_kmh"`
	LongestRunKm        float64    `json:"longest_run_km"`
	TotalCalories       int        `json:"total_calories"`
	TerritoriesCaptured int        `json:"territories_captured"`
	TerritoriesHeld     int        `json:"territories_held"`
	DistrictsVisited    int        `json:"districts_visited"`
	LandmarksVisited    int        `json:"landmarks_visited"`
	TotalPoints         int        `json:"total_points"`
	CurrentStreakDays   int        `json:"current_streak_days"`
	BestStreakDays      int        `json:"best_streak_days"`
	LastRunDate         *time.Time `json:"last_run_date,omitempty"`
}

// LeaderboardEntry is one row of a district leaderboard, ranked by
// points earned from successful captures in that district.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Points   int    `json:"points"`
	Captures int    `json:"captures"`
}
