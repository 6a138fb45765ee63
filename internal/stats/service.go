package stats

import (
	"context"
	"time"

	"backend-runistanbul/internal/db"

	"github.com/redis/go-redis/v9"
)

// nowFn is swapped in streak tests.
var nowFn = time.Now

type Service struct {
	db    db.Querier
	redis *redis.Client
}

func NewService(q db.Querier, redisClient *redis.Client) *Service {
	return &Service{db: q, redis: redisClient}
}

// UserStatistics computes the aggregate view of one user's history.
// A user with no completed runs gets the zero value, not an error.
func (s *Service) UserStatistics(ctx context.Context, userID string) (UserStatistics, error) {
	out := UserStatistics{UserID: userID}

	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(distance_m), 0),
		       COALESCE(SUM(duration_sec), 0),
		       COALESCE(MAX(max_speed_kmh), 0),
		       COALESCE(MAX(distance_m), 0),
		       COALESCE(SUM(calories), 0),
		       MAX(completed_at)
		FROM user_runs
		WHERE user_id=$1 AND status='completed'
	`, userID)
	var distanceM, longestM float64
	var lastRun *time.Time
	if err := row.Scan(&out.TotalRuns, &distanceM, &out.TotalDurationSec,
		&out.BestSpeedKmh, &longestM, &out.TotalCalories, &lastRun); err != nil {
		return UserStatistics{}, err
	}
	out.TotalDistanceKm = distanceM / 1000
	out.LongestRunKm = longestM / 1000
	out.LastRunDate = lastRun
	if out.TotalDurationSec > 0 {
		out.AverageSpeedKmh = distanceM / out.TotalDurationSec * 3.6
	}

	row = s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT c.territory_id),
		       COUNT(DISTINCT t.district),
		       COUNT(DISTINCT c.territory_id) FILTER (WHERE t.type='landmark'),
		       COALESCE(SUM(c.points_awarded), 0)
		FROM territory_captures c
		JOIN territories t ON t.id = c.territory_id
		WHERE c.user_id=$1 AND c.was_successful
	`, userID)
	if err := row.Scan(&out.TerritoriesCaptured, &out.DistrictsVisited, &out.LandmarksVisited, &out.TotalPoints); err != nil {
		return UserStatistics{}, err
	}

	row = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM territory_ownerships
		WHERE user_id=$1 AND lost_at IS NULL
	`, userID)
	if err := row.Scan(&out.TerritoriesHeld); err != nil {
		return UserStatistics{}, err
	}

	days, err := s.runDays(ctx, userID)
	if err != nil {
		return UserStatistics{}, err
	}
	out.CurrentStreakDays, out.BestStreakDays = streaks(days, nowFn().UTC())

	return out, nil
}

func (s *Service) runDays(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT (started_at AT TIME ZONE 'UTC')::date AS day
		FROM user_runs
		WHERE user_id=$1 AND status='completed'
		ORDER BY day
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// streaks walks the sorted distinct run days once. The current streak
// only counts if the latest run was today or yesterday; an older chain
// is already broken however long it was.
func streaks(days []time.Time, now time.Time) (current, best int) {
	if len(days) == 0 {
		return 0, 0
	}

	run := 1
	best = 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	latest := days[len(days)-1]
	if gap := today.Sub(latest); gap == 0 || gap == 24*time.Hour {
		current = run
	}
	return current, best
}
