package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
)

const leaderboardTTL = 5 * time.Minute

// Leaderboard ranks users by points from successful captures in one
// district. Results are served from Redis when a fresh copy exists.
func (s *Service) Leaderboard(ctx context.Context, district string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, leaderboardKey(district)).Bytes()
		if err == nil {
			var entries []LeaderboardEntry
			if json.Unmarshal(cached, &entries) == nil {
				if len(entries) > limit {
					entries = entries[:limit]
				}
				return entries, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("leaderboard cache read: %v", err)
		}
	}

	entries, err := s.computeLeaderboard(ctx, district, limit)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if payload, err := json.Marshal(entries); err == nil {
			if err := s.redis.Set(ctx, leaderboardKey(district), payload, leaderboardTTL).Err(); err != nil {
				log.Printf("leaderboard cache write: %v", err)
			}
		}
	}
	return entries, nil
}

func (s *Service) computeLeaderboard(ctx context.Context, district string, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.user_id, SUM(c.points_awarded), COUNT(*)
		FROM territory_captures c
		JOIN territories t ON t.id = c.territory_id
		WHERE t.district=$1 AND c.was_successful
		GROUP BY c.user_id
		ORDER BY SUM(c.points_awarded) DESC, c.user_id
		LIMIT $2
	`, district, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Points, &e.Captures); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// StartLeaderboardRefresher warms the per-district caches on a fixed
// interval so reads stay cheap during peak hours. Returns the scheduler
// so the caller can shut it down.
func (s *Service) StartLeaderboardRefresher(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.refreshAll(ctx); err != nil {
				log.Printf("leaderboard refresh: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}

func (s *Service) refreshAll(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	rows, err := s.db.Query(ctx, `SELECT DISTINCT district FROM territories WHERE is_active`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var districts []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return err
		}
		districts = append(districts, d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, district := range districts {
		entries, err := s.computeLeaderboard(ctx, district, 100)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if err := s.redis.Set(ctx, leaderboardKey(district), payload, leaderboardTTL).Err(); err != nil {
			return err
		}
	}
	return nil
}

func leaderboardKey(district string) string {
	return "leaderboard:" + district
}
