package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"backend-runistanbul/internal/capture"
	"backend-runistanbul/internal/db"
	"backend-runistanbul/internal/route"
	"backend-runistanbul/internal/shared/geo"
	"backend-runistanbul/internal/territory"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound   = errors.New("run not found")
	ErrValidation = errors.New("invalid run submission")
)

// Catalog is the read side of the territory store the pipeline needs.
type Catalog interface {
	AvailableForCapture(ctx context.Context, loc geo.Point, maxDistanceM float64) ([]territory.Territory, error)
}

// Arbiter judges one candidate and commits the transition on success.
type Arbiter interface {
	Arbitrate(ctx context.Context, terr territory.Territory, userID string, cand route.Candidate) (capture.Outcome, error)
}

// Broadcaster pushes capture events to live listeners. Nil is fine.
type Broadcaster interface {
	Broadcast(key string, payload []byte)
}

type Service struct {
	db          db.Querier
	territories Catalog
	arbiter     Arbiter
	hub         Broadcaster

	cleaning        route.CleaningPolicy
	prefilterMargin float64
}

func NewService(q db.Querier, territories Catalog, arbiter Arbiter, hub Broadcaster, cleaning route.CleaningPolicy, prefilterMarginM float64) *Service {
	return &Service{
		db:          q,
		territories: territories,
		arbiter:     arbiter,
		hub:         hub,

		cleaning:        cleaning,
		prefilterMargin: prefilterMarginM,
	}
}

// SubmitCompletedRun ingests the frozen fix stream of a finished run:
// clean and analyze the route, arbitrate every touched territory, persist
// the run plus one capture record per attempt, and return the summary.
// Capture evaluation happens exactly once, here.
func (s *Service) SubmitCompletedRun(ctx context.Context, userID string, fixes []route.Fix, startedAt time.Time) (Summary, error) {
	if userID == "" {
		return Summary{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if len(fixes) == 0 {
		return Summary{}, fmt.Errorf("%w: completed run requires fixes", ErrValidation)
	}

	center, radius := route.BoundingCircle(fixes)
	nearby, err := s.territories.AvailableForCapture(ctx, center, radius+s.prefilterMargin)
	if err != nil {
		return Summary{}, err
	}
	shapes := make([]route.TerritoryShape, 0, len(nearby))
	byID := make(map[string]territory.Territory, len(nearby))
	for _, terr := range nearby {
		poly, err := geo.NewPolygon(terr.Boundary)
		if err != nil {
			log.Printf("territory %s has invalid boundary: %v", terr.ID, err)
			continue
		}
		shapes = append(shapes, route.TerritoryShape{ID: terr.ID, Boundary: poly})
		byID[terr.ID] = terr
	}

	analysis, err := route.Analyze(fixes, shapes, s.cleaning)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	stats := analysis.Stats

	if startedAt.IsZero() {
		startedAt = fixes[0].Timestamp
	}
	r := Run{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          StatusCompleted,
		StartedAt:       startedAt,
		CompletedAt:     fixes[len(fixes)-1].Timestamp,
		DistanceM:       stats.DistanceM,
		DurationSec:     stats.DurationSec,
		AverageSpeedKmh: stats.AverageSpeedKmh,
		MaxSpeedKmh:     stats.MaxSpeedKmh,
		Calories:        stats.Calories,
	}
	if len(analysis.Clean) >= 2 {
		points := make([]geo.Point, len(analysis.Clean))
		for i, f := range analysis.Clean {
			points[i] = geo.Point{Lat: f.Lat, Lng: f.Lng}
		}
		r.RouteWKT = geo.LineStringWKT(points)
	}

	var routeArg any
	if r.RouteWKT != "" {
		routeArg = r.RouteWKT
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO user_runs (id, user_id, status, started_at, completed_at, distance_m, duration_sec, avg_speed_kmh, max_speed_kmh, calories, route)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, ST_GeogFromText($11))
		RETURNING created_at
	`, r.ID, r.UserID, string(r.Status), r.StartedAt, r.CompletedAt, r.DistanceM, r.DurationSec,
		r.AverageSpeedKmh, r.MaxSpeedKmh, r.Calories, routeArg)
	if err := row.Scan(&r.CreatedAt); err != nil {
		return Summary{}, err
	}

	captures := make([]Capture, 0, len(analysis.Candidates))
	for _, cand := range analysis.Candidates {
		terr := byID[cand.TerritoryID]
		outcome, err := s.arbiter.Arbitrate(ctx, terr, userID, cand)
		if err != nil {
			return Summary{}, err
		}

		rec := Capture{
			ID:                   uuid.NewString(),
			RunID:                r.ID,
			TerritoryID:          cand.TerritoryID,
			UserID:               userID,
			CapturedAt:           cand.EnteredAt,
			TimeInTerritorySec:   cand.TimeInsideSec,
			DistanceInTerritoryM: cand.DistanceInsideM,
			PointsAwarded:        outcome.PointsAwarded,
			WasSuccessful:        outcome.WasSuccessful,
			Reason:               outcome.Reason,
		}
		if err := s.insertCapture(ctx, rec); err != nil {
			return Summary{}, err
		}
		captures = append(captures, rec)

		if outcome.WasSuccessful && s.hub != nil {
			payload, _ := json.Marshal(captureEvent{
				TerritoryID:   terr.ID,
				TerritoryName: terr.Name,
				District:      terr.District,
				UserID:        userID,
				Points:        outcome.PointsAwarded,
				CapturedAt:    rec.CapturedAt,
			})
			s.hub.Broadcast(terr.District, payload)
		}
	}

	return Summary{Run: r, Captures: captures}, nil
}

type captureEvent struct {
	TerritoryID   string    `json:"territory_id"`
	TerritoryName string    `json:"territory_name"`
	District      string    `json:"district"`
	UserID        string    `json:"user_id"`
	Points        int       `json:"points"`
	CapturedAt    time.Time `json:"captured_at"`
}

func (s *Service) insertCapture(ctx context.Context, rec Capture) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO territory_captures (id, run_id, territory_id, user_id, captured_at, time_in_territory_sec, distance_in_territory_m, points_awarded, was_successful, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING captured_at
	`, rec.ID, rec.RunID, rec.TerritoryID, rec.UserID, rec.CapturedAt, rec.TimeInTerritorySec,
		rec.DistanceInTerritoryM, rec.PointsAwarded, rec.WasSuccessful, string(rec.Reason))
	var at time.Time
	return row.Scan(&at)
}

const runColumns = `
	id, user_id, status, started_at, completed_at, distance_m, duration_sec,
	avg_speed_kmh, max_speed_kmh, calories, COALESCE(ST_AsText(route::geometry),''), created_at`

func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRow(ctx, `SELECT`+runColumns+` FROM user_runs WHERE id=$1`, id)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Run, error) {
	rows, err := s.db.Query(ctx, `SELECT`+runColumns+` FROM user_runs WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Captures returns the capture attempts recorded for a run.
func (s *Service) Captures(ctx context.Context, runID string) ([]Capture, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, run_id, territory_id, user_id, captured_at, time_in_territory_sec, distance_in_territory_m, points_awarded, was_successful, reason
		FROM territory_captures WHERE run_id=$1
		ORDER BY captured_at
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []Capture
	for rows.Next() {
		var c Capture
		var reason string
		if err := rows.Scan(&c.ID, &c.RunID, &c.TerritoryID, &c.UserID, &c.CapturedAt,
			&c.TimeInTerritorySec, &c.DistanceInTerritoryM, &c.PointsAwarded, &c.WasSuccessful, &reason); err != nil {
			return nil, err
		}
		c.Reason = capture.Reason(reason)
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	var status string
	if err := row.Scan(&r.ID, &r.UserID, &status, &r.StartedAt, &r.CompletedAt, &r.DistanceM,
		&r.DurationSec, &r.AverageSpeedKmh, &r.MaxSpeedKmh, &r.Calories, &r.RouteWKT, &r.CreatedAt); err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	return r, nil
}
