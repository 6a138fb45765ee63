package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-runistanbul/internal/capture"
	"backend-runistanbul/internal/route"
	"backend-runistanbul/internal/shared/geo"
	"backend-runistanbul/internal/territory"

	"github.com/pashagolub/pgxmock/v3"
)

type stubCatalog struct {
	territories []territory.Territory
	err         error
}

func (c *stubCatalog) AvailableForCapture(context.Context, geo.Point, float64) ([]territory.Territory, error) {
	return c.territories, c.err
}

type stubArbiter struct {
	outcomes map[string]capture.Outcome
	calls    []string
}

func (a *stubArbiter) Arbitrate(_ context.Context, terr territory.Territory, _ string, _ route.Candidate) (capture.Outcome, error) {
	a.calls = append(a.calls, terr.ID)
	return a.outcomes[terr.ID], nil
}

type stubHub struct {
	keys     []string
	payloads [][]byte
}

func (h *stubHub) Broadcast(key string, payload []byte) {
	h.keys = append(h.keys, key)
	h.payloads = append(h.payloads, payload)
}

func testCleaning() route.CleaningPolicy {
	return route.CleaningPolicy{MaxAccuracyM: 50, MaxSpeedMps: 12.5}
}

func kadikoyTerritory() territory.Territory {
	return territory.Territory{
		ID:       "terr-1",
		Name:     "Kadıköy Center",
		District: "Kadıköy",
		Boundary: []geo.Point{
			{Lat: 40.98, Lng: 29.02},
			{Lat: 40.98, Lng: 29.04},
			{Lat: 41.00, Lng: 29.04},
			{Lat: 41.00, Lng: 29.02},
		},
		BasePoints:      120,
		DifficultyLevel: 2,
		IsActive:        true,
	}
}

var runStart = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

// fixAt places a fix inside Kadıköy Center at 15-second steps moving east.
func fixAt(step int) route.Fix {
	return route.Fix{
		Lat:       40.99,
		Lng:       29.025 + 0.001*float64(step),
		Timestamp: runStart.Add(time.Duration(step) * 15 * time.Second),
		AccuracyM: 10,
	}
}

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestSubmitCompletedRunCaptures(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO user_runs`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO territory_captures`).
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"captured_at"}).AddRow(runStart))

	arb := &stubArbiter{outcomes: map[string]capture.Outcome{
		"terr-1": {
			TerritoryID:   "terr-1",
			WasSuccessful: true,
			Reason:        capture.ReasonCaptured,
			PointsAwarded: 150,
			Ownership:     &territory.Ownership{ID: "own-1", TerritoryID: "terr-1", UserID: "user-1"},
		},
	}}
	hub := &stubHub{}
	svc := NewService(mock, &stubCatalog{territories: []territory.Territory{kadikoyTerritory()}},
		arb, hub, testCleaning(), 500)

	fixes := []route.Fix{fixAt(0), fixAt(1), fixAt(2), fixAt(3), fixAt(4)}
	summary, err := svc.SubmitCompletedRun(context.Background(), "user-1", fixes, runStart)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if summary.Run.Status != StatusCompleted || summary.Run.UserID != "user-1" {
		t.Fatalf("unexpected run %+v", summary.Run)
	}
	if summary.Run.DistanceM < 250 || summary.Run.DistanceM > 450 {
		t.Fatalf("unexpected distance %v", summary.Run.DistanceM)
	}
	if summary.Run.DurationSec != 60 {
		t.Fatalf("unexpected duration %v", summary.Run.DurationSec)
	}
	if summary.Run.RouteWKT == "" {
		t.Fatalf("expected route geometry")
	}

	if len(summary.Captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(summary.Captures))
	}
	rec := summary.Captures[0]
	if !rec.WasSuccessful || rec.PointsAwarded != 150 || rec.Reason != capture.ReasonCaptured {
		t.Fatalf("unexpected capture %+v", rec)
	}
	if rec.RunID != summary.Run.ID || rec.TerritoryID != "terr-1" {
		t.Fatalf("capture not linked to run: %+v", rec)
	}

	if len(hub.keys) != 1 || hub.keys[0] != "Kadıköy" {
		t.Fatalf("expected district broadcast, got %v", hub.keys)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmitCompletedRunRecordsRejection(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO user_runs`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO territory_captures`).
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"captured_at"}).AddRow(runStart))

	arb := &stubArbiter{outcomes: map[string]capture.Outcome{
		"terr-1": {TerritoryID: "terr-1", Reason: capture.ReasonBelowDistance},
	}}
	hub := &stubHub{}
	svc := NewService(mock, &stubCatalog{territories: []territory.Territory{kadikoyTerritory()}},
		arb, hub, testCleaning(), 500)

	summary, err := svc.SubmitCompletedRun(context.Background(), "user-1",
		[]route.Fix{fixAt(0), fixAt(1), fixAt(2)}, runStart)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(summary.Captures) != 1 {
		t.Fatalf("rejection must still be recorded, got %d captures", len(summary.Captures))
	}
	rec := summary.Captures[0]
	if rec.WasSuccessful || rec.PointsAwarded != 0 || rec.Reason != capture.ReasonBelowDistance {
		t.Fatalf("unexpected capture %+v", rec)
	}
	if len(hub.keys) != 0 {
		t.Fatalf("rejection must not broadcast")
	}
}

func TestSubmitCompletedRunRecordsLostRace(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO user_runs`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO territory_captures`).
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"captured_at"}).AddRow(runStart))

	arb := &stubArbiter{outcomes: map[string]capture.Outcome{
		"terr-1": {TerritoryID: "terr-1", Reason: capture.ReasonLostRace},
	}}
	hub := &stubHub{}
	svc := NewService(mock, &stubCatalog{territories: []territory.Territory{kadikoyTerritory()}},
		arb, hub, testCleaning(), 500)

	summary, err := svc.SubmitCompletedRun(context.Background(), "user-1",
		[]route.Fix{fixAt(0), fixAt(1), fixAt(2), fixAt(3)}, runStart)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(summary.Captures) != 1 {
		t.Fatalf("lost race must still be recorded, got %d captures", len(summary.Captures))
	}
	rec := summary.Captures[0]
	if rec.WasSuccessful || rec.PointsAwarded != 0 || rec.Reason != capture.ReasonLostRace {
		t.Fatalf("unexpected capture %+v", rec)
	}
	if len(hub.keys) != 0 {
		t.Fatalf("lost race must not broadcast")
	}
}

func TestSubmitCompletedRunOutsideTerritories(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO user_runs`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	arb := &stubArbiter{outcomes: map[string]capture.Outcome{}}
	far := kadikoyTerritory()
	far.Boundary = []geo.Point{
		{Lat: 41.10, Lng: 29.10},
		{Lat: 41.10, Lng: 29.12},
		{Lat: 41.12, Lng: 29.12},
		{Lat: 41.12, Lng: 29.10},
	}
	svc := NewService(mock, &stubCatalog{territories: []territory.Territory{far}},
		arb, nil, testCleaning(), 500)

	summary, err := svc.SubmitCompletedRun(context.Background(), "user-1",
		[]route.Fix{fixAt(0), fixAt(1), fixAt(2)}, runStart)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(summary.Captures) != 0 || len(arb.calls) != 0 {
		t.Fatalf("route outside territories must not reach the arbiter")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmitCompletedRunValidation(t *testing.T) {
	svc := NewService(newMock(t), &stubCatalog{}, &stubArbiter{}, nil, testCleaning(), 500)

	if _, err := svc.SubmitCompletedRun(context.Background(), "", []route.Fix{fixAt(0)}, runStart); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty user, got %v", err)
	}
	if _, err := svc.SubmitCompletedRun(context.Background(), "user-1", nil, runStart); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty fixes, got %v", err)
	}

	backwards := []route.Fix{fixAt(1), fixAt(0)}
	if _, err := svc.SubmitCompletedRun(context.Background(), "user-1", backwards, runStart); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for non-monotonic fixes, got %v", err)
	}
}

func TestSubmitCompletedRunDefaultsStartedAt(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO user_runs`).
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	svc := NewService(mock, &stubCatalog{}, &stubArbiter{}, nil, testCleaning(), 500)
	summary, err := svc.SubmitCompletedRun(context.Background(), "user-1",
		[]route.Fix{fixAt(0), fixAt(1)}, time.Time{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !summary.Run.StartedAt.Equal(runStart) {
		t.Fatalf("started_at not defaulted to first fix: %v", summary.Run.StartedAt)
	}
	if !summary.Run.CompletedAt.Equal(fixAt(1).Timestamp) {
		t.Fatalf("completed_at not last fix: %v", summary.Run.CompletedAt)
	}
}

func TestGetNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM user_runs WHERE id=\$1`).
		WithArgs("run-404").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "status", "started_at", "completed_at", "distance_m",
			"duration_sec", "avg_speed_kmh", "max_speed_kmh", "calories", "route", "created_at",
		}))

	svc := NewService(mock, &stubCatalog{}, &stubArbiter{}, nil, testCleaning(), 500)
	if _, err := svc.Get(context.Background(), "run-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	mock := newMock(t)
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "status", "started_at", "completed_at", "distance_m",
		"duration_sec", "avg_speed_kmh", "max_speed_kmh", "calories", "route", "created_at",
	}).
		AddRow("run-2", "user-1", "completed", runStart, runStart.Add(time.Hour), 5000.0, 1800.0, 10.0, 14.0, 310, "", time.Now()).
		AddRow("run-1", "user-1", "completed", runStart, runStart.Add(time.Hour), 3000.0, 1200.0, 9.0, 12.0, 186, "", time.Now().Add(-time.Hour))
	mock.ExpectQuery(`WHERE user_id=\$1 ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(rows)

	svc := NewService(mock, &stubCatalog{}, &stubArbiter{}, nil, testCleaning(), 500)
	runs, err := svc.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Fatalf("unexpected runs %v", runs)
	}
}

func TestCaptures(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM territory_captures WHERE run_id=\$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "run_id", "territory_id", "user_id", "captured_at", "time_in_territory_sec",
			"distance_in_territory_m", "points_awarded", "was_successful", "reason",
		}).
			AddRow("cap-1", "run-1", "terr-1", "user-1", runStart, 45.0, 320.0, 150, true, "captured").
			AddRow("cap-2", "run-1", "terr-2", "user-1", runStart, 12.0, 60.0, 0, false, "below_time"))

	svc := NewService(mock, &stubCatalog{}, &stubArbiter{}, nil, testCleaning(), 500)
	captures, err := svc.Captures(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("captures: %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("expected 2 captures, got %d", len(captures))
	}
	if captures[1].Reason != capture.ReasonBelowTime || captures[1].WasSuccessful {
		t.Fatalf("unexpected capture %+v", captures[1])
	}
}
