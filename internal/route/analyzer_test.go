package route

import (
	"math"
	"testing"
	"time"

	"backend-runistanbul/internal/shared/geo"
)

var testPolicy = CleaningPolicy{MaxAccuracyM: 50, MaxSpeedMps: 12.5}

func fixAt(lat, lng float64, sec int) Fix {
	base := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	return Fix{Lat: lat, Lng: lng, Timestamp: base.Add(time.Duration(sec) * time.Second)}
}

func testTerritory(t *testing.T) TerritoryShape {
	t.Helper()
	poly, err := geo.NewPolygon([]geo.Point{
		{Lat: 40.980, Lng: 29.020},
		{Lat: 40.980, Lng: 29.040},
		{Lat: 41.000, Lng: 29.040},
		{Lat: 41.000, Lng: 29.020},
	})
	if err != nil {
		t.Fatalf("test polygon: %v", err)
	}
	return TerritoryShape{ID: "terr-1", Boundary: poly}
}

func TestAnalyzeRejectsNonMonotonic(t *testing.T) {
	fixes := []Fix{fixAt(41, 29, 10), fixAt(41.0001, 29, 5)}
	if _, err := Analyze(fixes, nil, testPolicy); err != ErrNonMonotonic {
		t.Fatalf("expected ErrNonMonotonic, got %v", err)
	}
}

func TestAnalyzeReturnsCleanedFixes(t *testing.T) {
	fixes := []Fix{
		fixAt(41.0000, 29.0, 0),
		{Lat: 41.0001, Lng: 29.0, Timestamp: fixAt(0, 0, 10).Timestamp, AccuracyM: 120},
		fixAt(41.0002, 29.0, 20),
	}
	analysis, err := Analyze(fixes, nil, testPolicy)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(analysis.Clean) != 2 {
		t.Fatalf("expected 2 retained fixes, got %d", len(analysis.Clean))
	}
	if analysis.Clean[1].Lat != 41.0002 {
		t.Fatalf("wrong fix retained: %v", analysis.Clean[1])
	}
	if analysis.Stats.RetainedFixes != len(analysis.Clean) {
		t.Fatalf("stats disagree with returned fixes: %+v", analysis.Stats)
	}
}

func TestCleanDropsInaccurateFixes(t *testing.T) {
	fixes := []Fix{
		fixAt(41.0000, 29.0, 0),
		{Lat: 41.0001, Lng: 29.0, Timestamp: fixAt(0, 0, 10).Timestamp, AccuracyM: 120},
		fixAt(41.0002, 29.0, 20),
	}
	clean := Clean(fixes, testPolicy)
	if len(clean) != 2 {
		t.Fatalf("expected 2 retained fixes, got %d", len(clean))
	}
}

func TestCleanJumpComparesToLastRetained(t *testing.T) {
	// The teleported fix is dropped; the one after it is plausible
	// relative to the last retained fix and must survive.
	fixes := []Fix{
		fixAt(41.0000, 29.0, 0),
		fixAt(42.0000, 29.0, 10), // ~111 km in 10s
		fixAt(41.0005, 29.0, 20), // ~55 m from fix 0 over 20s
	}
	clean := Clean(fixes, testPolicy)
	if len(clean) != 2 {
		t.Fatalf("expected 2 retained fixes, got %d", len(clean))
	}
	if clean[1].Lat != 41.0005 {
		t.Fatalf("wrong fix retained: %v", clean[1])
	}
}

func TestCleanDropsZeroDtMovement(t *testing.T) {
	fixes := []Fix{
		fixAt(41.0000, 29.0, 0),
		fixAt(41.0100, 29.0, 0), // same timestamp, different place
		fixAt(41.0000, 29.0, 0), // same timestamp, same place: keep
	}
	clean := Clean(fixes, testPolicy)
	if len(clean) != 2 {
		t.Fatalf("expected 2 retained fixes, got %d", len(clean))
	}
}

func TestAnalyzeTooFewFixes(t *testing.T) {
	analysis, err := Analyze([]Fix{fixAt(41, 29, 0)}, []TerritoryShape{testTerritory(t)}, testPolicy)
	if err != nil {
		t.Fatalf("short route should not error: %v", err)
	}
	if analysis.Stats.DistanceM != 0 || analysis.Stats.DurationSec != 0 || len(analysis.Candidates) != 0 {
		t.Fatalf("expected empty result, got %+v", analysis)
	}
}

func TestAnalyzeStats(t *testing.T) {
	// Straight north, ~111 m per step, 30s apart.
	fixes := []Fix{
		fixAt(40.9900, 29.030, 0),
		fixAt(40.9910, 29.030, 30),
		fixAt(40.9920, 29.030, 60),
	}
	analysis, err := Analyze(fixes, nil, testPolicy)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	stats := analysis.Stats
	if stats.DistanceM < 200 || stats.DistanceM > 240 {
		t.Fatalf("unexpected distance %v", stats.DistanceM)
	}
	if stats.DurationSec != 60 {
		t.Fatalf("unexpected duration %v", stats.DurationSec)
	}
	wantAvg := stats.DistanceM / 60 * 3.6
	if math.Abs(stats.AverageSpeedKmh-wantAvg) > 1e-9 {
		t.Fatalf("unexpected avg speed %v", stats.AverageSpeedKmh)
	}
	if stats.MaxSpeedKmh < stats.AverageSpeedKmh-1 {
		t.Fatalf("max speed %v below average %v", stats.MaxSpeedKmh, stats.AverageSpeedKmh)
	}
	if stats.Calories != int(stats.DistanceM/1000*62) {
		t.Fatalf("unexpected calories %v", stats.Calories)
	}
}

func TestAnalyzeDwellCandidate(t *testing.T) {
	terr := testTerritory(t)
	// Starts outside, runs through the territory, exits.
	fixes := []Fix{
		fixAt(40.9900, 29.010, 0),   // outside
		fixAt(40.9900, 29.0250, 30), // inside
		fixAt(40.9900, 29.0300, 60), // inside
		fixAt(40.9900, 29.0350, 90), // inside
		fixAt(40.9900, 29.050, 120), // outside
	}
	analysis, err := Analyze(fixes, []TerritoryShape{terr}, testPolicy)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(analysis.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", analysis.Candidates)
	}
	c := analysis.Candidates[0]
	if c.TerritoryID != "terr-1" {
		t.Fatalf("wrong territory %q", c.TerritoryID)
	}
	// two in-territory segments of ~420 m each at this latitude
	if c.DistanceInsideM < 700 || c.DistanceInsideM > 1000 {
		t.Fatalf("unexpected dwell distance %v", c.DistanceInsideM)
	}
	if c.TimeInsideSec != 60 {
		t.Fatalf("unexpected dwell time %v", c.TimeInsideSec)
	}
	if !c.EnteredAt.Equal(fixes[1].Timestamp) {
		t.Fatalf("unexpected entry time %v", c.EnteredAt)
	}
}

func TestAnalyzeNoTouchNoCandidate(t *testing.T) {
	terr := testTerritory(t)
	fixes := []Fix{
		fixAt(41.0500, 29.010, 0),
		fixAt(41.0510, 29.010, 30),
	}
	analysis, err := Analyze(fixes, []TerritoryShape{terr}, testPolicy)
	if err != nil || len(analysis.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %v (%v)", analysis.Candidates, err)
	}
}

func TestBoundingCircle(t *testing.T) {
	center, radius := BoundingCircle([]Fix{
		fixAt(40.98, 29.02, 0),
		fixAt(41.00, 29.04, 60),
	})
	if math.Abs(center.Lat-40.99) > 1e-9 || math.Abs(center.Lng-29.03) > 1e-9 {
		t.Fatalf("unexpected center %v", center)
	}
	if radius < 1000 || radius > 3000 {
		t.Fatalf("unexpected radius %v", radius)
	}
	if _, r := BoundingCircle(nil); r != 0 {
		t.Fatalf("empty input should give zero radius")
	}
}
