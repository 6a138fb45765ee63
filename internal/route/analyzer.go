package route

import (
	"errors"

	"backend-runistanbul/internal/shared/geo"

	"gonum.org/v1/gonum/floats"
)

// ErrNonMonotonic rejects fix streams whose timestamps go backwards.
var ErrNonMonotonic = errors.New("fix timestamps must be non-decreasing")

// caloriesPerKm is a flat policy constant, not a physiological model.
const caloriesPerKm = 62.0

// Analysis is everything one pass over a fix stream produces: the
// whole-route statistics, the per-territory dwell candidates and the
// cleaned fixes themselves, so callers never re-clean.
type Analysis struct {
	Stats      Stats
	Candidates []Candidate
	Clean      []Fix
}

// Analyze cleans the raw fix stream, computes whole-route statistics and
// accumulates per-territory dwell distance and time. A route that retains
// fewer than two fixes yields zero stats and no candidates; that is a
// valid empty result, not an error.
func Analyze(fixes []Fix, territories []TerritoryShape, policy CleaningPolicy) (Analysis, error) {
	if err := checkMonotonic(fixes); err != nil {
		return Analysis{}, err
	}

	clean := Clean(fixes, policy)
	out := Analysis{Stats: computeStats(clean), Clean: clean}
	if len(clean) < 2 {
		return out, nil
	}

	line := make([]geo.Point, len(clean))
	for i, f := range clean {
		line[i] = f.point()
	}

	for _, terr := range territories {
		spans := terr.Boundary.Spans(line)
		if len(spans) == 0 {
			continue
		}
		cand := Candidate{
			TerritoryID: terr.ID,
			EnteredAt:   clean[spans[0].Start].Timestamp,
		}
		for _, span := range spans {
			for i := span.Start; i < span.End; i++ {
				cand.DistanceInsideM += geo.Haversine(line[i], line[i+1])
				cand.TimeInsideSec += clean[i+1].Timestamp.Sub(clean[i].Timestamp).Seconds()
			}
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out, nil
}

// Clean drops implausible fixes in a single forward pass: first anything
// with accuracy worse than the cutoff, then anything implying a speed
// outside [0, MaxSpeedMps] relative to the last *retained* fix, so one
// GPS jump cannot poison the checks that follow it.
func Clean(fixes []Fix, policy CleaningPolicy) []Fix {
	var out []Fix
	for _, f := range fixes {
		if policy.MaxAccuracyM > 0 && f.AccuracyM > policy.MaxAccuracyM {
			continue
		}
		if len(out) > 0 && policy.MaxSpeedMps > 0 {
			prev := out[len(out)-1]
			dist := geo.Haversine(prev.point(), f.point())
			dt := f.Timestamp.Sub(prev.Timestamp).Seconds()
			if dt <= 0 {
				if dist > 0 {
					continue
				}
			} else if dist/dt > policy.MaxSpeedMps {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// BoundingCircle returns the center of the route's bounding box and the
// great-circle radius covering all fixes, used to prefilter territories.
func BoundingCircle(fixes []Fix) (geo.Point, float64) {
	if len(fixes) == 0 {
		return geo.Point{}, 0
	}
	minLat, maxLat := fixes[0].Lat, fixes[0].Lat
	minLng, maxLng := fixes[0].Lng, fixes[0].Lng
	for _, f := range fixes[1:] {
		minLat = min(minLat, f.Lat)
		maxLat = max(maxLat, f.Lat)
		minLng = min(minLng, f.Lng)
		maxLng = max(maxLng, f.Lng)
	}
	center := geo.Point{Lat: (minLat + maxLat) / 2, Lng: (minLng + maxLng) / 2}
	radius := geo.Haversine(center, geo.Point{Lat: maxLat, Lng: maxLng})
	return center, radius
}

func computeStats(clean []Fix) Stats {
	stats := Stats{RetainedFixes: len(clean)}
	if len(clean) < 2 {
		return stats
	}

	speeds := make([]float64, 0, len(clean)-1)
	for i := 0; i < len(clean)-1; i++ {
		dist := geo.Haversine(clean[i].point(), clean[i+1].point())
		stats.DistanceM += dist
		if dt := clean[i+1].Timestamp.Sub(clean[i].Timestamp).Seconds(); dt > 0 {
			speeds = append(speeds, dist/dt)
		}
	}
	stats.DurationSec = clean[len(clean)-1].Timestamp.Sub(clean[0].Timestamp).Seconds()
	if stats.DurationSec > 0 {
		stats.AverageSpeedKmh = stats.DistanceM / stats.DurationSec * 3.6
	}
	if len(speeds) > 0 {
		stats.MaxSpeedKmh = floats.Max(speeds) * 3.6
	}
	stats.Calories = int(stats.DistanceM / 1000 * caloriesPerKm)
	return stats
}

func checkMonotonic(fixes []Fix) error {
	for i := 1; i < len(fixes); i++ {
		if fixes[i].Timestamp.Before(fixes[i-1].Timestamp) {
			return ErrNonMonotonic
		}
	}
	return nil
}
