package geo

import (
	"errors"
	"math"
)

const earthRadiusM = 6371000.0

// ErrInvalidRing is returned when a boundary ring cannot form a valid polygon.
var ErrInvalidRing = errors.New("invalid polygon ring")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Polygon is a closed, non-self-intersecting ring. The first and last
// vertices are equal.
type Polygon struct {
	ring []Point
}

// NewPolygon builds a polygon from a boundary ring. An open ring is closed
// automatically. Rings with fewer than 4 points after closing, or with
// crossing edges, are rejected.
func NewPolygon(points []Point) (Polygon, error) {
	if len(points) < 3 {
		return Polygon{}, ErrInvalidRing
	}
	ring := make([]Point, len(points))
	copy(ring, points)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	if len(ring) < 4 {
		return Polygon{}, ErrInvalidRing
	}
	if selfIntersects(ring) {
		return Polygon{}, ErrInvalidRing
	}
	return Polygon{ring: ring}, nil
}

// Ring returns the closed vertex sequence.
func (p Polygon) Ring() []Point {
	out := make([]Point, len(p.ring))
	copy(out, p.ring)
	return out
}

// Centroid is the arithmetic mean of the ring vertices, ignoring the
// duplicate closing vertex. Good enough for small territories.
func (p Polygon) Centroid() Point {
	n := len(p.ring) - 1
	var lat, lng float64
	for _, v := range p.ring[:n] {
		lat += v.Lat
		lng += v.Lng
	}
	return Point{Lat: lat / float64(n), Lng: lng / float64(n)}
}

// Contains reports whether pt lies inside the polygon. Points on the
// boundary count as inside.
func (p Polygon) Contains(pt Point) bool {
	inside := false
	for i := 0; i < len(p.ring)-1; i++ {
		a, b := p.ring[i], p.ring[i+1]
		if onSegment(a, b, pt) {
			return true
		}
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			x := a.Lng + (pt.Lat-a.Lat)*(b.Lng-a.Lng)/(b.Lat-a.Lat)
			if pt.Lng < x {
				inside = !inside
			}
		}
	}
	return inside
}

// IntersectsSegment reports whether the segment ab crosses any polygon edge
// or has an endpoint inside the polygon.
func (p Polygon) IntersectsSegment(a, b Point) bool {
	if p.Contains(a) || p.Contains(b) {
		return true
	}
	for i := 0; i < len(p.ring)-1; i++ {
		if segmentsIntersect(a, b, p.ring[i], p.ring[i+1]) {
			return true
		}
	}
	return false
}

// Span is a contiguous index range [Start,End] of polyline points lying
// inside a polygon.
type Span struct {
	Start int
	End   int
}

// Spans returns the contiguous runs of polyline points inside the polygon.
// A route that leaves and re-enters yields multiple spans.
func (p Polygon) Spans(line []Point) []Span {
	var spans []Span
	open := -1
	for i, pt := range line {
		if p.Contains(pt) {
			if open < 0 {
				open = i
			}
			continue
		}
		if open >= 0 {
			spans = append(spans, Span{Start: open, End: i - 1})
			open = -1
		}
	}
	if open >= 0 {
		spans = append(spans, Span{Start: open, End: len(line) - 1})
	}
	return spans
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng) * 1000
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM / 1000 * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

const eps = 1e-12

func cross(o, a, b Point) float64 {
	return (a.Lng-o.Lng)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lng-o.Lng)
}

func onSegment(a, b, pt Point) bool {
	if math.Abs(cross(a, b, pt)) > eps {
		return false
	}
	return pt.Lat >= math.Min(a.Lat, b.Lat)-eps && pt.Lat <= math.Max(a.Lat, b.Lat)+eps &&
		pt.Lng >= math.Min(a.Lng, b.Lng)-eps && pt.Lng <= math.Max(a.Lng, b.Lng)+eps
}

func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > eps && d2 < -eps) || (d1 < -eps && d2 > eps)) &&
		((d3 > eps && d4 < -eps) || (d3 < -eps && d4 > eps)) {
		return true
	}
	return onSegment(p3, p4, p1) || onSegment(p3, p4, p2) ||
		onSegment(p1, p2, p3) || onSegment(p1, p2, p4)
}

// selfIntersects checks every pair of non-adjacent edges for a crossing.
// Territory rings are small, so the quadratic scan is fine.
func selfIntersects(ring []Point) bool {
	n := len(ring) - 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}
