package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// WKT renders the polygon in well-known text, the form PostGIS accepts via
// ST_GeogFromText. Coordinates are lng/lat per the WKT convention.
func (p Polygon) WKT() string {
	var b strings.Builder
	b.WriteString("POLYGON((")
	for i, v := range p.ring {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCoord(&b, v)
	}
	b.WriteString("))")
	return b.String()
}

// LineStringWKT renders an ordered point sequence as a WKT LINESTRING.
func LineStringWKT(points []Point) string {
	var b strings.Builder
	b.WriteString("LINESTRING(")
	for i, v := range points {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCoord(&b, v)
	}
	b.WriteByte(')')
	return b.String()
}

// ParsePolygonWKT parses the single-ring POLYGON form produced by ST_AsText.
func ParsePolygonWKT(s string) (Polygon, error) {
	body := strings.TrimSpace(s)
	if !strings.HasPrefix(body, "POLYGON((") || !strings.HasSuffix(body, "))") {
		return Polygon{}, fmt.Errorf("parse polygon wkt %q: %w", s, ErrInvalidRing)
	}
	body = strings.TrimSuffix(strings.TrimPrefix(body, "POLYGON(("), "))")
	if i := strings.IndexByte(body, ')'); i >= 0 {
		// interior rings are not supported; territories are simple rings
		body = body[:i]
	}

	var ring []Point
	for _, pair := range strings.Split(body, ",") {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) != 2 {
			return Polygon{}, fmt.Errorf("parse polygon wkt %q: %w", s, ErrInvalidRing)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Polygon{}, fmt.Errorf("parse polygon wkt: %w", err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Polygon{}, fmt.Errorf("parse polygon wkt: %w", err)
		}
		ring = append(ring, Point{Lat: lat, Lng: lng})
	}
	return NewPolygon(ring)
}

func writeCoord(b *strings.Builder, v Point) {
	b.WriteString(strconv.FormatFloat(v.Lng, 'f', -1, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(v.Lat, 'f', -1, 64))
}
