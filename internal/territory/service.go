package territory

import (
	"context"
	"errors"
	"fmt"

	"backend-runistanbul/internal/db"
	"backend-runistanbul/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound   = errors.New("territory not found")
	ErrValidation = errors.New("invalid territory")

	// ErrOwnershipChanged means the territory changed hands between the
	// caller's read and its capture attempt.
	ErrOwnershipChanged = errors.New("territory ownership changed")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Create validates and stores a new territory. The boundary ring is
// auto-closed; a zero center defaults to the ring centroid.
func (s *Service) Create(ctx context.Context, input Territory) (Territory, error) {
	if input.Name == "" || input.District == "" {
		return Territory{}, fmt.Errorf("%w: name and district required", ErrValidation)
	}
	if input.Type == "" {
		input.Type = TypeRegular
	}
	if !input.Type.Valid() {
		return Territory{}, fmt.Errorf("%w: unknown type %q", ErrValidation, input.Type)
	}
	if input.DifficultyLevel == 0 {
		input.DifficultyLevel = 1
	}
	if input.DifficultyLevel < 1 || input.DifficultyLevel > 10 {
		return Territory{}, fmt.Errorf("%w: difficulty level out of range", ErrValidation)
	}
	poly, err := geo.NewPolygon(input.Boundary)
	if err != nil {
		return Territory{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	input.Boundary = poly.Ring()
	if input.Center == (geo.Point{}) {
		input.Center = poly.Centroid()
	}

	input.ID = uuid.NewString()
	input.IsActive = true
	row := s.db.QueryRow(ctx, `
		INSERT INTO territories (id, name, district, boundary, center, type, base_points, difficulty_level, is_active, description, image_url)
		VALUES ($1,$2,$3, ST_GeogFromText($4), ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography, $7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`, input.ID, input.Name, input.District, poly.WKT(), input.Center.Lng, input.Center.Lat,
		string(input.Type), input.BasePoints, input.DifficultyLevel, input.IsActive, input.Description, input.ImageURL)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Territory{}, err
	}
	return input, nil
}

const territoryColumns = `
	id, name, district, ST_AsText(boundary::geometry), ST_Y(center::geometry), ST_X(center::geometry),
	type, base_points, difficulty_level, is_active, COALESCE(description,''), COALESCE(image_url,''), created_at`

// Get loads a territory with its current ownership derived from history.
func (s *Service) Get(ctx context.Context, id string) (Territory, error) {
	row := s.db.QueryRow(ctx, `SELECT`+territoryColumns+` FROM territories WHERE id=$1`, id)
	terr, err := scanTerritory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Territory{}, ErrNotFound
		}
		return Territory{}, err
	}

	own, err := s.currentOwnership(ctx, id)
	if err != nil {
		return Territory{}, err
	}
	terr.CurrentOwnership = own
	return terr, nil
}

func (s *Service) ByDistrict(ctx context.Context, district string) ([]Territory, error) {
	rows, err := s.db.Query(ctx, `SELECT`+territoryColumns+` FROM territories WHERE district=$1 ORDER BY name`, district)
	if err != nil {
		return nil, err
	}
	return scanTerritories(rows)
}

// ContainingPoint finds the active territory whose boundary covers the
// point. Territories are assumed non-overlapping; should two overlap,
// the one with the smallest id wins.
func (s *Service) ContainingPoint(ctx context.Context, pt geo.Point) (Territory, error) {
	row := s.db.QueryRow(ctx, `
		SELECT`+territoryColumns+`
		FROM territories
		WHERE is_active AND ST_Covers(boundary, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography)
		ORDER BY id
		LIMIT 1
	`, pt.Lng, pt.Lat)
	terr, err := scanTerritory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Territory{}, ErrNotFound
	}
	return terr, err
}

// IntersectingRoute returns territories whose boundary intersects the
// given LINESTRING WKT.
func (s *Service) IntersectingRoute(ctx context.Context, lineWKT string) ([]Territory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+territoryColumns+`
		FROM territories
		WHERE ST_Intersects(boundary, ST_GeogFromText($1))
	`, lineWKT)
	if err != nil {
		return nil, err
	}
	return scanTerritories(rows)
}

// AvailableForCapture lists active territories whose center lies within
// maxDistanceM of the location, nearest first, each with its current
// ownership attached. Callers hand that ownership back to ApplyCapture
// as the observed state, which is what detects capture races.
func (s *Service) AvailableForCapture(ctx context.Context, loc geo.Point, maxDistanceM float64) ([]Territory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+territoryColumns+`
		FROM territories
		WHERE is_active AND ST_DWithin(center, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY ST_Distance(center, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography)
	`, loc.Lng, loc.Lat, maxDistanceM)
	if err != nil {
		return nil, err
	}
	list, err := scanTerritories(rows)
	if err != nil {
		return nil, err
	}
	for i := range list {
		own, err := s.currentOwnership(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].CurrentOwnership = own
	}
	return list, nil
}

// History returns the full ownership audit trail, oldest first.
func (s *Service) History(ctx context.Context, territoryID string) ([]Ownership, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, territory_id, user_id, captured_at, lost_at, points_earned, capture_method
		FROM territory_ownerships
		WHERE territory_id=$1
		ORDER BY captured_at
	`, territoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Ownership
	for rows.Next() {
		var o Ownership
		var method string
		if err := rows.Scan(&o.ID, &o.TerritoryID, &o.UserID, &o.CapturedAt, &o.LostAt, &o.PointsEarned, &method); err != nil {
			return nil, err
		}
		o.CaptureMethod = CaptureMethod(method)
		history = append(history, o)
	}
	return history, rows.Err()
}

// ApplyCapture is the single ownership mutation entry point. It runs in
// a transaction holding a row lock on the territory, so transitions for
// one territory commit strictly one at a time. observedOwnershipID is
// the active ownership the caller saw when it read the territory (empty
// for unowned); if someone else committed in between, the attempt fails
// with ErrOwnershipChanged instead of silently stacking a transfer.
// Timestamps are now(), the transaction time, so the close instant of
// the previous record equals the open instant of the new one. The
// current owner recapturing their own territory goes through the same
// close-and-reopen.
func (s *Service) ApplyCapture(ctx context.Context, territoryID, userID, observedOwnershipID string, pointsEarned int, method CaptureMethod) (Ownership, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Ownership{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM territories WHERE id=$1 FOR UPDATE`, territoryID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ownership{}, ErrNotFound
		}
		return Ownership{}, err
	}

	var activeID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM territory_ownerships
		WHERE territory_id=$1 AND lost_at IS NULL
	`, territoryID).Scan(&activeID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Ownership{}, err
	}
	if activeID != observedOwnershipID {
		return Ownership{}, ErrOwnershipChanged
	}

	if activeID != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE territory_ownerships SET lost_at=now()
			WHERE id=$1
		`, activeID); err != nil {
			return Ownership{}, err
		}
	}

	own := Ownership{
		ID:            uuid.NewString(),
		TerritoryID:   territoryID,
		UserID:        userID,
		PointsEarned:  pointsEarned,
		CaptureMethod: method,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO territory_ownerships (id, territory_id, user_id, captured_at, points_earned, capture_method)
		VALUES ($1,$2,$3, now(), $4,$5)
		RETURNING captured_at
	`, own.ID, own.TerritoryID, own.UserID, own.PointsEarned, string(own.CaptureMethod))
	if err := row.Scan(&own.CapturedAt); err != nil {
		return Ownership{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Ownership{}, err
	}
	return own, nil
}

func (s *Service) currentOwnership(ctx context.Context, territoryID string) (*Ownership, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, territory_id, user_id, captured_at, lost_at, points_earned, capture_method
		FROM territory_ownerships
		WHERE territory_id=$1 AND lost_at IS NULL
		ORDER BY captured_at DESC
		LIMIT 1
	`, territoryID)

	var o Ownership
	var method string
	if err := row.Scan(&o.ID, &o.TerritoryID, &o.UserID, &o.CapturedAt, &o.LostAt, &o.PointsEarned, &method); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	o.CaptureMethod = CaptureMethod(method)
	return &o, nil
}

func scanTerritory(row pgx.Row) (Territory, error) {
	var t Territory
	var boundaryWKT, typ string
	if err := row.Scan(&t.ID, &t.Name, &t.District, &boundaryWKT, &t.Center.Lat, &t.Center.Lng,
		&typ, &t.BasePoints, &t.DifficultyLevel, &t.IsActive, &t.Description, &t.ImageURL, &t.CreatedAt); err != nil {
		return Territory{}, err
	}
	t.Type = Type(typ)
	poly, err := geo.ParsePolygonWKT(boundaryWKT)
	if err != nil {
		return Territory{}, err
	}
	t.Boundary = poly.Ring()
	return t, nil
}

func scanTerritories(rows pgx.Rows) ([]Territory, error) {
	defer rows.Close()
	var out []Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
