package territory

import (
	"time"

	"backend-runistanbul/internal/shared/geo"
)

// Type classifies a territory. The set is closed; Valid rejects anything
// else at the API boundary.
type Type string

const (
	TypeRegular  Type = "regular"
	TypeLandmark Type = "landmark"
	TypeSpecial  Type = "special"
)

func (t Type) Valid() bool {
	switch t {
	case TypeRegular, TypeLandmark, TypeSpecial:
		return true
	}
	return false
}

// CaptureMethod records how an ownership came to be.
type CaptureMethod string

const (
	MethodRun   CaptureMethod = "run"
	MethodAdmin CaptureMethod = "admin"
)

func (m CaptureMethod) Valid() bool {
	switch m {
	case MethodRun, MethodAdmin:
		return true
	}
	return false
}

type Territory struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	District        string      `json:"district"`
	Boundary        []geo.Point `json:"boundary"`
	Center          geo.Point   `json:"center"`
	Type            Type        `json:"type"`
	BasePoints      int         `json:"base_points"`
	DifficultyLevel int         `json:"difficulty_level"`
	IsActive        bool        `json:"is_active"`
	Description     string      `json:"description,omitempty"`
	ImageURL        string      `json:"image_url,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`

	// CurrentOwnership is derived from the history (the record with no
	// lost_at), never cached. Populated on single-territory reads.
	CurrentOwnership *Ownership `json:"current_ownership,omitempty"`
}

// Ownership is one entry in a territory's append-only ownership history.
// At most one record per territory has a nil LostAt.
type Ownership struct {
	ID            string        `json:"id"`
	TerritoryID   string        `json:"territory_id"`
	UserID        string        `json:"user_id"`
	CapturedAt    time.Time     `json:"captured_at"`
	LostAt        *time.Time    `json:"lost_at,omitempty"`
	PointsEarned  int           `json:"points_earned"`
	CaptureMethod CaptureMethod `json:"capture_method"`
}

func (o Ownership) Active() bool {
	return o.LostAt == nil
}
