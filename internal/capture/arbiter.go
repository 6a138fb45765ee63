package capture

import (
	"context"
	"errors"
	"math"
	"sync"

	"backend-runistanbul/internal/config"
	"backend-runistanbul/internal/route"
	"backend-runistanbul/internal/territory"
)

// Reason explains a capture outcome. Rejections are normal results and
// never surface as errors.
type Reason string

const (
	ReasonCaptured      Reason = "captured"
	ReasonBelowDistance Reason = "below_distance"
	ReasonBelowTime     Reason = "below_time"
	ReasonInactive      Reason = "territory_inactive"
	ReasonLostRace      Reason = "lost_race"
)

// Policy holds the capture qualification thresholds.
type Policy struct {
	MinDistanceM float64
	MinTimeSec   float64
}

func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		MinDistanceM: cfg.CaptureMinDistanceM,
		MinTimeSec:   cfg.CaptureMinTimeSec,
	}
}

// Outcome is the arbiter's verdict on one (run, territory) touch.
type Outcome struct {
	TerritoryID   string
	WasSuccessful bool
	Reason        Reason
	PointsAwarded int
	Ownership     *territory.Ownership
}

// Store is the single mutation entry point the arbiter drives.
// observedOwnershipID is the active ownership seen when the territory
// was read, empty for unowned; the store fails the capture with
// territory.ErrOwnershipChanged when it no longer matches.
type Store interface {
	ApplyCapture(ctx context.Context, territoryID, userID, observedOwnershipID string, pointsEarned int, method territory.CaptureMethod) (territory.Ownership, error)
}

// Arbiter turns dwell candidates into capture outcomes and serializes
// ownership transitions per territory. The keyed mutex orders concurrent
// winners by commit order on this server; the store's row lock guards
// against other writers.
type Arbiter struct {
	store  Store
	policy Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewArbiter(store Store, policy Policy) *Arbiter {
	return &Arbiter{
		store:  store,
		policy: policy,
		locks:  map[string]*sync.Mutex{},
	}
}

// DifficultyMultiplier scales base points by territory difficulty:
// level 1 pays face value, each level above adds 25%.
func DifficultyMultiplier(level int) float64 {
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}
	return 1 + 0.25*float64(level-1)
}

// Decide applies the policy thresholds without touching the store.
func (a *Arbiter) Decide(terr territory.Territory, cand route.Candidate) (Reason, int) {
	switch {
	case !terr.IsActive:
		return ReasonInactive, 0
	case cand.DistanceInsideM < a.policy.MinDistanceM:
		return ReasonBelowDistance, 0
	case cand.TimeInsideSec < a.policy.MinTimeSec:
		return ReasonBelowTime, 0
	}
	points := int(math.Round(float64(terr.BasePoints) * DifficultyMultiplier(terr.DifficultyLevel)))
	return ReasonCaptured, points
}

// Arbitrate decides one candidate and, on success, commits the ownership
// transition under the territory's lock. The ownership carried on terr
// is the state observed at submission: when another capture committed in
// between, the attempt loses the race and yields a lost_race Outcome
// rather than a second winner. Every attempt yields an Outcome; only
// store failures are errors.
func (a *Arbiter) Arbitrate(ctx context.Context, terr territory.Territory, userID string, cand route.Candidate) (Outcome, error) {
	reason, points := a.Decide(terr, cand)
	out := Outcome{TerritoryID: terr.ID, Reason: reason}
	if reason != ReasonCaptured {
		return out, nil
	}

	observed := ""
	if terr.CurrentOwnership != nil {
		observed = terr.CurrentOwnership.ID
	}

	lock := a.lockFor(terr.ID)
	lock.Lock()
	defer lock.Unlock()

	own, err := a.store.ApplyCapture(ctx, terr.ID, userID, observed, points, territory.MethodRun)
	if errors.Is(err, territory.ErrOwnershipChanged) {
		out.Reason = ReasonLostRace
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	out.WasSuccessful = true
	out.PointsAwarded = points
	out.Ownership = &own
	return out, nil
}

func (a *Arbiter) lockFor(territoryID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[territoryID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[territoryID] = lock
	}
	return lock
}
