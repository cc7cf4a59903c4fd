// Package hypothesis implements the Hypothesis Evaluator (spec.md §4.4):
// the active hypothesis set, per-tick log-likelihood scoring against the
// current regime mixture, the cross-instrument entanglement matrix, and the
// hypothesis generator.
package hypothesis

import (
	"time"

	"github.com/google/uuid"
)

// Status is a hypothesis's lifecycle state (spec.md §3).
type Status string

const (
	StatusEvaluating Status = "EVALUATING"
	StatusExecuted   Status = "EXECUTED"
	StatusAbandoned  Status = "ABANDONED"
	StatusExpired    Status = "EXPIRED"
)

// MaxActive (M) is the maximum number of concurrently active hypotheses per
// instrument before LRU eviction (spec.md §4.4).
const MaxActive = 32

// RefreshPeriod is the periodic timer on which stale hypotheses are
// refreshed (spec.md §4.4).
const RefreshPeriod = 60 * time.Second

// RegimeHoldTicks is the number of consecutive ticks argmax α_t must hold
// its new value before a regime transition event fires (spec.md §4.4).
const RegimeHoldTicks = 3

// Hypothesis is a trading hypothesis under evaluation (spec.md §3).
type Hypothesis struct {
	ID                        string
	Instrument                string
	Direction                 int // +1, -1, or 0 for the null hypothesis
	ExpectedReturnPerRegime   []float64
	ExpectedVariancePerRegime []float64
	HorizonTicks              int
	CreatedAt                 time.Time
	CreatedTick               int
	Status                    Status

	lastTouched time.Time // creation time; LRU order is kept by the Evaluator's list
}

// NewHypothesis creates a fresh EVALUATING hypothesis with a random ID.
func NewHypothesis(instrument string, direction int, expReturn, expVariance []float64, horizonTicks, createdTick int, now time.Time) *Hypothesis {
	return &Hypothesis{
		ID:                        uuid.NewString(),
		Instrument:                instrument,
		Direction:                 direction,
		ExpectedReturnPerRegime:   expReturn,
		ExpectedVariancePerRegime: expVariance,
		HorizonTicks:              horizonTicks,
		CreatedAt:                 now,
		CreatedTick:               createdTick,
		Status:                    StatusEvaluating,
		lastTouched:               now,
	}
}

// AgeTicks returns the hypothesis's age measured in ticks, which is what
// horizon_ticks expiry compares against (spec.md §4.5), not wall-clock age.
func (h *Hypothesis) AgeTicks(nowTick int) int {
	return nowTick - h.CreatedTick
}
