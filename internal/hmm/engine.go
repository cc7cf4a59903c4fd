package hmm

import (
	"math"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// InstabilityWindow (R) is the number of consecutive high-entropy ticks
// required to flag an instrument unstable (spec.md §4.3).
const InstabilityWindow = 30

// InstabilityEntropyFraction (0.9) scales log K to obtain the entropy
// threshold H_max above which a tick counts toward instability.
const InstabilityEntropyFraction = 0.9

// Engine owns one instrument's Θ and filtered posterior, exposing the
// atomic read/update contract from spec.md §5: "HMM parameters Θ are owned
// exclusively by C3's updater task; consumers... read via an atomic
// reference that swaps on a successful EM update."
type Engine struct {
	params atomic.Pointer[Params]

	alpha []float64

	ticksSinceUpdate int
	updateEvery      int
	windowT          int

	xsWindow []([]float64)
	zsWindow [][]float64

	highEntropyStreak int
	unstable          bool

	consecutiveFailures int

	instrument string
}

// NewEngine creates an Engine seeded with prior, ready to filter ticks for
// the named instrument.
func NewEngine(instrument string, prior *Params, updateEvery, windowT int) *Engine {
	e := &Engine{
		alpha:       append([]float64(nil), prior.Pi...),
		updateEvery: updateEvery,
		windowT:     windowT,
		instrument:  instrument,
	}
	e.params.Store(prior)
	return e
}

// Params returns the currently published Θ (read-only; callers must not
// mutate the returned value).
func (e *Engine) Params() *Params { return e.params.Load() }

// Alpha returns a copy of the current filtered posterior α_t.
func (e *Engine) Alpha() []float64 { return append([]float64(nil), e.alpha...) }

// Unstable reports whether the regime-instability detector is currently
// tripped for this instrument (spec.md §4.3).
func (e *Engine) Unstable() bool { return e.unstable }

// Step runs one filter step, maintains the instability detector, retains a
// rolling window of observations/covariates for the online updater, and
// triggers an EM update every updateEvery ticks, plus one out of cadence on
// the tick the instability detector trips (spec.md §4.3).
func (e *Engine) Step(x, z []float64) FilterResult {
	p := e.params.Load()
	result := p.Filter(e.alpha, x, z)
	e.alpha = result.Alpha

	e.xsWindow = append(e.xsWindow, append([]float64(nil), x...))
	e.zsWindow = append(e.zsWindow, append([]float64(nil), z...))
	if len(e.xsWindow) > e.windowT {
		e.xsWindow = e.xsWindow[len(e.xsWindow)-e.windowT:]
		e.zsWindow = e.zsWindow[len(e.zsWindow)-e.windowT:]
	}

	entropy := Entropy(e.alpha)
	hMax := InstabilityEntropyFraction * logK(p.K)
	if entropy > hMax {
		e.highEntropyStreak++
	} else {
		e.highEntropyStreak = 0
	}
	wasUnstable := e.unstable
	e.unstable = e.highEntropyStreak >= InstabilityWindow

	e.ticksSinceUpdate++
	if e.ticksSinceUpdate >= e.updateEvery && len(e.xsWindow) > 1 {
		e.ticksSinceUpdate = 0
		e.runOnlineUpdate()
	} else if e.unstable && !wasUnstable {
		e.TriggerUpdate()
	}

	return result
}

// TriggerUpdate forces an immediate online update, used when the
// regime-instability detector requests re-estimation out of cadence.
func (e *Engine) TriggerUpdate() {
	if len(e.xsWindow) > 1 {
		e.runOnlineUpdate()
	}
}

func (e *Engine) runOnlineUpdate() {
	prior := e.params.Load()
	smoothed := prior.ForwardBackward(e.xsWindow, e.zsWindow)
	priorLL := smoothed.ObservedLogLikelihood()

	next := EMUpdate(prior, e.xsWindow, e.zsWindow, smoothed)
	if next == prior {
		// EMUpdate already reverted internally (non-SPD result).
		e.recordFailure()
		return
	}

	nextSmoothed := next.ForwardBackward(e.xsWindow, e.zsWindow)
	nextLL := nextSmoothed.ObservedLogLikelihood()

	const llTolerance = 1e-3
	if isBadFloat(nextLL) || nextLL < priorLL-llTolerance {
		log.Warn().Str("instrument", e.instrument).
			Float64("prior_ll", priorLL).Float64("next_ll", nextLL).
			Msg("hmm: EM update regressed observed log-likelihood, reverting")
		e.recordFailure()
		return
	}

	e.params.Store(next)
	e.consecutiveFailures = 0
}

func (e *Engine) recordFailure() {
	e.consecutiveFailures++
}

// QuarantineFailureThreshold is the number of consecutive EM failures at
// which spec.md §7 requires quarantining the pipeline.
const QuarantineFailureThreshold = 3

// Quarantined reports whether QuarantineFailureThreshold consecutive EM
// failures have occurred.
func (e *Engine) Quarantined() bool { return e.consecutiveFailures >= QuarantineFailureThreshold }

// FailureCount returns the current consecutive-EM-failure count, for
// metrics reporting.
func (e *Engine) FailureCount() int { return e.consecutiveFailures }

func isBadFloat(v float64) bool {
	return v != v || v > 1e300 || v < -1e300
}

func logK(k int) float64 {
	if k < 1 {
		return 0
	}
	return math.Log(float64(k))
}
