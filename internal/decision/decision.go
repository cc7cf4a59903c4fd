// Package decision implements the SPRT-based Decision Engine (spec.md §4.5):
// log-odds belief accumulation against the null hypothesis and the
// EXECUTE/ABANDON/CONTINUE decision rule.
package decision

import "math"

// Outcome is the per-tick decision for one hypothesis (spec.md §4.5).
type Outcome string

const (
	OutcomeExecute  Outcome = "EXECUTE"
	OutcomeAbandon  Outcome = "ABANDON"
	OutcomeExpired  Outcome = "EXPIRED"
	OutcomeContinue Outcome = "CONTINUE"
)

// DefaultGamma is the default forgetting factor γ (spec.md §4.5).
const DefaultGamma = 0.99

// Thresholds holds the SPRT type-I/type-II error bounds translated into
// log-odds boundaries A (EXECUTE) and B (ABANDON) (spec.md §4.5).
type Thresholds struct {
	A float64 // log((1-beta)/alpha)
	B float64 // log(beta/(1-alpha))
}

// NewThresholds computes A and B from the configured error rates.
func NewThresholds(alpha, beta float64) Thresholds {
	return Thresholds{
		A: math.Log((1 - beta) / alpha),
		B: math.Log(beta / (1 - alpha)),
	}
}

// Engine accumulates log-odds per hypothesis for one instrument (spec.md
// §4.5).
type Engine struct {
	Gamma      float64
	Thresholds Thresholds

	logOdds map[string]float64
}

// NewEngine creates a Decision Engine with the given forgetting factor and
// SPRT thresholds.
func NewEngine(gamma float64, thresholds Thresholds) *Engine {
	if gamma < 0 {
		gamma = 0
	}
	if gamma > 1 {
		gamma = 1
	}
	return &Engine{
		Gamma:      gamma,
		Thresholds: thresholds,
		logOdds:    make(map[string]float64),
	}
}

// LogOdds returns the current log-odds for a hypothesis (0 if unseen).
func (e *Engine) LogOdds(hypothesisID string) float64 {
	return e.logOdds[hypothesisID]
}

// Forget drops a hypothesis's accumulated log-odds, called once it leaves
// the active set (EXECUTED/ABANDONED/EXPIRED).
func (e *Engine) Forget(hypothesisID string) {
	delete(e.logOdds, hypothesisID)
}

// Update folds one tick's evidence into hypothesisID's log-odds (spec.md
// §4.5): log_odds[k] <- gamma*log_odds[k] + (ll_k - ll_null). If frozen is
// true (suspect tick or an unstable instrument, spec.md §4.5 "Failure
// semantics"), the update is skipped but the caller may still evaluate aging
// against ageTicks/horizonTicks.
func (e *Engine) Update(hypothesisID string, llK, llNull float64, ageTicks, horizonTicks int, frozen bool) Outcome {
	if ageTicks > horizonTicks {
		e.Forget(hypothesisID)
		return OutcomeExpired
	}

	if !frozen {
		e.logOdds[hypothesisID] = e.Gamma*e.logOdds[hypothesisID] + (llK - llNull)
	}

	lo := e.logOdds[hypothesisID]
	switch {
	case lo >= e.Thresholds.A:
		return OutcomeExecute
	case lo <= e.Thresholds.B:
		e.Forget(hypothesisID)
		return OutcomeAbandon
	default:
		return OutcomeContinue
	}
}

// Candidate pairs a hypothesis ID with its post-update log-odds, used by
// ResolveTies.
type Candidate struct {
	HypothesisID string
	LogOdds      float64
}

// ResolveTies picks the single EXECUTE winner when multiple hypotheses cross
// A on the same tick: the one with the highest log-odds; the rest remain
// EVALUATING for the next tick (spec.md §4.5 "Tie-breaking").
func ResolveTies(candidates []Candidate) (winner Candidate, hasWinner bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.LogOdds > best.LogOdds {
			best = c
		}
	}
	return best, true
}
