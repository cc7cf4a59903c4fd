// Package dispatch implements the Signal Dispatcher (spec.md §4.7): strict
// per-instrument ordering, at-most-once emission, and resilient delivery to
// pluggable sinks.
package dispatch

import "time"

// Priority distinguishes signals that may be dropped under sustained
// backpressure (LOW, spec.md §4.7) from those that must always be retried
// (HIGH). A signal produced from a pipeline whose most recent tick was
// suspect is conservatively treated as LOW priority: it already carries
// reduced confidence information downstream, so it is the first thing
// shed when the sink cannot keep up.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityLow
)

// Signal is the outbound trading signal (spec.md §3, §6).
type Signal struct {
	SequenceNo       int64     `json:"sequence_no"`
	Instrument       string    `json:"instrument"`
	DecisionTime     time.Time `json:"decision_time"`
	HypothesisID     string    `json:"hypothesis_id"`
	Direction        int       `json:"direction"`
	PositionFraction float64   `json:"position_fraction"`
	Confidence       float64   `json:"confidence"`
	ExpectedReturn   float64   `json:"expected_return"`
	Variance         float64   `json:"variance"`
	RegimePosterior  []float64 `json:"regime_posterior"`
	Suspect          bool      `json:"suspect"`

	// EmitTime is assigned from a monotonic clock at dispatch time, not at
	// construction (spec.md §4.7).
	EmitTime time.Time `json:"-"`
}

// Priority reports the signal's shedding priority under backpressure.
func (s Signal) Priority() Priority {
	if s.Suspect {
		return PriorityLow
	}
	return PriorityHigh
}
