// Package orchestrator wires one pipeline per instrument — Ingestor,
// Feature Builder, HMM Regime Engine, Hypothesis Evaluator, Decision
// Engine, and Position Sizer — through the bounded channels from spec.md
// §4.8, and fans every pipeline's EXECUTE signals into the shared
// Dispatcher (spec.md §5 "Instrument pipelines share only the
// Dispatcher's outbound queue").
package orchestrator

import (
	"time"

	"github.com/quantregime/qrse/internal/feature"
	"github.com/quantregime/qrse/internal/hmm"
	"github.com/quantregime/qrse/internal/hypothesis"
)

// tickContext carries one merged tick through the Feature stage.
type tickContext struct {
	obs     feature.Observation
	ok      bool
	suspect bool
}

// regimeContext carries one tick through the HMM stage.
type regimeContext struct {
	obs      feature.Observation
	filtered hmm.FilterResult
	unstable bool
	suspect  bool
}

// hypothesisScore pairs an active hypothesis with its per-tick log-likelihood.
type hypothesisScore struct {
	h   *hypothesis.Hypothesis
	llK float64
}

// evaluatorBatch carries one tick's hypothesis scores through the Decision
// stage.
type evaluatorBatch struct {
	alpha     []float64
	suspect   bool
	unstable  bool
	llNull    float64
	scores    []hypothesisScore
	tickNo    int
	decidedAt time.Time
}

// sizingRequest carries one EXECUTE winner through the Sizer stage.
type sizingRequest struct {
	h          *hypothesis.Hypothesis
	alpha      []float64
	suspect    bool
	decidedAt  time.Time
}
