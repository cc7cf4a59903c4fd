// Package feature implements the per-instrument Feature Builder (spec.md
// §4.2): EWMA-based observation and covariate vectors, and the bounded
// in-memory observation log.
package feature

import (
	"math"
	"time"
)

// ObservationDim is the dimensionality of the observation vector x_t.
const ObservationDim = 4

// CovariateDim is the dimensionality of the covariate vector z_t.
const CovariateDim = 3

// LogLength is the ring buffer length for the per-instrument observation log
// (spec.md §3 Lifecycles: "length 1000").
const LogLength = 1000

// WarmupTicks is the number of ticks required after a gap event before
// observations resume flowing downstream (spec.md §4.2).
const WarmupTicks = 32

// LambdaReturn and LambdaTrend are the EWMA decay factors for the return
// volatility estimator and the trend estimator respectively (spec.md §4.2).
const (
	LambdaReturn = 0.94
	LambdaTrend  = 0.90
	epsilon      = 1e-12
)

// Observation is one (x_t, z_t) pair timestamped by the tick's exchange_time.
type Observation struct {
	Time time.Time
	X    [ObservationDim]float64
	Z    [CovariateDim]float64
}

// Builder maintains the EWMA state for one instrument and produces
// observations tick by tick.
type Builder struct {
	initialized bool
	lastMid     float64
	ewmaVar     float64 // EWMA of squared log-return, drives log_volatility
	ewmaTrend   float64 // EWMA trend estimator of mid_price
	prevTrend   float64
	trendInit   bool

	warmupRemaining int

	log    []Observation
	logPos int
	logLen int
}

// NewBuilder creates a Feature Builder with an empty observation log and
// the WarmupTicks countdown already running, as after a Reset.
func NewBuilder() *Builder {
	return &Builder{log: make([]Observation, LogLength), warmupRemaining: WarmupTicks}
}

// Reset clears EWMA state and starts the warmup countdown following a gap
// event (spec.md §4.2): "it resets EWMA state and requires W_warmup=32 ticks
// before emitting observations downstream; those W_warmup observations are
// still logged".
func (b *Builder) Reset() {
	b.initialized = false
	b.ewmaVar = 0
	b.ewmaTrend = 0
	b.trendInit = false
	b.warmupRemaining = WarmupTicks
}

// Update folds one tick's mid price, bid size and ask size into the EWMA
// state and appends an Observation to the rolling log. ok is false while the
// warmup window (from construction or from the last Reset) has not elapsed, in which case the caller must not
// forward the observation downstream, but the log append already happened.
func (b *Builder) Update(at time.Time, mid, bidSize, askSize float64) (obs Observation, ok bool) {
	var logReturn float64
	if b.initialized && b.lastMid > 0 {
		logReturn = math.Log(mid / b.lastMid)
	}
	b.lastMid = mid
	b.initialized = true

	b.ewmaVar = LambdaReturn*b.ewmaVar + (1-LambdaReturn)*logReturn*logReturn
	logVol := math.Log(math.Sqrt(b.ewmaVar) + epsilon)

	b.ewmaTrend = LambdaTrend*b.ewmaTrend + (1-LambdaTrend)*mid
	var slope float64
	if b.trendInit {
		slope = b.ewmaTrend - b.prevTrend
	}
	b.prevTrend = b.ewmaTrend
	b.trendInit = true

	var imbalance float64
	if denom := bidSize + askSize; denom > 0 {
		imbalance = (bidSize - askSize) / denom
	}

	obs = Observation{
		Time: at,
		X:    [ObservationDim]float64{logReturn, logVol, slope, imbalance},
		Z:    [CovariateDim]float64{slope, logVol, imbalance},
	}

	b.append(obs)

	if b.warmupRemaining > 0 {
		b.warmupRemaining--
		return obs, false
	}
	return obs, true
}

func (b *Builder) append(obs Observation) {
	b.log[b.logPos] = obs
	b.logPos = (b.logPos + 1) % LogLength
	if b.logLen < LogLength {
		b.logLen++
	}
}

// Window returns the most recent n observations (oldest first), capped at
// the available log length. It is used by the HMM's forward-backward pass
// and the hypothesis generator's residual-window estimators.
func (b *Builder) Window(n int) []Observation {
	if n > b.logLen {
		n = b.logLen
	}
	out := make([]Observation, n)
	start := (b.logPos - n + LogLength) % LogLength
	for i := 0; i < n; i++ {
		out[i] = b.log[(start+i)%LogLength]
	}
	return out
}

// Len reports how many observations are currently retained in the log.
func (b *Builder) Len() int { return b.logLen }
