// Package tick defines the Tick data model and the validation rules from
// spec.md §4.1: staleness, invariant, duplicate, and cross-venue checks.
package tick

import (
	"fmt"
	"math"
	"time"
)

// Tick is a single venue quote/trade observation (spec.md §3).
type Tick struct {
	Instrument        string
	Exchange          string
	MonotonicIngest   time.Time
	ExchangeTime      time.Time
	MidPrice          float64
	Bid               float64
	Ask               float64
	BidSize           float64
	AskSize           float64
	LastTradePrice    float64
	LastTradeSize     float64
	FundingRate       *float64

	// Suspect is set by validation when a soft rule fails (cross-venue
	// disagreement) but the tick is still emitted (spec.md §4.1).
	Suspect bool
}

// StaleThreshold is the max allowed ingest/exchange-time skew before a tick
// is dropped as stale (spec.md §4.1).
const StaleThreshold = 5 * time.Second

// DuplicateWindow is the window within which an identical (exchange_time,
// last_trade_price) pair from the same instrument is treated as a duplicate.
const DuplicateWindow = 10 * time.Millisecond

// CrossVenueDisagreementPct is the relative deviation from the cross-venue
// median price above which a tick is marked suspect, not dropped.
const CrossVenueDisagreementPct = 0.05

// ErrStale, ErrInvariant, and ErrDuplicate classify a dropped tick and can
// be told apart with errors.Is.
var (
	ErrStale     = fmt.Errorf("tick stale: ingest_time too far from exchange_time")
	ErrInvariant = fmt.Errorf("tick violates bid<=mid<=ask or non-positive price")
	ErrDuplicate = fmt.Errorf("tick duplicate of a recent tick")
)

// ValidateBasic checks the hard drop rules that do not require cross-venue
// context: staleness and the bid/mid/ask price invariant.
func ValidateBasic(t Tick, now time.Time) error {
	if t.MidPrice <= 0 {
		return ErrInvariant
	}
	if !(t.Bid <= t.MidPrice && t.MidPrice <= t.Ask) {
		return ErrInvariant
	}
	skew := now.Sub(t.ExchangeTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > StaleThreshold {
		return ErrStale
	}
	return nil
}

// IsDuplicate reports whether candidate duplicates prev: same instrument,
// exchange_time and last_trade_price within DuplicateWindow.
func IsDuplicate(prev, candidate Tick) bool {
	if prev.Instrument != candidate.Instrument {
		return false
	}
	if prev.LastTradePrice != candidate.LastTradePrice {
		return false
	}
	delta := candidate.ExchangeTime.Sub(prev.ExchangeTime)
	if delta < 0 {
		delta = -delta
	}
	return delta <= DuplicateWindow
}

// Median returns the median of a set of venue prices for a single instant,
// used to evaluate cross-venue disagreement.
func Median(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MarkSuspectOnDisagreement sets Suspect when the tick's mid price deviates
// from the supplied cross-venue median by more than CrossVenueDisagreementPct.
// It never drops the tick (spec.md §4.1: "mark suspect, still emit").
func MarkSuspectOnDisagreement(t *Tick, median float64) {
	if median <= 0 {
		return
	}
	dev := math.Abs(t.MidPrice-median) / median
	if dev > CrossVenueDisagreementPct {
		t.Suspect = true
	}
}
