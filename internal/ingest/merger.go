package ingest

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantregime/qrse/internal/tick"
)

// MergeQueueCap is the bounded capacity of the per-instrument merged tick
// queue (spec.md §4.8 "Ingestor -> Feature, cap 512").
const MergeQueueCap = 512

// CoalesceBucket is the width of the time bucket used to group ticks from
// different venues for cross-venue disagreement checking (spec.md §4.1).
const CoalesceBucket = 100 * time.Millisecond

// Merger fans in raw per-venue ticks for a single instrument, applies the
// hard/soft validation rules from package tick, and emits a cleaned,
// time-ordered stream on Out. One Merger exists per instrument pipeline
// (spec.md §4.1 "Exchange ingress" merged per instrument).
type Merger struct {
	Instrument string
	Out        chan tick.Tick

	lastByVenue map[string]tick.Tick
	bucketStart time.Time
	bucket      map[string]tick.Tick // venue -> latest tick in current bucket

	dropped  int64
	suspect  int64
}

// NewMerger creates a Merger for instrument, with Out buffered at MergeQueueCap.
func NewMerger(instrument string) *Merger {
	return &Merger{
		Instrument:  instrument,
		Out:         make(chan tick.Tick, MergeQueueCap),
		lastByVenue: make(map[string]tick.Tick),
		bucket:      make(map[string]tick.Tick),
	}
}

// Ingest validates and merges one raw venue tick. It applies hard drops
// (stale, invariant violation, duplicate) first, then buckets the tick by
// CoalesceBucket width to compute cross-venue disagreement before emitting
// on Out. If Out is full, the tick is dropped and logged rather than
// blocking the venue's read loop (spec.md §4.8 backpressure).
func (m *Merger) Ingest(t tick.Tick, now time.Time) {
	if err := tick.ValidateBasic(t, now); err != nil {
		m.dropped++
		log.Debug().Err(err).Str("instrument", m.Instrument).Str("venue", t.Exchange).
			Msg("ingest: dropped tick")
		return
	}
	if prev, ok := m.lastByVenue[t.Exchange]; ok && tick.IsDuplicate(prev, t) {
		m.dropped++
		return
	}
	m.lastByVenue[t.Exchange] = t

	if m.bucketStart.IsZero() || t.MonotonicIngest.Sub(m.bucketStart) >= CoalesceBucket {
		m.flushBucket()
		m.bucketStart = t.MonotonicIngest
		m.bucket = make(map[string]tick.Tick)
	}
	m.bucket[t.Exchange] = t
}

// flushBucket computes the cross-venue median over the current bucket's
// latest-per-venue prices, marks disagreeing ticks suspect, and emits every
// venue's latest tick in the bucket, ordered by ExchangeTime.
func (m *Merger) flushBucket() {
	if len(m.bucket) == 0 {
		return
	}
	prices := make([]float64, 0, len(m.bucket))
	for _, t := range m.bucket {
		prices = append(prices, t.MidPrice)
	}
	median := tick.Median(prices)

	ordered := make([]tick.Tick, 0, len(m.bucket))
	for _, t := range m.bucket {
		tick.MarkSuspectOnDisagreement(&t, median)
		if t.Suspect {
			m.suspect++
		}
		ordered = append(ordered, t)
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1].ExchangeTime.After(ordered[j].ExchangeTime); j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}

	for _, t := range ordered {
		select {
		case m.Out <- t:
		default:
			m.dropped++
			log.Warn().Str("instrument", m.Instrument).
				Msg("ingest: merged queue full, dropping tick")
		}
	}
}

// Flush forces emission of whatever partial bucket is pending, used when a
// venue goes quiet and the bucket would otherwise never close.
func (m *Merger) Flush() {
	m.flushBucket()
	m.bucket = make(map[string]tick.Tick)
}

// Dropped and Suspect report running counters for metrics wiring.
func (m *Merger) Dropped() int64 { return m.dropped }
func (m *Merger) Suspect() int64 { return m.suspect }
