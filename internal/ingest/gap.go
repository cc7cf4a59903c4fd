package ingest

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// GapThreshold is how long every venue for an instrument must be silent
// before a gap event fires (spec.md §4.1 "all venues down > 10s").
const GapThreshold = 10 * time.Second

// GapDetector watches per-venue last-seen timestamps for one instrument and
// fires OnGap exactly once when every known venue has gone silent for more
// than GapThreshold, and fires OnRecover once a tick arrives again after a
// gap (spec.md §4.1: gap pauses the pipeline and resets feature EWMA state).
type GapDetector struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	inGap    bool

	OnGap     func()
	OnRecover func()
}

// NewGapDetector creates a GapDetector with no venues yet observed.
func NewGapDetector() *GapDetector {
	return &GapDetector{lastSeen: make(map[string]time.Time)}
}

// Touch records that venue produced a tick at at. Call this for every tick
// a Merger accepts, including ones later marked suspect.
func (g *GapDetector) Touch(venue string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSeen[venue] = at
	if g.inGap {
		g.inGap = false
		if g.OnRecover != nil {
			g.OnRecover()
		}
	}
}

// Check evaluates whether every observed venue has been silent for more
// than GapThreshold as of now, firing OnGap once on transition into the gap
// state. Intended to be called on a periodic ticker by the orchestrator.
func (g *GapDetector) Check(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.lastSeen) == 0 || g.inGap {
		return
	}
	for venue, last := range g.lastSeen {
		if now.Sub(last) <= GapThreshold {
			return // at least one venue still alive
		}
		_ = venue
	}
	g.inGap = true
	log.Warn().Msg("ingest: all venues silent beyond gap threshold, pausing pipeline")
	if g.OnGap != nil {
		g.OnGap()
	}
}

// InGap reports whether the detector currently considers the instrument's
// ingress to be gapped.
func (g *GapDetector) InGap() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inGap
}
