package hypothesis

import (
	"sync"
	"time"
)

// EntanglementHub is the cross-instrument bridge referenced in spec.md
// §4.4: each instrument publishes its latest realized return after every
// tick; other instruments read it with tolerated staleness and a bounded
// propagation depth of 1 to prevent feedback loops (spec.md §5, §9).
type EntanglementHub struct {
	mu       sync.RWMutex
	snapshot map[string]returnSnapshot

	// weight(i,j) returns the configured entanglement weight E[i,j].
	weight func(i, j string) float64
}

type returnSnapshot struct {
	realizedReturn float64
	at             time.Time
}

// NewEntanglementHub creates a hub backed by a weight lookup function
// (typically config.Config.EntanglementFor).
func NewEntanglementHub(weight func(i, j string) float64) *EntanglementHub {
	return &EntanglementHub{
		snapshot: make(map[string]returnSnapshot),
		weight:   weight,
	}
}

// Publish records instrument's latest realized return for other pipelines
// to read. Propagation depth is bounded to 1 by construction: a reader only
// ever sees another instrument's own directly observed return, never a
// return that already includes someone else's cross-contribution.
func (h *EntanglementHub) Publish(instrument string, realizedReturn float64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot[instrument] = returnSnapshot{realizedReturn: realizedReturn, at: at}
}

// CrossContribution returns the weighted cross-return contribution other
// entangled instruments make to instrument's hypothesis log-likelihood
// update this tick, and the weight actually applied (0 if no entangled
// instrument has published yet). Staleness is tolerated: any published
// snapshot is used regardless of age (spec.md §5: "tolerates staleness").
func (h *EntanglementHub) CrossContribution(instrument string) (crossReturn, crossWeight float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var weightedSum, weightTotal float64
	for other, snap := range h.snapshot {
		if other == instrument {
			continue
		}
		w := h.weight(instrument, other)
		if w == 0 {
			continue
		}
		weightedSum += w * snap.realizedReturn
		weightTotal += absFloat(w)
	}
	if weightTotal == 0 {
		return 0, 0
	}
	return weightedSum / weightTotal, weightTotal
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
