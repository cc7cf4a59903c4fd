package hypothesis

import (
	"container/list"
	"math"
	"sync"
)

// Evaluator maintains the active hypothesis set for one instrument and
// scores each hypothesis's per-tick log-likelihood against the current
// regime mixture (spec.md §4.4).
type Evaluator struct {
	mu sync.Mutex

	instrument string
	k          int

	hypotheses map[string]*Hypothesis
	lru        *list.List
	lruElem    map[string]*list.Element

	tickCounter int

	lastArgmax    int
	argmaxStreak  int
	haveLastArgmax bool

	// nullSigmaEWMA is an EWMA of squared realized returns, from which
	// regimeWeightedNullVariance derives the null hypothesis's σ (spec.md
	// §4.4: "σ set to the regime-weighted realized volatility").
	nullSigmaEWMA float64
}

// NewEvaluator creates an Evaluator for one instrument with K regimes.
func NewEvaluator(instrument string, k int) *Evaluator {
	return &Evaluator{
		instrument: instrument,
		k:          k,
		hypotheses: make(map[string]*Hypothesis),
		lru:        list.New(),
		lruElem:    make(map[string]*list.Element),
	}
}

// TickCounter returns the number of ticks processed so far, used to compute
// hypothesis age against horizon_ticks (spec.md §4.5).
func (e *Evaluator) TickCounter() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickCounter
}

// Add inserts a new hypothesis into the active set, evicting the
// least-recently-touched hypothesis if the set is at capacity (spec.md
// §4.4: "max M=32, LRU-evicted").
func (e *Evaluator) Add(h *Hypothesis) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(h)
}

func (e *Evaluator) addLocked(h *Hypothesis) {
	if len(e.hypotheses) >= MaxActive {
		oldest := e.lru.Back()
		if oldest != nil {
			id := oldest.Value.(string)
			e.lru.Remove(oldest)
			delete(e.lruElem, id)
			delete(e.hypotheses, id)
		}
	}
	e.hypotheses[h.ID] = h
	e.lruElem[h.ID] = e.lru.PushFront(h.ID)
}

func (e *Evaluator) touch(id string) {
	if elem, ok := e.lruElem[id]; ok {
		e.lru.MoveToFront(elem)
	}
}

// Active returns a snapshot of currently EVALUATING hypotheses.
func (e *Evaluator) Active() []*Hypothesis {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Hypothesis, 0, len(e.hypotheses))
	for _, h := range e.hypotheses {
		if h.Status == StatusEvaluating {
			out = append(out, h)
		}
	}
	return out
}

// Remove drops a hypothesis from the active set (used once it is EXECUTED,
// ABANDONED, or EXPIRED and no longer needs per-tick scoring).
func (e *Evaluator) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if elem, ok := e.lruElem[id]; ok {
		e.lru.Remove(elem)
		delete(e.lruElem, id)
	}
	delete(e.hypotheses, id)
}

// Scores are the per-hypothesis log-likelihoods plus the null hypothesis's
// log-likelihood for one tick (spec.md §4.4).
type Scores struct {
	PerHypothesis map[string]float64
	Null          float64
}

// Score computes ℓ_k(t) for every active hypothesis and ℓ_null(t) given the
// current regime posterior α_t and the realized return r̂_t over the
// hypothesis's horizon (or instantaneous return if horizon is 1). An
// optional crossReturn/crossWeight pair from an entangled instrument is
// blended in with bounded propagation depth 1 (spec.md §4.4).
func (e *Evaluator) Score(alpha []float64, realizedReturn float64, crossReturn, crossWeight float64) Scores {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCounter++

	blended := realizedReturn
	if crossWeight != 0 {
		blended = realizedReturn + crossWeight*crossReturn
	}

	scores := Scores{PerHypothesis: make(map[string]float64, len(e.hypotheses))}
	for id, h := range e.hypotheses {
		if h.Status != StatusEvaluating {
			continue
		}
		scores.PerHypothesis[id] = mixtureLogLikelihood(alpha, h.Direction, h.ExpectedReturnPerRegime, h.ExpectedVariancePerRegime, blended)
		e.touch(id)
	}

	e.nullSigmaEWMA = 0.94*e.nullSigmaEWMA + 0.06*realizedReturn*realizedReturn
	nullSigma2 := regimeWeightedNullVariance(alpha, e.nullSigmaEWMA)
	scores.Null = gaussianLogPDF(blended, 0, nullSigma2)

	return scores
}

// RegimeTransitioned updates the argmax-hold tracker and reports whether a
// regime transition event just fired: argmax α_t changed and has now held
// for >= RegimeHoldTicks ticks (spec.md §4.4).
func (e *Evaluator) RegimeTransitioned(alpha []float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	argmax := argmaxIndex(alpha)
	if !e.haveLastArgmax {
		e.lastArgmax = argmax
		e.haveLastArgmax = true
		e.argmaxStreak = 1
		return false
	}
	if argmax != e.lastArgmax {
		e.lastArgmax = argmax
		e.argmaxStreak = 1
		return false
	}
	e.argmaxStreak++
	return e.argmaxStreak == RegimeHoldTicks
}

func mixtureLogLikelihood(alpha []float64, direction int, muPerRegime, varPerRegime []float64, r float64) float64 {
	terms := make([]float64, len(alpha))
	for h := range alpha {
		mu := float64(direction) * muPerRegime[h]
		variance := varPerRegime[h]
		logN := gaussianLogPDF(r, mu, variance)
		logAlpha := math.Log(alpha[h] + 1e-300)
		terms[h] = logAlpha + logN
	}
	return logSumExp(terms)
}

func regimeWeightedNullVariance(alpha []float64, ewmaVar float64) float64 {
	if ewmaVar <= 0 {
		ewmaVar = 1e-8
	}
	// The null's variance is the same realized-vol estimate in every
	// regime, weighted by the posterior (spec.md §4.4); this keeps the
	// formula uniform across K while staying regime-aware through α_t.
	sum := 0.0
	for _, a := range alpha {
		sum += a * ewmaVar
	}
	return sum
}

func gaussianLogPDF(x, mu, variance float64) float64 {
	if variance <= 0 {
		variance = 1e-12
	}
	diff := x - mu
	return -0.5*math.Log(2*math.Pi*variance) - (diff*diff)/(2*variance)
}

func logSumExp(v []float64) float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	if math.IsInf(maxV, -1) {
		return maxV
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - maxV)
	}
	return maxV + math.Log(sum)
}

func argmaxIndex(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
