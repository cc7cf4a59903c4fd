package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantregime/qrse/internal/config"
	"github.com/quantregime/qrse/internal/decision"
	"github.com/quantregime/qrse/internal/dispatch"
	"github.com/quantregime/qrse/internal/feature"
	"github.com/quantregime/qrse/internal/hmm"
	"github.com/quantregime/qrse/internal/hypothesis"
	"github.com/quantregime/qrse/internal/ingest"
	"github.com/quantregime/qrse/internal/metrics"
	"github.com/quantregime/qrse/internal/position"
	"github.com/quantregime/qrse/internal/tick"
)

// GapCheckInterval is how often the Pipeline polls its GapDetector.
const GapCheckInterval = time.Second

// FlushInterval is how often the Dispatcher is asked to drain its queue
// (spec.md §4.8 "tick_budget_ms" governs per-tick latency, not flush
// cadence, so flushing runs on its own clock).
const FlushInterval = 50 * time.Millisecond

// RefreshCheckInterval governs how often stale hypotheses are re-estimated
// (spec.md §4.4 "periodic timer (60s)"); checking at this cadence is cheap
// since RefreshStale itself no-ops for hypotheses younger than RefreshPeriod.
const RefreshCheckInterval = 5 * time.Second

// Pipeline owns one instrument's full signal chain, from venue ingestion
// through Kelly sizing, publishing EXECUTE signals into a shared Dispatcher
// (spec.md §4.8).
type Pipeline struct {
	Instrument string
	cfg        config.Config

	merger      *ingest.Merger
	supervisors []*ingest.Supervisor
	gap         *ingest.GapDetector

	builder      *feature.Builder
	engine       *hmm.Engine
	evaluator    *hypothesis.Evaluator
	entanglement *hypothesis.EntanglementHub
	decider      *decision.Engine
	dispatcher   *dispatch.Dispatcher
	metrics      *metrics.Registry

	costBps, kappa, positionCap float64
	horizonDefault              int

	alphaHistory [][]float64
	returns      []float64
	windowT      int

	lastDropped, lastSuspect int64
	lastFailures             int

	featureCh   chan tickContext
	hmmCh       chan regimeContext
	evaluatorCh chan evaluatorBatch
	sizerCh     chan sizingRequest
}

// NewPipeline builds a Pipeline for instrument, wiring sources into a
// Merger/GapDetector pair, a fresh Feature Builder and HMM Engine, its own
// Evaluator and Decision Engine, and the shared Dispatcher. reg may be nil, in which case
// metrics reporting is skipped.
func NewPipeline(instrument string, cfg config.Config, prior *hmm.Params, entanglement *hypothesis.EntanglementHub, dispatcher *dispatch.Dispatcher, reg *metrics.Registry, sources []*ingest.Supervisor) *Pipeline {
	limits := cfg.Limits
	p := &Pipeline{
		Instrument:     instrument,
		cfg:            cfg,
		merger:         ingest.NewMerger(instrument),
		supervisors:    sources,
		gap:            ingest.NewGapDetector(),
		builder:        feature.NewBuilder(),
		engine:         hmm.NewEngine(instrument, prior, cfg.HMM.UpdateEveryS, cfg.HMM.WindowT),
		evaluator:      hypothesis.NewEvaluator(instrument, cfg.HMM.K),
		entanglement:   entanglement,
		decider:        decision.NewEngine(cfg.HMM.ForgettingGama, decision.NewThresholds(cfg.Decision.Alpha, cfg.Decision.Beta)),
		dispatcher:     dispatcher,
		metrics:        reg,
		costBps:        cfg.Decision.CostBps,
		kappa:          cfg.Decision.KellyMultiplier,
		positionCap:    cfg.Decision.PositionCap,
		horizonDefault: cfg.Decision.HorizonTicksDefault,
		windowT:        cfg.HMM.WindowT,
		featureCh:      make(chan tickContext, limits.FeatureQueueCap),
		hmmCh:          make(chan regimeContext, limits.HMMQueueCap),
		evaluatorCh:    make(chan evaluatorBatch, limits.EvaluatorQueueCap),
		sizerCh:        make(chan sizingRequest, limits.SizerQueueCap),
	}
	p.gap.OnGap = func() {
		log.Warn().Str("instrument", instrument).Msg("orchestrator: pausing pipeline, all venues gapped")
		p.builder.Reset()
	}
	return p
}

// Run drives every stage and every venue supervisor until ctx is cancelled,
// returning once all goroutines have exited (spec.md §4.8 "start/stop").
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	raw := make(chan tick.Tick, p.cfg.Limits.IngestQueueCap)
	for _, s := range p.supervisors {
		sup := s
		g.Go(func() error {
			sup.Run(ctx, raw)
			return nil
		})
	}

	g.Go(func() error { return p.ingestLoop(ctx, raw) })
	g.Go(func() error { return p.featureLoop(ctx) })
	g.Go(func() error { return p.hmmLoop(ctx) })
	g.Go(func() error { return p.evaluatorLoop(ctx) })
	g.Go(func() error { return p.sizerLoop(ctx) })
	g.Go(func() error { return p.flushLoop(ctx) })
	g.Go(func() error { return p.gapLoop(ctx) })

	return g.Wait()
}

// ingestLoop merges raw venue ticks and feeds the Feature stage.
func (p *Pipeline) ingestLoop(ctx context.Context, raw <-chan tick.Tick) error {
	bucketTicker := time.NewTicker(ingest.CoalesceBucket)
	defer bucketTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-raw:
			p.gap.Touch(t.Exchange, t.MonotonicIngest)
			p.merger.Ingest(t, time.Now().UTC())
		case <-bucketTicker.C:
			p.merger.Flush()
		case t := <-p.merger.Out:
			obs, ok := p.builder.Update(t.ExchangeTime, t.MidPrice, t.BidSize, t.AskSize)
			select {
			case p.featureCh <- tickContext{obs: obs, ok: ok, suspect: t.Suspect}:
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Str("instrument", p.Instrument).Msg("orchestrator: feature queue full, dropping observation")
			}
		}
	}
}

func (p *Pipeline) featureLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tc := <-p.featureCh:
			if !tc.ok {
				continue
			}
			result := p.engine.Step(tc.obs.X[:], tc.obs.Z[:])
			rc := regimeContext{obs: tc.obs, filtered: result, unstable: p.engine.Unstable(), suspect: tc.suspect}
			select {
			case p.hmmCh <- rc:
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Str("instrument", p.Instrument).Msg("orchestrator: hmm queue full, dropping tick")
			}
		}
	}
}

func (p *Pipeline) hmmLoop(ctx context.Context) error {
	refreshTicker := time.NewTicker(RefreshCheckInterval)
	defer refreshTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refreshTicker.C:
			hypothesis.RefreshStale(p.evaluator.Active(), p.cfg.HMM.K, p.alphaHistory, p.returns, time.Now().UTC())
		case rc := <-p.hmmCh:
			p.recordWindow(rc.filtered.Alpha, rc.obs.X[0])
			p.reportHMMMetrics(rc.filtered.Alpha)

			realizedReturn := rc.obs.X[0]
			crossReturn, crossWeight := p.entanglement.CrossContribution(p.Instrument)
			scores := p.evaluator.Score(rc.filtered.Alpha, realizedReturn, crossReturn, crossWeight)
			p.entanglement.Publish(p.Instrument, realizedReturn, rc.obs.Time)

			if p.evaluator.RegimeTransitioned(rc.filtered.Alpha) {
				bull, bear := hypothesis.GenerateOnTransition(p.Instrument, p.cfg.HMM.K, p.alphaHistory, p.returns, p.horizonDefault, p.evaluator.TickCounter(), rc.obs.Time)
				p.evaluator.Add(bull)
				p.evaluator.Add(bear)
			}

			active := p.evaluator.Active()
			batch := evaluatorBatch{
				alpha:     rc.filtered.Alpha,
				suspect:   rc.suspect,
				unstable:  rc.unstable,
				llNull:    scores.Null,
				scores:    make([]hypothesisScore, 0, len(active)),
				tickNo:    p.evaluator.TickCounter(),
				decidedAt: rc.obs.Time,
			}
			for _, h := range active {
				batch.scores = append(batch.scores, hypothesisScore{h: h, llK: scores.PerHypothesis[h.ID]})
			}

			select {
			case p.evaluatorCh <- batch:
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Str("instrument", p.Instrument).Msg("orchestrator: evaluator queue full, dropping batch")
			}
		}
	}
}

// reportHMMMetrics pushes the current filtered posterior and EM health onto
// the shared metrics registry, if one was configured.
func (p *Pipeline) reportHMMMetrics(alpha []float64) {
	if p.metrics == nil {
		return
	}
	maxComponent := 0.0
	for _, a := range alpha {
		if a > maxComponent {
			maxComponent = a
		}
	}
	p.metrics.SetRegimePosterior(p.Instrument, hmm.Entropy(alpha), maxComponent)
	p.metrics.SetQuarantined(p.Instrument, p.engine.Quarantined())
	if failures := p.engine.FailureCount(); failures > p.lastFailures {
		p.metrics.AddEMFailures(p.Instrument, failures-p.lastFailures)
	}
	p.lastFailures = p.engine.FailureCount()
}

func (p *Pipeline) recordWindow(alpha []float64, realizedReturn float64) {
	p.alphaHistory = append(p.alphaHistory, append([]float64(nil), alpha...))
	p.returns = append(p.returns, realizedReturn)
	if len(p.alphaHistory) > p.windowT {
		over := len(p.alphaHistory) - p.windowT
		p.alphaHistory = p.alphaHistory[over:]
		p.returns = p.returns[over:]
	}
}

func (p *Pipeline) evaluatorLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-p.evaluatorCh:
			var candidates []decision.Candidate
			byID := make(map[string]*hypothesis.Hypothesis, len(batch.scores))

			for _, s := range batch.scores {
				ageTicks := s.h.AgeTicks(batch.tickNo)
				frozen := batch.suspect || batch.unstable
				outcome := p.decider.Update(s.h.ID, s.llK, batch.llNull, ageTicks, s.h.HorizonTicks, frozen)
				switch outcome {
				case decision.OutcomeExecute:
					candidates = append(candidates, decision.Candidate{HypothesisID: s.h.ID, LogOdds: p.decider.LogOdds(s.h.ID)})
					byID[s.h.ID] = s.h
				case decision.OutcomeAbandon, decision.OutcomeExpired:
					p.evaluator.Remove(s.h.ID)
				}
			}

			winner, hasWinner := decision.ResolveTies(candidates)
			if !hasWinner {
				continue
			}
			h := byID[winner.HypothesisID]
			p.evaluator.Remove(h.ID)
			p.decider.Forget(h.ID)

			req := sizingRequest{h: h, alpha: batch.alpha, suspect: batch.suspect, decidedAt: batch.decidedAt}
			select {
			case p.sizerCh <- req:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (p *Pipeline) sizerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-p.sizerCh:
			p.sizeAndDispatch(req)
		}
	}
}

func (p *Pipeline) sizeAndDispatch(req sizingRequest) {
	sizing := position.Size(req.alpha, req.h.Direction, req.h.ExpectedReturnPerRegime, req.h.ExpectedVariancePerRegime, p.costBps, p.kappa, p.positionCap)
	if sizing.Suppressed {
		return
	}
	signal := dispatch.Signal{
		DecisionTime:     req.decidedAt,
		Direction:        req.h.Direction,
		PositionFraction: sizing.PositionFraction,
		Confidence:       sizing.Confidence,
		ExpectedReturn:   sizing.ExpectedReturn,
		Variance:         sizing.Variance,
		RegimePosterior:  req.alpha,
		Suspect:          req.suspect,
	}
	queued := p.dispatcher.Enqueue(p.Instrument, req.h.ID, signal)
	if p.metrics == nil {
		return
	}
	if queued {
		p.metrics.RecordSignalEmitted(p.Instrument, req.h.Direction)
	} else {
		p.metrics.RecordSignalDeduplicated(p.Instrument)
	}
}

func (p *Pipeline) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.dispatcher.Flush(context.Background())
			return nil
		case <-ticker.C:
			if err := p.dispatcher.Flush(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("instrument", p.Instrument).Msg("orchestrator: dispatcher flush error")
			}
		}
	}
}

func (p *Pipeline) gapLoop(ctx context.Context) error {
	ticker := time.NewTicker(GapCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.gap.Check(time.Now().UTC())
			p.reportIngestMetrics()
		}
	}
}

// reportIngestMetrics polls the Merger's running drop/suspect counters and
// reports the deltas since the last poll, if a metrics registry was
// configured, and updates the shared Dispatcher's queue-depth gauge.
func (p *Pipeline) reportIngestMetrics() {
	if p.metrics == nil {
		return
	}
	dropped := p.merger.Dropped()
	if dropped > p.lastDropped {
		p.metrics.AddDropped(p.Instrument, "merger", dropped-p.lastDropped)
	}
	p.lastDropped = dropped

	suspect := p.merger.Suspect()
	if suspect > p.lastSuspect {
		p.metrics.AddSuspect(p.Instrument, suspect-p.lastSuspect)
	}
	p.lastSuspect = suspect

	p.metrics.SetDispatchQueueDepth(p.Instrument, p.dispatcher.QueueLen())
}

// Checkpoint captures the pipeline's current HMM parameters for warm
// restart (spec.md §4.3, §8 scenario S6).
func (p *Pipeline) Checkpoint() hmm.Snapshot {
	return p.engine.Params().Checkpoint()
}

// Unstable reports whether this instrument's regime-instability detector is
// currently tripped (spec.md §4.3, §7).
func (p *Pipeline) Unstable() bool { return p.engine.Unstable() }

// Quarantined reports whether this instrument's HMM updater has failed
// three consecutive online updates (spec.md §7).
func (p *Pipeline) Quarantined() bool { return p.engine.Quarantined() }

// FailureCount returns the current consecutive-EM-failure count, surfaced
// in Health's Reason string (spec.md §7).
func (p *Pipeline) FailureCount() int { return p.engine.FailureCount() }
