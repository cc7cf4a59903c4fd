package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantregime/qrse/internal/checkpoint"
	"github.com/quantregime/qrse/internal/config"
	"github.com/quantregime/qrse/internal/dispatch"
	"github.com/quantregime/qrse/internal/hmm"
	"github.com/quantregime/qrse/internal/hypothesis"
	"github.com/quantregime/qrse/internal/ingest"
	"github.com/quantregime/qrse/internal/metrics"
	"github.com/quantregime/qrse/internal/replay"
)

// ShutdownGrace bounds how long Stop waits for pipelines to drain and flush
// before returning anyway (spec.md §4.8 "5s total grace period").
const ShutdownGrace = 5 * time.Second

// CheckpointInterval governs periodic warm-restart checkpoint writes
// (spec.md §6 "Persisted state", §8 scenario S6).
const CheckpointInterval = time.Minute

// Orchestrator owns every instrument Pipeline plus the shared Dispatcher
// and EntanglementHub, matching spec.md §4.8's start/stop/reload/health
// lifecycle.
type Orchestrator struct {
	mu    sync.RWMutex
	cfg   config.Config
	store checkpoint.Store

	pipelines  map[string]*Pipeline
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Registry

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Orchestrator from cfg, creating one Pipeline per
// configured instrument and a shared Dispatcher writing to sink. Every
// pipeline reports into a single metrics.Registry, returned by Metrics().
// store may be nil, which disables checkpoint restore/persist entirely.
func New(cfg config.Config, sink dispatch.Sink, store checkpoint.Store) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		pipelines:  make(map[string]*Pipeline),
		dispatcher: dispatch.NewDispatcher(sink),
		metrics:    metrics.NewRegistry(),
	}
	hub := hypothesis.NewEntanglementHub(cfg.EntanglementFor)
	for _, instrument := range cfg.Instruments {
		prior := o.loadOrDefaultPrior(instrument, cfg)
		sources := buildSources(instrument, cfg.Venues)
		o.pipelines[instrument] = NewPipeline(instrument, cfg, prior, hub, o.dispatcher, o.metrics, sources)
	}
	return o
}

// Metrics returns the shared metrics registry every pipeline reports into.
func (o *Orchestrator) Metrics() *metrics.Registry { return o.metrics }

// BuildVenueSources exposes buildSources to callers outside this package
// (the record CLI subcommand reuses it to dial the same venue adapters a
// Pipeline would, without needing its own copy of the venue-name switch).
func BuildVenueSources(instrument string, venues []config.Venue) []*ingest.Supervisor {
	return buildSources(instrument, venues)
}

// loadOrDefaultPrior attempts to restore a checkpointed Θ for instrument,
// falling back to a weakly informative prior (spec.md §6, §8 scenario S6
// "on startup, if a checkpoint exists... restore"). The fallback prior uses
// unit-variance covariances; it is not fitted to early observations.
func (o *Orchestrator) loadOrDefaultPrior(instrument string, cfg config.Config) *hmm.Params {
	if o.store != nil {
		if p, err := o.store.Load(context.Background(), instrument); err == nil {
			log.Info().Str("instrument", instrument).Msg("orchestrator: restored HMM checkpoint")
			return p
		}
	}
	return hmm.NewWeaklyInformativePrior(cfg.HMM.K, 1.0, cfg.HMM.NuMin, cfg.HMM.NuMax)
}

// sanitizeInstrument replaces characters unsafe for a bare filename with
// underscores (checkpoint.Store has its own copy of this for its own
// backends; this one is used for other instrument-derived path/log
// sanitization local to the orchestrator).
func sanitizeInstrument(instrument string) string {
	out := make([]rune, 0, len(instrument))
	for _, r := range instrument {
		if r == '/' || r == ' ' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// buildSources constructs one venue Source per configured venue for
// instrument. Only Kraken is currently implemented as a concrete adapter
// (spec.md's other venues are wired the same way once their adapters
// exist); unrecognized venue names are logged and skipped rather than
// failing startup, since a single dead venue should not block the others
// (spec.md §4.1 "merged per instrument, any subset of venues may be down").
func buildSources(instrument string, venues []config.Venue) []*ingest.Supervisor {
	sources := make([]*ingest.Supervisor, 0, len(venues))
	for _, v := range venues {
		switch v.Name {
		case "kraken":
			src := ingest.NewKrakenSource(instrument, krakenPair(instrument), v.Endpoint)
			sources = append(sources, ingest.NewSupervisor(v.Name, instrument, src))
		case "replay":
			// Endpoint is a recorded tick-log path rather than a venue URL;
			// the replay CLI subcommand is the only caller that configures
			// this venue. A replay Source is just another ingest.Source, so
			// it rides the same Supervisor the live venues use, and signals
			// its own completion via ingest.ErrExhausted.
			src := replay.NewSource(v.Endpoint, v.ReplaySpeed)
			sources = append(sources, ingest.NewSupervisor(v.Name, instrument, src))
		default:
			log.Warn().Str("venue", v.Name).Str("instrument", instrument).
				Msg("orchestrator: no concrete adapter for venue, skipping")
		}
	}
	return sources
}

// krakenPair maps an internal instrument symbol like "BTC/USD" to Kraken's
// wire pair naming; Kraken's legacy "XBT" alias for Bitcoin is the one
// translation needed beyond passing the symbol through unchanged.
func krakenPair(instrument string) string {
	if instrument == "BTC/USD" || instrument == "BTCUSD" {
		return "XBT/USD"
	}
	return instrument
}

// Start launches every pipeline and the periodic checkpoint writer,
// returning once the background goroutine group has been launched (it does
// not block; callers use Stop to shut down, or poll Health()).
func (o *Orchestrator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)
		g, gctx := errgroup.WithContext(runCtx)
		o.mu.RLock()
		for _, p := range o.pipelines {
			pipeline := p
			g.Go(func() error { return pipeline.Run(gctx) })
		}
		o.mu.RUnlock()
		g.Go(func() error { return o.checkpointLoop(gctx) })
		if err := g.Wait(); err != nil && gctx.Err() == nil {
			log.Error().Err(err).Msg("orchestrator: pipeline group exited with error")
		}
	}()
}

// Stop cancels every pipeline and waits up to ShutdownGrace for them to
// drain their Dispatcher queues and exit (spec.md §4.8).
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	select {
	case <-o.done:
	case <-time.After(ShutdownGrace):
		log.Warn().Msg("orchestrator: shutdown grace period elapsed, forcing exit")
	}
	o.writeCheckpoints()
}

func (o *Orchestrator) checkpointLoop(ctx context.Context) error {
	if o.store == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(CheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.writeCheckpoints()
		}
	}
}

func (o *Orchestrator) writeCheckpoints() {
	if o.store == nil {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	for instrument, p := range o.pipelines {
		params, err := hmm.Restore(p.Checkpoint())
		if err != nil {
			log.Warn().Err(err).Str("instrument", instrument).Msg("orchestrator: checkpoint snapshot invalid, skipping")
			continue
		}
		if err := o.store.Save(context.Background(), instrument, params); err != nil {
			log.Warn().Err(err).Str("instrument", instrument).Msg("orchestrator: checkpoint write failed")
		}
	}
}

// ReloadConfig validates and swaps in a new configuration. Per-instrument
// pipelines are not hot-rewired (their HMM state would be lost): they are
// built once in New and keep the config they were built with, while the
// stored config and its Version are replaced. Invalid config is rejected
// rather than partially applied (spec.md §5).
func (o *Orchestrator) ReloadConfig(next config.Config) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	next.Version = o.cfg.Version + 1
	o.cfg = next
	return nil
}

// Health reports a coarse health snapshot for every instrument pipeline.
// Reason and RecoveryCondition are populated whenever Unstable or
// Quarantined is set, naming why the instrument tripped and what clears it
// (spec.md §7 "every quarantined instrument is reported in health() with
// the reason and the recovery condition").
type Health struct {
	Instrument        string
	Unstable          bool
	Quarantined       bool
	Reason            string
	RecoveryCondition string
	QueueDepth        int
}

// Health returns one Health entry per instrument.
func (o *Orchestrator) Health() []Health {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Health, 0, len(o.pipelines))
	for instrument, p := range o.pipelines {
		h := Health{
			Instrument:  instrument,
			Unstable:    p.Unstable(),
			Quarantined: p.Quarantined(),
			QueueDepth:  o.dispatcher.QueueLen(),
		}
		h.Reason, h.RecoveryCondition = healthExplanation(p)
		out = append(out, h)
	}
	return out
}

// healthExplanation names why an instrument tripped Unstable/Quarantined
// and what clears it. Quarantine takes priority when both are set, since
// it is the more severe condition (spec.md §7).
func healthExplanation(p *Pipeline) (reason, recovery string) {
	switch {
	case p.Quarantined():
		return fmt.Sprintf("%d consecutive EM updates failed (threshold %d)",
				p.FailureCount(), hmm.QuarantineFailureThreshold),
			"clears on the next EM update that is accepted (observed log-likelihood not lower by more than 1e-3), resetting the failure count to 0"
	case p.Unstable():
		return fmt.Sprintf("regime posterior entropy has stayed above %.0f%% of max for >= %d consecutive ticks",
				hmm.InstabilityEntropyFraction*100, hmm.InstabilityWindow),
			"clears as soon as one tick's posterior entropy drops back below the threshold"
	default:
		return "", ""
	}
}
