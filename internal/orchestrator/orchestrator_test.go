package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantregime/qrse/internal/config"
	"github.com/quantregime/qrse/internal/dispatch"
	"github.com/quantregime/qrse/internal/hmm"
	"github.com/quantregime/qrse/internal/hypothesis"
	"github.com/quantregime/qrse/internal/ingest"
	"github.com/quantregime/qrse/internal/tick"
)

// tickerSource emits a steady stream of synthetic ticks until ctx is
// cancelled, standing in for a real venue in wiring tests.
type tickerSource struct {
	instrument string
	exchange   string
	price      float64
}

func (s *tickerSource) Connect(ctx context.Context, out chan<- tick.Tick) error {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			s.price += 0.01
			out <- tick.Tick{
				Instrument:      s.instrument,
				Exchange:        s.exchange,
				MonotonicIngest: now,
				ExchangeTime:    now,
				MidPrice:        s.price,
				Bid:             s.price - 0.01,
				Ask:             s.price + 0.01,
				LastTradePrice:  s.price,
				LastTradeSize:   1,
			}
		}
	}
}

// memorySink records every dispatched signal instead of writing to a file,
// so tests can assert on what the pipeline actually emitted.
type memorySink struct {
	mu      sync.Mutex
	signals []dispatch.Signal
}

func (m *memorySink) Write(_ context.Context, s dispatch.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals)
}

func testConfig(instruments ...string) config.Config {
	cfg := config.Default()
	cfg.Instruments = instruments
	cfg.Venues = []config.Venue{{Name: "kraken", Endpoint: "wss://ws.kraken.com", Priority: 0}}
	cfg.HMM.K = 2
	cfg.HMM.WindowT = 64
	cfg.HMM.UpdateEveryS = 5
	return cfg
}

func TestNew_BuildsOnePipelinePerInstrument(t *testing.T) {
	cfg := testConfig("BTC/USD", "ETH/USD")
	o := New(cfg, &memorySink{}, nil)
	assert.Len(t, o.pipelines, 2)
	assert.Contains(t, o.pipelines, "BTC/USD")
	assert.Contains(t, o.pipelines, "ETH/USD")
}

func TestBuildSources_SkipsUnknownVenuesWithoutFailing(t *testing.T) {
	venues := []config.Venue{
		{Name: "kraken", Endpoint: "wss://ws.kraken.com"},
		{Name: "some-unimplemented-venue", Endpoint: "wss://example.invalid"},
	}
	sources := buildSources("BTC/USD", venues)
	require.Len(t, sources, 1)
}

func TestKrakenPair_TranslatesBTCAlias(t *testing.T) {
	assert.Equal(t, "XBT/USD", krakenPair("BTC/USD"))
	assert.Equal(t, "ETH/USD", krakenPair("ETH/USD"))
}

func TestOrchestrator_StartStop_ShutsDownWithinGrace(t *testing.T) {
	cfg := testConfig("BTC/USD")
	sink := &memorySink{}
	o := New(cfg, sink, nil)

	// Replace the pipeline's venue sources with a fast synthetic ticker so
	// the pipeline produces signals without a network dependency.
	prior := hmm.NewWeaklyInformativePrior(cfg.HMM.K, 1.0, cfg.HMM.NuMin, cfg.HMM.NuMax)
	hub := hypothesis.NewEntanglementHub(cfg.EntanglementFor)
	src := &tickerSource{instrument: "BTC/USD", exchange: "kraken", price: 100}
	sup := ingest.NewSupervisor("kraken", "BTC/USD", src)
	o.pipelines["BTC/USD"] = NewPipeline("BTC/USD", cfg, prior, hub, o.dispatcher, o.metrics, []*ingest.Supervisor{sup})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	o.Start(ctx)
	time.Sleep(200 * time.Millisecond)

	health := o.Health()
	require.Len(t, health, 1)
	assert.Equal(t, "BTC/USD", health[0].Instrument)

	stopped := make(chan struct{})
	go func() {
		o.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(ShutdownGrace + time.Second):
		t.Fatal("Stop did not return within the shutdown grace period")
	}
}

func TestReloadConfig_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("BTC/USD")
	o := New(cfg, &memorySink{}, nil)

	bad := cfg
	bad.Instruments = nil
	err := o.ReloadConfig(bad)
	assert.Error(t, err)

	good := cfg
	good.Decision.PositionCap = 0.5
	require.NoError(t, o.ReloadConfig(good))
	assert.Equal(t, cfg.Version+1, o.cfg.Version)
}

func TestSanitizeInstrument_ReplacesSlashAndSpace(t *testing.T) {
	assert.Equal(t, "BTC_USD", sanitizeInstrument("BTC/USD"))
	assert.Equal(t, "BTC_USD_spot", sanitizeInstrument("BTC/USD spot"))
}
