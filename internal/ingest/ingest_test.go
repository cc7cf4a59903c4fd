package ingest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantregime/qrse/internal/tick"
)

func TestBackoff_BoundedByBaseAndCap(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt, rng)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, BackoffCap)
	}
}

func TestBackoff_GrowsWithAttemptOnAverage(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var sumEarly, sumLate time.Duration
	const trials = 200
	for i := 0; i < trials; i++ {
		sumEarly += Backoff(0, rng)
		sumLate += Backoff(6, rng)
	}
	assert.Greater(t, sumLate, sumEarly)
}

type stubSource struct {
	ticks   []tick.Tick
	failErr error
}

func (s *stubSource) Connect(ctx context.Context, out chan<- tick.Tick) error {
	for _, tk := range s.ticks {
		select {
		case out <- tk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.failErr != nil {
		return s.failErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_DeliversTicksFromSource(t *testing.T) {
	src := &stubSource{ticks: []tick.Tick{
		{Instrument: "BTCUSDT", Exchange: "kraken", MidPrice: 100, Bid: 99, Ask: 101, ExchangeTime: time.Now()},
	}}
	sup := NewSupervisor("kraken", "BTCUSDT", src)
	out := make(chan tick.Tick, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	sup.Run(ctx, out)

	require.Len(t, out, 1)
	got := <-out
	assert.Equal(t, "BTCUSDT", got.Instrument)
}

func TestSupervisor_RetriesAfterSourceFailure(t *testing.T) {
	src := &stubSource{failErr: errors.New("connection reset")}
	sup := NewSupervisor("kraken", "BTCUSDT", src)
	out := make(chan tick.Tick, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// Should not panic or block forever; returns once ctx is done.
	sup.Run(ctx, out)
}

func sampleTick(instrument, venue string, mid float64, at time.Time) tick.Tick {
	return tick.Tick{
		Instrument:      instrument,
		Exchange:        venue,
		MonotonicIngest: at,
		ExchangeTime:    at,
		MidPrice:        mid,
		Bid:             mid - 0.01,
		Ask:             mid + 0.01,
	}
}

func TestMerger_EmitsValidTicksInOrder(t *testing.T) {
	m := NewMerger("BTCUSDT")
	base := time.Now()

	m.Ingest(sampleTick("BTCUSDT", "kraken", 100, base), base)
	m.Ingest(sampleTick("BTCUSDT", "binance", 100.01, base.Add(1*time.Millisecond)), base)
	m.Flush()

	require.Len(t, m.Out, 2)
	first := <-m.Out
	second := <-m.Out
	assert.False(t, first.ExchangeTime.After(second.ExchangeTime))
}

func TestMerger_DropsStaleAndInvariantViolatingTicks(t *testing.T) {
	m := NewMerger("BTCUSDT")
	now := time.Now()

	stale := sampleTick("BTCUSDT", "kraken", 100, now.Add(-time.Hour))
	m.Ingest(stale, now)

	invalid := sampleTick("BTCUSDT", "kraken", 100, now)
	invalid.Bid = 200 // violates bid<=mid
	m.Ingest(invalid, now)

	m.Flush()
	assert.Equal(t, int64(2), m.Dropped())
	assert.Len(t, m.Out, 0)
}

func TestMerger_MarksSuspectOnCrossVenueDisagreement(t *testing.T) {
	m := NewMerger("BTCUSDT")
	base := time.Now()

	m.Ingest(sampleTick("BTCUSDT", "kraken", 100, base), base)
	m.Ingest(sampleTick("BTCUSDT", "binance", 100.2, base), base)
	// Outlier venue disagrees by >5% with the other two -> suspect, not dropped.
	m.Ingest(sampleTick("BTCUSDT", "coinbase", 200, base), base)
	m.Flush()

	require.Len(t, m.Out, 3)
	var sawSuspect bool
	for i := 0; i < 3; i++ {
		tk := <-m.Out
		if tk.Suspect {
			sawSuspect = true
		}
	}
	assert.True(t, sawSuspect)
	assert.Equal(t, int64(1), m.Suspect())
}

func TestMerger_DuplicateWithinWindowIsDropped(t *testing.T) {
	m := NewMerger("BTCUSDT")
	now := time.Now()

	t1 := sampleTick("BTCUSDT", "kraken", 100, now)
	t1.LastTradePrice = 100
	m.Ingest(t1, now)

	t2 := t1
	t2.ExchangeTime = now.Add(2 * time.Millisecond)
	m.Ingest(t2, now)

	m.Flush()
	assert.Equal(t, int64(1), m.Dropped())
}

func TestGapDetector_FiresOnGapAndRecover(t *testing.T) {
	g := NewGapDetector()
	var gapFired, recoverFired bool
	g.OnGap = func() { gapFired = true }
	g.OnRecover = func() { recoverFired = true }

	start := time.Now()
	g.Touch("kraken", start)
	g.Check(start.Add(GapThreshold + time.Second))
	assert.True(t, gapFired)
	assert.True(t, g.InGap())

	g.Touch("kraken", start.Add(GapThreshold+2*time.Second))
	assert.True(t, recoverFired)
	assert.False(t, g.InGap())
}

func TestGapDetector_NoGapWhileAnyVenueAlive(t *testing.T) {
	g := NewGapDetector()
	fired := false
	g.OnGap = func() { fired = true }
	now := time.Now()
	g.Touch("kraken", now)
	g.Touch("binance", now.Add(GapThreshold/2))
	g.Check(now.Add(GapThreshold + time.Second))
	assert.False(t, fired)
	assert.False(t, g.InGap())
}
