package replay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantregime/qrse/internal/ingest"
	"github.com/quantregime/qrse/internal/tick"
)

func TestWriterThenSource_RoundTripsTicks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []tick.Tick{
		{Instrument: "BTC/USD", Exchange: "kraken", ExchangeTime: base, MidPrice: 100, Bid: 99.5, Ask: 100.5, LastTradePrice: 100, LastTradeSize: 0.5},
		{Instrument: "BTC/USD", Exchange: "kraken", ExchangeTime: base.Add(time.Millisecond), MidPrice: 101, Bid: 100.5, Ask: 101.5, LastTradePrice: 101, LastTradeSize: 0.25},
	}
	for _, tk := range ticks {
		require.NoError(t, w.Write(tk))
	}

	src := NewSource("", 0)
	// Source reads from a file path; write the buffer to a temp file.
	f, err := createTemp(t, buf.Bytes())
	require.NoError(t, err)
	src.Path = f

	out := make(chan tick.Tick, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = src.Connect(ctx, out)
	require.True(t, errors.Is(err, ingest.ErrExhausted))
	require.Len(t, out, 2)

	got1 := <-out
	assert.Equal(t, "BTC/USD", got1.Instrument)
	assert.InDelta(t, 100, got1.MidPrice, 1e-9)
	assert.True(t, got1.ExchangeTime.Equal(base))

	got2 := <-out
	assert.InDelta(t, 101, got2.MidPrice, 1e-9)
}

func TestSource_RespectsContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	base := time.Now().UTC()
	for i := 0; i < 100; i++ {
		require.NoError(t, w.Write(tick.Tick{
			Instrument: "BTC/USD", Exchange: "kraken",
			ExchangeTime: base.Add(time.Duration(i) * time.Second),
			MidPrice:     100, Bid: 99, Ask: 101,
		}))
	}
	f, err := createTemp(t, buf.Bytes())
	require.NoError(t, err)

	src := NewSource(f, 1.0) // realtime pacing: a 100s log will not finish in 50ms
	out := make(chan tick.Tick, 200)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = src.Connect(ctx, out)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSupervisor_StopsOnExhaustedSource_DoesNotRetryForever(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(tick.Tick{Instrument: "BTC/USD", Exchange: "kraken", ExchangeTime: time.Now().UTC(), MidPrice: 100, Bid: 99, Ask: 101}))
	f, err := createTemp(t, buf.Bytes())
	require.NoError(t, err)

	src := NewSource(f, 0)
	sup := ingest.NewSupervisor("replay", "BTC/USD", src)
	out := make(chan tick.Tick, 4)

	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		sup.Run(ctx, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor kept retrying an exhausted replay source instead of stopping")
	}
	require.Len(t, out, 1)
}

func createTemp(t *testing.T, data []byte) (string, error) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "replay-*.jsonl")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), f.Close()
}
