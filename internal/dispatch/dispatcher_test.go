package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) Write(_ context.Context, s Signal) error {
	r.lines = append(r.lines, s.HypothesisID)
	return nil
}

func TestDispatcher_SequenceMonotonicPerInstrument(t *testing.T) {
	d := NewDispatcher(&recordingSink{})
	d.Enqueue("BTCUSDT", "h1", Signal{})
	d.Enqueue("BTCUSDT", "h2", Signal{})
	d.Enqueue("ETHUSDT", "h3", Signal{})

	require.Len(t, d.queue, 3)
	assert.Equal(t, int64(1), d.queue[0].SequenceNo)
	assert.Equal(t, int64(2), d.queue[1].SequenceNo)
	assert.Equal(t, int64(1), d.queue[2].SequenceNo, "different instrument resets sequence")
}

func TestDispatcher_AtMostOnceSignalPerHypothesis(t *testing.T) {
	d := NewDispatcher(&recordingSink{})
	first := d.Enqueue("BTCUSDT", "h1", Signal{})
	second := d.Enqueue("BTCUSDT", "h1", Signal{})
	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, d.queue, 1)
}

func TestDispatcher_Flush_WritesInOrderAndDrainsQueue(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)
	d.Enqueue("BTCUSDT", "h1", Signal{})
	d.Enqueue("BTCUSDT", "h2", Signal{})

	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, []string{"h1", "h2"}, sink.lines)
	assert.Equal(t, 0, d.QueueLen())
}

type flakySink struct {
	failures int
	calls    int
}

func (f *flakySink) Write(_ context.Context, s Signal) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient sink failure")
	}
	return nil
}

func TestDispatcher_RetriesOnSinkFailure(t *testing.T) {
	sink := &flakySink{failures: 2}
	d := NewDispatcher(sink)
	d.Enqueue("BTCUSDT", "h1", Signal{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))
	assert.Equal(t, 3, sink.calls)
}

func TestDispatcher_EvictsOldestLowPriorityAtCapacity(t *testing.T) {
	d := NewDispatcher(&recordingSink{})
	// fill to capacity with one LOW-priority (suspect) signal first.
	d.mu.Lock()
	for i := 0; i < QueueCap; i++ {
		suspect := i == 0
		d.queue = append(d.queue, Signal{HypothesisID: "seed", Suspect: suspect})
	}
	d.mu.Unlock()

	d.Enqueue("BTCUSDT", "new", Signal{})

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.LessOrEqual(t, len(d.queue), QueueCap+1)
	assert.Equal(t, int64(1), d.droppedLow)
}

func TestWriterSink_EmitsLineDelimitedJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, sink.Write(context.Background(), Signal{
		SequenceNo: 7, Instrument: "BTCUSDT", HypothesisID: "h1",
		Direction: 1, PositionFraction: 0.05, DecisionTime: now,
		RegimePosterior: []float64{0.9, 0.1},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var decoded wireSignal
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, int64(7), decoded.SequenceNo)
	assert.Equal(t, "BTCUSDT", decoded.Instrument)
}
