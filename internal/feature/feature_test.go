package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_FirstTickHasZeroReturn(t *testing.T) {
	b := NewBuilder()
	obs, ok := b.Update(time.Now(), 100, 10, 10)
	require.False(t, ok, "first tick still within warmup")
	assert.Equal(t, 0.0, obs.X[0])
	assert.Equal(t, 0.0, obs.X[3])
}

func TestBuilder_WarmupGatesDownstreamEmission(t *testing.T) {
	b := NewBuilder()
	now := time.Now()
	emitted := 0
	for i := 0; i < WarmupTicks+5; i++ {
		_, ok := b.Update(now.Add(time.Duration(i)*time.Second), 100+float64(i)*0.01, 10, 9)
		if ok {
			emitted++
		}
	}
	assert.Equal(t, 5, emitted)
	assert.Equal(t, WarmupTicks+5, b.Len(), "all ticks are logged even during warmup")
}

func TestBuilder_ResetReArmsWarmup(t *testing.T) {
	b := NewBuilder()
	now := time.Now()
	for i := 0; i < WarmupTicks+1; i++ {
		b.Update(now.Add(time.Duration(i)*time.Second), 100, 10, 10)
	}
	b.Reset()
	_, ok := b.Update(now, 100, 10, 10)
	assert.False(t, ok, "warmup restarts after a gap event")
}

func TestBuilder_OrderbookImbalanceSign(t *testing.T) {
	b := NewBuilder()
	obs, _ := b.Update(time.Now(), 100, 20, 10)
	assert.InDelta(t, 1.0/3.0, obs.X[3], 1e-9)
}

func TestBuilder_WindowReturnsMostRecentInOrder(t *testing.T) {
	b := NewBuilder()
	now := time.Now()
	for i := 0; i < 10; i++ {
		b.Update(now.Add(time.Duration(i)*time.Second), 100+float64(i), 10, 10)
	}
	w := b.Window(3)
	require.Len(t, w, 3)
	assert.True(t, w[0].Time.Before(w[1].Time))
	assert.True(t, w[1].Time.Before(w[2].Time))
}

func TestBuilder_WindowCappedByRingBufferCapacity(t *testing.T) {
	b := NewBuilder()
	now := time.Now()
	for i := 0; i < LogLength+10; i++ {
		b.Update(now.Add(time.Duration(i)*time.Second), 100, 10, 10)
	}
	assert.Equal(t, LogLength, b.Len())
	assert.Len(t, b.Window(LogLength+50), LogLength)
}
