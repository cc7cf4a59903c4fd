package tick

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseTick(now time.Time) Tick {
	return Tick{
		Instrument:     "BTCUSDT",
		Exchange:       "primary",
		ExchangeTime:   now,
		MidPrice:       100,
		Bid:            99.9,
		Ask:            100.1,
		LastTradePrice: 100,
	}
}

func TestValidateBasic_OK(t *testing.T) {
	now := time.Now()
	assert.NoError(t, ValidateBasic(baseTick(now), now))
}

func TestValidateBasic_Stale(t *testing.T) {
	now := time.Now()
	tk := baseTick(now.Add(-10 * time.Second))
	assert.ErrorIs(t, ValidateBasic(tk, now), ErrStale)
}

func TestValidateBasic_BadInvariant(t *testing.T) {
	now := time.Now()
	tk := baseTick(now)
	tk.Bid = 101
	assert.True(t, errors.Is(ValidateBasic(tk, now), ErrInvariant))

	tk2 := baseTick(now)
	tk2.MidPrice = 0
	assert.True(t, errors.Is(ValidateBasic(tk2, now), ErrInvariant))
}

func TestIsDuplicate(t *testing.T) {
	now := time.Now()
	a := baseTick(now)
	b := baseTick(now.Add(5 * time.Millisecond))
	assert.True(t, IsDuplicate(a, b))

	c := baseTick(now.Add(50 * time.Millisecond))
	assert.False(t, IsDuplicate(a, c))

	d := baseTick(now.Add(5 * time.Millisecond))
	d.LastTradePrice = 101
	assert.False(t, IsDuplicate(a, d))
}

func TestMarkSuspectOnDisagreement(t *testing.T) {
	now := time.Now()
	tk := baseTick(now)
	tk.MidPrice = 107
	MarkSuspectOnDisagreement(&tk, 100)
	assert.True(t, tk.Suspect)

	tk2 := baseTick(now)
	tk2.MidPrice = 101
	MarkSuspectOnDisagreement(&tk2, 100)
	assert.False(t, tk2.Suspect)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{1, 2, 3}))
	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, Median(nil))
}
