package ingest

import (
	"math/rand"
	"time"
)

// BackoffBase and BackoffCap bound the connection supervisor's exponential
// backoff with full jitter (spec.md §4.1).
const (
	BackoffBase = 500 * time.Millisecond
	BackoffCap  = 30 * time.Second
)

// Backoff computes a full-jitter exponential backoff delay for the given
// retry attempt (0-indexed), per spec.md §4.1: "exponential backoff (base
// 500 ms, cap 30 s, full jitter)".
func Backoff(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	cap := float64(BackoffCap)
	base := float64(BackoffBase)
	maxDelay := base * float64(uint64(1)<<uint(min(attempt, 20)))
	if maxDelay > cap {
		maxDelay = cap
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(rng.Float64() * maxDelay)
}
