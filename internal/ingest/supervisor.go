package ingest

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantregime/qrse/internal/tick"
)

// HandshakeTimeout bounds a single connection attempt (spec.md §5).
const HandshakeTimeout = 10 * time.Second

// Supervisor maintains one venue-instrument connection with exponential
// backoff and a circuit breaker that trips on sustained connect failures,
// matching the teacher's gobreaker-based provider supervision pattern
// (spec.md §4.1 "connection supervisor with exponential backoff").
type Supervisor struct {
	Venue      string
	Instrument string
	Source     Source

	breaker *gobreaker.CircuitBreaker
	rng     *rand.Rand
}

// NewSupervisor creates a Supervisor for one venue-instrument pair.
func NewSupervisor(venue, instrument string, source Source) *Supervisor {
	settings := gobreaker.Settings{
		Name:        venue + ":" + instrument,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("venue", venue).Str("instrument", instrument).
				Str("from", from.String()).Str("to", to.String()).
				Msg("ingest: venue circuit breaker state change")
		},
	}
	return &Supervisor{
		Venue:      venue,
		Instrument: instrument,
		Source:     source,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run connects forever, retrying with full-jitter exponential backoff on
// every failure, until ctx is cancelled (spec.md §4.1 "retry forever") or
// the Source reports ErrExhausted.
// Connect itself is handed ctx directly, not a HandshakeTimeout-bounded
// child context — a live connection streams for as long as ctx allows;
// only the dial step within each Source implementation should be bounded
// by HandshakeTimeout.
func (s *Supervisor) Run(ctx context.Context, out chan<- tick.Tick) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.Source.Connect(ctx, out)
		})

		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrExhausted) {
			log.Info().Str("venue", s.Venue).Str("instrument", s.Instrument).
				Msg("ingest: source exhausted, stopping supervisor")
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("venue", s.Venue).Str("instrument", s.Instrument).
				Int("attempt", attempt).Msg("ingest: venue connection failed, backing off")
		}

		delay := Backoff(attempt, s.rng)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
