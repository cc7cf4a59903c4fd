package ingest

import (
	"context"
	"errors"

	"github.com/quantregime/qrse/internal/tick"
)

// Source abstracts one venue-instrument connection: Connect dials the
// venue and streams raw ticks until the context is cancelled or the
// connection drops. The WebSocket transport details live in the concrete
// venue adapters (e.g. KrakenSource); Source keeps the Supervisor decoupled
// from any one wire protocol (spec.md §6 "Exchange ingress").
type Source interface {
	// Connect dials the venue and blocks, sending ticks on out until ctx is
	// cancelled or an unrecoverable read error occurs, in which case it
	// returns that error so the Supervisor can back off and retry.
	Connect(ctx context.Context, out chan<- tick.Tick) error
}

// ErrExhausted is returned by a finite Source (e.g. a replay log) once it
// has no more data to deliver. Unlike any other Connect error, it tells the
// Supervisor to stop rather than back off and redial (spec.md §7 "replay
// support" — a replay log ending is not a connection failure).
var ErrExhausted = errors.New("ingest: source exhausted, no more data")
