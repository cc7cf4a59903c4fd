// Package replay drives the engine offline from a recorded tick log
// instead of a live venue WebSocket, for backtesting and reproduction of
// past signal decisions (spec.md §7 "replay support"). A replay log is
// line-delimited JSON, one tick per line, in the shape Writer emits.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quantregime/qrse/internal/ingest"
	"github.com/quantregime/qrse/internal/tick"
)

// wireTick is the on-disk JSON shape for one recorded tick.
type wireTick struct {
	Instrument     string   `json:"instrument"`
	Exchange       string   `json:"exchange"`
	ExchangeTime   string   `json:"exchange_time"`
	MidPrice       float64  `json:"mid_price"`
	Bid            float64  `json:"bid"`
	Ask            float64  `json:"ask"`
	BidSize        float64  `json:"bid_size"`
	AskSize        float64  `json:"ask_size"`
	LastTradePrice float64  `json:"last_trade_price"`
	LastTradeSize  float64  `json:"last_trade_size"`
	FundingRate    *float64 `json:"funding_rate,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func toWire(t tick.Tick) wireTick {
	return wireTick{
		Instrument:     t.Instrument,
		Exchange:       t.Exchange,
		ExchangeTime:   t.ExchangeTime.UTC().Format(timeLayout),
		MidPrice:       t.MidPrice,
		Bid:            t.Bid,
		Ask:            t.Ask,
		BidSize:        t.BidSize,
		AskSize:        t.AskSize,
		LastTradePrice: t.LastTradePrice,
		LastTradeSize:  t.LastTradeSize,
		FundingRate:    t.FundingRate,
	}
}

func fromWire(w wireTick, ingestedAt time.Time) (tick.Tick, error) {
	at, err := time.Parse(timeLayout, w.ExchangeTime)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("replay: parse exchange_time %q: %w", w.ExchangeTime, err)
	}
	return tick.Tick{
		Instrument:      w.Instrument,
		Exchange:        w.Exchange,
		MonotonicIngest: ingestedAt,
		ExchangeTime:    at,
		MidPrice:        w.MidPrice,
		Bid:             w.Bid,
		Ask:             w.Ask,
		BidSize:         w.BidSize,
		AskSize:         w.AskSize,
		LastTradePrice:  w.LastTradePrice,
		LastTradeSize:   w.LastTradeSize,
		FundingRate:     w.FundingRate,
	}, nil
}

// Writer records ticks to a line-delimited JSON log, the format Source
// reads back.
type Writer struct {
	enc *json.Encoder
}

// NewWriter wraps w in a tick-log Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write appends one tick to the log.
func (w *Writer) Write(t tick.Tick) error {
	if err := w.enc.Encode(toWire(t)); err != nil {
		return fmt.Errorf("replay: encode tick: %w", err)
	}
	return nil
}

// CreateLog opens (creating/truncating) path for recording.
func CreateLog(path string) (*Writer, *os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("replay: create log %s: %w", path, err)
	}
	return NewWriter(f), f, nil
}

// Source implements ingest.Source by replaying a recorded tick log instead
// of dialing a live venue. Speed scales the pacing derived from successive
// ticks' exchange-time deltas: 1.0 replays at the original cadence, values
// above 1 fast-forward, and 0 disables pacing entirely (as fast as the
// reader can decode).
type Source struct {
	Path  string
	Speed float64
}

// NewSource creates a Source reading path at the given speed multiplier.
func NewSource(path string, speed float64) *Source {
	return &Source{Path: path, Speed: speed}
}

// Connect streams every tick in the log to out, pacing playback per Speed,
// and returns ingest.ErrExhausted once the log is exhausted (replay is not a
// reconnecting venue, so the Supervisor backoff loop would otherwise spin
// forever trying to "reconnect" to a file that is simply done).
func (s *Source) Connect(ctx context.Context, out chan<- tick.Tick) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("replay: open log %s: %w", s.Path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var prevExchangeTime time.Time
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var w wireTick
		if err := json.Unmarshal(scanner.Bytes(), &w); err != nil {
			return fmt.Errorf("replay: decode line: %w", err)
		}
		t, err := fromWire(w, time.Now().UTC())
		if err != nil {
			return err
		}

		if s.Speed > 0 && !prevExchangeTime.IsZero() {
			gap := t.ExchangeTime.Sub(prevExchangeTime)
			if gap > 0 {
				select {
				case <-time.After(time.Duration(float64(gap) / s.Speed)):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		prevExchangeTime = t.ExchangeTime

		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay: scan log: %w", err)
	}
	return ingest.ErrExhausted
}
