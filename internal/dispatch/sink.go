package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shopspring/decimal"
)

// Sink delivers a serialized Signal to an external transport. The reference
// transport is line-delimited JSON (spec.md §6); other transports (a
// socket, a message queue) can implement the same interface.
type Sink interface {
	Write(ctx context.Context, s Signal) error
}

// wireSignal is the exact outbound JSON shape from spec.md §6.
// PositionFraction and ExpectedReturn cross the wire as decimal.Decimal
// rather than float64: these are the two fields a downstream consumer
// might re-parse and compare or sum exactly (e.g. position accounting),
// so they're formatted through decimal.NewFromFloat at this boundary only,
// the same way the teacher formats prices via decimal.NewFromFloat before
// they leave the process. Confidence and Variance are read-only
// diagnostics and stay plain float64.
type wireSignal struct {
	SequenceNo       int64           `json:"sequence_no"`
	Instrument       string          `json:"instrument"`
	DecisionTime     string          `json:"decision_time"`
	HypothesisID     string          `json:"hypothesis_id"`
	Direction        int             `json:"direction"`
	PositionFraction decimal.Decimal `json:"position_fraction"`
	Confidence       float64         `json:"confidence"`
	ExpectedReturn   decimal.Decimal `json:"expected_return"`
	Variance         float64         `json:"variance"`
	RegimePosterior  []float64       `json:"regime_posterior"`
	Suspect          bool            `json:"suspect"`
}

func toWire(s Signal) wireSignal {
	return wireSignal{
		SequenceNo:       s.SequenceNo,
		Instrument:       s.Instrument,
		DecisionTime:     s.DecisionTime.UTC().Format("2006-01-02T15:04:05.000Z"),
		HypothesisID:     s.HypothesisID,
		Direction:        s.Direction,
		PositionFraction: decimal.NewFromFloat(s.PositionFraction),
		Confidence:       s.Confidence,
		ExpectedReturn:   decimal.NewFromFloat(s.ExpectedReturn),
		Variance:         s.Variance,
		RegimePosterior:  s.RegimePosterior,
		Suspect:          s.Suspect,
	}
}

// WriterSink writes one line-delimited JSON signal per line to an
// io.Writer; used for both the stdout reference sink and file sinks.
type WriterSink struct {
	mu sync.Mutex
	w  *bufio.Writer
	enc *json.Encoder
}

// NewWriterSink wraps w in a buffered, newline-delimited JSON encoder.
func NewWriterSink(w io.Writer) *WriterSink {
	bw := bufio.NewWriter(w)
	return &WriterSink{w: bw, enc: json.NewEncoder(bw)}
}

// Write serializes and flushes one signal.
func (s *WriterSink) Write(_ context.Context, sig Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(toWire(sig)); err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return s.w.Flush()
}

// StdoutSink is the reference sink: line-delimited JSON on stdout.
func StdoutSink() *WriterSink { return NewWriterSink(os.Stdout) }

// FileSink opens (creating/appending to) a file and wraps it in a WriterSink.
// Callers are responsible for closing the returned file when the pipeline
// shuts down.
func FileSink(path string) (*WriterSink, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open sink file %s: %w", path, err)
	}
	return NewWriterSink(f), f, nil
}
