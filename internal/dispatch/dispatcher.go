package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// QueueCap is the hard cap on the outbound sink queue (spec.md §4.7).
const QueueCap = 10000

// RetryBaseDelay and RetryMaxDelay bound the sink write retry backoff.
const (
	RetryBaseDelay = 100 * time.Millisecond
	RetryMaxDelay  = 10 * time.Second
)

// Dispatcher serializes EXECUTE signals in production order, deduplicates
// per (instrument, hypothesis_id), assigns a monotonic per-instrument
// sequence number and a monotonic emit time, and delivers to a Sink with
// bounded retry and queue-cap shedding (spec.md §4.7).
//
// Dispatcher owns the single outbound queue, which is MPSC: every
// instrument pipeline's Sizer enqueues into the same Dispatcher (spec.md
// §5 "Instrument pipelines share only the Dispatcher's outbound queue").
type Dispatcher struct {
	mu       sync.Mutex
	sequence map[string]int64
	emitted  map[string]bool // key: instrument + "|" + hypothesis_id

	sink  Sink
	queue []Signal

	limiter *rate.Limiter

	droppedLow int64
}

// NewDispatcher creates a Dispatcher writing to sink.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{
		sequence: make(map[string]int64),
		emitted:  make(map[string]bool),
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Every(RetryBaseDelay), 1),
	}
}

func dedupKey(instrument, hypothesisID string) string {
	return instrument + "|" + hypothesisID
}

// Enqueue assigns ordering metadata and appends to the outbound queue,
// deduplicating and shedding under backpressure (spec.md §4.7, §8 invariant
// 6 and 7).
func (d *Dispatcher) Enqueue(instrument, hypothesisID string, s Signal) (queued bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(instrument, hypothesisID)
	if d.emitted[key] {
		return false
	}
	d.emitted[key] = true

	d.sequence[instrument]++
	s.Instrument = instrument
	s.HypothesisID = hypothesisID
	s.SequenceNo = d.sequence[instrument]
	s.EmitTime = time.Now()

	if len(d.queue) >= QueueCap {
		d.evictOldestLowPriority()
	}
	d.queue = append(d.queue, s)
	return true
}

// evictOldestLowPriority drops the oldest LOW-priority queued signal to make
// room, logging the drop (spec.md §4.7). If no LOW-priority signal exists,
// the queue is allowed to grow by one rather than drop a HIGH-priority
// signal and violate at-most-once delivery.
func (d *Dispatcher) evictOldestLowPriority() {
	for i, s := range d.queue {
		if s.Priority() == PriorityLow {
			log.Warn().Str("instrument", s.Instrument).Str("hypothesis_id", s.HypothesisID).
				Msg("dispatch: dropping oldest low-priority signal, sink queue at capacity")
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.droppedLow++
			return
		}
	}
}

// DroppedLowPriority reports how many LOW-priority signals have been
// shed under backpressure.
func (d *Dispatcher) DroppedLowPriority() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.droppedLow
}

// Flush drains and writes every queued signal to the sink in FIFO order,
// retrying each write with bounded exponential backoff (spec.md §4.7,
// §4.8 "flushing the Dispatcher queue before exit"). It stops early and
// returns ctx.Err() if ctx is cancelled mid-drain.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, s := range pending {
		if err := d.writeWithRetry(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) writeWithRetry(ctx context.Context, s Signal) error {
	delay := RetryBaseDelay
	for {
		if err := d.sink.Write(ctx, s); err == nil {
			return nil
		} else {
			log.Warn().Err(err).Str("instrument", s.Instrument).Int64("sequence_no", s.SequenceNo).
				Msg("dispatch: sink write failed, retrying")
		}
		d.limiter.SetLimit(rate.Every(delay))
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		delay *= 2
		if delay > RetryMaxDelay {
			delay = RetryMaxDelay
		}
	}
}

// QueueLen reports the number of signals currently queued for delivery.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
