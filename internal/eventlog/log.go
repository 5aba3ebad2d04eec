// Package eventlog provides the append-only room event history: a bounded
// in-memory tail per room for fast reads, and a batched durable flush to an
// external sink. Flushing is decoupled from the mutation hot path; a failed
// durable write re-queues the batch and retries instead of crashing.
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Sink is the durable append-only collaborator. Append must persist the
// whole batch or fail it as a unit.
type Sink interface {
	Append(ctx context.Context, events []parlor.RoomEvent) error
}

// Source reads back durable events for one room, in append order. Sinks
// that support replay implement it.
type Source interface {
	Read(ctx context.Context, mode parlor.Mode, roomID string) ([]parlor.RoomEvent, error)
}

const (
	defaultTailCap    = 256
	defaultFlushEvery = 2 * time.Second
	defaultRetryAfter = 5 * time.Second
	flushTimeout      = 10 * time.Second
)

type tailKey struct {
	mode   parlor.Mode
	roomID string
}

// Log is the engine-facing event log.
type Log struct {
	sink Sink
	log  *logrus.Entry

	// flushMu serializes durable writes so batches reach the sink in
	// append order even if a timer flush and an explicit flush overlap.
	flushMu sync.Mutex

	mu      sync.Mutex
	tails   map[tailKey][]parlor.RoomEvent
	tailCap int
	pending []parlor.RoomEvent
	timer   *time.Timer
	closed  bool

	flushEvery time.Duration
	retryAfter time.Duration
	now        func() time.Time

	// onFlushError is an optional hook for metrics.
	onFlushError func(err error)
}

// Option configures a Log.
type Option func(*Log)

// WithTailCap overrides the per-room in-memory tail bound.
func WithTailCap(n int) Option { return func(l *Log) { l.tailCap = n } }

// WithFlushInterval overrides how long appended events may coalesce before
// a durable flush.
func WithFlushInterval(d time.Duration) Option { return func(l *Log) { l.flushEvery = d } }

// WithFlushErrorHook registers a callback invoked on each failed durable
// flush, after the batch has been re-queued.
func WithFlushErrorHook(fn func(error)) Option { return func(l *Log) { l.onFlushError = fn } }

// New creates a Log writing to sink.
func New(sink Sink, logger *logrus.Logger, opts ...Option) *Log {
	l := &Log{
		sink:       sink,
		log:        logger.WithField("component", "eventlog"),
		tails:      make(map[tailKey][]parlor.RoomEvent),
		tailCap:    defaultTailCap,
		flushEvery: defaultFlushEvery,
		retryAfter: defaultRetryAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns an id and timestamp to the event, records it on the
// room's bounded tail, and enqueues it for batched durable flush.
func (l *Log) Append(mode parlor.Mode, roomID string, t parlor.EventType, payload map[string]any) parlor.RoomEvent {
	ev := parlor.RoomEvent{
		ID:      uuid.NewString(),
		At:      l.now(),
		Mode:    mode,
		RoomID:  roomID,
		Type:    t,
		Payload: payload,
	}

	l.mu.Lock()
	key := tailKey{mode: mode, roomID: roomID}
	tail := append(l.tails[key], ev)
	if len(tail) > l.tailCap {
		tail = tail[len(tail)-l.tailCap:]
	}
	l.tails[key] = tail

	l.pending = append(l.pending, ev)
	if l.timer == nil && !l.closed {
		l.timer = time.AfterFunc(l.flushEvery, l.flushTick)
	}
	l.mu.Unlock()
	return ev
}

// Tail returns up to n most recent in-memory events for a room, oldest
// first. n <= 0 returns the whole tail.
func (l *Log) Tail(mode parlor.Mode, roomID string, n int) []parlor.RoomEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	tail := l.tails[tailKey{mode: mode, roomID: roomID}]
	if n > 0 && len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	out := make([]parlor.RoomEvent, len(tail))
	copy(out, tail)
	return out
}

// flushTick is the coalescing timer callback.
func (l *Log) flushTick() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		l.log.WithError(err).Warn("durable flush failed, batch re-queued")
	}
}

// Flush drains the pending queue through the sink. On failure the batch is
// returned to the queue head (never dropped) and a retry is scheduled.
func (l *Log) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := l.sink.Append(ctx, batch)
	if err == nil {
		return nil
	}

	l.mu.Lock()
	// Back to the queue head: events appended during the failed write stay
	// behind the failed batch, preserving order.
	l.pending = append(batch, l.pending...)
	if l.timer == nil && !l.closed {
		l.timer = time.AfterFunc(l.retryAfter, l.flushTick)
	}
	hook := l.onFlushError
	l.mu.Unlock()

	if hook != nil {
		hook(err)
	}
	return err
}

// Close performs a final flush and stops the coalescing timer. Events
// appended after Close are kept in memory but no longer flushed.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()
	return l.Flush(ctx)
}

// Pending reports the number of events awaiting durable flush.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
