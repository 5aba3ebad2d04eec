package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorgames/parlor/internal/parlor"
)

// failingSink rejects batches until failures runs out, recording every
// batch it accepts.
type failingSink struct {
	mu       sync.Mutex
	failures int
	batches  [][]parlor.RoomEvent
}

func (s *failingSink) Append(_ context.Context, events []parlor.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	batch := make([]parlor.RoomEvent, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *failingSink) accepted() []parlor.RoomEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []parlor.RoomEvent
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestAppendAssignsIdentity(t *testing.T) {
	l := New(&failingSink{}, quietLogger(), WithFlushInterval(time.Hour))
	defer l.Close(context.Background())

	ev := l.Append(parlor.ModeMafia, "R1", parlor.EventRoomCreated, map[string]any{"hostName": "Ann"})
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, 1, l.Pending())
}

func TestTailBoundedPerRoom(t *testing.T) {
	l := New(&failingSink{}, quietLogger(), WithTailCap(3), WithFlushInterval(time.Hour))
	defer l.Close(context.Background())

	for i := 0; i < 10; i++ {
		l.Append(parlor.ModeMafia, "R1", parlor.EventChatMessage, map[string]any{"i": i})
	}
	l.Append(parlor.ModeMafia, "R2", parlor.EventRoomCreated, nil)

	tail := l.Tail(parlor.ModeMafia, "R1", 0)
	require.Len(t, tail, 3)
	assert.Equal(t, 7, tail[0].Payload["i"], "oldest surviving entry")
}

func TestFlushDrainsPending(t *testing.T) {
	sink := &failingSink{}
	l := New(sink, quietLogger(), WithFlushInterval(time.Hour))
	defer l.Close(context.Background())

	l.Append(parlor.ModeMafia, "R1", parlor.EventRoomCreated, nil)
	l.Append(parlor.ModeMafia, "R1", parlor.EventPlayerJoined, nil)

	require.NoError(t, l.Flush(context.Background()))
	assert.Equal(t, 0, l.Pending())
	require.Len(t, sink.accepted(), 2)
	assert.Equal(t, parlor.EventRoomCreated, sink.accepted()[0].Type)
}

// A failed flush never drops events: the batch returns to the queue head
// and the next flush delivers everything in the original order.
func TestFailedFlushRequeuesInOrder(t *testing.T) {
	sink := &failingSink{failures: 1}
	var hookErrs int
	l := New(sink, quietLogger(),
		WithFlushInterval(time.Hour),
		WithFlushErrorHook(func(error) { hookErrs++ }),
	)
	defer l.Close(context.Background())

	l.Append(parlor.ModeMafia, "R1", parlor.EventRoomCreated, nil)
	l.Append(parlor.ModeMafia, "R1", parlor.EventPlayerJoined, nil)

	err := l.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, l.Pending(), "failed batch stays queued")
	assert.Equal(t, 1, hookErrs)

	// Events arriving after the failure stay behind the failed batch.
	l.Append(parlor.ModeMafia, "R1", parlor.EventGameStarted, nil)

	require.NoError(t, l.Flush(context.Background()))
	got := sink.accepted()
	require.Len(t, got, 3)
	assert.Equal(t, parlor.EventRoomCreated, got[0].Type)
	assert.Equal(t, parlor.EventPlayerJoined, got[1].Type)
	assert.Equal(t, parlor.EventGameStarted, got[2].Type)
}

func TestTimerFlushCoalesces(t *testing.T) {
	sink := &failingSink{}
	l := New(sink, quietLogger(), WithFlushInterval(10*time.Millisecond))
	defer l.Close(context.Background())

	l.Append(parlor.ModeMafia, "R1", parlor.EventRoomCreated, nil)
	l.Append(parlor.ModeMafia, "R1", parlor.EventPlayerJoined, nil)

	require.Eventually(t, func() bool {
		return l.Pending() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.accepted(), 2)
}

func TestCloseFlushes(t *testing.T) {
	sink := &failingSink{}
	l := New(sink, quietLogger(), WithFlushInterval(time.Hour))

	l.Append(parlor.ModeVilla, "R9", parlor.EventRoomCreated, nil)
	require.NoError(t, l.Close(context.Background()))
	assert.Len(t, sink.accepted(), 1)
}
