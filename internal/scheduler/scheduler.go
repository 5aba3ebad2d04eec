// Package scheduler provides a generic timer registry keyed by
// (namespace, roomId, slot). Phases are advanced either by a player action
// or by a timer; both paths must be able to win exactly once, so every
// scheduled task captures a staleness token that is re-checked at fire time.
package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Key addresses one timer slot. Scheduling on an occupied key replaces the
// existing timer (last-writer-wins per slot).
type Key struct {
	Namespace string
	RoomID    string
	Slot      string
}

type task struct {
	token string
	timer *time.Timer
}

// Scheduler is a concurrent-safe registry of pending one-shot tasks.
type Scheduler struct {
	log *logrus.Entry

	mu    sync.Mutex
	tasks map[Key]*task

	// onStale is invoked whenever a fired timer turns out to be stale.
	// Optional; used for metrics.
	onStale func(key Key)
}

// New creates an empty scheduler.
func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{
		log:   log.WithField("component", "scheduler"),
		tasks: make(map[Key]*task),
	}
}

// OnStale registers a hook called when a stale timer fires as a no-op.
func (s *Scheduler) OnStale(fn func(key Key)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStale = fn
}

// Schedule installs fn to run after delay, replacing any timer already
// registered at key. The token is an opaque stamp (e.g. "{phase}:{round}")
// captured now; if the registered task at fire time carries a different
// token, or the task has been cleared, the fire is a silent no-op.
func (s *Scheduler) Schedule(key Key, delay time.Duration, token string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
		delete(s.tasks, key)
	}

	t := &task{token: token}
	t.timer = time.AfterFunc(delay, func() {
		s.fire(key, t, fn)
	})
	s.tasks[key] = t
}

// fire runs the callback if and only if this exact task is still the one
// registered at key with an unchanged token.
func (s *Scheduler) fire(key Key, t *task, fn func()) {
	s.mu.Lock()
	current, ok := s.tasks[key]
	live := ok && current == t && current.token == t.token
	if live {
		delete(s.tasks, key)
	}
	onStale := s.onStale
	s.mu.Unlock()

	if !live {
		s.log.WithFields(logrus.Fields{
			"room": key.RoomID, "slot": key.Slot, "token": t.token,
		}).Debug("stale timer fired, ignoring")
		if onStale != nil {
			onStale(key)
		}
		return
	}
	fn()
}

// Token returns the token of the task currently registered at key, if any.
func (s *Scheduler) Token(key Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return "", false
	}
	return t.token, true
}

// Clear cancels the task registered at key, if any.
func (s *Scheduler) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[key]; ok {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

// ClearRoom cancels every task for a room. If namespace is non-empty only
// that namespace is cleared. Used for rematch/reset flows.
func (s *Scheduler) ClearRoom(roomID string, namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		if key.RoomID != roomID {
			continue
		}
		if namespace != "" && key.Namespace != namespace {
			continue
		}
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

// ClearAll cancels every pending task. Used at process shutdown.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}
