// Package room implements the per-mode room store. A Room is owned
// exclusively by its store: every operation re-fetches the room by id
// immediately before mutating it, so no caller can act on a stale reference
// across an asynchronous boundary.
package room

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Room codes avoid ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const codeLength = 6

// Store holds every room for a single game mode. Mutations are serialized
// per room: handlers for the same room never interleave.
type Store struct {
	mode parlor.Mode
	log  *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*parlor.Room
	locks map[string]*sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// NewStore creates an empty store for one mode. The RNG is injected so
// tests can seed room-code generation deterministically.
func NewStore(mode parlor.Mode, rng *rand.Rand, log *logrus.Logger) *Store {
	return &Store{
		mode:  mode,
		log:   log.WithField("mode", mode),
		rooms: make(map[string]*parlor.Room),
		locks: make(map[string]*sync.Mutex),
		rng:   rng,
		now:   time.Now,
	}
}

// Mode returns the game mode this store owns.
func (s *Store) Mode() parlor.Mode { return s.mode }

// Create makes a new lobby room with a single seat for the host and records
// the ROOM_CREATED event. The host name must already be validated.
func (s *Store) Create(hostName string) *parlor.Room {
	host := &parlor.Player{
		ID:        uuid.NewString(),
		Name:      hostName,
		Connected: true,
		Alive:     true,
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newCode()
	for _, taken := s.rooms[id]; taken; _, taken = s.rooms[id] {
		id = s.newCode()
	}
	r := &parlor.Room{
		ID:           id,
		Mode:         s.mode,
		PartyChainID: uuid.NewString(),
		Status:       parlor.StatusLobby,
		Phase:        parlor.PhaseLobby,
		HostID:       host.ID,
		CreatedAt:    s.now(),
		Players:      []*parlor.Player{host},
	}
	r.RecordEvent(parlor.EventRoomCreated, map[string]any{
		"hostPlayerId": host.ID,
		"hostName":     host.Name,
	})
	s.rooms[id] = r
	s.locks[id] = &sync.Mutex{}

	s.log.WithFields(logrus.Fields{"room": id, "host": hostName}).Info("room created")
	return r
}

// Get returns the room with the given id. The returned reference is only
// safe to read synchronously; mutate through Mutate.
func (s *Store) Get(id string) (*parlor.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Rooms returns a snapshot of all rooms in the store.
func (s *Store) Rooms() []*parlor.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*parlor.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// ForEach runs fn against every room in the store, each under its own
// mutation lock, in room-id order. Scans over live rooms (quick-join
// candidate scoring) go through here so they never read a room that a
// concurrent Mutate is writing. fn must not retain the room.
func (s *Store) ForEach(fn func(*parlor.Room)) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		_ = s.Mutate(id, func(r *parlor.Room) error {
			fn(r)
			return nil
		})
	}
}

// Mutate runs fn against the room with the given id while holding that
// room's mutation lock. The room is re-fetched under the lock, so fn always
// sees current state. Returns ROOM_NOT_FOUND if the id is unknown; fn's
// error is passed through unchanged.
func (s *Store) Mutate(id string, fn func(*parlor.Room) error) error {
	s.mu.Lock()
	lock, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return parlor.E(parlor.CodeRoomNotFound, "room %s not found in %s store", id, s.mode)
	}

	lock.Lock()
	defer lock.Unlock()

	// Re-fetch under the room lock; never trust a captured reference.
	s.mu.Lock()
	r, ok := s.rooms[id]
	s.mu.Unlock()
	if !ok {
		return parlor.E(parlor.CodeRoomNotFound, "room %s not found in %s store", id, s.mode)
	}
	return fn(r)
}

// Rand runs fn with the store's RNG under its own lock. Used for shuffles
// and role assignment so concurrent rooms never race on the shared source.
func (s *Store) Rand(fn func(rng *rand.Rand)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	fn(s.rng)
}

// newCode generates a short room code. Caller holds s.mu.
func (s *Store) newCode() string {
	var b strings.Builder
	s.rngMu.Lock()
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[s.rng.Intn(len(codeAlphabet))])
	}
	s.rngMu.Unlock()
	return b.String()
}
