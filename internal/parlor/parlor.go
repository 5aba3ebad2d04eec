// Package parlor defines the domain types shared by every component of the
// room orchestration engine: rooms, players, room events, actions, and the
// error taxonomy surfaced across the boundary.
package parlor

import (
	"fmt"
	"time"
)

// Mode identifies a game mode. Each mode owns its own room store, phase
// vocabulary, and rule module.
type Mode string

// Supported game modes.
const (
	ModeMafia      Mode = "mafia"
	ModeAmongUs    Mode = "amongus"
	ModeVilla      Mode = "villa"
	ModeGuessAgent Mode = "guess_the_agent"
)

// Status is the coarse lifecycle state of a room.
type Status string

// Room lifecycle states.
const (
	StatusLobby      Status = "lobby"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Phase is a mode-specific sub-state. Only the two phases every mode shares
// are defined here; play phases live in the mode packages.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseFinished Phase = "finished"
)

// EventType is the closed per-mode vocabulary of room events.
type EventType string

// Event types emitted by the engine itself. Modes may define additional
// types (e.g. NIGHT_RESOLVED) in their own packages.
const (
	EventRoomCreated        EventType = "ROOM_CREATED"
	EventPlayerJoined       EventType = "PLAYER_JOINED"
	EventPlayerReconnected  EventType = "PLAYER_RECONNECTED"
	EventPlayerDisconnected EventType = "PLAYER_DISCONNECTED"
	EventPlayerRemoved      EventType = "PLAYER_REMOVED"
	EventBotsAdded          EventType = "BOTS_ADDED"
	EventGameStarted        EventType = "GAME_STARTED"
	EventActionSubmitted    EventType = "ACTION_SUBMITTED"
	EventChatMessage        EventType = "CHAT_MESSAGE"
	EventPhaseAdvanced      EventType = "PHASE_ADVANCED"
	EventGameFinished       EventType = "GAME_FINISHED"
	EventRematchPrepared    EventType = "REMATCH_PREPARED"
)

// RoomEvent is one append-only record of an externally observable state
// change. Events are assigned their id and timestamp by the event log.
type RoomEvent struct {
	ID      string         `json:"id"`
	At      time.Time      `json:"at"`
	Mode    Mode           `json:"mode"`
	RoomID  string         `json:"roomId"`
	Type    EventType      `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Player is one seat in a room. The ID is stable across reconnects; SocketID
// is the current transport binding and is empty while disconnected.
type Player struct {
	ID        string `json:"id"`
	SocketID  string `json:"-"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	IsBot     bool   `json:"isBot"`
	Role      string `json:"-"` // hidden until the mode's reveal rules permit
	Alive     bool   `json:"alive"`
}

// Action is a player-submitted (or bot-submitted) move. Interpretation is
// entirely up to the mode module.
type Action struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Room is one game session. It is owned exclusively by its store and must
// only be mutated inside the store's Mutate discipline; no component may
// hold a Room reference across an asynchronous boundary.
type Room struct {
	ID           string
	Mode         Mode
	PartyChainID string
	Status       Status
	Phase        Phase
	HostID       string
	CreatedAt    time.Time
	Round        int
	Streak       int
	Winner       string

	// Players in join order. Length never exceeds the mode's seat cap.
	Players []*Player

	// Events is the bounded in-memory tail of recent events, separate from
	// the durable event log.
	Events []RoomEvent

	// pendingLog holds events recorded since the engine last drained them
	// into the durable event log.
	pendingLog []RoomEvent

	// Game holds mode-owned state (votes, tasks, role bookkeeping). The
	// engine never inspects it.
	Game any

	// Quick-join statistics, maintained by the engine.
	QuickJoinOffers int
	QuickJoinJoins  int
	RematchCount    int
	ReconnectFails  int
}

// EventTailCap bounds the in-memory event tail per room.
const EventTailCap = 128

// RecordEvent appends an event to the room's in-memory tail and queues it
// for durable logging. The id and timestamp are filled in by the event log
// when the pending queue is drained.
func (r *Room) RecordEvent(t EventType, payload map[string]any) {
	ev := RoomEvent{Mode: r.Mode, RoomID: r.ID, Type: t, Payload: payload}
	r.Events = append(r.Events, ev)
	if len(r.Events) > EventTailCap {
		r.Events = r.Events[len(r.Events)-EventTailCap:]
	}
	r.pendingLog = append(r.pendingLog, ev)
}

// DrainPendingEvents returns and clears the events recorded since the last
// drain. Called by the engine after each mutation; invariant: every recorded
// event is drained exactly once, in room-scoped insertion order.
func (r *Room) DrainPendingEvents() []RoomEvent {
	pending := r.pendingLog
	r.pendingLog = nil
	return pending
}

// AdvanceToken stamps the room's current (phase, round) pair. A scheduled
// phase advance captures this token and becomes inert if the room has moved
// on by the time the timer fires.
func (r *Room) AdvanceToken() string {
	return fmt.Sprintf("%s:%d", r.Phase, r.Round)
}

// PlayerByID returns the seat with the given player id, or nil.
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByName returns the seat with the given name, or nil. Names are
// unique per room among seated players.
func (r *Room) PlayerByName(name string) *Player {
	for _, p := range r.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// PlayerBySocket returns the seat currently bound to the given connection,
// or nil.
func (r *Room) PlayerBySocket(socketID string) *Player {
	if socketID == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.SocketID == socketID {
			return p
		}
	}
	return nil
}

// ConnectedCount reports how many seats are currently connected. Bots are
// always counted as connected.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected || p.IsBot {
			n++
		}
	}
	return n
}

// AlivePlayers returns the seats still in play, in join order.
func (r *Room) AlivePlayers() []*Player {
	alive := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}
