// Package modes defines the contract every game module satisfies and the
// phase-transition validator shared by all of them. The engine knows
// nothing about any game's rules beyond this interface.
package modes

import (
	"math/rand"
	"sort"
	"time"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Module is one pluggable game. A module owns its room's phase vocabulary,
// transition table, action legality, bot policy, and projection redaction;
// the engine owns everything else.
type Module interface {
	// Mode returns the mode identifier this module implements.
	Mode() parlor.Mode

	// MinPlayers is the smallest viable seat count; MaxPlayers the cap.
	MinPlayers() int
	MaxPlayers() int

	// Transitions is the phase adjacency table. Terminal phases have no
	// outgoing edges.
	Transitions() map[parlor.Phase][]parlor.Phase

	// PhaseDuration returns how long the room may sit in a phase before
	// the scheduler auto-advances it. Zero disables the timer.
	PhaseDuration(phase parlor.Phase) time.Duration

	// Start assigns roles and moves the room into its first play phase.
	// The RNG is injected so role assignment is seedable in tests.
	Start(room *parlor.Room, rng *rand.Rand) error

	// Apply validates and applies a player action, advancing the phase
	// when the action completes it. Failures leave the room unchanged.
	Apply(room *parlor.Room, actor *parlor.Player, act parlor.Action) error

	// Advance is the timer-driven phase advance: resolve whatever the
	// current phase was waiting on (defaulting absentees) and move on.
	Advance(room *parlor.Room) error

	// BotAction picks the next action for a bot seat, or ok=false when the
	// bot has nothing (left) to do this phase. The policy must be
	// deterministic for a given room state.
	BotAction(room *parlor.Room, bot *parlor.Player) (parlor.Action, bool)

	// RoleVisible supplements the owner-only/after-finish redaction rules
	// with mode-specific reveals (e.g. mafia seats see each other).
	RoleVisible(room *parlor.Room, viewer parlor.Viewer, target *parlor.Player) bool
}

// TransitionOptions carries the optional mutations applied atomically with
// a phase change.
type TransitionOptions struct {
	// Status, when non-empty, replaces the room status.
	Status parlor.Status
	// RoundDelta is added to the room's round counter.
	RoundDelta int
	// Winner is recorded when transitioning into the terminal phase.
	Winner string
	// EventPayload is merged into the recorded event's payload.
	EventPayload map[string]any
}

// Transition validates nextPhase against the table and, on success, applies
// the phase change plus options and records the corresponding room event.
// No partial application is observable: an invalid edge fails with
// INVALID_PHASE_TRANSITION (carrying fromPhase/toPhase) and the room is
// untouched.
func Transition(room *parlor.Room, table map[parlor.Phase][]parlor.Phase, nextPhase parlor.Phase, opts TransitionOptions) error {
	allowed := table[room.Phase]
	ok := false
	for _, p := range allowed {
		if p == nextPhase {
			ok = true
			break
		}
	}
	if !ok {
		return parlor.E(parlor.CodeInvalidPhaseTransition,
			"cannot transition from %s to %s", room.Phase, nextPhase).
			WithDetails(map[string]any{
				"fromPhase": string(room.Phase),
				"toPhase":   string(nextPhase),
			})
	}

	from := room.Phase
	room.Phase = nextPhase
	if opts.Status != "" {
		room.Status = opts.Status
	}
	room.Round += opts.RoundDelta
	if opts.Winner != "" {
		room.Winner = opts.Winner
	}

	payload := map[string]any{
		"from":  string(from),
		"to":    string(nextPhase),
		"round": room.Round,
	}
	for k, v := range opts.EventPayload {
		payload[k] = v
	}
	if nextPhase == parlor.PhaseFinished {
		payload["winner"] = room.Winner
		room.RecordEvent(parlor.EventGameFinished, payload)
	} else {
		room.RecordEvent(parlor.EventPhaseAdvanced, payload)
	}
	return nil
}

// Finish moves the room into the terminal phase with the given winner.
func Finish(room *parlor.Room, table map[parlor.Phase][]parlor.Phase, winner string) error {
	return Transition(room, table, parlor.PhaseFinished, TransitionOptions{
		Status: parlor.StatusFinished,
		Winner: winner,
	})
}

// SortedByID returns the players ordered lexically by id. Bot policies use
// it as the shared deterministic tie-break base.
func SortedByID(players []*parlor.Player) []*parlor.Player {
	out := make([]*parlor.Player, len(players))
	copy(out, players)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Registry maps mode identifiers to their modules.
type Registry struct {
	modules map[parlor.Mode]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[parlor.Mode]Module)}
}

// Register adds a module. Registering the same mode twice is a programmer
// error and panics during wiring.
func (r *Registry) Register(m Module) {
	if _, dup := r.modules[m.Mode()]; dup {
		panic("modes: duplicate module " + string(m.Mode()))
	}
	r.modules[m.Mode()] = m
}

// Get returns the module for a mode.
func (r *Registry) Get(mode parlor.Mode) (Module, bool) {
	m, ok := r.modules[mode]
	return m, ok
}

// Modes lists the registered mode identifiers, sorted for determinism.
func (r *Registry) Modes() []parlor.Mode {
	out := make([]parlor.Mode, 0, len(r.modules))
	for mode := range r.modules {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
