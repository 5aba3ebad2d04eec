// Package villa implements the pairing mode: each round the remaining
// seats pick a partner, then a ceremony eliminates the least-picked seat.
// The game finishes when two seats remain and they are declared the final
// couple.
package villa

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
)

// Phases.
const (
	PhaseCoupling parlor.Phase = "coupling"
	PhaseCeremony parlor.Phase = "ceremony"
)

// Action types.
const ActionPick = "pick"

// Mode-specific event types.
const (
	EventCeremony   parlor.EventType = "CEREMONY_RESOLVED"
	EventEliminated parlor.EventType = "PLAYER_ELIMINATED"
)

// Timing controls the phase timers.
type Timing struct {
	Coupling time.Duration
	Ceremony time.Duration
}

// DefaultTiming is the production pacing.
var DefaultTiming = Timing{
	Coupling: 90 * time.Second,
	Ceremony: 30 * time.Second,
}

type state struct {
	// Picks maps picker id -> partner id for the current round.
	Picks map[string]string
}

// Module implements modes.Module for villa.
type Module struct {
	timing Timing
}

// New creates the module with production timing.
func New() *Module { return NewWithTiming(DefaultTiming) }

// NewWithTiming creates the module with custom phase timers.
func NewWithTiming(t Timing) *Module { return &Module{timing: t} }

func (m *Module) Mode() parlor.Mode { return parlor.ModeVilla }
func (m *Module) MinPlayers() int   { return 4 }
func (m *Module) MaxPlayers() int   { return 12 }

func (m *Module) Transitions() map[parlor.Phase][]parlor.Phase {
	return map[parlor.Phase][]parlor.Phase{
		parlor.PhaseLobby:    {PhaseCoupling},
		PhaseCoupling:        {PhaseCeremony},
		PhaseCeremony:        {PhaseCoupling, parlor.PhaseFinished},
		parlor.PhaseFinished: {},
	}
}

func (m *Module) PhaseDuration(phase parlor.Phase) time.Duration {
	switch phase {
	case PhaseCoupling:
		return m.timing.Coupling
	case PhaseCeremony:
		return m.timing.Ceremony
	}
	return 0
}

// Start opens the first coupling round. Villa has no hidden roles.
func (m *Module) Start(room *parlor.Room, rng *rand.Rand) error {
	for _, p := range room.Players {
		p.Alive = true
		p.Role = ""
	}
	room.Game = &state{Picks: make(map[string]string)}
	return modes.Transition(room, m.Transitions(), PhaseCoupling, modes.TransitionOptions{
		Status:     parlor.StatusInProgress,
		RoundDelta: 1,
	})
}

func (m *Module) gameState(room *parlor.Room) *state {
	st, _ := room.Game.(*state)
	return st
}

func (m *Module) Apply(room *parlor.Room, actor *parlor.Player, act parlor.Action) error {
	st := m.gameState(room)
	if st == nil {
		return parlor.E(parlor.CodeGameNotActive, "villa room %s has no started game", room.ID)
	}
	if act.Type != ActionPick {
		return parlor.E(parlor.CodeInvalidState, "unknown villa action %q", act.Type)
	}
	if room.Phase != PhaseCoupling {
		return parlor.E(parlor.CodeWrongPhase, "partners can only be picked in the coupling phase")
	}
	if !actor.Alive {
		return parlor.E(parlor.CodeInvalidState, "player %s has left the villa", actor.Name)
	}
	if act.TargetID == actor.ID {
		return parlor.E(parlor.CodeSelfVote, "players cannot pick themselves")
	}
	if _, done := st.Picks[actor.ID]; done {
		return parlor.E(parlor.CodeAlreadyResponded, "partner already picked this round")
	}
	target := room.PlayerByID(act.TargetID)
	if target == nil || !target.Alive {
		return parlor.E(parlor.CodeInvalidTarget, "partner must be a remaining player")
	}
	st.Picks[actor.ID] = target.ID
	if len(st.Picks) >= len(room.AlivePlayers()) {
		return modes.Transition(room, m.Transitions(), PhaseCeremony, modes.TransitionOptions{})
	}
	return nil
}

func (m *Module) Advance(room *parlor.Room) error {
	st := m.gameState(room)
	if st == nil {
		return parlor.E(parlor.CodeGameNotActive, "villa room %s has no started game", room.ID)
	}
	switch room.Phase {
	case PhaseCoupling:
		return modes.Transition(room, m.Transitions(), PhaseCeremony, modes.TransitionOptions{})
	case PhaseCeremony:
		return m.resolveCeremony(room, st)
	}
	return parlor.E(parlor.CodeWrongPhase, "nothing to advance in phase %s", room.Phase)
}

// resolveCeremony eliminates the remaining seat with the fewest picks, the
// first-sorted one when several are level, then either declares the final
// couple or opens the next coupling round.
func (m *Module) resolveCeremony(room *parlor.Room, st *state) error {
	picks := make(map[string]int)
	for _, partner := range st.Picks {
		picks[partner]++
	}
	alive := modes.SortedByID(room.AlivePlayers())

	var out *parlor.Player
	for _, p := range alive {
		if out == nil || picks[p.ID] < picks[out.ID] {
			out = p
		}
	}
	st.Picks = make(map[string]string)

	if out != nil {
		out.Alive = false
		room.RecordEvent(EventEliminated, map[string]any{
			"playerId": out.ID, "playerName": out.Name,
			"picks": picks[out.ID], "round": room.Round,
		})
	}
	room.RecordEvent(EventCeremony, map[string]any{"round": room.Round})

	remaining := modes.SortedByID(room.AlivePlayers())
	if len(remaining) <= 2 {
		names := make([]string, 0, len(remaining))
		for _, p := range remaining {
			names = append(names, p.Name)
		}
		sort.Strings(names)
		return modes.Finish(room, m.Transitions(), strings.Join(names, " & "))
	}
	return modes.Transition(room, m.Transitions(), PhaseCoupling, modes.TransitionOptions{
		RoundDelta: 1,
	})
}

// BotAction picks the first-sorted remaining seat other than the bot.
func (m *Module) BotAction(room *parlor.Room, bot *parlor.Player) (parlor.Action, bool) {
	st := m.gameState(room)
	if st == nil || !bot.Alive || room.Phase != PhaseCoupling {
		return parlor.Action{}, false
	}
	if _, done := st.Picks[bot.ID]; done {
		return parlor.Action{}, false
	}
	for _, p := range modes.SortedByID(room.AlivePlayers()) {
		if p.ID != bot.ID {
			return parlor.Action{Type: ActionPick, TargetID: p.ID}, true
		}
	}
	return parlor.Action{}, false
}

// RoleVisible is always false: villa has no hidden roles.
func (m *Module) RoleVisible(room *parlor.Room, viewer parlor.Viewer, target *parlor.Player) bool {
	return false
}
