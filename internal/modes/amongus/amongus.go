// Package amongus implements the impostor mode: crew members grind through
// tasks while hidden impostors kill; emergency meetings lead to votes that
// can eject a seat. Crew win by finishing all tasks or ejecting every
// impostor; impostors win by reaching parity.
package amongus

import (
	"math/rand"
	"time"

	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
)

// Phases.
const (
	PhaseTasks   parlor.Phase = "tasks"
	PhaseMeeting parlor.Phase = "meeting"
	PhaseVoting  parlor.Phase = "voting"
)

// Roles.
const (
	RoleImpostor = "impostor"
	RoleCrew     = "crew"
)

// Factions reported as the winner.
const (
	WinnerCrew      = "crew"
	WinnerImpostors = "impostors"
)

// Action types.
const (
	ActionTask    = "task"
	ActionKill    = "kill"
	ActionMeeting = "meeting"
	ActionVote    = "vote"
)

// Mode-specific event types.
const (
	EventKill          parlor.EventType = "PLAYER_KILLED"
	EventMeetingCalled parlor.EventType = "MEETING_CALLED"
	EventEjected       parlor.EventType = "PLAYER_EJECTED"
	EventNoEjection    parlor.EventType = "NO_EJECTION"
)

// TasksPerPlayer is how many tasks each crew seat must finish.
const TasksPerPlayer = 3

// Timing controls the phase timers.
type Timing struct {
	Tasks   time.Duration
	Meeting time.Duration
	Voting  time.Duration
}

// DefaultTiming is the production pacing.
var DefaultTiming = Timing{
	Tasks:   120 * time.Second,
	Meeting: 60 * time.Second,
	Voting:  45 * time.Second,
}

type state struct {
	// TasksDone maps crew id -> completed task count.
	TasksDone map[string]int
	// KillUsed marks impostors who already killed in this tasks phase.
	KillUsed map[string]bool
	// Votes maps voter id -> target id ("" is an explicit skip).
	Votes map[string]string
}

// Module implements modes.Module for amongus.
type Module struct {
	timing Timing
}

// New creates the module with production timing.
func New() *Module { return NewWithTiming(DefaultTiming) }

// NewWithTiming creates the module with custom phase timers.
func NewWithTiming(t Timing) *Module { return &Module{timing: t} }

func (m *Module) Mode() parlor.Mode { return parlor.ModeAmongUs }
func (m *Module) MinPlayers() int   { return 4 }
func (m *Module) MaxPlayers() int   { return 10 }

func (m *Module) Transitions() map[parlor.Phase][]parlor.Phase {
	return map[parlor.Phase][]parlor.Phase{
		parlor.PhaseLobby:    {PhaseTasks},
		PhaseTasks:           {PhaseMeeting, parlor.PhaseFinished},
		PhaseMeeting:         {PhaseVoting},
		PhaseVoting:          {PhaseTasks, parlor.PhaseFinished},
		parlor.PhaseFinished: {},
	}
}

func (m *Module) PhaseDuration(phase parlor.Phase) time.Duration {
	switch phase {
	case PhaseTasks:
		return m.timing.Tasks
	case PhaseMeeting:
		return m.timing.Meeting
	case PhaseVoting:
		return m.timing.Voting
	}
	return 0
}

// ImpostorCount is 1 impostor per 5 seats, at least one.
func ImpostorCount(n int) int {
	k := n / 5
	if k < 1 {
		k = 1
	}
	return k
}

// Start assigns impostors from a shuffled seat order and opens the first
// tasks phase.
func (m *Module) Start(room *parlor.Room, rng *rand.Rand) error {
	shuffled := make([]*parlor.Player, len(room.Players))
	copy(shuffled, room.Players)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	impostors := ImpostorCount(len(room.Players))
	for i, p := range shuffled {
		p.Alive = true
		if i < impostors {
			p.Role = RoleImpostor
		} else {
			p.Role = RoleCrew
		}
	}

	room.Game = &state{
		TasksDone: make(map[string]int),
		KillUsed:  make(map[string]bool),
		Votes:     make(map[string]string),
	}
	return modes.Transition(room, m.Transitions(), PhaseTasks, modes.TransitionOptions{
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
		return parlor.E(parlor.CodeGameNotActive, "amongus room %s has no started game", room.ID)
	}
	if !actor.Alive {
		return parlor.E(parlor.CodeInvalidState, "player %s is out of the game", actor.Name)
	}

	switch act.Type {
	case ActionTask:
		if room.Phase != PhaseTasks {
			return parlor.E(parlor.CodeWrongPhase, "tasks can only be done in the tasks phase")
		}
		if actor.Role != RoleCrew {
			return parlor.E(parlor.CodeRoleForbidden, "impostors have no tasks")
		}
		if st.TasksDone[actor.ID] >= TasksPerPlayer {
			return parlor.E(parlor.CodeAlreadyResponded, "all of your tasks are already done")
		}
		st.TasksDone[actor.ID]++
		if m.allTasksDone(room, st) {
			return modes.Finish(room, m.Transitions(), WinnerCrew)
		}
		return nil

	case ActionKill:
		if room.Phase != PhaseTasks {
			return parlor.E(parlor.CodeWrongPhase, "kills happen during the tasks phase")
		}
		if actor.Role != RoleImpostor {
			return parlor.E(parlor.CodeRoleForbidden, "only impostors can kill")
		}
		if st.KillUsed[actor.ID] {
			return parlor.E(parlor.CodeAlreadyResponded, "kill already used this round")
		}
		target := room.PlayerByID(act.TargetID)
		if target == nil || !target.Alive || target.Role == RoleImpostor {
			return parlor.E(parlor.CodeInvalidTarget, "kill target must be a living crew member")
		}
		target.Alive = false
		st.KillUsed[actor.ID] = true
		room.RecordEvent(EventKill, map[string]any{
			"victimId": target.ID, "victimName": target.Name, "round": room.Round,
		})
		if winner := m.winner(room, st); winner != "" {
			return modes.Finish(room, m.Transitions(), winner)
		}
		return nil

	case ActionMeeting:
		if room.Phase != PhaseTasks {
			return parlor.E(parlor.CodeWrongPhase, "meetings can only be called from the tasks phase")
		}
		room.RecordEvent(EventMeetingCalled, map[string]any{
			"callerId": actor.ID, "callerName": actor.Name, "round": room.Round,
		})
		return modes.Transition(room, m.Transitions(), PhaseMeeting, modes.TransitionOptions{})

	case ActionVote:
		if room.Phase != PhaseVoting {
			return parlor.E(parlor.CodeWrongPhase, "voting is not open")
		}
		if act.TargetID == actor.ID {
			return parlor.E(parlor.CodeSelfVote, "players cannot vote for themselves")
		}
		if _, done := st.Votes[actor.ID]; done {
			return parlor.E(parlor.CodeAlreadyVoted, "vote already cast")
		}
		if act.TargetID != "" {
			target := room.PlayerByID(act.TargetID)
			if target == nil || !target.Alive {
				return parlor.E(parlor.CodeInvalidTarget, "vote target must be a living player")
			}
		}
		st.Votes[actor.ID] = act.TargetID
		if len(st.Votes) >= len(room.AlivePlayers()) {
			return m.resolveVote(room, st)
		}
		return nil
	}
	return parlor.E(parlor.CodeInvalidState, "unknown amongus action %q", act.Type)
}

func (m *Module) Advance(room *parlor.Room) error {
	st := m.gameState(room)
	if st == nil {
		return parlor.E(parlor.CodeGameNotActive, "amongus room %s has no started game", room.ID)
	}
	switch room.Phase {
	case PhaseTasks:
		// Scheduled meeting at the end of every tasks window.
		room.RecordEvent(EventMeetingCalled, map[string]any{"round": room.Round, "scheduled": true})
		return modes.Transition(room, m.Transitions(), PhaseMeeting, modes.TransitionOptions{})
	case PhaseMeeting:
		return modes.Transition(room, m.Transitions(), PhaseVoting, modes.TransitionOptions{})
	case PhaseVoting:
		return m.resolveVote(room, st)
	}
	return parlor.E(parlor.CodeWrongPhase, "nothing to advance in phase %s", room.Phase)
}

func (m *Module) allTasksDone(room *parlor.Room, st *state) bool {
	for _, p := range room.AlivePlayers() {
		if p.Role == RoleCrew && st.TasksDone[p.ID] < TasksPerPlayer {
			return false
		}
	}
	return true
}

// resolveVote ejects a seat only when its tally is a strict majority of the
// votes cast; equal top tallies resolve to the first-sorted candidate, who
// still needs the majority threshold. This is deliberately a different
// tie-break policy than mafia's plurality rule.
func (m *Module) resolveVote(room *parlor.Room, st *state) error {
	tally := make(map[string]int)
	cast := 0
	for _, target := range st.Votes {
		cast++
		if target != "" {
			tally[target]++
		}
	}
	top, topCount := "", 0
	for id, n := range tally {
		if n > topCount || (n == topCount && (top == "" || id < top)) {
			top, topCount = id, n
		}
	}
	st.Votes = make(map[string]string)
	st.KillUsed = make(map[string]bool)

	ejected := room.PlayerByID(top)
	if ejected != nil && ejected.Alive && topCount*2 > cast {
		ejected.Alive = false
		room.RecordEvent(EventEjected, map[string]any{
			"playerId": ejected.ID, "playerName": ejected.Name,
			"wasImpostor": ejected.Role == RoleImpostor, "round": room.Round,
		})
	} else {
		room.RecordEvent(EventNoEjection, map[string]any{"round": room.Round, "votes": cast})
	}

	if winner := m.winner(room, st); winner != "" {
		return modes.Finish(room, m.Transitions(), winner)
	}
	return modes.Transition(room, m.Transitions(), PhaseTasks, modes.TransitionOptions{
		RoundDelta: 1,
	})
}

func (m *Module) winner(room *parlor.Room, st *state) string {
	impostors, crew := 0, 0
	for _, p := range room.AlivePlayers() {
		if p.Role == RoleImpostor {
			impostors++
		} else {
			crew++
		}
	}
	if impostors == 0 {
		return WinnerCrew
	}
	if impostors >= crew {
		return WinnerImpostors
	}
	if m.allTasksDone(room, st) {
		return WinnerCrew
	}
	return ""
}

// BotAction: crew bots grind tasks then call nothing; impostor bots kill
// the first-sorted eligible crew seat once per round; every bot votes using
// the first-sorted eligible target.
func (m *Module) BotAction(room *parlor.Room, bot *parlor.Player) (parlor.Action, bool) {
	st := m.gameState(room)
	if st == nil || !bot.Alive {
		return parlor.Action{}, false
	}
	switch room.Phase {
	case PhaseTasks:
		if bot.Role == RoleCrew && st.TasksDone[bot.ID] < TasksPerPlayer {
			return parlor.Action{Type: ActionTask}, true
		}
		if bot.Role == RoleImpostor && !st.KillUsed[bot.ID] {
			for _, p := range modes.SortedByID(room.AlivePlayers()) {
				if p.Role == RoleCrew {
					return parlor.Action{Type: ActionKill, TargetID: p.ID}, true
				}
			}
		}
	case PhaseVoting:
		if _, done := st.Votes[bot.ID]; done {
			return parlor.Action{}, false
		}
		for _, p := range modes.SortedByID(room.AlivePlayers()) {
			if p.ID == bot.ID {
				continue
			}
			if bot.Role == RoleImpostor && p.Role == RoleImpostor {
				continue
			}
			return parlor.Action{Type: ActionVote, TargetID: p.ID}, true
		}
		// Nobody eligible: skip.
		return parlor.Action{Type: ActionVote}, true
	}
	return parlor.Action{}, false
}

// RoleVisible lets impostors identify each other while the game runs.
func (m *Module) RoleVisible(room *parlor.Room, viewer parlor.Viewer, target *parlor.Player) bool {
	if target.Role != RoleImpostor {
		return false
	}
	v := room.PlayerByID(viewer.PlayerID)
	return v != nil && v.Role == RoleImpostor
}
