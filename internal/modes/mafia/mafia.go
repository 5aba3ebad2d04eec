// Package mafia implements the classic social-deduction mode: a hidden
// mafia faction kills by night, the town lynches by day, and the game ends
// when either faction is eliminated or the mafia reach parity.
package mafia

import (
	"math/rand"
	"time"

	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
)

// Phases of a mafia round.
const (
	PhaseNight      parlor.Phase = "night"
	PhaseDiscussion parlor.Phase = "discussion"
	PhaseVoting     parlor.Phase = "voting"
)

// Roles.
const (
	RoleMafia    = "mafia"
	RoleVillager = "villager"
)

// Factions reported as the winner.
const (
	WinnerMafia = "mafia"
	WinnerTown  = "town"
)

// Action types.
const (
	ActionKill = "kill"
	ActionVote = "vote"
)

// Mode-specific event types.
const (
	EventNightResolved parlor.EventType = "NIGHT_RESOLVED"
	EventVoteResolved  parlor.EventType = "VOTE_RESOLVED"
)

// Timing controls the phase timers. Tests inject short durations.
type Timing struct {
	Night      time.Duration
	Discussion time.Duration
	Voting     time.Duration
}

// DefaultTiming is the production pacing.
var DefaultTiming = Timing{
	Night:      45 * time.Second,
	Discussion: 90 * time.Second,
	Voting:     45 * time.Second,
}

// state is the mode-owned room state, stored in Room.Game.
type state struct {
	// NightVotes maps mafia player id -> kill target id for this night.
	NightVotes map[string]string
	// DayVotes maps player id -> lynch target id for this voting phase.
	DayVotes map[string]string
}

// Module implements modes.Module for mafia.
type Module struct {
	timing Timing
}

// New creates the mafia module with production timing.
func New() *Module { return NewWithTiming(DefaultTiming) }

// NewWithTiming creates the mafia module with custom phase timers.
func NewWithTiming(t Timing) *Module { return &Module{timing: t} }

func (m *Module) Mode() parlor.Mode { return parlor.ModeMafia }
func (m *Module) MinPlayers() int   { return 4 }
func (m *Module) MaxPlayers() int   { return 12 }

// Transitions is the mafia phase adjacency table. The terminal phase has
// no outgoing edges.
func (m *Module) Transitions() map[parlor.Phase][]parlor.Phase {
	return map[parlor.Phase][]parlor.Phase{
		parlor.PhaseLobby:    {PhaseNight},
		PhaseNight:           {PhaseDiscussion, parlor.PhaseFinished},
		PhaseDiscussion:      {PhaseVoting},
		PhaseVoting:          {PhaseNight, parlor.PhaseFinished},
		parlor.PhaseFinished: {},
	}
}

func (m *Module) PhaseDuration(phase parlor.Phase) time.Duration {
	switch phase {
	case PhaseNight:
		return m.timing.Night
	case PhaseDiscussion:
		return m.timing.Discussion
	case PhaseVoting:
		return m.timing.Voting
	}
	return 0
}

// MafiaCount is the number of mafia seats for n players: floor(n/4), at
// least one.
func MafiaCount(n int) int {
	k := n / 4
	if k < 1 {
		k = 1
	}
	return k
}

// Start assigns roles from a shuffled seat order and opens the first night.
func (m *Module) Start(room *parlor.Room, rng *rand.Rand) error {
	shuffled := make([]*parlor.Player, len(room.Players))
	copy(shuffled, room.Players)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	mafiaSeats := MafiaCount(len(room.Players))
	for i, p := range shuffled {
		p.Alive = true
		if i < mafiaSeats {
			p.Role = RoleMafia
		} else {
			p.Role = RoleVillager
		}
	}

	room.Game = &state{
		NightVotes: make(map[string]string),
		DayVotes:   make(map[string]string),
	}
	return modes.Transition(room, m.Transitions(), PhaseNight, modes.TransitionOptions{
		Status:     parlor.StatusInProgress,
		RoundDelta: 1,
	})
}

func (m *Module) gameState(room *parlor.Room) *state {
	st, _ := room.Game.(*state)
	return st
}

// Apply handles kill (night) and vote (voting) actions. Phase advances as
// soon as the last awaited actor has acted.
func (m *Module) Apply(room *parlor.Room, actor *parlor.Player, act parlor.Action) error {
	st := m.gameState(room)
	if st == nil {
		return parlor.E(parlor.CodeGameNotActive, "mafia room %s has no started game", room.ID)
	}
	if !actor.Alive {
		return parlor.E(parlor.CodeInvalidState, "player %s is out of the game", actor.Name)
	}

	switch act.Type {
	case ActionKill:
		if room.Phase != PhaseNight {
			return parlor.E(parlor.CodeWrongPhase, "kill is a night action (current phase %s)", room.Phase)
		}
		if actor.Role != RoleMafia {
			return parlor.E(parlor.CodeRoleForbidden, "only mafia act at night")
		}
		if _, done := st.NightVotes[actor.ID]; done {
			return parlor.E(parlor.CodeAlreadyVoted, "night target already chosen")
		}
		target := room.PlayerByID(act.TargetID)
		if target == nil || !target.Alive || target.Role == RoleMafia {
			return parlor.E(parlor.CodeInvalidTarget, "target must be a living non-mafia player")
		}
		st.NightVotes[actor.ID] = target.ID
		if m.allMafiaChose(room, st) {
			return m.resolveNight(room, st)
		}
		return nil

	case ActionVote:
		if room.Phase != PhaseVoting {
			return parlor.E(parlor.CodeWrongPhase, "vote is a day action (current phase %s)", room.Phase)
		}
		if act.TargetID == actor.ID {
			return parlor.E(parlor.CodeSelfVote, "players cannot vote for themselves")
		}
		if _, done := st.DayVotes[actor.ID]; done {
			return parlor.E(parlor.CodeAlreadyVoted, "vote already cast")
		}
		target := room.PlayerByID(act.TargetID)
		if target == nil || !target.Alive {
			return parlor.E(parlor.CodeInvalidTarget, "vote target must be a living player")
		}
		st.DayVotes[actor.ID] = target.ID
		if len(st.DayVotes) >= len(room.AlivePlayers()) {
			return m.resolveVote(room, st)
		}
		return nil
	}
	return parlor.E(parlor.CodeInvalidState, "unknown mafia action %q", act.Type)
}

// Advance resolves the current phase on timer expiry, defaulting whatever
// input is still missing.
func (m *Module) Advance(room *parlor.Room) error {
	st := m.gameState(room)
	if st == nil {
		return parlor.E(parlor.CodeGameNotActive, "mafia room %s has no started game", room.ID)
	}
	switch room.Phase {
	case PhaseNight:
		return m.resolveNight(room, st)
	case PhaseDiscussion:
		return modes.Transition(room, m.Transitions(), PhaseVoting, modes.TransitionOptions{})
	case PhaseVoting:
		return m.resolveVote(room, st)
	}
	return parlor.E(parlor.CodeWrongPhase, "nothing to advance in phase %s", room.Phase)
}

func (m *Module) allMafiaChose(room *parlor.Room, st *state) bool {
	for _, p := range room.AlivePlayers() {
		if p.Role == RoleMafia {
			if _, ok := st.NightVotes[p.ID]; !ok {
				return false
			}
		}
	}
	return true
}

// resolveNight kills the plurality night target (first-sorted id on a tie;
// no votes means no kill) and moves to discussion, or ends the game.
func (m *Module) resolveNight(room *parlor.Room, st *state) error {
	victimID := pluralityTarget(st.NightVotes)
	payload := map[string]any{"round": room.Round}
	if victim := room.PlayerByID(victimID); victim != nil && victim.Alive {
		victim.Alive = false
		payload["victimId"] = victim.ID
		payload["victimName"] = victim.Name
	}
	st.NightVotes = make(map[string]string)
	room.RecordEvent(EventNightResolved, payload)

	if winner := m.winner(room); winner != "" {
		return modes.Finish(room, m.Transitions(), winner)
	}
	return modes.Transition(room, m.Transitions(), PhaseDiscussion, modes.TransitionOptions{})
}

// resolveVote lynches the plurality vote target (first-sorted id on a tie;
// abstainers simply do not count) and opens the next night, or ends the
// game.
func (m *Module) resolveVote(room *parlor.Room, st *state) error {
	lynchedID := pluralityTarget(st.DayVotes)
	payload := map[string]any{"round": room.Round, "votes": len(st.DayVotes)}
	if lynched := room.PlayerByID(lynchedID); lynched != nil && lynched.Alive {
		lynched.Alive = false
		payload["lynchedId"] = lynched.ID
		payload["lynchedName"] = lynched.Name
	}
	st.DayVotes = make(map[string]string)
	room.RecordEvent(EventVoteResolved, payload)

	if winner := m.winner(room); winner != "" {
		return modes.Finish(room, m.Transitions(), winner)
	}
	return modes.Transition(room, m.Transitions(), PhaseNight, modes.TransitionOptions{
		RoundDelta: 1,
	})
}

// winner returns the winning faction, or "" while the game is undecided.
func (m *Module) winner(room *parlor.Room) string {
	mafiaAlive, townAlive := 0, 0
	for _, p := range room.AlivePlayers() {
		if p.Role == RoleMafia {
			mafiaAlive++
		} else {
			townAlive++
		}
	}
	if mafiaAlive == 0 {
		return WinnerTown
	}
	if mafiaAlive >= townAlive {
		return WinnerMafia
	}
	return ""
}

// BotAction implements the mafia bot policy: lexical player-id order as the
// tie-break over eligible targets.
func (m *Module) BotAction(room *parlor.Room, bot *parlor.Player) (parlor.Action, bool) {
	st := m.gameState(room)
	if st == nil || !bot.Alive {
		return parlor.Action{}, false
	}
	switch room.Phase {
	case PhaseNight:
		if bot.Role != RoleMafia {
			return parlor.Action{}, false
		}
		if _, done := st.NightVotes[bot.ID]; done {
			return parlor.Action{}, false
		}
		for _, p := range modes.SortedByID(room.AlivePlayers()) {
			if p.Role != RoleMafia {
				return parlor.Action{Type: ActionKill, TargetID: p.ID}, true
			}
		}
	case PhaseVoting:
		if _, done := st.DayVotes[bot.ID]; done {
			return parlor.Action{}, false
		}
		for _, p := range modes.SortedByID(room.AlivePlayers()) {
			if p.ID == bot.ID {
				continue
			}
			// Mafia bots never vote against their own faction.
			if bot.Role == RoleMafia && p.Role == RoleMafia {
				continue
			}
			return parlor.Action{Type: ActionVote, TargetID: p.ID}, true
		}
	}
	return parlor.Action{}, false
}

// RoleVisible lets mafia seats identify each other while the game runs.
func (m *Module) RoleVisible(room *parlor.Room, viewer parlor.Viewer, target *parlor.Player) bool {
	if target.Role != RoleMafia {
		return false
	}
	v := room.PlayerByID(viewer.PlayerID)
	return v != nil && v.Role == RoleMafia
}

// pluralityTarget tallies votes and returns the id with the most, breaking
// ties by lexical id order. Returns "" when no votes were cast.
func pluralityTarget(votes map[string]string) string {
	tally := make(map[string]int)
	for _, target := range votes {
		tally[target]++
	}
	best, bestCount := "", 0
	for id, n := range tally {
		if n > bestCount || (n == bestCount && (best == "" || id < best)) {
			best, bestCount = id, n
		}
	}
	return best
}
