// Package agent implements the guess-the-agent mode: one hidden agent sits
// among the players, everyone answers a prompt each round, then votes on who
// the agent is. The humans score a point when the vote lands on the agent,
// the agent scores by surviving it. First side to the score target takes the
// match.
package agent

import (
	"math/rand"
	"time"

	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
)

// Phases.
const (
	PhaseAnswering parlor.Phase = "answering"
	PhaseVoting    parlor.Phase = "voting"
	PhaseReveal    parlor.Phase = "reveal"
)

// Roles.
const (
	RoleAgent = "agent"
	RoleHuman = "human"
)

// Factions reported as the winner.
const (
	WinnerHumans = "humans"
	WinnerAgent  = "agent"
)

// Action types.
const (
	ActionAnswer = "answer"
	ActionVote   = "vote"
)

// Mode-specific event types.
const (
	EventAnswer parlor.EventType = "ANSWER_SUBMITTED"
	EventReveal parlor.EventType = "ROUND_REVEALED"
)

// ScoreTarget is the round score that ends the match.
const ScoreTarget = 3

// Timing controls the phase timers.
type Timing struct {
	Answering time.Duration
	Voting    time.Duration
	Reveal    time.Duration
}

// DefaultTiming is the production pacing.
var DefaultTiming = Timing{
	Answering: 60 * time.Second,
	Voting:    45 * time.Second,
	Reveal:    15 * time.Second,
}

type state struct {
	AgentID string
	// Answers maps player id -> submitted text for the current round.
	Answers map[string]string
	// Votes maps voter id -> suspected agent id.
	Votes map[string]string
	// Score tracking toward ScoreTarget.
	HumanScore int
	AgentScore int
	// Caught records whether the last vote landed on the agent, for reveal.
	Caught bool
}

// Module implements modes.Module for guess-the-agent.
type Module struct {
	timing Timing
}

// New creates the module with production timing.
func New() *Module { return NewWithTiming(DefaultTiming) }

// NewWithTiming creates the module with custom phase timers.
func NewWithTiming(t Timing) *Module { return &Module{timing: t} }

func (m *Module) Mode() parlor.Mode { return parlor.ModeGuessAgent }
func (m *Module) MinPlayers() int   { return 3 }
func (m *Module) MaxPlayers() int   { return 8 }

func (m *Module) Transitions() map[parlor.Phase][]parlor.Phase {
	return map[parlor.Phase][]parlor.Phase{
		parlor.PhaseLobby:    {PhaseAnswering},
		PhaseAnswering:       {PhaseVoting},
		PhaseVoting:          {PhaseReveal},
		PhaseReveal:          {PhaseAnswering, parlor.PhaseFinished},
		parlor.PhaseFinished: {},
	}
}

func (m *Module) PhaseDuration(phase parlor.Phase) time.Duration {
	switch phase {
	case PhaseAnswering:
		return m.timing.Answering
	case PhaseVoting:
		return m.timing.Voting
	case PhaseReveal:
		return m.timing.Reveal
	}
	return 0
}

// Start picks one seat as the hidden agent and opens the first answering
// phase.
func (m *Module) Start(room *parlor.Room, rng *rand.Rand) error {
	agentAt := rng.Intn(len(room.Players))
	st := &state{
		Answers: make(map[string]string),
		Votes:   make(map[string]string),
	}
	for i, p := range room.Players {
		p.Alive = true
		if i == agentAt {
			p.Role = RoleAgent
			st.AgentID = p.ID
		} else {
			p.Role = RoleHuman
		}
	}
	room.Game = st
	return modes.Transition(room, m.Transitions(), PhaseAnswering, modes.TransitionOptions{
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
		return parlor.E(parlor.CodeGameNotActive, "agent room %s has no started game", room.ID)
	}

	switch act.Type {
	case ActionAnswer:
		if room.Phase != PhaseAnswering {
			return parlor.E(parlor.CodeWrongPhase, "answers can only be submitted in the answering phase")
		}
		if _, done := st.Answers[actor.ID]; done {
			return parlor.E(parlor.CodeAlreadyResponded, "answer already submitted this round")
		}
		if act.Text == "" {
			return parlor.E(parlor.CodeInvalidState, "answers cannot be empty")
		}
		st.Answers[actor.ID] = act.Text
		room.RecordEvent(EventAnswer, map[string]any{
			"playerId": actor.ID, "playerName": actor.Name, "round": room.Round,
		})
		if len(st.Answers) >= len(room.Players) {
			return modes.Transition(room, m.Transitions(), PhaseVoting, modes.TransitionOptions{})
		}
		return nil

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
		if room.PlayerByID(act.TargetID) == nil {
			return parlor.E(parlor.CodeInvalidTarget, "vote target is not in the room")
		}
		st.Votes[actor.ID] = act.TargetID
		if len(st.Votes) >= len(room.Players) {
			return m.resolveVote(room, st)
		}
		return nil
	}
	return parlor.E(parlor.CodeInvalidState, "unknown agent action %q", act.Type)
}

func (m *Module) Advance(room *parlor.Room) error {
	st := m.gameState(room)
	if st == nil {
		return parlor.E(parlor.CodeGameNotActive, "agent room %s has no started game", room.ID)
	}
	switch room.Phase {
	case PhaseAnswering:
		return modes.Transition(room, m.Transitions(), PhaseVoting, modes.TransitionOptions{})
	case PhaseVoting:
		return m.resolveVote(room, st)
	case PhaseReveal:
		return m.nextRound(room, st)
	}
	return parlor.E(parlor.CodeWrongPhase, "nothing to advance in phase %s", room.Phase)
}

// resolveVote scores the round: the humans score when the plurality lands on
// the agent, the agent scores otherwise. Ties on the top tally break to the
// first-sorted candidate.
func (m *Module) resolveVote(room *parlor.Room, st *state) error {
	tally := make(map[string]int)
	for _, target := range st.Votes {
		tally[target]++
	}
	accused, topCount := "", 0
	for id, n := range tally {
		if n > topCount || (n == topCount && (accused == "" || id < accused)) {
			accused, topCount = id, n
		}
	}

	st.Caught = accused == st.AgentID && topCount > 0
	if st.Caught {
		st.HumanScore++
	} else {
		st.AgentScore++
	}
	room.RecordEvent(EventReveal, map[string]any{
		"round": room.Round, "accusedId": accused, "agentCaught": st.Caught,
		"humanScore": st.HumanScore, "agentScore": st.AgentScore,
	})
	return modes.Transition(room, m.Transitions(), PhaseReveal, modes.TransitionOptions{})
}

func (m *Module) nextRound(room *parlor.Room, st *state) error {
	if st.HumanScore >= ScoreTarget {
		return modes.Finish(room, m.Transitions(), WinnerHumans)
	}
	if st.AgentScore >= ScoreTarget {
		return modes.Finish(room, m.Transitions(), WinnerAgent)
	}
	st.Answers = make(map[string]string)
	st.Votes = make(map[string]string)
	return modes.Transition(room, m.Transitions(), PhaseAnswering, modes.TransitionOptions{
		RoundDelta: 1,
	})
}

// BotAction submits a canned answer during answering and votes the
// first-sorted seat other than the bot.
func (m *Module) BotAction(room *parlor.Room, bot *parlor.Player) (parlor.Action, bool) {
	st := m.gameState(room)
	if st == nil {
		return parlor.Action{}, false
	}
	switch room.Phase {
	case PhaseAnswering:
		if _, done := st.Answers[bot.ID]; done {
			return parlor.Action{}, false
		}
		return parlor.Action{Type: ActionAnswer, Text: "no comment"}, true
	case PhaseVoting:
		if _, done := st.Votes[bot.ID]; done {
			return parlor.Action{}, false
		}
		for _, p := range modes.SortedByID(room.Players) {
			if p.ID == bot.ID {
				continue
			}
			return parlor.Action{Type: ActionVote, TargetID: p.ID}, true
		}
	}
	return parlor.Action{}, false
}

// RoleVisible is false while the game runs: only the agent knows who the
// agent is, and seats never see their own role through the public view.
func (m *Module) RoleVisible(room *parlor.Room, viewer parlor.Viewer, target *parlor.Player) bool {
	st := m.gameState(room)
	if st == nil {
		return false
	}
	return viewer.PlayerID == st.AgentID && target.ID == st.AgentID
}
