package villa

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorgames/parlor/internal/parlor"
)

func newStartedRoom(t *testing.T, m *Module, n int) *parlor.Room {
	t.Helper()
	r := &parlor.Room{
		ID:     "ROOM01",
		Mode:   parlor.ModeVilla,
		Status: parlor.StatusLobby,
		Phase:  parlor.PhaseLobby,
	}
	for i := 0; i < n; i++ {
		p := &parlor.Player{
			ID:        string(rune('a' + i)),
			Name:      "P" + string(rune('a'+i)),
			Connected: true,
			Alive:     true,
		}
		if i == 0 {
			r.HostID = p.ID
		}
		r.Players = append(r.Players, p)
	}
	require.NoError(t, m.Start(r, rand.New(rand.NewSource(3))))
	r.DrainPendingEvents()
	return r
}

func TestStartHasNoHiddenRoles(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)

	assert.Equal(t, parlor.StatusInProgress, r.Status)
	assert.Equal(t, PhaseCoupling, r.Phase)
	for _, p := range r.Players {
		assert.Empty(t, p.Role)
		assert.False(t, m.RoleVisible(r, parlor.Viewer{PlayerID: p.ID}, p))
	}
}

func TestPickValidation(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	a, b := r.Players[0], r.Players[1]

	err := m.Apply(r, a, parlor.Action{Type: ActionPick, TargetID: a.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeSelfVote))

	err = m.Apply(r, a, parlor.Action{Type: ActionPick, TargetID: "nobody"})
	assert.True(t, parlor.IsCode(err, parlor.CodeInvalidTarget))

	require.NoError(t, m.Apply(r, a, parlor.Action{Type: ActionPick, TargetID: b.ID}))
	err = m.Apply(r, a, parlor.Action{Type: ActionPick, TargetID: b.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeAlreadyResponded))
}

func TestCeremonyEliminatesLeastPicked(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	a, b, c, d := r.Players[0], r.Players[1], r.Players[2], r.Players[3]

	// a, c, d pick b; b picks a; c and d receive no picks, elimination
	// tie-breaks to the first-sorted of them: c.
	require.NoError(t, m.Apply(r, a, parlor.Action{Type: ActionPick, TargetID: b.ID}))
	require.NoError(t, m.Apply(r, b, parlor.Action{Type: ActionPick, TargetID: a.ID}))
	require.NoError(t, m.Apply(r, c, parlor.Action{Type: ActionPick, TargetID: b.ID}))
	require.NoError(t, m.Apply(r, d, parlor.Action{Type: ActionPick, TargetID: b.ID}))
	require.Equal(t, PhaseCeremony, r.Phase, "last pick closes coupling")

	require.NoError(t, m.Advance(r))
	assert.False(t, c.Alive)
	assert.True(t, d.Alive)
	assert.Equal(t, PhaseCoupling, r.Phase)
	assert.Equal(t, 2, r.Round)
}

func TestFinalCoupleWins(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	a, b := r.Players[0], r.Players[1]

	// Round 1 eliminates one seat, leaving 3.
	require.NoError(t, m.Advance(r)) // empty coupling -> ceremony
	require.NoError(t, m.Advance(r)) // first-sorted (a) had zero picks
	require.False(t, a.Alive)
	require.Len(t, r.AlivePlayers(), 3)

	// Round 2 goes down to 2 and finishes.
	require.NoError(t, m.Advance(r))
	require.NoError(t, m.Advance(r))
	assert.Equal(t, parlor.StatusFinished, r.Status)
	assert.Len(t, r.AlivePlayers(), 2)
	assert.Contains(t, r.Winner, " & ")
	_ = b
}

func TestEliminatedSeatCannotPick(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	a, b := r.Players[0], r.Players[1]

	require.NoError(t, m.Advance(r))
	require.NoError(t, m.Advance(r)) // eliminates a
	require.False(t, a.Alive)

	err := m.Apply(r, a, parlor.Action{Type: ActionPick, TargetID: b.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeInvalidState))

	err = m.Apply(r, b, parlor.Action{Type: ActionPick, TargetID: a.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeInvalidTarget), "eliminated seats are not partners")
}

func TestBotPicksFirstSortedOther(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	bot := r.Players[2]
	bot.IsBot = true

	act, ok := m.BotAction(r, bot)
	require.True(t, ok)
	assert.Equal(t, ActionPick, act.Type)
	assert.Equal(t, r.Players[0].ID, act.TargetID)

	require.NoError(t, m.Apply(r, bot, act))
	_, ok = m.BotAction(r, bot)
	assert.False(t, ok, "one pick per round")
}
