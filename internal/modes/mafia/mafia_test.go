package mafia

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorgames/parlor/internal/parlor"
)

// newStartedRoom builds a room of n players with roles assigned from a
// fixed seed, then drains the start events so tests assert only their own.
func newStartedRoom(t *testing.T, m *Module, n int) *parlor.Room {
	t.Helper()
	r := &parlor.Room{
		ID:     "ROOM01",
		Mode:   parlor.ModeMafia,
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
	require.NoError(t, m.Start(r, rand.New(rand.NewSource(7))))
	r.DrainPendingEvents()
	return r
}

func mafiosi(r *parlor.Room) []*parlor.Player {
	var out []*parlor.Player
	for _, p := range r.Players {
		if p.Role == RoleMafia {
			out = append(out, p)
		}
	}
	return out
}

func villagers(r *parlor.Room) []*parlor.Player {
	var out []*parlor.Player
	for _, p := range r.Players {
		if p.Role == RoleVillager {
			out = append(out, p)
		}
	}
	return out
}

func TestMafiaCount(t *testing.T) {
	assert.Equal(t, 1, MafiaCount(4))
	assert.Equal(t, 1, MafiaCount(7))
	assert.Equal(t, 2, MafiaCount(8))
	assert.Equal(t, 3, MafiaCount(12))
	assert.Equal(t, 1, MafiaCount(3), "never fewer than one")
}

func TestStartAssignsRoles(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 8)

	assert.Equal(t, parlor.StatusInProgress, r.Status)
	assert.Equal(t, PhaseNight, r.Phase)
	assert.Equal(t, 1, r.Round)
	assert.Len(t, mafiosi(r), 2)
	assert.Len(t, villagers(r), 6)
}

func TestStartIsSeedDeterministic(t *testing.T) {
	assign := func() []string {
		m := New()
		r := newStartedRoom(t, m, 8)
		var roles []string
		for _, p := range r.Players {
			roles = append(roles, p.Role)
		}
		return roles
	}
	assert.Equal(t, assign(), assign())
}

func TestKillValidation(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	maf := mafiosi(r)[0]
	vil := villagers(r)[0]

	// Villagers have no night action.
	err := m.Apply(r, vil, parlor.Action{Type: ActionKill, TargetID: maf.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeRoleForbidden))

	// Mafia cannot target mafia.
	err = m.Apply(r, maf, parlor.Action{Type: ActionKill, TargetID: maf.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeInvalidTarget))

	err = m.Apply(r, maf, parlor.Action{Type: ActionKill, TargetID: "nobody"})
	assert.True(t, parlor.IsCode(err, parlor.CodeInvalidTarget))
}

func TestNightResolvesWhenAllMafiaChose(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 8)
	maf := mafiosi(r)
	victim := villagers(r)[0]

	require.NoError(t, m.Apply(r, maf[0], parlor.Action{Type: ActionKill, TargetID: victim.ID}))
	assert.Equal(t, PhaseNight, r.Phase, "waits for the second mafioso")

	// Repeat choice rejected.
	err := m.Apply(r, maf[0], parlor.Action{Type: ActionKill, TargetID: victim.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeAlreadyVoted))

	require.NoError(t, m.Apply(r, maf[1], parlor.Action{Type: ActionKill, TargetID: victim.ID}))
	assert.Equal(t, PhaseDiscussion, r.Phase)
	assert.False(t, victim.Alive)

	events := r.DrainPendingEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventNightResolved, events[0].Type)
	assert.Equal(t, victim.ID, events[0].Payload["victimId"])
	assert.Equal(t, parlor.EventPhaseAdvanced, events[1].Type)
}

func TestNightTimeoutWithoutVotesKillsNobody(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 8)

	require.NoError(t, m.Advance(r))
	assert.Equal(t, PhaseDiscussion, r.Phase)
	assert.Len(t, r.AlivePlayers(), 8)
}

func TestVotingFlow(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 8)
	require.NoError(t, m.Advance(r)) // night, no kill
	require.NoError(t, m.Advance(r)) // discussion -> voting
	require.Equal(t, PhaseVoting, r.Phase)

	target := mafiosi(r)[0]
	voters := r.AlivePlayers()

	err := m.Apply(r, target, parlor.Action{Type: ActionVote, TargetID: target.ID})
	assert.True(t, parlor.IsCode(err, parlor.CodeSelfVote))

	for _, v := range voters {
		if v.ID == target.ID {
			continue
		}
		require.NoError(t, m.Apply(r, v, parlor.Action{Type: ActionVote, TargetID: target.ID}))
	}
	// Last voter resolves by timer (the target abstained all along, so the
	// phase was still waiting on them).
	require.NoError(t, m.Advance(r))

	assert.False(t, target.Alive)
	assert.Equal(t, PhaseNight, r.Phase)
	assert.Equal(t, 2, r.Round)
}

func TestVoteTieBreaksToFirstSortedID(t *testing.T) {
	tie := map[string]string{"v1": "c", "v2": "b", "v3": "b", "v4": "c"}
	assert.Equal(t, "b", pluralityTarget(tie))
	assert.Equal(t, "", pluralityTarget(map[string]string{}))
}

func TestMafiaParityWins(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	maf := mafiosi(r)[0]
	vils := villagers(r)

	// Night kill brings it to 1 mafia vs 2 town.
	require.NoError(t, m.Apply(r, maf, parlor.Action{Type: ActionKill, TargetID: vils[0].ID}))
	require.NoError(t, m.Advance(r)) // discussion -> voting

	// The town splits; the lynch lands on a villager and mafia reach parity.
	require.NoError(t, m.Apply(r, maf, parlor.Action{Type: ActionVote, TargetID: vils[1].ID}))
	require.NoError(t, m.Apply(r, vils[1], parlor.Action{Type: ActionVote, TargetID: vils[2].ID}))
	require.NoError(t, m.Apply(r, vils[2], parlor.Action{Type: ActionVote, TargetID: vils[1].ID}))

	assert.Equal(t, parlor.StatusFinished, r.Status)
	assert.Equal(t, WinnerMafia, r.Winner)
}

func TestTownWinsWhenMafiaEliminated(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 4)
	maf := mafiosi(r)[0]
	require.NoError(t, m.Advance(r)) // empty night
	require.NoError(t, m.Advance(r)) // discussion -> voting

	for _, p := range r.AlivePlayers() {
		if p.ID == maf.ID {
			continue
		}
		require.NoError(t, m.Apply(r, p, parlor.Action{Type: ActionVote, TargetID: maf.ID}))
	}
	require.NoError(t, m.Advance(r))

	assert.Equal(t, parlor.StatusFinished, r.Status)
	assert.Equal(t, WinnerTown, r.Winner)
	assert.False(t, maf.Alive)
}

func TestBotPolicyDeterministic(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 8)
	maf := mafiosi(r)[0]
	maf.IsBot = true

	act, ok := m.BotAction(r, maf)
	require.True(t, ok)
	assert.Equal(t, ActionKill, act.Type)

	// First-sorted living non-mafia id.
	var want string
	for _, p := range r.Players {
		if p.Role != RoleMafia && (want == "" || p.ID < want) {
			want = p.ID
		}
	}
	assert.Equal(t, want, act.TargetID)

	// Villager bots sleep through the night.
	vil := villagers(r)[0]
	_, ok = m.BotAction(r, vil)
	assert.False(t, ok)
}

func TestRoleVisibility(t *testing.T) {
	m := New()
	r := newStartedRoom(t, m, 8)
	maf := mafiosi(r)
	vil := villagers(r)[0]

	assert.True(t, m.RoleVisible(r, parlor.Viewer{PlayerID: maf[0].ID}, maf[1]))
	assert.False(t, m.RoleVisible(r, parlor.Viewer{PlayerID: vil.ID}, maf[0]))
	assert.False(t, m.RoleVisible(r, parlor.Viewer{PlayerID: maf[0].ID}, vil))
	assert.False(t, m.RoleVisible(r, parlor.Viewer{}, maf[0]))
}

func TestActionsRejectedBeforeStart(t *testing.T) {
	m := New()
	r := &parlor.Room{ID: "R", Status: parlor.StatusLobby, Phase: parlor.PhaseLobby}
	p := &parlor.Player{ID: "a", Alive: true}
	r.Players = []*parlor.Player{p}

	err := m.Apply(r, p, parlor.Action{Type: ActionVote, TargetID: "b"})
	assert.True(t, parlor.IsCode(err, parlor.CodeGameNotActive))
}
