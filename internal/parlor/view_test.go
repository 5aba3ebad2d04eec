package parlor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redactionRoom() *Room {
	return &Room{
		ID:     "ROOM01",
		Mode:   ModeMafia,
		Status: StatusInProgress,
		Phase:  "night",
		HostID: "p1",
		Round:  2,
		Winner: "mafia",
		Players: []*Player{
			{ID: "p1", Name: "Ann", Connected: true, Role: "mafia", Alive: true},
			{ID: "p2", Name: "Bob", Connected: true, Role: "villager", Alive: true},
			{ID: "p3", Name: "Eve", Connected: false, IsBot: true, Role: "villager", Alive: false},
		},
	}
}

func TestProjectRedactsRolesInProgress(t *testing.T) {
	r := redactionRoom()
	view := Project(r, Viewer{PlayerID: "p2"}, nil)

	require.Len(t, view.Players, 3)
	assert.Equal(t, "p2", view.You)
	assert.Empty(t, view.Winner, "winner hidden until finish")

	byID := make(map[string]PublicPlayer)
	for _, p := range view.Players {
		byID[p.ID] = p
	}
	assert.Empty(t, byID["p1"].Role, "other seats' roles hidden")
	assert.Equal(t, "villager", byID["p2"].Role, "own role visible")
	assert.Empty(t, byID["p3"].Role)
	assert.True(t, byID["p1"].IsHost)
	assert.True(t, byID["p3"].Connected, "bots present as connected")
}

func TestProjectRevealsAfterFinish(t *testing.T) {
	r := redactionRoom()
	r.Status = StatusFinished
	r.Phase = PhaseFinished

	view := Project(r, Viewer{}, nil)
	assert.Equal(t, "mafia", view.Winner)
	for _, p := range view.Players {
		assert.NotEmpty(t, p.Role, "all roles public after finish")
	}
}

func TestProjectSpectatorSeesNoRoles(t *testing.T) {
	view := Project(redactionRoom(), Viewer{}, nil)
	for _, p := range view.Players {
		assert.Empty(t, p.Role)
	}
}

func TestProjectModeReveal(t *testing.T) {
	r := redactionRoom()
	mafiaSeesMafia := func(room *Room, viewer Viewer, target *Player) bool {
		v := room.PlayerByID(viewer.PlayerID)
		return v != nil && v.Role == "mafia" && target.Role == "mafia"
	}

	view := Project(r, Viewer{PlayerID: "p1"}, mafiaSeesMafia)
	byID := make(map[string]PublicPlayer)
	for _, p := range view.Players {
		byID[p.ID] = p
	}
	assert.Equal(t, "mafia", byID["p1"].Role)
	assert.Empty(t, byID["p2"].Role, "partner rule does not leak other roles")
}

func TestVisibilityTable(t *testing.T) {
	running := redactionRoom()
	done := redactionRoom()
	done.Status = StatusFinished
	target := running.Players[0]

	assert.True(t, VisAlways.Revealed(running, Viewer{}, target))
	assert.False(t, VisAfterFinish.Revealed(running, Viewer{}, target))
	assert.True(t, VisAfterFinish.Revealed(done, Viewer{}, target))
	assert.False(t, VisOwnerOnly.Revealed(running, Viewer{PlayerID: "p2"}, target))
	assert.True(t, VisOwnerOnly.Revealed(running, Viewer{PlayerID: "p1"}, target))
	assert.True(t, VisOwnerOnly.Revealed(done, Viewer{PlayerID: "p2"}, target))
}
