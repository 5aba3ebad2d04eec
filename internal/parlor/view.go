package parlor

// Viewer identifies the perspective a public view is projected for. A zero
// Viewer is a spectator: it sees only fields visible to everyone.
type Viewer struct {
	PlayerID string
}

// Visibility classifies when a redacted field becomes visible.
type Visibility int

const (
	// VisAlways fields are never redacted.
	VisAlways Visibility = iota
	// VisAfterFinish fields are revealed once the room reaches a terminal
	// state.
	VisAfterFinish
	// VisOwnerOnly fields are visible only to the seat that owns them
	// (until the room finishes, when they become public).
	VisOwnerOnly
)

// Revealed reports whether a field with this visibility may be shown to the
// viewer for the given target seat.
func (v Visibility) Revealed(room *Room, viewer Viewer, target *Player) bool {
	switch v {
	case VisAlways:
		return true
	case VisAfterFinish:
		return room.Status == StatusFinished
	case VisOwnerOnly:
		return room.Status == StatusFinished || viewer.PlayerID == target.ID
	}
	return false
}

// PublicPlayer is the redacted projection of a seat.
type PublicPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	IsBot     bool   `json:"isBot"`
	Alive     bool   `json:"alive"`
	IsHost    bool   `json:"isHost"`
	Role      string `json:"role,omitempty"` // empty while redacted
}

// PublicView is the redacted projection of a room handed to the transport
// layer. It carries no references into live room state.
type PublicView struct {
	RoomID       string         `json:"roomId"`
	Mode         Mode           `json:"mode"`
	PartyChainID string         `json:"partyChainId"`
	Status       Status         `json:"status"`
	Phase        Phase          `json:"phase"`
	HostID       string         `json:"hostId"`
	Round        int            `json:"round"`
	Streak       int            `json:"streak"`
	Winner       string         `json:"winner,omitempty"`
	Players      []PublicPlayer `json:"players"`
	You          string         `json:"you,omitempty"`
}

// RoleVisibleFunc decides whether a target seat's role may be revealed to a
// viewer. Each mode supplies its own rule (e.g. mafia seats see each other).
type RoleVisibleFunc func(room *Room, viewer Viewer, target *Player) bool

// Project builds the redacted view of a room for a viewer. roleVisible may
// be nil, in which case roles follow the owner-only rule.
func Project(room *Room, viewer Viewer, roleVisible RoleVisibleFunc) PublicView {
	view := PublicView{
		RoomID:       room.ID,
		Mode:         room.Mode,
		PartyChainID: room.PartyChainID,
		Status:       room.Status,
		Phase:        room.Phase,
		HostID:       room.HostID,
		Round:        room.Round,
		Streak:       room.Streak,
		You:          viewer.PlayerID,
	}
	// Winner identity is public only once the room has finished.
	if VisAfterFinish.Revealed(room, viewer, nil) {
		view.Winner = room.Winner
	}
	view.Players = make([]PublicPlayer, len(room.Players))
	for i, p := range room.Players {
		pp := PublicPlayer{
			ID:        p.ID,
			Name:      p.Name,
			Connected: p.Connected || p.IsBot,
			IsBot:     p.IsBot,
			Alive:     p.Alive,
			IsHost:    p.ID == room.HostID,
		}
		reveal := VisOwnerOnly.Revealed(room, viewer, p)
		if !reveal && roleVisible != nil {
			reveal = roleVisible(room, viewer, p)
		}
		if reveal {
			pp.Role = p.Role
		}
		view.Players[i] = pp
	}
	return view
}
