// Package matchmake ranks open rooms for quick-join placement. Scoring is
// a pure function of room state so it can be tested in isolation.
package matchmake

import "github.com/parlorgames/parlor/internal/parlor"

// Score weights. Penalties are capped so one bad signal cannot push an
// otherwise healthy room below an empty one.
const (
	weightFill      = 2.0
	weightConvert   = 1.0
	weightRematch   = 0.5
	weightHost      = 0.5
	penaltyPerDisc  = 0.3
	penaltyDiscCap  = 0.9
	penaltyReconFac = 1.0
	penaltyReconCap = 0.5
	rematchSaturate = 3 // streaks beyond this add nothing
)

// Joinable reports whether a room can accept a quick-join player right now.
func Joinable(r *parlor.Room, maxPlayers int) bool {
	return r.Status == parlor.StatusLobby && len(r.Players) < maxPlayers
}

// Score computes the match-quality score for an open room. Higher is
// better. Callers should only score rooms that are Joinable.
func Score(r *parlor.Room, maxPlayers int) float64 {
	fill := float64(len(r.Players)) / float64(maxPlayers)

	convert := 0.0
	if r.QuickJoinOffers > 0 {
		convert = float64(r.QuickJoinJoins) / float64(r.QuickJoinOffers)
	}

	rematch := float64(r.RematchCount)
	if rematch > rematchSaturate {
		rematch = rematchSaturate
	}
	rematch /= rematchSaturate

	host := 0.0
	if h := r.PlayerByID(r.HostID); h != nil && (h.Connected || h.IsBot) {
		host = 1.0
	}

	disconnected := 0
	for _, p := range r.Players {
		if !p.Connected && !p.IsBot {
			disconnected++
		}
	}
	discPenalty := penaltyPerDisc * float64(disconnected)
	if discPenalty > penaltyDiscCap {
		discPenalty = penaltyDiscCap
	}

	reconPenalty := 0.0
	if attempts := r.ReconnectFails + len(r.Players); attempts > 0 {
		reconPenalty = penaltyReconFac * float64(r.ReconnectFails) / float64(attempts)
	}
	if reconPenalty > penaltyReconCap {
		reconPenalty = penaltyReconCap
	}

	return weightFill*fill +
		weightConvert*convert +
		weightRematch*rematch +
		weightHost*host -
		discPenalty - reconPenalty
}
