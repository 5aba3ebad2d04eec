package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/matchmake"
	"github.com/parlorgames/parlor/internal/parlor"
)

// DefaultQuickJoinMode is used when a quick-join request does not name a
// mode and no open room qualifies anywhere.
const DefaultQuickJoinMode = parlor.ModeMafia

// QuickJoin seats the player in the highest-scoring open room. When a mode
// is given only that mode's rooms are considered; otherwise all modes
// compete. If no room qualifies, a fresh room is created with the player
// as host and autofilled with bots to the minimum viable seat count.
func (e *Engine) QuickJoin(ctx context.Context, preferred parlor.Mode, name, socketID string) (Session, error) {
	candidates := e.registry.Modes()
	if preferred != "" {
		if _, _, err := e.lookup(preferred); err != nil {
			return Session{}, err
		}
		candidates = []parlor.Mode{preferred}
	}

	// Candidate scoring reads live room state, so the scan runs under each
	// room's mutation lock; only the winning id and score survive it.
	bestMode, bestRoom, bestScore := parlor.Mode(""), "", 0.0
	for _, mode := range candidates {
		store, mod, _ := e.lookup(mode)
		store.ForEach(func(r *parlor.Room) {
			if !matchmake.Joinable(r, mod.MaxPlayers()) {
				return
			}
			if score := matchmake.Score(r, mod.MaxPlayers()); bestRoom == "" || score > bestScore {
				bestMode, bestRoom, bestScore = mode, r.ID, score
			}
		})
	}

	if bestRoom != "" {
		store, _, _ := e.lookup(bestMode)
		_ = store.Mutate(bestRoom, func(r *parlor.Room) error {
			r.QuickJoinOffers++
			return nil
		})
		sess, err := e.Join(ctx, bestMode, bestRoom, name, socketID, "")
		if err == nil {
			_ = store.Mutate(bestRoom, func(r *parlor.Room) error {
				r.QuickJoinJoins++
				return nil
			})
			e.log.WithFields(logrus.Fields{
				"mode": bestMode, "room": bestRoom, "score": bestScore,
			}).Info("quick-join matched")
			return sess, nil
		}
		e.log.WithError(err).WithFields(logrus.Fields{
			"mode": bestMode, "room": bestRoom,
		}).Debug("quick-join candidate rejected the player, creating a room")
	}

	mode := preferred
	if mode == "" {
		mode = DefaultQuickJoinMode
	}
	sess, err := e.Create(mode, name, socketID)
	if err != nil {
		return Session{}, err
	}
	_, mod, _ := e.lookup(mode)
	if _, err := e.Autofill(mode, sess.RoomID, sess.PlayerID, mod.MinPlayers()); err != nil {
		return Session{}, err
	}
	view, err := e.ToPublic(mode, sess.RoomID, parlor.Viewer{PlayerID: sess.PlayerID})
	if err != nil {
		return Session{}, err
	}
	sess.View = view
	return sess, nil
}
