package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
)

// botIterationCap bounds one settle's bot loop. Generous enough for every
// bot to act in every phase of a full round; any module bug that would
// loop forever hits the cap and is logged instead.
const botIterationCap = 256

// runBots lets bot seats play until none has a move or the game ends.
// Modules keep the advancement logic: an action that completes a phase
// advances it inside Apply, and the loop simply continues in the new
// phase. Caller holds the room's mutation lock.
func (e *Engine) runBots(mod modes.Module, r *parlor.Room) {
	if r.Status != parlor.StatusInProgress {
		return
	}
	for iter := 0; iter < botIterationCap; iter++ {
		progressed := false
		for _, p := range r.Players {
			if !p.IsBot || r.Status != parlor.StatusInProgress {
				continue
			}
			act, ok := mod.BotAction(r, p)
			if !ok {
				continue
			}
			if err := mod.Apply(r, p, act); err != nil {
				e.log.WithError(err).WithFields(logrus.Fields{
					"room": r.ID, "bot": p.Name, "action": act.Type,
				}).Warn("bot action rejected")
				continue
			}
			r.RecordEvent(parlor.EventActionSubmitted, map[string]any{
				"playerId": p.ID, "type": act.Type, "bot": true,
			})
			e.metrics.BotActionPlayed(r.Mode)
			progressed = true
		}
		if !progressed || r.Status == parlor.StatusFinished {
			return
		}
	}
	e.log.WithField("room", r.ID).Warn("bot loop hit iteration cap")
}
