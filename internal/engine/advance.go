package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
	"github.com/parlorgames/parlor/internal/room"
	"github.com/parlorgames/parlor/internal/scheduler"
)

// phaseSlot is the scheduler slot for timed phase advances; one per room.
const phaseSlot = "phase"

func phaseKey(mode parlor.Mode, roomID string) scheduler.Key {
	return scheduler.Key{Namespace: string(mode), RoomID: roomID, Slot: phaseSlot}
}

// armAdvance (re)schedules the timer-driven advance for the room's current
// phase, or clears it when the room is not in a timed phase. The token
// captured here is re-checked both by the scheduler and against the live
// room at fire time, so an advance raced by a player action is inert.
// Caller holds the room's mutation lock.
func (e *Engine) armAdvance(store *room.Store, mod modes.Module, r *parlor.Room) {
	key := phaseKey(r.Mode, r.ID)
	if r.Status != parlor.StatusInProgress {
		e.sched.Clear(key)
		return
	}
	d := mod.PhaseDuration(r.Phase)
	if d <= 0 {
		e.sched.Clear(key)
		return
	}

	mode, roomID, token := r.Mode, r.ID, r.AdvanceToken()
	e.sched.Schedule(key, d, token, func() {
		e.autoAdvance(store, mod, mode, roomID, token)
	})
}

// autoAdvance is the timer callback: re-fetch the room by id, re-validate
// the staleness token against live state, and only then run the module's
// phase resolution.
func (e *Engine) autoAdvance(store *room.Store, mod modes.Module, mode parlor.Mode, roomID, token string) {
	err := store.Mutate(roomID, func(r *parlor.Room) error {
		if r.Status != parlor.StatusInProgress || r.AdvanceToken() != token {
			e.log.WithFields(logrus.Fields{
				"room": roomID, "token": token,
			}).Debug("room moved on before phase timer, skipping")
			return nil
		}
		if err := mod.Advance(r); err != nil {
			return err
		}
		e.settle(store, mod, r)
		return nil
	})
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"mode": mode, "room": roomID,
		}).Warn("timed phase advance failed")
		return
	}
	e.notify(mode, roomID)
}
