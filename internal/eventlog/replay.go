package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Summary is the coarse room state reconstructed by folding the durable
// event sequence. It is derived purely from the log, so it works for rooms
// whose in-memory entity no longer exists.
type Summary struct {
	Mode         parlor.Mode   `json:"mode"`
	RoomID       string        `json:"roomId"`
	Status       parlor.Status `json:"status"`
	Phase        parlor.Phase  `json:"phase"`
	Winner       string        `json:"winner,omitempty"`
	RoundsPlayed int           `json:"roundsPlayed"`
	Events       int           `json:"events"`
	FirstAt      time.Time     `json:"firstAt"`
	LastAt       time.Time     `json:"lastAt"`
}

// Replay folds a room's durable events, oldest first, into a Summary.
// Pending events are flushed first so the reconstruction is current as of
// the call. Fails if the sink does not support reading back events.
func (l *Log) Replay(ctx context.Context, mode parlor.Mode, roomID string) (Summary, error) {
	src, ok := l.sink.(Source)
	if !ok {
		return Summary{}, fmt.Errorf("event sink %T does not support replay", l.sink)
	}
	if err := l.Flush(ctx); err != nil {
		return Summary{}, fmt.Errorf("flush before replay: %w", err)
	}
	events, err := src.Read(ctx, mode, roomID)
	if err != nil {
		return Summary{}, err
	}
	return Fold(mode, roomID, events), nil
}

// Fold reconstructs a Summary from an ordered event sequence.
func Fold(mode parlor.Mode, roomID string, events []parlor.RoomEvent) Summary {
	s := Summary{Mode: mode, RoomID: roomID, Events: len(events)}
	for i, ev := range events {
		if i == 0 {
			s.FirstAt = ev.At
		}
		s.LastAt = ev.At
		switch ev.Type {
		case parlor.EventRoomCreated, parlor.EventRematchPrepared:
			s.Status = parlor.StatusLobby
			s.Phase = parlor.PhaseLobby
			s.Winner = ""
			s.RoundsPlayed = 0
		case parlor.EventGameStarted:
			s.Status = parlor.StatusInProgress
			if phase, ok := ev.Payload["phase"].(string); ok {
				s.Phase = parlor.Phase(phase)
			}
			s.RoundsPlayed = 1
		case parlor.EventPhaseAdvanced:
			if phase, ok := ev.Payload["to"].(string); ok {
				s.Phase = parlor.Phase(phase)
			}
			if round, ok := numeric(ev.Payload["round"]); ok && round > s.RoundsPlayed {
				s.RoundsPlayed = round
			}
		case parlor.EventGameFinished:
			s.Status = parlor.StatusFinished
			s.Phase = parlor.PhaseFinished
			if winner, ok := ev.Payload["winner"].(string); ok {
				s.Winner = winner
			}
		}
	}
	return s
}

// numeric unwraps a payload number that may arrive as int (in-process) or
// float64 (decoded from JSON).
func numeric(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
