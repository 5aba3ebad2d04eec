// Package ws fans room updates out to subscribed websocket connections.
// The hub implements the engine's Notifier: after each settled mutation it
// pushes a freshly projected view to every subscriber, redacted for that
// subscriber's seat.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Projector provides per-viewer room projections. Implemented by the
// engine.
type Projector interface {
	ToPublic(mode parlor.Mode, roomID string, viewer parlor.Viewer) (parlor.PublicView, error)
}

// writeTimeout bounds one outbound frame; a stalled client is dropped
// from the fan-out rather than blocking it.
const writeTimeout = 5 * time.Second

type roomKey struct {
	mode   parlor.Mode
	roomID string
}

type subscriber struct {
	socketID string
	playerID string
	conn     *websocket.Conn
}

// Hub tracks which connections watch which rooms.
type Hub struct {
	proj Projector
	log  *logrus.Entry

	mu    sync.Mutex
	rooms map[roomKey]map[string]*subscriber // keyed by socketID
}

// NewHub creates an empty hub projecting through proj.
func NewHub(proj Projector, log *logrus.Logger) *Hub {
	return &Hub{
		proj:  proj,
		log:   log.WithField("component", "ws"),
		rooms: make(map[roomKey]map[string]*subscriber),
	}
}

// Subscribe registers a connection as a viewer of the room. The playerID
// selects the redaction perspective; empty means spectator.
func (h *Hub) Subscribe(mode parlor.Mode, roomID, socketID, playerID string, conn *websocket.Conn) {
	key := roomKey{mode: mode, roomID: roomID}
	h.mu.Lock()
	subs, ok := h.rooms[key]
	if !ok {
		subs = make(map[string]*subscriber)
		h.rooms[key] = subs
	}
	subs[socketID] = &subscriber{socketID: socketID, playerID: playerID, conn: conn}
	h.mu.Unlock()
}

// Unsubscribe removes a connection from a room's fan-out.
func (h *Hub) Unsubscribe(mode parlor.Mode, roomID, socketID string) {
	key := roomKey{mode: mode, roomID: roomID}
	h.mu.Lock()
	if subs, ok := h.rooms[key]; ok {
		delete(subs, socketID)
		if len(subs) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()
}

// RoomChanged pushes the room's current view to every subscriber, each
// projected for their own seat. A failed write unsubscribes the
// connection; the client is expected to reconnect and claim its seat.
func (h *Hub) RoomChanged(mode parlor.Mode, roomID string) {
	key := roomKey{mode: mode, roomID: roomID}
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.rooms[key]))
	for _, s := range h.rooms[key] {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		view, err := h.proj.ToPublic(mode, roomID, parlor.Viewer{PlayerID: s.playerID})
		if err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"room": roomID, "socket": s.socketID,
			}).Warn("projection failed, skipping subscriber")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = wsjson.Write(ctx, s.conn, view)
		cancel()
		if err != nil {
			h.log.WithFields(logrus.Fields{
				"room": roomID, "socket": s.socketID,
			}).Debug("subscriber write failed, unsubscribing")
			h.Unsubscribe(mode, roomID, s.socketID)
			_ = s.conn.CloseNow()
		}
	}
}
