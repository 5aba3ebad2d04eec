// Package identity binds transport connections to player seats. It resolves
// rejoin-by-name, enforces the one-seat-per-connection invariant, and issues
// single-use claim tickets that let a disconnected client reclaim its seat
// after the direct name-match window has closed.
package identity

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/parlor"
)

// Resolver implements the join/reconnect protocol. It is stateless apart
// from the ticket store; callers invoke it inside the room store's mutation
// discipline.
type Resolver struct {
	tickets TicketStore
	log     *logrus.Entry
}

// NewResolver creates a resolver backed by the given ticket store.
func NewResolver(tickets TicketStore, log *logrus.Logger) *Resolver {
	return &Resolver{tickets: tickets, log: log.WithField("component", "identity")}
}

// Tickets exposes the underlying ticket store.
func (r *Resolver) Tickets() TicketStore { return r.tickets }

// JoinResult reports how a join request resolved.
type JoinResult struct {
	Player *parlor.Player
	// Reconnected is true when an existing disconnected seat was rebound
	// instead of a new seat being created.
	Reconnected bool
}

// Join resolves (name, socketID) to exactly one seat in the room:
//
//  1. A connection already owning a seat may only re-confirm it under the
//     same name; anything else fails SOCKET_ALREADY_JOINED.
//  2. A disconnected seat with a matching name is rebound to the new
//     connection, preserving the player id.
//  3. A connected seat with a matching name fails NAME_IN_USE.
//  4. Otherwise a fresh seat is created, subject to the seat cap and the
//     room accepting joins only while in the lobby.
//
// Caller holds the room's mutation lock.
func (r *Resolver) Join(room *parlor.Room, name, socketID string, maxPlayers int) (JoinResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return JoinResult{}, parlor.E(parlor.CodeNameRequired, "a player name is required")
	}

	if seated := room.PlayerBySocket(socketID); seated != nil {
		if seated.Name == name {
			// Idempotent re-join confirmation (e.g. client retry).
			return JoinResult{Player: seated, Reconnected: true}, nil
		}
		return JoinResult{}, parlor.E(parlor.CodeSocketAlreadyJoined,
			"connection already controls seat %q in room %s", seated.Name, room.ID)
	}

	if existing := room.PlayerByName(name); existing != nil {
		if existing.Connected {
			room.ReconnectFails++
			return JoinResult{}, parlor.E(parlor.CodeNameInUse,
				"name %q is taken by a connected player", name)
		}
		// Identity-preserving reconnect: same player id, new binding.
		existing.SocketID = socketID
		existing.Connected = true
		room.RecordEvent(parlor.EventPlayerReconnected, map[string]any{
			"playerId": existing.ID,
			"name":     existing.Name,
		})
		r.log.WithFields(logrus.Fields{
			"room": room.ID, "player": existing.ID, "name": name,
		}).Info("player reconnected")
		return JoinResult{Player: existing, Reconnected: true}, nil
	}

	if room.Status != parlor.StatusLobby {
		return JoinResult{}, parlor.E(parlor.CodeInvalidState,
			"room %s is %s and not accepting new players", room.ID, room.Status)
	}
	if len(room.Players) >= maxPlayers {
		return JoinResult{}, parlor.E(parlor.CodeRoomFull,
			"room %s is full (%d seats)", room.ID, maxPlayers)
	}

	p := &parlor.Player{
		ID:        uuid.NewString(),
		SocketID:  socketID,
		Name:      name,
		Connected: true,
		Alive:     true,
	}
	room.Players = append(room.Players, p)
	room.RecordEvent(parlor.EventPlayerJoined, map[string]any{
		"playerId": p.ID,
		"name":     p.Name,
	})
	return JoinResult{Player: p}, nil
}

// Disconnect unbinds the seat attached to socketID, if any, and reports
// whether room state changed. The seat itself survives for reconnection.
// Caller holds the room's mutation lock.
func (r *Resolver) Disconnect(room *parlor.Room, socketID string) bool {
	p := room.PlayerBySocket(socketID)
	if p == nil {
		return false
	}
	p.SocketID = ""
	p.Connected = false
	room.RecordEvent(parlor.EventPlayerDisconnected, map[string]any{
		"playerId": p.ID,
		"name":     p.Name,
	})
	return true
}

// NewSocketID mints an opaque connection id for transports that do not
// bring their own.
func NewSocketID() string {
	return uuid.NewString()
}
