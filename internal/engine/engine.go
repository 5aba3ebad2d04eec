// Package engine composes the room stores, game modules, scheduler,
// identity resolver, and event log into the boundary operations exposed to
// the transport layer. Every operation mutates a room inside its store's
// mutation discipline and settles afterwards: bots play, pending events are
// drained into the durable log, the phase timer is re-armed, and
// subscribers are notified.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/eventlog"
	"github.com/parlorgames/parlor/internal/identity"
	"github.com/parlorgames/parlor/internal/metrics"
	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/parlor"
	"github.com/parlorgames/parlor/internal/room"
	"github.com/parlorgames/parlor/internal/scheduler"
)

// Notifier delivers a room's current public view to every connection
// subscribed to it. The engine calls it after each settled mutation; the
// implementation pulls per-viewer projections through ToPublic.
type Notifier interface {
	RoomChanged(mode parlor.Mode, roomID string)
}

// Moderator screens free-text payloads. A rejection carries a stable
// reason code surfaced to the submitting player.
type Moderator func(text string) (ok bool, reason string)

// maxTextLen bounds chat and answer payloads.
const maxTextLen = 280

// DefaultModerator rejects empty and oversized text.
func DefaultModerator(text string) (bool, string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return false, "empty"
	}
	if len(t) > maxTextLen {
		return false, "too_long"
	}
	return true, ""
}

// Options configures an Engine. Registry and Log are required; the rest
// default to in-process implementations.
type Options struct {
	Registry *modes.Registry
	Events   *eventlog.Log
	Tickets  identity.TicketStore
	Notifier Notifier
	Moderate Moderator
	Metrics  *metrics.Metrics
	Rand     *rand.Rand
	Logger   *logrus.Logger
}

// Engine owns one room store per registered mode and routes every boundary
// operation through it.
type Engine struct {
	log      *logrus.Logger
	registry *modes.Registry
	stores   map[parlor.Mode]*room.Store
	sched    *scheduler.Scheduler
	events   *eventlog.Log
	ids      *identity.Resolver
	notifier Notifier
	moderate Moderator
	metrics  *metrics.Metrics
}

// New wires an Engine from options.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Moderate == nil {
		opts.Moderate = DefaultModerator
	}
	if opts.Tickets == nil {
		opts.Tickets = identity.NewMemoryTickets()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Engine{
		log:      opts.Logger,
		registry: opts.Registry,
		stores:   make(map[parlor.Mode]*room.Store),
		sched:    scheduler.New(opts.Logger),
		events:   opts.Events,
		ids:      identity.NewResolver(opts.Tickets, opts.Logger),
		notifier: opts.Notifier,
		moderate: opts.Moderate,
		metrics:  opts.Metrics,
	}
	e.sched.OnStale(func(key scheduler.Key) {
		e.metrics.StaleTimerFired(key.Namespace)
	})
	for _, mode := range opts.Registry.Modes() {
		e.stores[mode] = room.NewStore(mode, opts.Rand, opts.Logger)
	}
	return e
}

// SetNotifier installs the fan-out sink after construction. The notifier
// usually projects views back through the engine, so it cannot exist
// before the engine does.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// Session identifies a caller's seat after create/join, bundled with the
// public view projected for that seat.
type Session struct {
	Mode        parlor.Mode       `json:"mode"`
	RoomID      string            `json:"roomId"`
	PlayerID    string            `json:"playerId"`
	Reconnected bool              `json:"reconnected"`
	View        parlor.PublicView `json:"state"`
}

// StartResult reports what start-ready changed before the game began.
type StartResult struct {
	AddedBots      []string          `json:"addedBots"`
	RemovedPlayers []string          `json:"removedDisconnectedHumans"`
	View           parlor.PublicView `json:"state"`
}

// AutofillResult reports the bots added by an autofill.
type AutofillResult struct {
	AddedBots []string          `json:"addedBots"`
	View      parlor.PublicView `json:"state"`
}

func (e *Engine) lookup(mode parlor.Mode) (*room.Store, modes.Module, error) {
	store, ok := e.stores[mode]
	if !ok {
		return nil, nil, parlor.E(parlor.CodeRoomNotFound, "unknown game mode %q", mode)
	}
	mod, _ := e.registry.Get(mode)
	return store, mod, nil
}

// Create opens a new room with hostName seated as the connected host.
func (e *Engine) Create(mode parlor.Mode, hostName, socketID string) (Session, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return Session{}, err
	}
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return Session{}, parlor.E(parlor.CodeNameRequired, "a host name is required")
	}

	r := store.Create(hostName)
	var sess Session
	err = store.Mutate(r.ID, func(r *parlor.Room) error {
		host := r.PlayerByID(r.HostID)
		host.SocketID = socketID
		e.settle(store, mod, r)
		sess = e.session(mod, r, host.ID, false)
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	e.metrics.RoomCreated(mode)
	e.notify(mode, r.ID)
	return sess, nil
}

// Join seats (name, socketID) in the room, resolving reconnects by name.
// A claim ticket, when present and valid, overrides the name with the one
// the ticket was issued for; an invalid ticket falls back to a plain join.
func (e *Engine) Join(ctx context.Context, mode parlor.Mode, roomID, name, socketID, claimToken string) (Session, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return Session{}, err
	}
	if claimToken != "" {
		claimed, ok, terr := e.ids.Tickets().Consume(ctx, string(mode), roomID, claimToken)
		if terr != nil {
			e.log.WithError(terr).WithField("room", roomID).Warn("ticket lookup failed")
		} else if ok {
			name = claimed
		}
	}

	var sess Session
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		res, jerr := e.ids.Join(r, name, socketID, mod.MaxPlayers())
		if jerr != nil {
			return jerr
		}
		e.settle(store, mod, r)
		sess = e.session(mod, r, res.Player.ID, res.Reconnected)
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	e.notify(mode, roomID)
	return sess, nil
}

// StartReady is the host-only lobby gate: drop disconnected human seats
// (never the host's own), backfill bots to the minimum viable count, then
// start the game.
func (e *Engine) StartReady(mode parlor.Mode, roomID, playerID string) (StartResult, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return StartResult{}, err
	}

	var result StartResult
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		if err := requireHost(r, playerID); err != nil {
			return err
		}
		if r.Status != parlor.StatusLobby {
			return parlor.E(parlor.CodeInvalidState, "room %s already started", r.ID)
		}

		result.RemovedPlayers = removeDisconnected(r)
		result.AddedBots = addBots(r, mod.MinPlayers())
		if len(r.Players) < mod.MinPlayers() {
			return parlor.E(parlor.CodeNotEnoughPlayers,
				"room %s has %d of %d required players", r.ID, len(r.Players), mod.MinPlayers())
		}

		if err := e.start(store, mod, r); err != nil {
			return err
		}
		e.settle(store, mod, r)
		result.View = e.viewFor(mod, r, playerID)
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}
	e.notify(mode, roomID)
	return result, nil
}

// start runs the module's role assignment and first transition under the
// store's RNG lock, then records GAME_STARTED.
func (e *Engine) start(store *room.Store, mod modes.Module, r *parlor.Room) error {
	var err error
	store.Rand(func(rng *rand.Rand) {
		err = mod.Start(r, rng)
	})
	if err != nil {
		return err
	}
	r.RecordEvent(parlor.EventGameStarted, map[string]any{
		"phase":   string(r.Phase),
		"players": len(r.Players),
	})
	e.metrics.GameStarted(r.Mode)
	return nil
}

// SubmitAction routes a player action through moderation and the mode
// module. The action type "chat" is handled by the engine itself.
func (e *Engine) SubmitAction(mode parlor.Mode, roomID, playerID string, act parlor.Action) (parlor.PublicView, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return parlor.PublicView{}, err
	}

	var view parlor.PublicView
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		actor := r.PlayerByID(playerID)
		if actor == nil {
			return parlor.E(parlor.CodeMissingPlayers, "player %s is not seated in room %s", playerID, r.ID)
		}
		if act.Text != "" {
			if ok, reason := e.moderate(act.Text); !ok {
				return parlor.E(parlor.CodeTextRejected, "text payload rejected").
					WithDetails(map[string]any{"reason": reason})
			}
		}

		if act.Type == "chat" {
			r.RecordEvent(parlor.EventChatMessage, map[string]any{
				"playerId": actor.ID, "name": actor.Name, "text": act.Text,
			})
		} else {
			if r.Status != parlor.StatusInProgress {
				return parlor.E(parlor.CodeGameNotActive, "room %s has no game in progress", r.ID)
			}
			if err := mod.Apply(r, actor, act); err != nil {
				return err
			}
			r.RecordEvent(parlor.EventActionSubmitted, map[string]any{
				"playerId": actor.ID, "type": act.Type,
			})
			e.metrics.ActionSubmitted(mode, act.Type)
		}

		e.settle(store, mod, r)
		view = e.viewFor(mod, r, playerID)
		return nil
	})
	if err != nil {
		return parlor.PublicView{}, err
	}
	e.notify(mode, roomID)
	return view, nil
}

// Autofill is the host-only operation that adds bots up to minPlayers.
// It never grows the room past the mode's seat cap and only runs in the
// lobby.
func (e *Engine) Autofill(mode parlor.Mode, roomID, playerID string, minPlayers int) (AutofillResult, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return AutofillResult{}, err
	}

	var result AutofillResult
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		if err := requireHost(r, playerID); err != nil {
			return err
		}
		if r.Status != parlor.StatusLobby {
			return parlor.E(parlor.CodeInvalidState, "bots can only be added in the lobby")
		}
		target := minPlayers
		if target < mod.MinPlayers() {
			target = mod.MinPlayers()
		}
		if target > mod.MaxPlayers() {
			target = mod.MaxPlayers()
		}
		result.AddedBots = addBots(r, target)
		e.settle(store, mod, r)
		result.View = e.viewFor(mod, r, playerID)
		return nil
	})
	if err != nil {
		return AutofillResult{}, err
	}
	e.notify(mode, roomID)
	return result, nil
}

// Rematch is the host-only reset of a finished room back to the lobby,
// keeping seats, the party chain id, and the running streak.
func (e *Engine) Rematch(mode parlor.Mode, roomID, playerID string) (parlor.PublicView, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return parlor.PublicView{}, err
	}

	var view parlor.PublicView
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		if err := requireHost(r, playerID); err != nil {
			return err
		}
		if r.Status != parlor.StatusFinished {
			return parlor.E(parlor.CodeInvalidState, "rematch requires a finished game")
		}
		e.sched.ClearRoom(r.ID, string(mode))

		r.Status = parlor.StatusLobby
		r.Phase = parlor.PhaseLobby
		r.Round = 0
		r.Winner = ""
		r.Game = nil
		r.Streak++
		r.RematchCount++
		for _, p := range r.Players {
			p.Alive = true
			p.Role = ""
		}
		r.RecordEvent(parlor.EventRematchPrepared, map[string]any{
			"streak": r.Streak,
		})
		e.settle(store, mod, r)
		view = e.viewFor(mod, r, playerID)
		return nil
	})
	if err != nil {
		return parlor.PublicView{}, err
	}
	e.notify(mode, roomID)
	return view, nil
}

// Disconnect unbinds the connection's seat, if any, and issues a claim
// ticket the client can later use to reclaim the seat by token instead of
// racing on the name.
func (e *Engine) Disconnect(ctx context.Context, mode parlor.Mode, roomID, socketID string) (changed bool, claimToken string) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return false, ""
	}

	var seatName string
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		if p := r.PlayerBySocket(socketID); p != nil {
			seatName = p.Name
		}
		changed = e.ids.Disconnect(r, socketID)
		if changed {
			e.settle(store, mod, r)
		}
		return nil
	})
	if err != nil || !changed {
		return false, ""
	}

	token, terr := e.ids.Tickets().Issue(ctx, string(mode), roomID, seatName)
	if terr != nil {
		e.log.WithError(terr).WithField("room", roomID).Warn("claim ticket issue failed")
	} else {
		claimToken = token
	}
	e.notify(mode, roomID)
	return changed, claimToken
}

// ToPublic projects the room for a viewer, applying the mode's role
// visibility rules on top of the owner-only/after-finish defaults.
func (e *Engine) ToPublic(mode parlor.Mode, roomID string, viewer parlor.Viewer) (parlor.PublicView, error) {
	store, mod, err := e.lookup(mode)
	if err != nil {
		return parlor.PublicView{}, err
	}
	var view parlor.PublicView
	err = store.Mutate(roomID, func(r *parlor.Room) error {
		view = parlor.Project(r, viewer, mod.RoleVisible)
		return nil
	})
	return view, err
}

// PlayerIDForSocket resolves a connection binding to its seat id, or ""
// when the connection owns no seat in the room.
func (e *Engine) PlayerIDForSocket(mode parlor.Mode, roomID, socketID string) string {
	store, _, err := e.lookup(mode)
	if err != nil {
		return ""
	}
	var id string
	_ = store.Mutate(roomID, func(r *parlor.Room) error {
		if p := r.PlayerBySocket(socketID); p != nil {
			id = p.ID
		}
		return nil
	})
	return id
}

// Tail returns the most recent in-memory events for a room.
func (e *Engine) Tail(mode parlor.Mode, roomID string, n int) []parlor.RoomEvent {
	return e.events.Tail(mode, roomID, n)
}

// Replay reconstructs a room's coarse state from the durable event log.
func (e *Engine) Replay(ctx context.Context, mode parlor.Mode, roomID string) (eventlog.Summary, error) {
	return e.events.Replay(ctx, mode, roomID)
}

// Close cancels all timers and forces a final durable flush.
func (e *Engine) Close(ctx context.Context) error {
	e.sched.ClearAll()
	return e.events.Close(ctx)
}

// settle finishes a mutation while the room lock is still held: bots take
// their turns, recorded events are drained into the durable log exactly
// once, and the phase timer is re-armed for the room's current state.
func (e *Engine) settle(store *room.Store, mod modes.Module, r *parlor.Room) {
	e.runBots(mod, r)
	for _, ev := range r.DrainPendingEvents() {
		e.events.Append(ev.Mode, ev.RoomID, ev.Type, ev.Payload)
	}
	e.armAdvance(store, mod, r)
}

func (e *Engine) notify(mode parlor.Mode, roomID string) {
	if e.notifier != nil {
		e.notifier.RoomChanged(mode, roomID)
	}
}

func (e *Engine) session(mod modes.Module, r *parlor.Room, playerID string, reconnected bool) Session {
	return Session{
		Mode:        r.Mode,
		RoomID:      r.ID,
		PlayerID:    playerID,
		Reconnected: reconnected,
		View:        e.viewFor(mod, r, playerID),
	}
}

func (e *Engine) viewFor(mod modes.Module, r *parlor.Room, playerID string) parlor.PublicView {
	return parlor.Project(r, parlor.Viewer{PlayerID: playerID}, mod.RoleVisible)
}

func requireHost(r *parlor.Room, playerID string) error {
	if r.HostID != playerID {
		return parlor.E(parlor.CodeHostOnly, "only the host of room %s may do this", r.ID)
	}
	return nil
}

// removeDisconnected drops disconnected human seats, never the host's.
func removeDisconnected(r *parlor.Room) []string {
	var removed []string
	kept := r.Players[:0]
	for _, p := range r.Players {
		if !p.Connected && !p.IsBot && p.ID != r.HostID {
			removed = append(removed, p.Name)
			r.RecordEvent(parlor.EventPlayerRemoved, map[string]any{
				"playerId": p.ID, "name": p.Name,
			})
			continue
		}
		kept = append(kept, p)
	}
	r.Players = kept
	return removed
}

// addBots backfills bot seats until the room holds at least target players.
func addBots(r *parlor.Room, target int) []string {
	var added []string
	for i := 1; len(r.Players) < target; i++ {
		name := fmt.Sprintf("Bot %d", i)
		if r.PlayerByName(name) != nil {
			continue
		}
		bot := &parlor.Player{
			ID:        uuid.NewString(),
			Name:      name,
			Connected: true,
			IsBot:     true,
			Alive:     true,
		}
		r.Players = append(r.Players, bot)
		added = append(added, name)
	}
	if len(added) > 0 {
		r.RecordEvent(parlor.EventBotsAdded, map[string]any{
			"count": len(added), "names": added,
		})
	}
	return added
}
