package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/identity"
	"github.com/parlorgames/parlor/internal/parlor"
)

// request is one client command frame.
type request struct {
	Op         string        `json:"op"`
	Mode       parlor.Mode   `json:"mode,omitempty"`
	RoomID     string        `json:"roomId,omitempty"`
	Name       string        `json:"name,omitempty"`
	ClaimToken string        `json:"claimToken,omitempty"`
	Min        int           `json:"min,omitempty"`
	N          int           `json:"n,omitempty"`
	Action     parlor.Action `json:"action,omitempty"`
}

// response is the reply envelope. Failures carry the domain error's stable
// code; Data holds the op-specific success payload.
type response struct {
	Op      string         `json:"op"`
	OK      bool           `json:"ok"`
	Code    parlor.Code    `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Data    any            `json:"data,omitempty"`
}

// Handler upgrades websocket connections and runs their command loop.
type Handler struct {
	eng *engine.Engine
	hub *Hub
	log *logrus.Entry
}

// NewHandler creates the websocket entry point.
func NewHandler(eng *engine.Engine, hub *Hub, log *logrus.Logger) *Handler {
	return &Handler{eng: eng, hub: hub, log: log.WithField("component", "ws")}
}

// ServeHTTP accepts the websocket and serves commands until the client
// goes away, then releases the seat binding for reconnection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	socketID := identity.NewSocketID()
	var mode parlor.Mode
	var roomID string

	ctx := r.Context()
	for {
		var req request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			var closeErr websocket.CloseError
			if !errors.As(err, &closeErr) && ctx.Err() == nil {
				h.log.WithError(err).Debug("websocket read failed")
			}
			break
		}
		resp := h.handle(ctx, conn, socketID, &mode, &roomID, req)
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			break
		}
	}

	if roomID != "" {
		h.hub.Unsubscribe(mode, roomID, socketID)
		h.eng.Disconnect(context.Background(), mode, roomID, socketID)
	}
}

func (h *Handler) handle(ctx context.Context, conn *websocket.Conn, socketID string, mode *parlor.Mode, roomID *string, req request) response {
	attach := func(sess engine.Session) {
		*mode, *roomID = sess.Mode, sess.RoomID
		h.hub.Subscribe(sess.Mode, sess.RoomID, socketID, sess.PlayerID, conn)
	}

	switch req.Op {
	case "create":
		sess, err := h.eng.Create(req.Mode, req.Name, socketID)
		if err != nil {
			return fail(req.Op, err)
		}
		attach(sess)
		return ok(req.Op, sess)

	case "join":
		sess, err := h.eng.Join(ctx, req.Mode, req.RoomID, req.Name, socketID, req.ClaimToken)
		if err != nil {
			return fail(req.Op, err)
		}
		attach(sess)
		return ok(req.Op, sess)

	case "quickjoin":
		sess, err := h.eng.QuickJoin(ctx, req.Mode, req.Name, socketID)
		if err != nil {
			return fail(req.Op, err)
		}
		attach(sess)
		return ok(req.Op, sess)

	case "start":
		result, err := h.eng.StartReady(*mode, *roomID, h.seat(*mode, *roomID, socketID))
		if err != nil {
			return fail(req.Op, err)
		}
		return ok(req.Op, result)

	case "action":
		view, err := h.eng.SubmitAction(*mode, *roomID, h.seat(*mode, *roomID, socketID), req.Action)
		if err != nil {
			return fail(req.Op, err)
		}
		return ok(req.Op, view)

	case "autofill":
		result, err := h.eng.Autofill(*mode, *roomID, h.seat(*mode, *roomID, socketID), req.Min)
		if err != nil {
			return fail(req.Op, err)
		}
		return ok(req.Op, result)

	case "rematch":
		view, err := h.eng.Rematch(*mode, *roomID, h.seat(*mode, *roomID, socketID))
		if err != nil {
			return fail(req.Op, err)
		}
		return ok(req.Op, view)

	case "tail":
		return ok(req.Op, h.eng.Tail(*mode, *roomID, req.N))

	case "replay":
		summary, err := h.eng.Replay(ctx, req.Mode, req.RoomID)
		if err != nil {
			return fail(req.Op, err)
		}
		return ok(req.Op, summary)
	}
	return response{Op: req.Op, Code: parlor.CodeInvalidState, Message: "unknown op"}
}

// seat resolves the caller's player id from its connection binding.
func (h *Handler) seat(mode parlor.Mode, roomID, socketID string) string {
	return h.eng.PlayerIDForSocket(mode, roomID, socketID)
}

func ok(op string, data any) response {
	return response{Op: op, OK: true, Data: data}
}

func fail(op string, err error) response {
	var perr *parlor.Error
	if errors.As(err, &perr) {
		return response{Op: op, Code: perr.Code, Message: perr.Message, Details: perr.Details}
	}
	return response{Op: op, Code: parlor.CodeInvalidState, Message: err.Error()}
}
