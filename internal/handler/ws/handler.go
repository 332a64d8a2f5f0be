package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/service"
	"github.com/windfall/storyspeak/internal/session"
)

// MessageType constants
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeSnapshot = "snapshot"
	TypeDismiss  = "dismiss_notice"
	TypeError    = "error"
)

// Sessions is the part of the session service the event stream uses.
type Sessions interface {
	Snapshot(ctx context.Context, id string) (session.Snapshot, error)
	DismissNotice(ctx context.Context, id string) (*service.SessionView, error)
}

// Handler handles messages sent by clients of a session event stream.
type Handler struct {
	log      zerolog.Logger
	sessions Sessions
}

// NewHandler creates a new WebSocket handler.
func NewHandler(log zerolog.Logger, sessions Sessions) *Handler {
	return &Handler{log: log, sessions: sessions}
}

// Response represents a WebSocket response.
type Response struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode marshals a message of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Response{Type: msgType, Payload: payload})
}

// Handle processes an incoming message for sessionID. Snapshots caused by
// the message are pushed by the hub, so only ping and snapshot requests
// produce a direct response.
func (h *Handler) Handle(ctx context.Context, sessionID, msgType string, payload json.RawMessage) ([]byte, error) {
	h.log.Debug().
		Str("session_id", sessionID).
		Str("type", msgType).
		Msg("Handling WebSocket message")

	switch msgType {
	case TypePing:
		return Encode(TypePong, map[string]string{"message": "pong"})

	case TypeSnapshot:
		return h.Snapshot(ctx, sessionID)

	case TypeDismiss:
		if _, err := h.sessions.DismissNotice(ctx, sessionID); err != nil {
			return h.errorResponse(err)
		}
		return nil, nil

	default:
		return h.errorResponse(errors.Validation("unknown message type: " + msgType))
	}
}

// Snapshot encodes the current snapshot of sessionID.
func (h *Handler) Snapshot(ctx context.Context, sessionID string) ([]byte, error) {
	snap, err := h.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return h.errorResponse(err)
	}
	return Encode(TypeSnapshot, snap)
}

func (h *Handler) errorResponse(err error) ([]byte, error) {
	appErr := errors.As(err)
	return Encode(TypeError, map[string]string{
		"code":  string(appErr.Code),
		"error": appErr.Message,
	})
}
