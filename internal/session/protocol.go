package session

import (
	"encoding/json"
	"fmt"

	"github.com/inamate/canvas/internal/command"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/geom"
)

// Message is the envelope of every WebSocket frame.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	// Connection
	TypeWelcome = "welcome"
	TypeError   = "error"

	// Clients joining and leaving a session
	TypeJoin  = "session.join"
	TypeLeave = "session.leave"

	// Commands. The payload of a submit is a command.Command; the reply
	// carries the same seq.
	TypeSubmit = "cmd.submit"
	TypeAck    = "cmd.ack"
	TypeNack   = "cmd.nack"

	// Broadcast to every client after the view changed
	TypeRender = "scene.render"
)

// WelcomePayload is sent once after a client connects.
type WelcomePayload struct {
	ClientID string        `json:"clientId"`
	Render   RenderPayload `json:"render"`
}

// AckPayload is the payload for cmd.ack messages.
type AckPayload struct {
	Seq    int64 `json:"seq"`
	Result any   `json:"result,omitempty"`
}

// NackPayload is the payload for cmd.nack messages.
type NackPayload struct {
	Seq    int64  `json:"seq"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// PresencePayload is the payload for session.join and session.leave.
type PresencePayload struct {
	ClientID string `json:"clientId"`
	Clients  int    `json:"clients"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// RenderPayload is everything a client needs to draw the session.
type RenderPayload struct {
	Revision        uint64               `json:"revision"`
	Commands        []engine.DrawCommand `json:"commands"`
	Selection       []string             `json:"selection"`
	SelectionBounds geom.Rect            `json:"selectionBounds"`
	CanUndo         bool                 `json:"canUndo"`
	CanRedo         bool                 `json:"canRedo"`
	Viewport        engine.ViewportState `json:"viewport"`
	Gesture         bool                 `json:"gesture"`
}

func renderOf(s *engine.Session) RenderPayload {
	cmds := s.Render()
	if cmds == nil {
		cmds = []engine.DrawCommand{}
	}
	sel := s.Selection()
	if sel == nil {
		sel = []string{}
	}
	return RenderPayload{
		Revision:        s.Revision(),
		Commands:        cmds,
		Selection:       sel,
		SelectionBounds: s.SelectionBounds(),
		CanUndo:         s.CanUndo(),
		CanRedo:         s.CanRedo(),
		Viewport:        s.Viewport().State(),
		Gesture:         s.GestureActive(),
	}
}

func newMessage(typ string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: typ, Payload: data}, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", command.ErrBadArgs)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", command.ErrBadArgs, err)
	}
	return nil
}
