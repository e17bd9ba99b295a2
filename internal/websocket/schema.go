package websocket

import (
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionTick     Action = "tick"
	ActionPause    Action = "pause"
	ActionComplete Action = "complete"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// TickRequest reports active seconds since the previous tick.
type TickRequest struct {
	Action            Action         `json:"action"`
	AdditionalSeconds *int           `json:"additional_seconds" binding:"required,min=0,max=86400"`
	Metadata          map[string]any `json:"metadata"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession   Event = "session"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// SessionResponse carries the session state after a connect or an action.
type SessionResponse struct {
	Event            Event              `json:"event"`
	Session          *model.QuizSession `json:"session"`
	RemainingSeconds *int               `json:"remaining_seconds"`
}

// CompletedResponse is sent once the attempt has been scored.
type CompletedResponse struct {
	Event  Event              `json:"event"`
	Result *model.ScoreResult `json:"result"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   response.ErrCode  `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
