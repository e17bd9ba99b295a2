package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// actionTimeout bounds one session operation triggered over the socket.
const actionTimeout = 10 * time.Second

// SessionWSHandler drives a session over a WebSocket: the client ticks
// active time and may pause or complete without separate HTTP calls.
type SessionWSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewSessionWSHandler creates a new SessionWSHandler.
// allowedOrigins comes from config.Config.AllowedOrigins.
func NewSessionWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *SessionWSHandler {
	return &SessionWSHandler{
		sessions: sessions,
		log:      logger.Component(log, "session_ws_handler"),
		upgrader: ws.NewUpgrader(allowedOrigins),
	}
}

// Stream godoc
// GET /api/v1/sessions/:token/ws
func (h *SessionWSHandler) Stream(c *gin.Context) {
	token := c.Param("token")

	// Unknown tokens get a plain HTTP error instead of an upgrade.
	snap, err := h.sessions.Get(c.Request.Context(), token)
	if err != nil {
		fail(c, h.log, err, response.ErrSessionNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_token", token).
		Str("quiz_id", snap.Session.QuizID.String()).
		Logger()
	wsLog.Info().Msg("Participant connected")

	ws.WriteTyped(conn, ws.SessionResponse{
		Event:            ws.EventSession,
		Session:          &snap.Session,
		RemainingSeconds: snap.RemainingSeconds,
	})

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, response.ErrInvalidPayload, nil)
			continue
		}

		var done bool
		switch env.Action {
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		case ws.ActionTick:
			done = h.handleTick(conn, token, data)
		case ws.ActionPause:
			done = h.run(conn, func(ctx context.Context) (*model.QuizSession, error) {
				return h.sessions.Pause(ctx, token)
			})
		case ws.ActionComplete:
			done = h.handleComplete(conn, wsLog, token)
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, response.ErrInvalidPayload, map[string]string{"action": "unknown action: " + string(env.Action)})
		}
		if done {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (h *SessionWSHandler) handleTick(conn *websocket.Conn, token string, data []byte) bool {
	var req ws.TickRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, response.ErrInvalidPayload, nil)
		return false
	}
	if fields := validator.Struct(&req); fields != nil {
		ws.WriteError(conn, response.ErrValidation, fields)
		return false
	}
	return h.run(conn, func(ctx context.Context) (*model.QuizSession, error) {
		return h.sessions.UpdateTime(ctx, token, *req.AdditionalSeconds, req.Metadata)
	})
}

func (h *SessionWSHandler) handleComplete(conn *websocket.Conn, wsLog zerolog.Logger, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	sess, err := h.sessions.Complete(ctx, token)
	if err != nil {
		return h.writeErr(conn, err)
	}
	if sess.Result != nil {
		wsLog.Info().Float64("score", sess.Result.Score).Msg("Session completed over socket")
	}
	ws.WriteTyped(conn, ws.CompletedResponse{Event: ws.EventCompleted, Result: sess.Result})
	return true
}

// run applies op and reports the resulting state. It returns true once the
// session can no longer change.
func (h *SessionWSHandler) run(conn *websocket.Conn, op func(ctx context.Context) (*model.QuizSession, error)) bool {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	sess, err := op(ctx)
	if err != nil {
		return h.writeErr(conn, err)
	}
	ws.WriteTyped(conn, ws.SessionResponse{
		Event:            ws.EventSession,
		Session:          sess,
		RemainingSeconds: sess.RemainingSeconds,
	})
	return sess.Status.IsTerminal()
}

func (h *SessionWSHandler) writeErr(conn *websocket.Conn, err error) bool {
	e := classify(err, response.ErrSessionNotFound)
	if e.code == response.ErrInternal {
		h.log.Error().Err(err).Msg("Socket action failed")
	}
	ws.WriteError(conn, e.code, e.fields)
	return e.code == response.ErrSessionExpired || e.code == response.ErrSessionNotFound
}
