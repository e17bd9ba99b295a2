package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// SessionHandler exposes the participant-facing session lifecycle.
type SessionHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      logger.Component(log, "session_handler"),
	}
}

// Start godoc
// POST /api/v1/sessions
// Starts an attempt, or returns the participant's live attempt for the quiz.
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Start(c.Request.Context(), service.StartInput{
		QuizID:                req.QuizID,
		ParticipantEmail:      req.ParticipantEmail,
		UserID:                req.UserID,
		ParticipantIdentifier: req.ParticipantIdentifier,
	})
	if err != nil {
		fail(c, h.log, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// Get godoc
// GET /api/v1/sessions/:token
func (h *SessionHandler) Get(c *gin.Context) {
	snap, err := h.sessions.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, h.log, err, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// Resume godoc
// POST /api/v1/sessions/:token/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	var req model.ResumeSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Resume(c.Request.Context(), c.Param("token"), req.ParticipantEmail)
	if err != nil {
		fail(c, h.log, err, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// Pause godoc
// POST /api/v1/sessions/:token/pause
func (h *SessionHandler) Pause(c *gin.Context) {
	sess, err := h.sessions.Pause(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, h.log, err, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// UpdateTime godoc
// POST /api/v1/sessions/:token/time
// Adds reported active seconds and merges client progress metadata.
func (h *SessionHandler) UpdateTime(c *gin.Context) {
	var req model.UpdateTimeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.UpdateTime(c.Request.Context(), c.Param("token"), *req.AdditionalSeconds, req.Metadata)
	if err != nil {
		fail(c, h.log, err, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// Complete godoc
// POST /api/v1/sessions/:token/complete
// Scores the attempt. Completing twice returns the stored result.
func (h *SessionHandler) Complete(c *gin.Context) {
	sess, err := h.sessions.Complete(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, h.log, err, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, sess)
}
