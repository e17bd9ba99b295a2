package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

// StatusCounter counts a quiz's sessions per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context, quizID uuid.UUID) (map[model.SessionStatus]int64, error)
}

type MonitorHandler struct {
	rdb       *redis.Client
	quizzes   service.QuizLookup
	counter   StatusCounter
	keepAlive time.Duration
	log       zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, quizzes service.QuizLookup, counter StatusCounter, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:       rdb,
		quizzes:   quizzes,
		counter:   counter,
		keepAlive: keepAliveInterval,
		log:       logger.Component(log, "monitor_handler"),
	}
}

// MonitorQuizSSE godoc
// GET /api/v1/admin/quizzes/:quiz_id/monitor
// Streams a status snapshot followed by every session event of the quiz.
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	quiz, err := h.quizzes.GetInfo(reqCtx, quizID)
	if err != nil {
		fail(c, h.log, err, response.ErrNotFound)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.QuizSessionChannel(quizID.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("quiz_id", quizID.String()).Msg("Failed to subscribe to session channel")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	h.sendSnapshot(c, reqCtx, quiz)

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Operator attached to session monitor")
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Operator detached from session monitor")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON events; forward them as-is.
			writeSSEData(c, []byte(msg.Payload))
		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, quiz *model.QuizInfo) {
	ctx, cancel := context.WithTimeout(parent, snapshotTimeout)
	defer cancel()

	counts, err := h.counter.CountByStatus(ctx, quiz.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Failed to count sessions for snapshot")
		counts = map[model.SessionStatus]int64{}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"type": "snapshot",
		"quiz": map[string]interface{}{
			"id":               quiz.ID,
			"title":            quiz.Title,
			"duration_minutes": quiz.DurationMinutes,
		},
		"stats": map[string]int64{
			"active":    counts[model.SessionStatusActive],
			"paused":    counts[model.SessionStatusPaused],
			"completed": counts[model.SessionStatusCompleted],
			"expired":   counts[model.SessionStatusExpired],
		},
	})
	writeSSEData(c, payload)
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
