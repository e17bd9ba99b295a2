package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/worker"
)

// SweeperHandler exposes the expiration sweeper to operators.
type SweeperHandler struct {
	sweeper *worker.ExpirationSweeper
	log     zerolog.Logger
}

func NewSweeperHandler(sweeper *worker.ExpirationSweeper, log zerolog.Logger) *SweeperHandler {
	return &SweeperHandler{
		sweeper: sweeper,
		log:     logger.Component(log, "sweeper_handler"),
	}
}

// Status godoc
// GET /api/v1/admin/sweeper
func (h *SweeperHandler) Status(c *gin.Context) {
	status, err := h.sweeper.Status(c.Request.Context())
	if err != nil {
		fail(c, h.log, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Run godoc
// POST /api/v1/admin/sweeper/run
// Runs one sweep now and returns its report.
func (h *SweeperHandler) Run(c *gin.Context) {
	report, err := h.sweeper.RunNow(c.Request.Context())
	if err != nil {
		fail(c, h.log, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, report)
}
