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

// ScoringHandler exposes scoring policy administration.
type ScoringHandler struct {
	scoring *service.ScoringService
	log     zerolog.Logger
}

// NewScoringHandler creates a new ScoringHandler.
func NewScoringHandler(scoring *service.ScoringService, log zerolog.Logger) *ScoringHandler {
	return &ScoringHandler{
		scoring: scoring,
		log:     logger.Component(log, "scoring_handler"),
	}
}

// ListPolicies godoc
// GET /api/v1/admin/quizzes/:quiz_id/policies
func (h *ScoringHandler) ListPolicies(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	policies, err := h.scoring.ListPolicies(c.Request.Context(), quizID)
	if err != nil {
		fail(c, h.log, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"policies": policies})
}

// Activate godoc
// PUT /api/v1/admin/quizzes/:quiz_id/policies/:policy_id/activate
// Makes the policy the quiz's only active one.
func (h *ScoringHandler) Activate(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	policyID, ok := uuidParam(c, "policy_id")
	if !ok {
		return
	}

	if err := h.scoring.SetActivePolicy(c.Request.Context(), quizID, policyID); err != nil {
		fail(c, h.log, err, response.ErrPolicyNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"quiz_id": quizID, "active_policy_id": policyID})
}

// Preview godoc
// POST /api/v1/admin/quizzes/:quiz_id/policies/:policy_id/preview
// Scores an explicit answer set with the policy without touching sessions.
func (h *ScoringHandler) Preview(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	policyID, ok := uuidParam(c, "policy_id")
	if !ok {
		return
	}

	var req model.PreviewScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.scoring.Preview(c.Request.Context(), quizID, policyID, req)
	if err != nil {
		fail(c, h.log, err, response.ErrPolicyNotFound)
		return
	}
	response.Success(c, http.StatusOK, result)
}
