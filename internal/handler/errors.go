package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/scoring"
	"github.com/stemsi/exstem-session/internal/service"
)

// apiError is a service error translated for transport.
type apiError struct {
	status int
	code   response.ErrCode
	fields map[string]string
}

// classify maps a service error to its HTTP status and error code.
// notFound is the code used for ErrNotFound on this route.
func classify(err error, notFound response.ErrCode) apiError {
	var we *service.WindowError
	switch {
	case errors.As(err, &we):
		code := response.ErrQuizNotOpen
		field := "opens_at"
		if we.Bound == service.WindowEnd {
			code, field = response.ErrQuizClosed, "closed_at"
		}
		return apiError{http.StatusUnprocessableEntity, code, map[string]string{field: we.At.UTC().Format(time.RFC3339)}}
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return apiError{status: http.StatusNotFound, code: notFound}
	case errors.Is(err, service.ErrSessionExpired):
		return apiError{status: http.StatusGone, code: response.ErrSessionExpired}
	case errors.Is(err, service.ErrInvalidTransition):
		return apiError{status: http.StatusConflict, code: response.ErrInvalidTransition}
	case errors.Is(err, service.ErrQuizNotStartable):
		return apiError{status: http.StatusUnprocessableEntity, code: response.ErrQuizNotStartable}
	case errors.Is(err, service.ErrPolicyMismatch):
		return apiError{status: http.StatusUnprocessableEntity, code: response.ErrPolicyMismatch}
	case errors.Is(err, scoring.ErrInvalidPolicy):
		return apiError{http.StatusUnprocessableEntity, response.ErrInvalidPolicy, map[string]string{"detail": err.Error()}}
	case errors.Is(err, service.ErrValidation):
		return apiError{http.StatusBadRequest, response.ErrValidation, map[string]string{"detail": err.Error()}}
	default:
		return apiError{status: http.StatusInternalServerError, code: response.ErrInternal}
	}
}

// fail writes err as an error envelope. Unclassified errors are logged
// because their detail never reaches the client.
func fail(c *gin.Context, log zerolog.Logger, err error, notFound response.ErrCode) {
	e := classify(err, notFound)
	if e.status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	_ = c.Error(err)
	if e.fields != nil {
		response.FailWithFields(c, e.status, e.code, e.fields)
		return
	}
	response.Fail(c, e.status, e.code)
}

// uuidParam parses a UUID path parameter, writing INVALID_ID on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
