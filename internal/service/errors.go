package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-session/internal/scoring"
)

// Domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrSessionExpired    = errors.New("session expired")
	ErrValidation        = errors.New("validation failed")
	ErrQuizNotStartable  = errors.New("quiz is not open for attempts")
	// ErrPolicyMismatch is the scoring package's data-integrity sentinel.
	ErrPolicyMismatch = scoring.ErrPolicyMismatch
	// ErrOwnershipMismatch is reported with the same shape as ErrNotFound so
	// callers cannot tell which tokens exist.
	ErrOwnershipMismatch error = ownershipError{}
)

type ownershipError struct{}

func (ownershipError) Error() string { return "session ownership mismatch" }

func (ownershipError) Is(target error) bool { return target == ErrNotFound }

// Quiz window bounds.
const (
	WindowStart = "start"
	WindowEnd   = "end"
)

// WindowError is returned when an attempt is started outside the quiz's
// start/end window. errors.Is(err, ErrValidation) holds for it.
type WindowError struct {
	Bound string
	At    time.Time
}

func (e *WindowError) Error() string {
	if e.Bound == WindowStart {
		return fmt.Sprintf("quiz opens at %s", e.At.Format(time.RFC3339))
	}
	return fmt.Sprintf("quiz closed at %s", e.At.Format(time.RFC3339))
}

func (e *WindowError) Is(target error) bool { return target == ErrValidation }
