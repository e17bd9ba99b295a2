package scoring

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrPolicyMismatch marks data-integrity faults: a policy evaluated
	// against another quiz, or an answer outside the quiz's question bank.
	ErrPolicyMismatch = errors.New("scoring policy mismatch")
	// ErrInvalidPolicy is returned for policies whose parameters cannot be
	// evaluated.
	ErrInvalidPolicy = errors.New("invalid scoring policy")
)

// IntegrityError reports an answer that references a question the quiz does
// not have. errors.Is(err, ErrPolicyMismatch) holds for it.
type IntegrityError struct {
	QuizID     uuid.UUID
	QuestionID uuid.UUID
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("answer references question %s outside quiz %s", e.QuestionID, e.QuizID)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrPolicyMismatch
}
