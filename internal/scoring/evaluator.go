// Package scoring turns an answer set into a score under a quiz's scoring
// policy. It performs no I/O.
package scoring

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Input is everything needed to score one attempt.
type Input struct {
	QuizID           uuid.UUID
	Answers          []model.SubmittedAnswer
	Bank             []model.QuestionKey
	TimeSpentSeconds int
	// TimeBudgetSeconds replaces the one-minute-per-question budget when set.
	TimeBudgetSeconds *int
	QuizPassingScore  float64
}

// Evaluate scores in under policy.
func Evaluate(policy *model.ScoringPolicy, in Input) (*model.ScoreResult, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: no policy", ErrInvalidPolicy)
	}
	if policy.QuizID != in.QuizID {
		return nil, fmt.Errorf("%w: policy %s belongs to quiz %s, not %s",
			ErrPolicyMismatch, policy.ID, policy.QuizID, in.QuizID)
	}
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}

	counts, err := Tally(in.QuizID, in.Answers, in.Bank)
	if err != nil {
		return nil, err
	}

	var result model.ScoreResult
	switch policy.Mode {
	case model.ScoringModeStandard:
		result = Standard(*policy.Standard, counts, in.TimeSpentSeconds, in.TimeBudgetSeconds, in.QuizPassingScore)
	case model.ScoringModeIQ:
		result, err = IQ(*policy.IQ, counts)
		if err != nil {
			return nil, err
		}
	}

	if policy.ID != uuid.Nil {
		id := policy.ID
		result.PolicyID = &id
	}
	return &result, nil
}

// ValidatePolicy checks that policy can be evaluated.
func ValidatePolicy(policy *model.ScoringPolicy) error {
	switch policy.Mode {
	case model.ScoringModeStandard:
		p := policy.Standard
		if p == nil {
			return fmt.Errorf("%w: standard parameters missing", ErrInvalidPolicy)
		}
		if p.Multiplier < 0 {
			return fmt.Errorf("%w: multiplier must be >= 0", ErrInvalidPolicy)
		}
		if p.MaxScore != nil && *p.MaxScore < 0 {
			return fmt.Errorf("%w: max score must be >= 0", ErrInvalidPolicy)
		}
		if p.MinScore != nil && p.MaxScore != nil && *p.MinScore > *p.MaxScore {
			return fmt.Errorf("%w: min score exceeds max score", ErrInvalidPolicy)
		}
	case model.ScoringModeIQ:
		if policy.IQ == nil || len(policy.IQ.Table) == 0 {
			return fmt.Errorf("%w: IQ table is empty", ErrInvalidPolicy)
		}
		seen := make(map[int]struct{}, len(policy.IQ.Table))
		for _, e := range policy.IQ.Table {
			if e.CorrectCount < 0 {
				return fmt.Errorf("%w: negative correct count %d", ErrInvalidPolicy, e.CorrectCount)
			}
			if _, dup := seen[e.CorrectCount]; dup {
				return fmt.Errorf("%w: duplicate correct count %d", ErrInvalidPolicy, e.CorrectCount)
			}
			seen[e.CorrectCount] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, policy.Mode)
	}
	return nil
}
