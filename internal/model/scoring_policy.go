package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoringMode selects how a policy turns answers into a score.
type ScoringMode string

const (
	ScoringModeStandard ScoringMode = "STANDARD"
	ScoringModeIQ       ScoringMode = "IQ"
)

// ScoringPolicy is a named scoring configuration attached to a quiz.
// Exactly one of Standard or IQ is set, matching Mode.
type ScoringPolicy struct {
	ID        uuid.UUID       `json:"id"`
	QuizID    uuid.UUID       `json:"quiz_id"`
	Name      string          `json:"name"`
	Mode      ScoringMode     `json:"mode"`
	IsActive  bool            `json:"is_active"`
	Standard  *StandardParams `json:"standard,omitempty"`
	IQ        *IQParams       `json:"iq,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StandardParams configures weighted/multiplier scoring.
type StandardParams struct {
	PointsPerCorrect     float64  `json:"points_per_correct"`
	PenaltyPerIncorrect  float64  `json:"penalty_per_incorrect"`
	PenaltyPerUnanswered float64  `json:"penalty_per_unanswered"`
	FlatBonus            float64  `json:"flat_bonus"`
	Multiplier           float64  `json:"multiplier"`
	TimeBonusEnabled     bool     `json:"time_bonus_enabled"`
	BonusPerSecondSaved  float64  `json:"bonus_per_second_saved"`
	MinScore             *float64 `json:"min_score,omitempty"`
	MaxScore             *float64 `json:"max_score,omitempty"`
	PassingScore         *float64 `json:"passing_score,omitempty"`
}

// IQParams configures discrete lookup by correct-answer count.
type IQParams struct {
	Table []IQTableEntry `json:"table"`
}

// IQTableEntry maps a number of correct answers to a resulting score.
type IQTableEntry struct {
	CorrectCount int     `json:"correct_count"`
	Score        float64 `json:"score"`
}

// DefaultPolicy is applied to quizzes that have no active policy configured:
// one point per correct answer, no penalties, multiplier 1.
func DefaultPolicy(quizID uuid.UUID) *ScoringPolicy {
	return &ScoringPolicy{
		QuizID: quizID,
		Name:   "default",
		Mode:   ScoringModeStandard,
		Standard: &StandardParams{
			PointsPerCorrect: 1,
			Multiplier:       1,
		},
	}
}

// PreviewScoreRequest is the payload for evaluating a policy against an
// explicit answer set (dispute resolution).
type PreviewScoreRequest struct {
	Answers           []SubmittedAnswer `json:"answers" binding:"dive"`
	TimeSpentSeconds  int               `json:"time_spent_seconds" binding:"min=0"`
	TimeBudgetSeconds *int              `json:"time_budget_seconds" binding:"omitempty,min=0"`
}
