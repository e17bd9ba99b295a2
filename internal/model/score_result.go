package model

import "github.com/google/uuid"

// IQCategory is a fixed score band of IQ-mode scoring.
type IQCategory string

const (
	IQCategoryGifted      IQCategory = "Gifted"
	IQCategorySuperior    IQCategory = "Superior"
	IQCategoryHighAverage IQCategory = "High Average"
	IQCategoryAverage     IQCategory = "Average"
	IQCategoryLowAverage  IQCategory = "Low Average"
	IQCategoryBorderline  IQCategory = "Borderline"
)

// AnswerCounts is the tally of an answer set against a question bank.
type AnswerCounts struct {
	Total      int `json:"total"`
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Unanswered int `json:"unanswered"`
}

// ScoreBreakdown lists every term of a standard-mode score so administrators
// can reconstruct the result.
type ScoreBreakdown struct {
	CorrectPoints     float64  `json:"correct_points"`
	IncorrectPenalty  float64  `json:"incorrect_penalty"`
	UnansweredPenalty float64  `json:"unanswered_penalty"`
	FlatBonus         float64  `json:"flat_bonus"`
	BasePoints        float64  `json:"base_points"`
	TimeBonusEnabled  bool     `json:"time_bonus_enabled"`
	TimeBudgetSeconds int      `json:"time_budget_seconds"`
	TimeSpentSeconds  int      `json:"time_spent_seconds"`
	SecondsSaved      int      `json:"seconds_saved"`
	TimeBonus         float64  `json:"time_bonus"`
	Multiplier        float64  `json:"multiplier"`
	UnclampedScore    float64  `json:"unclamped_score"`
	MinScore          *float64 `json:"min_score,omitempty"`
	MaxScore          *float64 `json:"max_score,omitempty"`
	Clamped           bool     `json:"clamped"`
	PassingScore      float64  `json:"passing_score"`
	PassingOverride   bool     `json:"passing_override"`
}

// IQOutcome is the IQ-mode counterpart of ScoreBreakdown.
type IQOutcome struct {
	CorrectCount int        `json:"correct_count"`
	LookupCount  int        `json:"lookup_count"`
	RawScore     float64    `json:"raw_score"`
	Category     IQCategory `json:"category"`
	// FallbackUsed is set when CorrectCount was outside the table's domain.
	FallbackUsed bool       `json:"fallback_used"`
}

// ScoreResult is the final outcome of scoring one attempt.
type ScoreResult struct {
	Mode             ScoringMode     `json:"mode"`
	PolicyID         *uuid.UUID      `json:"policy_id,omitempty"`
	Score            float64         `json:"score"`
	Percentage       float64         `json:"percentage"`
	Passed           bool            `json:"passed"`
	MaxPossibleScore float64         `json:"max_possible_score"`
	Counts           AnswerCounts    `json:"counts"`
	Breakdown        *ScoreBreakdown `json:"breakdown,omitempty"`
	IQ               *IQOutcome      `json:"iq,omitempty"`
}
