package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizInfo is the slice of a quiz the session lifecycle needs to decide
// whether an attempt may start and how long it may run.
type QuizInfo struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	IsActive        bool       `json:"is_active"`
	IsPublished     bool       `json:"is_published"`
	StartDateTime   *time.Time `json:"start_date_time,omitempty"`
	EndDateTime     *time.Time `json:"end_date_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	PassingScore    float64    `json:"passing_score"`
}

// Startable reports whether the quiz accepts attempts at all, ignoring its window.
func (q *QuizInfo) Startable() bool {
	return q.IsActive && q.IsPublished
}

// Timed reports whether attempts at the quiz carry a deadline.
func (q *QuizInfo) Timed() bool {
	return q.DurationMinutes != nil && *q.DurationMinutes > 0
}

// QuestionKey is one entry of a quiz's question bank with its correct answer.
type QuestionKey struct {
	ID            uuid.UUID `json:"id"`
	CorrectAnswer string    `json:"correct_answer"`
}

// SubmittedAnswer is one answer recorded for a session, in submission order.
type SubmittedAnswer struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer" binding:"max=2000"`
}
