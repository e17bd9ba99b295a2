package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates quiz session states.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusPaused    SessionStatus = "PAUSED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired
}

// SessionMetadata is the client-reported progress bag (current question
// index, answered count, ...). It is stored and returned untouched.
type SessionMetadata map[string]any

// Merge shallow-merges patch into a copy of m.
func (m SessionMetadata) Merge(patch map[string]any) SessionMetadata {
	out := make(SessionMetadata, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// QuizSession represents one participant's attempt at one quiz.
type QuizSession struct {
	ID                    int64           `json:"id"`
	Token                 string          `json:"session_token"`
	QuizID                uuid.UUID       `json:"quiz_id"`
	UserID                *int            `json:"user_id,omitempty"`
	ParticipantEmail      string          `json:"participant_email"`
	ParticipantIdentifier *string         `json:"participant_identifier,omitempty"`
	Status                SessionStatus   `json:"status"`
	StartedAt             time.Time       `json:"started_at"`
	PausedAt              *time.Time      `json:"paused_at,omitempty"`
	ResumedAt             *time.Time      `json:"resumed_at,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	TimeSpentSeconds      int             `json:"time_spent_seconds"`
	RemainingSeconds      *int            `json:"remaining_seconds,omitempty"`
	Metadata              SessionMetadata `json:"metadata"`
	Result                *ScoreResult    `json:"result,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NormalizeEmail lower-cases and trims a participant email so ownership
// checks and the one-active-session index agree on identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StartSessionRequest is the payload for starting a quiz attempt.
type StartSessionRequest struct {
	QuizID                uuid.UUID `json:"quiz_id" binding:"required"`
	ParticipantEmail      string    `json:"participant_email" binding:"required,email,max=255"`
	UserID                *int      `json:"user_id" binding:"omitempty,min=1"`
	ParticipantIdentifier *string   `json:"participant_identifier" binding:"omitempty,max=100"`
}

// ResumeSessionRequest is the payload for resuming a session by token.
type ResumeSessionRequest struct {
	ParticipantEmail string `json:"participant_email" binding:"required,email,max=255"`
}

// UpdateTimeRequest is the payload for reporting active time.
type UpdateTimeRequest struct {
	AdditionalSeconds *int           `json:"additional_seconds" binding:"required,min=0,max=86400"`
	Metadata          map[string]any `json:"metadata" binding:"omitempty"`
}
