// Package events publishes session lifecycle changes on Redis pub/sub so
// operator monitors and other instances can follow a quiz live.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// Type names a session transition.
type Type string

const (
	TypeStarted   Type = "session_started"
	TypeResumed   Type = "session_resumed"
	TypePaused    Type = "session_paused"
	TypeTimeSync  Type = "session_time"
	TypeCompleted Type = "session_completed"
	TypeExpired   Type = "session_expired"
)

// SessionEvent is the payload published on a quiz's session channel.
type SessionEvent struct {
	Type             Type                `json:"type"`
	Token            string              `json:"session_token,omitempty"`
	QuizID           uuid.UUID           `json:"quiz_id"`
	ParticipantEmail string              `json:"participant_email,omitempty"`
	Status           model.SessionStatus `json:"status,omitempty"`
	RemainingSeconds *int                `json:"remaining_seconds,omitempty"`
	Score            *float64            `json:"score,omitempty"`
	Passed           *bool               `json:"passed,omitempty"`
	At               time.Time           `json:"at"`
}

// FromSession builds an event describing s after a transition.
func FromSession(t Type, s *model.QuizSession, at time.Time) SessionEvent {
	ev := SessionEvent{
		Type:             t,
		Token:            s.Token,
		QuizID:           s.QuizID,
		ParticipantEmail: s.ParticipantEmail,
		Status:           s.Status,
		RemainingSeconds: s.RemainingSeconds,
		At:               at,
	}
	if s.Result != nil {
		score, passed := s.Result.Score, s.Result.Passed
		ev.Score = &score
		ev.Passed = &passed
	}
	return ev
}

// Publisher delivers session events.
type Publisher interface {
	Publish(ctx context.Context, ev SessionEvent) error
}

// RedisPublisher publishes events as JSON on config.CacheKey.QuizSessionChannel.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	channel := config.CacheKey.QuizSessionChannel(ev.QuizID.String())
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, SessionEvent) error { return nil }
