package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/events"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/sessionclock"
)

// maxWriteAttempts bounds how often a transition is re-evaluated after
// losing a conditional write to a concurrent request.
const maxWriteAttempts = 3

// errNoChange lets a transition report that the stored session already is
// the requested outcome.
var errNoChange = errors.New("no change")

// SessionStore persists quiz sessions. Update is a compare-and-set on the
// session's prior status.
type SessionStore interface {
	Create(ctx context.Context, s *model.QuizSession) error
	GetByToken(ctx context.Context, token string) (*model.QuizSession, error)
	FindLive(ctx context.Context, quizID uuid.UUID, email string) (*model.QuizSession, error)
	Update(ctx context.Context, s *model.QuizSession, from model.SessionStatus) error
}

// StartInput identifies the participant starting an attempt.
type StartInput struct {
	QuizID                uuid.UUID
	ParticipantEmail      string
	UserID                *int
	ParticipantIdentifier *string
}

// SessionSnapshot is a session plus its clock-derived values at one instant.
type SessionSnapshot struct {
	Session          model.QuizSession `json:"session"`
	ElapsedSeconds   int               `json:"elapsed_seconds"`
	RemainingSeconds *int              `json:"remaining_seconds"`
	IsExpired        bool              `json:"is_expired"`
	IsActive         bool              `json:"is_active"`
	At               time.Time         `json:"at"`
}

// SessionService owns the quiz session state machine.
type SessionService struct {
	store     SessionStore
	quizzes   QuizLookup
	scorer    *ScoringService
	publisher events.Publisher
	clock     clock.Clock
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	store SessionStore,
	quizzes QuizLookup,
	scorer *ScoringService,
	publisher events.Publisher,
	clk clock.Clock,
	log zerolog.Logger,
) *SessionService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &SessionService{
		store:     store,
		quizzes:   quizzes,
		scorer:    scorer,
		publisher: publisher,
		clock:     clk,
		log:       logger.Component(log, "session_service"),
	}
}

// Start begins an attempt, or returns the participant's live attempt for
// the quiz when one exists. A PAUSED attempt is returned as is.
func (s *SessionService) Start(ctx context.Context, in StartInput) (*model.QuizSession, error) {
	email := model.NormalizeEmail(in.ParticipantEmail)
	if email == "" {
		return nil, fmt.Errorf("%w: participant email is required", ErrValidation)
	}

	quiz, err := s.quizzes.GetInfo(ctx, in.QuizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("quiz %s: %w", in.QuizID, ErrQuizNotStartable)
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if !quiz.Startable() {
		return nil, fmt.Errorf("quiz %s: %w", in.QuizID, ErrQuizNotStartable)
	}

	now := s.clock.Now()
	if quiz.StartDateTime != nil && now.Before(*quiz.StartDateTime) {
		return nil, &WindowError{Bound: WindowStart, At: *quiz.StartDateTime}
	}
	if quiz.EndDateTime != nil && now.After(*quiz.EndDateTime) {
		return nil, &WindowError{Bound: WindowEnd, At: *quiz.EndDateTime}
	}

	live, err := s.liveSession(ctx, in.QuizID, email, now)
	if err != nil {
		return nil, err
	}
	if live != nil {
		s.log.Debug().
			Str("session_token", live.Token).
			Str("quiz_id", in.QuizID.String()).
			Msg("Returning existing live session")
		return live, nil
	}

	sess := &model.QuizSession{
		Token:                 uuid.NewString(),
		QuizID:                in.QuizID,
		UserID:                in.UserID,
		ParticipantEmail:      email,
		ParticipantIdentifier: in.ParticipantIdentifier,
		Status:                model.SessionStatusActive,
		StartedAt:             now,
		Metadata:              model.SessionMetadata{},
	}
	if quiz.Timed() {
		expiresAt := now.Add(time.Duration(*quiz.DurationMinutes) * time.Minute)
		remaining := *quiz.DurationMinutes * 60
		sess.ExpiresAt = &expiresAt
		sess.RemainingSeconds = &remaining
	}

	if err := s.store.Create(ctx, sess); err != nil {
		if !errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		// A concurrent start won the insert.
		existing, ferr := s.store.FindLive(ctx, in.QuizID, email)
		if ferr != nil {
			return nil, fmt.Errorf("find concurrent session: %w", ferr)
		}
		return existing, nil
	}

	s.log.Info().
		Str("session_token", sess.Token).
		Str("quiz_id", in.QuizID.String()).
		Str("participant_email", email).
		Msg("Session started")
	s.publish(ctx, events.FromSession(events.TypeStarted, sess, now))
	return sess, nil
}

// liveSession returns the participant's non-expired live session, expiring
// any overdue one it finds on the way.
func (s *SessionService) liveSession(ctx context.Context, quizID uuid.UUID, email string, now time.Time) (*model.QuizSession, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		live, err := s.store.FindLive(ctx, quizID, email)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find live session: %w", err)
		}
		if !sessionclock.IsExpired(*live, now) {
			return live, nil
		}
		if err := s.markExpired(ctx, live, now); err != nil && !errors.Is(err, repository.ErrStaleSession) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("find live session: %w", repository.ErrStaleSession)
}

// Resume re-activates a paused session for its owner. Resuming an ACTIVE
// session returns it unchanged.
func (s *SessionService) Resume(ctx context.Context, token, email string) (*model.QuizSession, error) {
	email = model.NormalizeEmail(email)
	return s.mutate(ctx, token, mutation{
		op:         "resume",
		autoExpire: true,
		guard: func(sess *model.QuizSession) error {
			if sess.ParticipantEmail != email {
				return ErrOwnershipMismatch
			}
			return nil
		},
		apply: func(sess *model.QuizSession, now time.Time) (events.Type, error) {
			switch sess.Status {
			case model.SessionStatusActive:
				return "", errNoChange
			case model.SessionStatusPaused:
				sess.Status = model.SessionStatusActive
				sess.ResumedAt = &now
				return events.TypeResumed, nil
			}
			return "", statusError("resume", sess.Status)
		},
	})
}

// Pause freezes an ACTIVE session's elapsed time. Neither the deadline nor
// the reported remaining seconds are touched.
func (s *SessionService) Pause(ctx context.Context, token string) (*model.QuizSession, error) {
	return s.mutate(ctx, token, mutation{
		op:         "pause",
		autoExpire: true,
		apply: func(sess *model.QuizSession, now time.Time) (events.Type, error) {
			if sess.Status != model.SessionStatusActive {
				return "", statusError("pause", sess.Status)
			}
			sess.Status = model.SessionStatusPaused
			sess.PausedAt = &now
			return events.TypePaused, nil
		},
	})
}

// UpdateTime records additional active seconds reported by the client and
// merges its metadata patch. Reaching zero remaining seconds expires the
// session without scoring it.
func (s *SessionService) UpdateTime(ctx context.Context, token string, additionalSeconds int, metadata map[string]any) (*model.QuizSession, error) {
	if additionalSeconds < 0 {
		return nil, fmt.Errorf("%w: additional seconds must be >= 0", ErrValidation)
	}
	return s.mutate(ctx, token, mutation{
		op:         "update time",
		autoExpire: true,
		apply: func(sess *model.QuizSession, now time.Time) (events.Type, error) {
			if sess.Status != model.SessionStatusActive {
				return "", statusError("update time of", sess.Status)
			}
			sess.TimeSpentSeconds += additionalSeconds
			if len(metadata) > 0 {
				sess.Metadata = sess.Metadata.Merge(metadata)
			}
			if sess.RemainingSeconds == nil {
				return events.TypeTimeSync, nil
			}
			remaining := max(*sess.RemainingSeconds-additionalSeconds, 0)
			sess.RemainingSeconds = &remaining
			if remaining == 0 {
				sess.Status = model.SessionStatusExpired
				return events.TypeExpired, nil
			}
			return events.TypeTimeSync, nil
		},
	})
}

// Complete finishes the attempt and scores it. Completing a COMPLETED
// session returns the stored result.
func (s *SessionService) Complete(ctx context.Context, token string) (*model.QuizSession, error) {
	return s.mutate(ctx, token, mutation{
		op: "complete",
		apply: func(sess *model.QuizSession, now time.Time) (events.Type, error) {
			switch sess.Status {
			case model.SessionStatusCompleted:
				return "", errNoChange
			case model.SessionStatusExpired:
				return "", fmt.Errorf("complete session: %w", ErrSessionExpired)
			}

			timeSpent := sessionclock.Elapsed(sess.StartedAt, now)
			result, err := s.scorer.ScoreAttempt(ctx, AttemptInput{
				QuizID:           sess.QuizID,
				SessionID:        sess.ID,
				SessionToken:     sess.Token,
				TimeSpentSeconds: timeSpent,
			})
			if err != nil {
				return "", err
			}

			sess.Status = model.SessionStatusCompleted
			sess.CompletedAt = &now
			sess.TimeSpentSeconds = timeSpent
			sess.Result = result
			return events.TypeCompleted, nil
		},
	})
}

// Get returns the session with its derived clock values.
func (s *SessionService) Get(ctx context.Context, token string) (*SessionSnapshot, error) {
	sess, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return &SessionSnapshot{
		Session:          *sess,
		ElapsedSeconds:   sessionclock.TotalElapsed(*sess, now),
		RemainingSeconds: sessionclock.Remaining(*sess, now),
		IsExpired:        sessionclock.IsExpired(*sess, now),
		IsActive:         sessionclock.IsActive(*sess, now),
		At:               now,
	}, nil
}

type mutation struct {
	op string
	// autoExpire moves an overdue live session to EXPIRED and fails with
	// ErrSessionExpired before apply runs.
	autoExpire bool
	guard      func(sess *model.QuizSession) error
	apply      func(sess *model.QuizSession, now time.Time) (events.Type, error)
}

// mutate loads the session, applies m and writes the result conditionally
// on the status it was read in. A lost race re-runs m on the fresh row.
func (s *SessionService) mutate(ctx context.Context, token string, m mutation) (*model.QuizSession, error) {
	for attempt := 1; ; attempt++ {
		sess, err := s.load(ctx, token)
		if err != nil {
			return nil, err
		}
		if m.guard != nil {
			if err := m.guard(sess); err != nil {
				return nil, fmt.Errorf("%s session: %w", m.op, err)
			}
		}

		now := s.clock.Now()
		from := sess.Status

		if m.autoExpire && !from.IsTerminal() && sessionclock.IsExpired(*sess, now) {
			err := s.markExpired(ctx, sess, now)
			if errors.Is(err, repository.ErrStaleSession) && attempt < maxWriteAttempts {
				continue
			}
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%s session: %w", m.op, ErrSessionExpired)
		}

		evType, err := m.apply(sess, now)
		if errors.Is(err, errNoChange) {
			return sess, nil
		}
		if err != nil {
			return nil, err
		}

		if err := s.store.Update(ctx, sess, from); err != nil {
			if errors.Is(err, repository.ErrStaleSession) && attempt < maxWriteAttempts {
				s.log.Debug().
					Str("session_token", token).
					Str("op", m.op).
					Int("attempt", attempt).
					Msg("Session changed concurrently, re-evaluating")
				continue
			}
			if errors.Is(err, repository.ErrActiveSessionExists) {
				return nil, fmt.Errorf("%s session: another attempt is active: %w", m.op, ErrInvalidTransition)
			}
			return nil, fmt.Errorf("%s session: %w", m.op, err)
		}

		s.log.Info().
			Str("session_token", token).
			Str("from", string(from)).
			Str("to", string(sess.Status)).
			Msg("Session " + m.op)
		s.publish(ctx, events.FromSession(evType, sess, now))
		return sess, nil
	}
}

// markExpired moves a live session to EXPIRED without touching any other field.
func (s *SessionService) markExpired(ctx context.Context, sess *model.QuizSession, now time.Time) error {
	from := sess.Status
	sess.Status = model.SessionStatusExpired
	if err := s.store.Update(ctx, sess, from); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return err
		}
		return fmt.Errorf("expire session: %w", err)
	}
	s.log.Info().
		Str("session_token", sess.Token).
		Str("from", string(from)).
		Msg("Session auto-expired")
	s.publish(ctx, events.FromSession(events.TypeExpired, sess, now))
	return nil
}

func (s *SessionService) load(ctx context.Context, token string) (*model.QuizSession, error) {
	sess, err := s.store.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("session %s: %w", token, ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) publish(ctx context.Context, ev events.SessionEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("session_token", ev.Token).
			Str("event", string(ev.Type)).
			Msg("Failed to publish session event")
	}
}

func statusError(op string, status model.SessionStatus) error {
	if status == model.SessionStatusExpired {
		return fmt.Errorf("%s session: %w", op, ErrSessionExpired)
	}
	return fmt.Errorf("cannot %s %s session: %w", op, status, ErrInvalidTransition)
}
