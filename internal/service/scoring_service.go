package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/scoring"
)

// QuizLookup resolves quiz startability data and question banks.
type QuizLookup interface {
	GetInfo(ctx context.Context, id uuid.UUID) (*model.QuizInfo, error)
	QuestionBank(ctx context.Context, quizID uuid.UUID) ([]model.QuestionKey, error)
}

// AnswerSource lists the answers recorded for a session.
type AnswerSource interface {
	ListBySession(ctx context.Context, sessionID int64) ([]model.SubmittedAnswer, error)
}

// PolicyStore persists scoring policies.
type PolicyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScoringPolicy, error)
	GetActiveByQuiz(ctx context.Context, quizID uuid.UUID) (*model.ScoringPolicy, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.ScoringPolicy, error)
	SetActive(ctx context.Context, quizID, policyID uuid.UUID) error
}

// AttemptInput identifies the attempt to score.
type AttemptInput struct {
	QuizID           uuid.UUID
	SessionID        int64
	SessionToken     string
	TimeSpentSeconds int
}

// ScoringService resolves policies and runs the scoring evaluator.
type ScoringService struct {
	policies PolicyStore
	quizzes  QuizLookup
	answers  AnswerSource
	log      zerolog.Logger
}

// NewScoringService creates a new ScoringService.
func NewScoringService(policies PolicyStore, quizzes QuizLookup, answers AnswerSource, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		policies: policies,
		quizzes:  quizzes,
		answers:  answers,
		log:      logger.Component(log, "scoring_service"),
	}
}

// ScoreAttempt scores a session's recorded answers under the quiz's active
// policy, or the default policy when none is active.
func (s *ScoringService) ScoreAttempt(ctx context.Context, in AttemptInput) (*model.ScoreResult, error) {
	policy, err := s.activePolicy(ctx, in.QuizID)
	if err != nil {
		return nil, err
	}
	quiz, bank, err := s.quizData(ctx, in.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListBySession(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	result, err := scoring.Evaluate(policy, scoring.Input{
		QuizID:           in.QuizID,
		Answers:          answers,
		Bank:             bank,
		TimeSpentSeconds: in.TimeSpentSeconds,
		QuizPassingScore: quiz.PassingScore,
	})
	if err != nil {
		s.logFailure(err, in.QuizID, policy.ID, in.SessionToken)
		return nil, fmt.Errorf("score attempt: %w", err)
	}

	s.log.Debug().
		Str("session_token", in.SessionToken).
		Str("quiz_id", in.QuizID.String()).
		Str("mode", string(result.Mode)).
		Float64("score", result.Score).
		Bool("passed", result.Passed).
		Msg("Attempt scored")
	return result, nil
}

// Preview evaluates policyID against an explicit answer set without
// touching any session.
func (s *ScoringService) Preview(ctx context.Context, quizID, policyID uuid.UUID, req model.PreviewScoreRequest) (*model.ScoreResult, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, notFoundOr(err, "get policy")
	}
	quiz, bank, err := s.quizData(ctx, quizID)
	if err != nil {
		return nil, err
	}

	result, err := scoring.Evaluate(policy, scoring.Input{
		QuizID:            quizID,
		Answers:           req.Answers,
		Bank:              bank,
		TimeSpentSeconds:  req.TimeSpentSeconds,
		TimeBudgetSeconds: req.TimeBudgetSeconds,
		QuizPassingScore:  quiz.PassingScore,
	})
	if err != nil {
		s.logFailure(err, quizID, policyID, "")
		return nil, fmt.Errorf("preview score: %w", err)
	}
	return result, nil
}

// SetActivePolicy makes policyID the quiz's only active policy.
func (s *ScoringService) SetActivePolicy(ctx context.Context, quizID, policyID uuid.UUID) error {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return notFoundOr(err, "get policy")
	}
	if policy.QuizID != quizID {
		s.log.Error().
			Str("fault", "data_integrity").
			Str("quiz_id", quizID.String()).
			Str("policy_id", policyID.String()).
			Str("policy_quiz_id", policy.QuizID.String()).
			Msg("Refusing to activate policy of another quiz")
		return fmt.Errorf("activate policy %s: %w", policyID, ErrPolicyMismatch)
	}
	if err := scoring.ValidatePolicy(policy); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.policies.SetActive(ctx, quizID, policyID); err != nil {
		return notFoundOr(err, "set active policy")
	}

	s.log.Info().
		Str("quiz_id", quizID.String()).
		Str("policy_id", policyID.String()).
		Str("mode", string(policy.Mode)).
		Msg("Scoring policy activated")
	return nil
}

// ListPolicies returns the quiz's policies, active first.
func (s *ScoringService) ListPolicies(ctx context.Context, quizID uuid.UUID) ([]model.ScoringPolicy, error) {
	if _, err := s.quizzes.GetInfo(ctx, quizID); err != nil {
		return nil, notFoundOr(err, "get quiz")
	}
	policies, err := s.policies.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	if policies == nil {
		policies = []model.ScoringPolicy{}
	}
	return policies, nil
}

func (s *ScoringService) activePolicy(ctx context.Context, quizID uuid.UUID) (*model.ScoringPolicy, error) {
	policy, err := s.policies.GetActiveByQuiz(ctx, quizID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultPolicy(quizID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active policy: %w", err)
	}
	return policy, nil
}

func (s *ScoringService) quizData(ctx context.Context, quizID uuid.UUID) (*model.QuizInfo, []model.QuestionKey, error) {
	quiz, err := s.quizzes.GetInfo(ctx, quizID)
	if err != nil {
		return nil, nil, notFoundOr(err, "get quiz")
	}
	bank, err := s.quizzes.QuestionBank(ctx, quizID)
	if err != nil {
		return nil, nil, notFoundOr(err, "get question bank")
	}
	return quiz, bank, nil
}

// logFailure separates integrity faults from ordinary evaluation errors so
// they can be alerted on.
func (s *ScoringService) logFailure(err error, quizID, policyID uuid.UUID, token string) {
	ev := s.log.Warn()
	if errors.Is(err, ErrPolicyMismatch) {
		ev = s.log.Error().Str("fault", "data_integrity")
	}
	ev = ev.Err(err).Str("quiz_id", quizID.String())
	if policyID != uuid.Nil {
		ev = ev.Str("policy_id", policyID.String())
	}
	if token != "" {
		ev = ev.Str("session_token", token)
	}
	ev.Msg("Scoring failed")
}

// notFoundOr translates repository.ErrNotFound and wraps everything else.
func notFoundOr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
