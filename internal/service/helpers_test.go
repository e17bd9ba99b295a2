package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/events"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

const participant = "siswa@sekolah.id"

type recorder struct {
	mu     sync.Mutex
	events []events.SessionEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev events.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	clock    *clock.Fake
	sessions *memory.SessionStore
	quizzes  *memory.QuizCatalog
	answers  *memory.AnswerStore
	policies *memory.PolicyStore
	events   *recorder
	logs     *bytes.Buffer
	scoring  *ScoringService
	svc      *SessionService

	quiz model.QuizInfo
	bank []model.QuestionKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clock.NewFake(t0),
		sessions: memory.NewSessionStore(),
		quizzes:  memory.NewQuizCatalog(),
		answers:  memory.NewAnswerStore(),
		policies: memory.NewPolicyStore(),
		events:   &recorder{},
		logs:     &bytes.Buffer{},
	}
	log := zerolog.New(f.logs)
	f.scoring = NewScoringService(f.policies, f.quizzes, f.answers, log)
	f.svc = NewSessionService(f.sessions, f.quizzes, f.scoring, f.events, f.clock, log)

	duration := 30
	f.quiz = model.QuizInfo{
		ID:              uuid.New(),
		Title:           "Matematika Dasar",
		IsActive:        true,
		IsPublished:     true,
		DurationMinutes: &duration,
		PassingScore:    70,
	}
	for i := 0; i < 10; i++ {
		f.bank = append(f.bank, model.QuestionKey{ID: uuid.New(), CorrectAnswer: "A"})
	}
	f.quizzes.Put(f.quiz, f.bank)
	return f
}

func (f *fixture) start(t *testing.T) *model.QuizSession {
	t.Helper()
	sess, err := f.svc.Start(context.Background(), StartInput{QuizID: f.quiz.ID, ParticipantEmail: participant})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

func (f *fixture) stored(t *testing.T, token string) *model.QuizSession {
	t.Helper()
	sess, err := f.sessions.GetByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("get stored session: %v", err)
	}
	return sess
}

// answer records correct answers for the first `correct` questions and
// wrong answers for the next `incorrect`.
func (f *fixture) answer(sessionID int64, correct, incorrect int) {
	for i := 0; i < correct+incorrect; i++ {
		a := "A"
		if i >= correct {
			a = "B"
		}
		f.answers.Add(sessionID, model.SubmittedAnswer{QuestionID: f.bank[i].ID, Answer: a})
	}
}

func (f *fixture) activateStandard(p model.StandardParams) model.ScoringPolicy {
	return f.policies.Put(model.ScoringPolicy{
		QuizID:   f.quiz.ID,
		Name:     "standard",
		Mode:     model.ScoringModeStandard,
		IsActive: true,
		Standard: &p,
	})
}

func ptr[T any](v T) *T { return &v }

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

// racingStore runs beforeUpdate once, just before the first write that
// completes a session, to simulate a concurrent request winning the race.
type racingStore struct {
	*memory.SessionStore
	beforeUpdate func()
	fired        bool
}

func (r *racingStore) Update(ctx context.Context, s *model.QuizSession, from model.SessionStatus) error {
	if r.beforeUpdate != nil && !r.fired && s.Status == model.SessionStatusCompleted {
		r.fired = true
		r.beforeUpdate()
	}
	return r.SessionStore.Update(ctx, s, from)
}

func zerologNop() zerolog.Logger { return zerolog.Nop() }
