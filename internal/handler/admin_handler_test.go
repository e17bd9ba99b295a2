package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/worker"
)

func (s *testServer) policiesPath(quizID uuid.UUID) string {
	return "/api/v1/admin/quizzes/" + quizID.String() + "/policies"
}

func TestListPolicies(t *testing.T) {
	s := newTestServer(t)
	p := s.policies.Put(model.ScoringPolicy{
		QuizID:   s.quiz.ID,
		Name:     "bobot",
		Mode:     model.ScoringModeStandard,
		Standard: &model.StandardParams{PointsPerCorrect: 10, Multiplier: 1},
	})

	code, env := s.do(t, http.MethodGet, s.policiesPath(s.quiz.ID), nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var data struct {
		Policies []model.ScoringPolicy `json:"policies"`
	}
	decodeData(t, env, &data)
	if len(data.Policies) != 1 || data.Policies[0].ID != p.ID {
		t.Fatalf("expected policy %s, got %+v", p.ID, data.Policies)
	}

	code, env = s.do(t, http.MethodGet, s.policiesPath(uuid.New()), nil)
	wantError(t, code, env, http.StatusNotFound, response.ErrNotFound)

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/quizzes/bukan-uuid/policies", nil)
	wantError(t, code, env, http.StatusBadRequest, response.ErrInvalidID)
}

func TestActivatePolicy(t *testing.T) {
	s := newTestServer(t)
	first := s.policies.Put(model.ScoringPolicy{
		QuizID:   s.quiz.ID,
		Name:     "lama",
		Mode:     model.ScoringModeStandard,
		IsActive: true,
		Standard: &model.StandardParams{PointsPerCorrect: 1, Multiplier: 1},
	})
	second := s.policies.Put(model.ScoringPolicy{
		QuizID:   s.quiz.ID,
		Name:     "baru",
		Mode:     model.ScoringModeStandard,
		Standard: &model.StandardParams{PointsPerCorrect: 10, Multiplier: 1},
	})

	code, env := s.do(t, http.MethodPut, s.policiesPath(s.quiz.ID)+"/"+second.ID.String()+"/activate", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	if s.policies.ActiveCount(s.quiz.ID) != 1 {
		t.Fatalf("expected exactly one active policy")
	}
	stored, _ := s.policies.GetByID(t.Context(), first.ID)
	if stored.IsActive {
		t.Fatal("expected previous policy to be deactivated")
	}

	code, env = s.do(t, http.MethodPut, s.policiesPath(s.quiz.ID)+"/"+uuid.NewString()+"/activate", nil)
	wantError(t, code, env, http.StatusNotFound, response.ErrPolicyNotFound)
}

func TestActivateForeignPolicyIsMismatch(t *testing.T) {
	s := newTestServer(t)
	foreign := s.policies.Put(model.ScoringPolicy{
		QuizID:   uuid.New(),
		Name:     "kuis lain",
		Mode:     model.ScoringModeStandard,
		Standard: &model.StandardParams{PointsPerCorrect: 1, Multiplier: 1},
	})

	code, env := s.do(t, http.MethodPut, s.policiesPath(s.quiz.ID)+"/"+foreign.ID.String()+"/activate", nil)
	wantError(t, code, env, http.StatusUnprocessableEntity, response.ErrPolicyMismatch)
}

func TestActivateInvalidPolicy(t *testing.T) {
	s := newTestServer(t)
	broken := s.policies.Put(model.ScoringPolicy{
		QuizID: s.quiz.ID,
		Name:   "tanpa tabel",
		Mode:   model.ScoringModeIQ,
		IQ:     &model.IQParams{},
	})

	code, env := s.do(t, http.MethodPut, s.policiesPath(s.quiz.ID)+"/"+broken.ID.String()+"/activate", nil)
	wantError(t, code, env, http.StatusUnprocessableEntity, response.ErrInvalidPolicy)
}

func TestPreviewPolicy(t *testing.T) {
	s := newTestServer(t)
	p := s.policies.Put(model.ScoringPolicy{
		QuizID:   s.quiz.ID,
		Name:     "bobot",
		Mode:     model.ScoringModeStandard,
		Standard: &model.StandardParams{PointsPerCorrect: 10, Multiplier: 1},
	})

	answers := []gin.H{
		{"question_id": s.bank[0].ID, "answer": "A"},
		{"question_id": s.bank[1].ID, "answer": "A"},
		{"question_id": s.bank[2].ID, "answer": "C"},
	}
	code, env := s.do(t, http.MethodPost, s.policiesPath(s.quiz.ID)+"/"+p.ID.String()+"/preview", gin.H{
		"answers":            answers,
		"time_spent_seconds": 120,
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	var result model.ScoreResult
	decodeData(t, env, &result)
	if result.Score != 20 || result.Counts.Correct != 2 || result.Counts.Incorrect != 1 {
		t.Fatalf("unexpected preview result: %+v", result)
	}
	if counts, _ := s.sessions.CountByStatus(t.Context(), uuid.Nil); len(counts) != 0 {
		t.Fatal("preview must not create sessions")
	}
}

func TestPreviewRejectsUnknownQuestion(t *testing.T) {
	s := newTestServer(t)
	p := s.policies.Put(model.ScoringPolicy{
		QuizID:   s.quiz.ID,
		Name:     "bobot",
		Mode:     model.ScoringModeStandard,
		Standard: &model.StandardParams{PointsPerCorrect: 1, Multiplier: 1},
	})

	code, env := s.do(t, http.MethodPost, s.policiesPath(s.quiz.ID)+"/"+p.ID.String()+"/preview", gin.H{
		"answers": []gin.H{{"question_id": uuid.New(), "answer": "A"}},
	})
	wantError(t, code, env, http.StatusUnprocessableEntity, response.ErrPolicyMismatch)
}

func TestSweeperRunAndStatus(t *testing.T) {
	s := newTestServer(t)
	s.start(t)
	s.clock.Advance(31 * time.Minute)

	code, env := s.do(t, http.MethodPost, "/api/v1/admin/sweeper/run", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	var report worker.RunReport
	decodeData(t, env, &report)
	if report.Expired != 1 || report.Trigger != worker.TriggerManual {
		t.Fatalf("unexpected report: %+v", report)
	}

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/sweeper", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var status worker.SweeperStatus
	decodeData(t, env, &status)
	if status.ExpiredSessions != 1 || status.ActiveSessions != 0 || status.LastRun == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
}
