package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/events"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository/memory"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	"github.com/stemsi/exstem-session/internal/worker"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

const participant = "siswa@sekolah.id"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type testServer struct {
	clock    *clock.Fake
	sessions *memory.SessionStore
	quizzes  *memory.QuizCatalog
	answers  *memory.AnswerStore
	policies *memory.PolicyStore
	rdb      *redis.Client
	engine   *gin.Engine

	quiz model.QuizInfo
	bank []model.QuestionKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := &testServer{
		clock:    clock.NewFake(t0),
		sessions: memory.NewSessionStore(),
		quizzes:  memory.NewQuizCatalog(),
		answers:  memory.NewAnswerStore(),
		policies: memory.NewPolicyStore(),
		rdb:      rdb,
	}
	log := zerolog.Nop()

	duration := 30
	s.quiz = model.QuizInfo{
		ID:              uuid.New(),
		Title:           "Bahasa Indonesia",
		IsActive:        true,
		IsPublished:     true,
		DurationMinutes: &duration,
		PassingScore:    70,
	}
	for i := 0; i < 10; i++ {
		s.bank = append(s.bank, model.QuestionKey{ID: uuid.New(), CorrectAnswer: "A"})
	}
	s.quizzes.Put(s.quiz, s.bank)

	scoring := service.NewScoringService(s.policies, s.quizzes, s.answers, log)
	sessions := service.NewSessionService(s.sessions, s.quizzes, scoring, events.NewRedisPublisher(rdb), s.clock, log)
	sweeper := worker.NewExpirationSweeper(s.sessions, nil, config.SweeperConfig{Enabled: true, BatchSize: 100}, s.clock, log)

	sh := NewSessionHandler(sessions, log)
	wsh := NewSessionWSHandler(sessions, log, nil)
	ph := NewScoringHandler(scoring, log)
	swh := NewSweeperHandler(sweeper, log)
	mh := NewMonitorHandler(rdb, s.quizzes, s.sessions, log)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	api := r.Group("/api/v1")
	api.POST("/sessions", sh.Start)
	api.GET("/sessions/:token", sh.Get)
	api.POST("/sessions/:token/resume", sh.Resume)
	api.POST("/sessions/:token/pause", sh.Pause)
	api.POST("/sessions/:token/time", sh.UpdateTime)
	api.POST("/sessions/:token/complete", sh.Complete)
	api.GET("/sessions/:token/ws", wsh.Stream)
	api.GET("/admin/quizzes/:quiz_id/policies", ph.ListPolicies)
	api.PUT("/admin/quizzes/:quiz_id/policies/:policy_id/activate", ph.Activate)
	api.POST("/admin/quizzes/:quiz_id/policies/:policy_id/preview", ph.Preview)
	api.GET("/admin/quizzes/:quiz_id/monitor", mh.MonitorQuizSSE)
	api.GET("/admin/sweeper", swh.Status)
	api.POST("/admin/sweeper/run", swh.Run)
	s.engine = r
	return s
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   response.ErrCode  `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
	Metadata response.Metadata `json:"metadata"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode envelope %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

// start begins a session for participant and returns it.
func (s *testServer) start(t *testing.T) model.QuizSession {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/sessions", gin.H{
		"quiz_id":           s.quiz.ID,
		"participant_email": participant,
	})
	if code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d (%+v)", code, env.Error)
	}
	var sess model.QuizSession
	decodeData(t, env, &sess)
	return sess
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func wantError(t *testing.T, code int, env envelope, wantStatus int, wantCode response.ErrCode) {
	t.Helper()
	if code != wantStatus {
		t.Fatalf("expected status %d, got %d", wantStatus, code)
	}
	if env.Error == nil || env.Error.Code != wantCode {
		t.Fatalf("expected error code %s, got %+v", wantCode, env.Error)
	}
}
