package memory

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-session/internal/model"
)

// AnswerStore records answers per session in submission order.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[int64][]model.SubmittedAnswer
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[int64][]model.SubmittedAnswer)}
}

func (a *AnswerStore) Add(sessionID int64, answers ...model.SubmittedAnswer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers[sessionID] = append(a.answers[sessionID], answers...)
}

func (a *AnswerStore) ListBySession(_ context.Context, sessionID int64) ([]model.SubmittedAnswer, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.SubmittedAnswer(nil), a.answers[sessionID]...), nil
}
