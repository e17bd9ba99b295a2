package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
)

// QuizCatalog is an in-memory quiz lookup with question banks.
type QuizCatalog struct {
	mu      sync.RWMutex
	quizzes map[uuid.UUID]model.QuizInfo
	banks   map[uuid.UUID][]model.QuestionKey

	// Calls counts GetInfo invocations.
	Calls int
}

func NewQuizCatalog() *QuizCatalog {
	return &QuizCatalog{
		quizzes: make(map[uuid.UUID]model.QuizInfo),
		banks:   make(map[uuid.UUID][]model.QuestionKey),
	}
}

func (c *QuizCatalog) Put(q model.QuizInfo, bank []model.QuestionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[q.ID] = q
	c.banks[q.ID] = append([]model.QuestionKey(nil), bank...)
}

func (c *QuizCatalog) GetInfo(_ context.Context, id uuid.UUID) (*model.QuizInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	q, ok := c.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

func (c *QuizCatalog) QuestionBank(_ context.Context, quizID uuid.UUID) ([]model.QuestionKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.quizzes[quizID]; !ok {
		return nil, repository.ErrNotFound
	}
	return append([]model.QuestionKey(nil), c.banks[quizID]...), nil
}
