package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
)

// PolicyStore is an in-memory scoring policy table.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]model.ScoringPolicy
}

func NewPolicyStore() *PolicyStore {
	return &PolicyStore{policies: make(map[uuid.UUID]model.ScoringPolicy)}
}

// Put stores p as given, assigning an id when it has none. Putting an
// active policy deactivates the quiz's other policies.
func (s *PolicyStore) Put(p model.ScoringPolicy) model.ScoringPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	if p.IsActive {
		s.deactivate(p.QuizID)
	}
	s.policies[p.ID] = p
	return p
}

func (s *PolicyStore) GetByID(_ context.Context, id uuid.UUID) (*model.ScoringPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *PolicyStore) GetActiveByQuiz(_ context.Context, quizID uuid.UUID) (*model.ScoringPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.QuizID == quizID && p.IsActive {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *PolicyStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]model.ScoringPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ScoringPolicy
	for _, p := range s.policies {
		if p.QuizID == quizID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsActive != out[j].IsActive {
			return out[i].IsActive
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PolicyStore) SetActive(_ context.Context, quizID, policyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[policyID]
	if !ok || p.QuizID != quizID {
		return repository.ErrNotFound
	}
	s.deactivate(quizID)
	p.IsActive = true
	p.UpdatedAt = time.Now().UTC()
	s.policies[policyID] = p
	return nil
}

// ActiveCount is a test helper reporting how many policies of a quiz are active.
func (s *PolicyStore) ActiveCount(quizID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.policies {
		if p.QuizID == quizID && p.IsActive {
			n++
		}
	}
	return n
}

func (s *PolicyStore) deactivate(quizID uuid.UUID) {
	for id, p := range s.policies {
		if p.QuizID == quizID && p.IsActive {
			p.IsActive = false
			s.policies[id] = p
		}
	}
}
