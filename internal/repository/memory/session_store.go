// Package memory holds in-memory implementations of the repository
// contracts. They keep the same conflict and not-found semantics as the
// Postgres repositories and back the service, worker and handler tests.
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

// SessionStore is an in-memory quiz session table.
type SessionStore struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[int64]*model.QuizSession
	byToken  map[string]int64

	// FailExpire, when set, is consulted by ExpireBatch and lets tests
	// simulate a failing batch.
	FailExpire func(ids []int64) error
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*model.QuizSession),
		byToken:  make(map[string]int64),
	}
}

// Create inserts s, enforcing one ACTIVE session per quiz and participant.
func (st *SessionStore) Create(_ context.Context, s *model.QuizSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s.Status == model.SessionStatusActive && st.activeConflict(s.QuizID, s.ParticipantEmail, 0) {
		return repository.ErrActiveSessionExists
	}
	st.nextID++
	now := time.Now().UTC()
	s.ID = st.nextID
	s.CreatedAt = now
	s.UpdatedAt = now
	st.sessions[s.ID] = clone(s)
	st.byToken[s.Token] = s.ID
	return nil
}

func (st *SessionStore) GetByToken(_ context.Context, token string) (*model.QuizSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(st.sessions[id]), nil
}

func (st *SessionStore) FindLive(_ context.Context, quizID uuid.UUID, email string) (*model.QuizSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var best *model.QuizSession
	for _, s := range st.sessions {
		if s.QuizID != quizID || s.ParticipantEmail != email || s.Status.IsTerminal() {
			continue
		}
		if best == nil || livePreferred(s, best) {
			best = s
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return clone(best), nil
}

// Update replaces the stored row with s if it is still in status from.
func (st *SessionStore) Update(_ context.Context, s *model.QuizSession, from model.SessionStatus) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	cur, ok := st.sessions[s.ID]
	if !ok || cur.Status != from {
		return repository.ErrStaleSession
	}
	if s.Status == model.SessionStatusActive && st.activeConflict(s.QuizID, s.ParticipantEmail, s.ID) {
		return repository.ErrActiveSessionExists
	}
	s.UpdatedAt = time.Now().UTC()
	st.sessions[s.ID] = clone(s)
	return nil
}

func (st *SessionStore) ListOverdueIDs(_ context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var ids []int64
	for id, s := range st.sessions {
		if id > afterID && overdue(s, now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (st *SessionStore) ExpireBatch(_ context.Context, ids []int64, now time.Time) (int64, error) {
	if st.FailExpire != nil {
		if err := st.FailExpire(ids); err != nil {
			return 0, err
		}
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var n int64
	for _, id := range ids {
		s, ok := st.sessions[id]
		if !ok || !overdue(s, now) {
			continue
		}
		s.Status = model.SessionStatusExpired
		s.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (st *SessionStore) CountByStatus(_ context.Context, quizID uuid.UUID) (map[model.SessionStatus]int64, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	counts := make(map[model.SessionStatus]int64, 4)
	for _, s := range st.sessions {
		if quizID != uuid.Nil && s.QuizID != quizID {
			continue
		}
		counts[s.Status]++
	}
	return counts, nil
}

// CountActive is a test helper reporting ACTIVE rows for a participant.
func (st *SessionStore) CountActive(quizID uuid.UUID, email string) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, s := range st.sessions {
		if s.QuizID == quizID && s.ParticipantEmail == email && s.Status == model.SessionStatusActive {
			n++
		}
	}
	return n
}

func (st *SessionStore) activeConflict(quizID uuid.UUID, email string, exceptID int64) bool {
	for id, s := range st.sessions {
		if id != exceptID && s.QuizID == quizID && s.ParticipantEmail == email &&
			s.Status == model.SessionStatusActive {
			return true
		}
	}
	return false
}

func livePreferred(a, b *model.QuizSession) bool {
	aActive := a.Status == model.SessionStatusActive
	bActive := b.Status == model.SessionStatusActive
	if aActive != bActive {
		return aActive
	}
	return a.StartedAt.After(b.StartedAt)
}

func overdue(s *model.QuizSession, now time.Time) bool {
	return !s.Status.IsTerminal() && s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

func clone(s *model.QuizSession) *model.QuizSession {
	c := *s
	c.PausedAt = cloneTime(s.PausedAt)
	c.ResumedAt = cloneTime(s.ResumedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.ExpiresAt = cloneTime(s.ExpiresAt)
	if s.RemainingSeconds != nil {
		r := *s.RemainingSeconds
		c.RemainingSeconds = &r
	}
	if s.Metadata != nil {
		c.Metadata = model.SessionMetadata{}.Merge(s.Metadata)
	}
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
