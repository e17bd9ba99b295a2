package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

const sessionColumns = `id, token, quiz_id, user_id, participant_email, participant_identifier,
	status, started_at, paused_at, resumed_at, completed_at, expires_at,
	time_spent_seconds, remaining_seconds, metadata, result, created_at, updated_at`

// QuizSessionRepository handles quiz session data access.
type QuizSessionRepository struct {
	pool *pgxpool.Pool
}

// NewQuizSessionRepository creates a new QuizSessionRepository.
func NewQuizSessionRepository(pool *pgxpool.Pool) *QuizSessionRepository {
	return &QuizSessionRepository{pool: pool}
}

// Create inserts a new ACTIVE session. If the one-active-session index
// already holds a row for the same quiz and participant, nothing is written
// and ErrActiveSessionExists is returned.
func (r *QuizSessionRepository) Create(ctx context.Context, s *model.QuizSession) error {
	meta, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions (token, quiz_id, user_id, participant_email, participant_identifier,
		                            status, started_at, expires_at, time_spent_seconds, remaining_seconds, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT DO NOTHING
		 RETURNING id, created_at, updated_at`,
		s.Token, s.QuizID, s.UserID, s.ParticipantEmail, s.ParticipantIdentifier,
		s.Status, s.StartedAt, s.ExpiresAt, s.TimeSpentSeconds, s.RemainingSeconds, meta,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// GetByToken retrieves a session by its external token.
func (r *QuizSessionRepository) GetByToken(ctx context.Context, token string) (*model.QuizSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM quiz_sessions WHERE token = $1`, token)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// FindLive returns the non-terminal (ACTIVE or PAUSED) session of a
// participant for a quiz, preferring ACTIVE and then the newest.
func (r *QuizSessionRepository) FindLive(ctx context.Context, quizID uuid.UUID, email string) (*model.QuizSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE quiz_id = $1 AND participant_email = $2 AND status IN ('ACTIVE', 'PAUSED')
		 ORDER BY (status = 'ACTIVE') DESC, started_at DESC
		 LIMIT 1`, quizID, email)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Update writes every mutable field of s, but only if the stored row is
// still in status from. A lost race returns ErrStaleSession.
func (r *QuizSessionRepository) Update(ctx context.Context, s *model.QuizSession, from model.SessionStatus) error {
	meta, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}
	var result []byte
	if s.Result != nil {
		if result, err = json.Marshal(s.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	err = r.pool.QueryRow(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, paused_at = $2, resumed_at = $3, completed_at = $4,
		     time_spent_seconds = $5, remaining_seconds = $6, metadata = $7, result = $8,
		     updated_at = NOW()
		 WHERE id = $9 AND status = $10
		 RETURNING updated_at`,
		s.Status, s.PausedAt, s.ResumedAt, s.CompletedAt,
		s.TimeSpentSeconds, s.RemainingSeconds, meta, result,
		s.ID, from,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleSession
		}
		if isUniqueViolation(err) {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// ListOverdueIDs returns up to limit ids of non-terminal sessions whose
// deadline is before now, in id order after afterID.
func (r *QuizSessionRepository) ListOverdueIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM quiz_sessions
		 WHERE expires_at IS NOT NULL AND expires_at < $1
		   AND status IN ('ACTIVE', 'PAUSED')
		   AND id > $2
		 ORDER BY id
		 LIMIT $3`, now, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireBatch moves the given sessions to EXPIRED in a single statement.
// The sweep predicate is re-checked so rows completed in the meantime are
// left alone. Returns the number of rows changed.
func (r *QuizSessionRepository) ExpireBatch(ctx context.Context, ids []int64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = 'EXPIRED', updated_at = NOW()
		 WHERE id = ANY($1::bigint[])
		   AND status IN ('ACTIVE', 'PAUSED')
		   AND expires_at IS NOT NULL AND expires_at < $2`,
		ids, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns session counts per status. quizID uuid.Nil counts
// across all quizzes.
func (r *QuizSessionRepository) CountByStatus(ctx context.Context, quizID uuid.UUID) (map[model.SessionStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM quiz_sessions`
	var args []any
	if quizID != uuid.Nil {
		query += ` WHERE quiz_id = $1`
		args = append(args, quizID)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.SessionStatus]int64, 4)
	for rows.Next() {
		var status model.SessionStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func encodeMetadata(m model.SessionMetadata) ([]byte, error) {
	if m == nil {
		m = model.SessionMetadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func scanSession(row pgx.Row) (*model.QuizSession, error) {
	s := &model.QuizSession{}
	var meta, result []byte
	err := row.Scan(
		&s.ID, &s.Token, &s.QuizID, &s.UserID, &s.ParticipantEmail, &s.ParticipantIdentifier,
		&s.Status, &s.StartedAt, &s.PausedAt, &s.ResumedAt, &s.CompletedAt, &s.ExpiresAt,
		&s.TimeSpentSeconds, &s.RemainingSeconds, &meta, &result, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Metadata = model.SessionMetadata{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(result) > 0 {
		s.Result = &model.ScoreResult{}
		if err := json.Unmarshal(result, s.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return s, nil
}
