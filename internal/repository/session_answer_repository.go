package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// SessionAnswerRepository reads the answers recorded for a session.
type SessionAnswerRepository struct {
	pool *pgxpool.Pool
}

// NewSessionAnswerRepository creates a new SessionAnswerRepository.
func NewSessionAnswerRepository(pool *pgxpool.Pool) *SessionAnswerRepository {
	return &SessionAnswerRepository{pool: pool}
}

// ListBySession returns a session's answers in submission order.
func (r *SessionAnswerRepository) ListBySession(ctx context.Context, sessionID int64) ([]model.SubmittedAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer FROM session_answers
		 WHERE session_id = $1
		 ORDER BY answered_at, question_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.SubmittedAnswer
	for rows.Next() {
		var a model.SubmittedAnswer
		if err := rows.Scan(&a.QuestionID, &a.Answer); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
