package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// QuizRepository reads the quiz fields and question bank that session
// lifecycle and scoring depend on. Quiz authoring lives elsewhere.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetInfo retrieves the startability snapshot of a quiz.
func (r *QuizRepository) GetInfo(ctx context.Context, id uuid.UUID) (*model.QuizInfo, error) {
	q := &model.QuizInfo{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, is_active, is_published, start_date_time, end_date_time,
		        duration_minutes, passing_score
		 FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.IsActive, &q.IsPublished, &q.StartDateTime, &q.EndDateTime,
		&q.DurationMinutes, &q.PassingScore)
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// QuestionBank retrieves every question of a quiz with its correct answer,
// ordered by order_num.
func (r *QuizRepository) QuestionBank(ctx context.Context, quizID uuid.UUID) ([]model.QuestionKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, correct_answer FROM questions
		 WHERE quiz_id = $1
		 ORDER BY order_num, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bank []model.QuestionKey
	for rows.Next() {
		var q model.QuestionKey
		if err := rows.Scan(&q.ID, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		bank = append(bank, q)
	}
	return bank, rows.Err()
}
