package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// policyConfig is the JSONB shape of scoring_policies.config.
type policyConfig struct {
	Standard *model.StandardParams `json:"standard,omitempty"`
	IQ       *model.IQParams       `json:"iq,omitempty"`
}

const policyColumns = `id, quiz_id, name, mode, is_active, config, created_at, updated_at`

// ScoringPolicyRepository handles scoring policy data access.
type ScoringPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewScoringPolicyRepository creates a new ScoringPolicyRepository.
func NewScoringPolicyRepository(pool *pgxpool.Pool) *ScoringPolicyRepository {
	return &ScoringPolicyRepository{pool: pool}
}

// GetByID retrieves a policy by its UUID.
func (r *ScoringPolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScoringPolicy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM scoring_policies WHERE id = $1`, id)
	p, err := scanPolicy(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// GetActiveByQuiz retrieves the active policy of a quiz.
func (r *ScoringPolicyRepository) GetActiveByQuiz(ctx context.Context, quizID uuid.UUID) (*model.ScoringPolicy, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM scoring_policies WHERE quiz_id = $1 AND is_active`, quizID)
	p, err := scanPolicy(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListByQuiz retrieves all policies of a quiz, active first.
func (r *ScoringPolicyRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.ScoringPolicy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM scoring_policies
		 WHERE quiz_id = $1
		 ORDER BY is_active DESC, created_at ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []model.ScoringPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// Create inserts a new, inactive policy. Activation goes through SetActive.
func (r *ScoringPolicyRepository) Create(ctx context.Context, p *model.ScoringPolicy) error {
	cfg, err := json.Marshal(policyConfig{Standard: p.Standard, IQ: p.IQ})
	if err != nil {
		return fmt.Errorf("encode policy config: %w", err)
	}
	p.IsActive = false
	return r.pool.QueryRow(ctx,
		`INSERT INTO scoring_policies (quiz_id, name, mode, is_active, config)
		 VALUES ($1, $2, $3, FALSE, $4)
		 RETURNING id, created_at, updated_at`,
		p.QuizID, p.Name, p.Mode, cfg,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// SetActive makes policyID the only active policy of quizID in one
// transaction. The quiz's policy rows are locked first so concurrent
// activations serialize instead of leaving zero or two active rows.
func (r *ScoringPolicyRepository) SetActive(ctx context.Context, quizID, policyID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM scoring_policies WHERE quiz_id = $1 FOR UPDATE`, quizID)
		if err != nil {
			return fmt.Errorf("lock policies: %w", err)
		}
		found := false
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if id == policyID {
				found = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`UPDATE scoring_policies SET is_active = FALSE, updated_at = NOW()
			 WHERE quiz_id = $1 AND is_active`, quizID); err != nil {
			return fmt.Errorf("deactivate policies: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE scoring_policies SET is_active = TRUE, updated_at = NOW()
			 WHERE id = $1`, policyID); err != nil {
			return fmt.Errorf("activate policy: %w", err)
		}
		return nil
	})
}

func scanPolicy(row pgx.Row) (*model.ScoringPolicy, error) {
	p := &model.ScoringPolicy{}
	var raw []byte
	if err := row.Scan(&p.ID, &p.QuizID, &p.Name, &p.Mode, &p.IsActive, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var cfg policyConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode policy config: %w", err)
	}
	p.Standard = cfg.Standard
	p.IQ = cfg.IQ
	return p, nil
}
