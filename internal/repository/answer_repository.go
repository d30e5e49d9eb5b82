package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository handles durable per-answer persistence. The Redis answer
// hash is the hot path; rows here are what survives cache eviction and what
// resume falls back to.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or updates a single answer.
func (r *AnswerRepository) Upsert(ctx context.Context, sessionID, questionID uuid.UUID, optionIndex int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_answers (session_id, question_id, option_index)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET option_index = EXCLUDED.option_index, updated_at = NOW()`,
		sessionID, questionID, optionIndex)
	return err
}

// BulkUpsert writes a batch of answers in one round trip via UNNEST.
func (r *AnswerRepository) BulkUpsert(ctx context.Context, sessionIDs, questionIDs []uuid.UUID, optionIndexes []int) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_answers (session_id, question_id, option_index)
		 SELECT u.session_id, u.question_id, u.option_index
		 FROM UNNEST($1::uuid[], $2::uuid[], $3::int[]) AS u (session_id, question_id, option_index)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET option_index = EXCLUDED.option_index, updated_at = NOW()`,
		sessionIDs, questionIDs, optionIndexes)
	return err
}

// MapBySession retrieves a session's answers as questionID → option index.
func (r *AnswerRepository) MapBySession(ctx context.Context, sessionID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, option_index FROM exam_answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]int)
	for rows.Next() {
		var questionID uuid.UUID
		var optionIndex int
		if err := rows.Scan(&questionID, &optionIndex); err != nil {
			return nil, err
		}
		answers[questionID.String()] = optionIndex
	}
	return answers, rows.Err()
}
