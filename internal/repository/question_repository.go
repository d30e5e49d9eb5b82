package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sankhya-academy/exam-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves an exam's questions in display order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, image_url, options, correct_option, operations, operator_type, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var optionsRaw []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.ImageURL,
			&optionsRaw, &q.CorrectOption, &q.Operations, &q.OperatorType, &q.OrderNum); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options for question %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Replace swaps an exam's full question set inside one transaction.
func (r *QuestionRepository) Replace(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range questions {
		q := &questions[i]
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		batch.Queue(
			`INSERT INTO questions (exam_id, question_text, image_url, options, correct_option, operations, operator_type, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			examID, q.QuestionText, q.ImageURL, optionsJSON, q.CorrectOption, q.Operations, q.OperatorType, q.OrderNum)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE exams SET question_count = $1, updated_at = NOW() WHERE id = $2`,
		len(questions), examID); err != nil {
		return fmt.Errorf("update question count: %w", err)
	}

	return tx.Commit(ctx)
}

// CountByExam returns the number of questions in an exam.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID).Scan(&count)
	return count, err
}
