package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sankhya-academy/exam-backend/internal/model"
)

// SessionResult combines student data with their exam session details for
// the staff results view.
type SessionResult struct {
	StudentID     int                 `json:"student_id"`
	Name          string              `json:"name"`
	Email         string              `json:"email"`
	Level         int                 `json:"level"`
	FinalScore    *float64            `json:"score"`
	Status        model.SessionStatus `json:"status"`
	AutoSubmitted bool                `json:"auto_submitted"`
	StartedAt     *time.Time          `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at"`
}

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, submission_id, exam_id, student_id, started_at, ends_at, finished_at, status, auto_submitted, final_score, last_question_index`

func scanSession(row interface{ Scan(...any) error }) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.SubmissionID, &s.ExamID, &s.StudentID, &s.StartedAt,
		&s.EndsAt, &s.FinishedAt, &s.Status, &s.AutoSubmitted, &s.FinalScore, &s.LastQuestionIndex)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndStudent retrieves a session for a specific exam-student combination.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// Create inserts a new exam session with its deadline. ON CONFLICT makes a
// concurrent init collapse: the loser gets pgx.ErrNoRows and refetches.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, ends_at, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, submission_id, started_at`,
		s.ExamID, s.StudentID, s.EndsAt, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.SubmissionID, &s.StartedAt)
}

// Finalize transitions a session to SUBMITTED with its score. The WHERE
// clause on status makes the transition single-entry: of any concurrent
// submit triggers exactly one row update wins, the rest see false.
func (r *ExamSessionRepository) Finalize(ctx context.Context, id uuid.UUID, score float64, autoSubmitted bool, finishedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, final_score = $2, auto_submitted = $3, finished_at = $4
		 WHERE id = $5 AND status = $6`,
		model.SessionStatusSubmitted, score, autoSubmitted, finishedAt, id, model.SessionStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetLastQuestionIndex records the resume position.
func (r *ExamSessionRepository) SetLastQuestionIndex(ctx context.Context, id uuid.UUID, index int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET last_question_index = $1 WHERE id = $2 AND status = $3`,
		index, id, model.SessionStatusInProgress)
	return err
}

// SetMarkedQuestions replaces the persisted marked-for-review set.
func (r *ExamSessionRepository) SetMarkedQuestions(ctx context.Context, id uuid.UUID, marked []uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET marked_questions = $1 WHERE id = $2 AND status = $3`,
		marked, id, model.SessionStatusInProgress)
	return err
}

// GetMarkedQuestions retrieves the persisted marked-for-review set.
func (r *ExamSessionRepository) GetMarkedQuestions(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var marked []uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT marked_questions FROM exam_sessions WHERE id = $1`, id).Scan(&marked)
	return marked, err
}

// ListExpired retrieves in-progress sessions whose deadline passed before
// the cutoff. The sweeper auto-submits these.
func (r *ExamSessionRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE status = $1 AND ends_at < $2
		 ORDER BY ends_at ASC
		 LIMIT $3`,
		model.SessionStatusInProgress, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListByStudent retrieves all sessions for a given student, newest first.
func (r *ExamSessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListResults retrieves paginated student results for one exam.
func (r *ExamSessionRepository) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]SessionResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.email, s.level,
		        es.final_score, es.status, es.auto_submitted, es.started_at, es.finished_at
		 FROM exam_sessions es
		 JOIN students s ON es.student_id = s.id
		 WHERE es.exam_id = $1
		 ORDER BY es.final_score DESC NULLS LAST, s.name ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []SessionResult
	for rows.Next() {
		var res SessionResult
		if err := rows.Scan(&res.StudentID, &res.Name, &res.Email, &res.Level,
			&res.FinalScore, &res.Status, &res.AutoSubmitted, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
