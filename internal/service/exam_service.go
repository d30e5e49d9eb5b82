package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sankhya-academy/exam-backend/internal/arith"
	"github.com/sankhya-academy/exam-backend/internal/config"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/repository"
)

// Domain errors.
var (
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
)

// ExamService handles exam provisioning and the Redis hot path: the
// sanitized paper, the answer key and the per-question option counts every
// running session validates against.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          logger.Component(log, "exam_service"),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// List retrieves exams with pagination.
func (s *ExamService) List(ctx context.Context, page, perPage int) ([]model.Exam, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	exams, total, err := s.examRepo.ListPaginated(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, total, nil
}

// ListPublished retrieves all published exams for the student lobby.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.ListPublished(ctx)
}

// Create inserts a new exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	exam.Status = model.ExamStatusDraft
	return s.examRepo.Create(ctx, exam)
}

// Update modifies an existing draft exam.
func (s *ExamService) Update(ctx context.Context, exam *model.Exam) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Update(ctx, exam)
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// ReplaceQuestions swaps an exam's question set. Only drafts may change.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.questionRepo.Replace(ctx, examID, questions)
}

// ListQuestions retrieves an exam's questions including answer keys (staff only).
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// Publish changes exam status to PUBLISHED and warms the Redis hot path.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// RefreshCache re-caches the paper + answer key for a published exam.
func (s *ExamService) RefreshCache(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Cache refreshed")
	return nil
}

// buildStudentPaper assembles the student-facing paper: correct answers
// stripped, the vertical-stack rendering attached per question.
func buildStudentPaper(exam *model.Exam, questions []model.Question) model.ExamPaper {
	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		sq := model.QuestionForStudent{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			ImageURL:     q.ImageURL,
			Options:      q.Options,
			Operations:   q.Operations,
			OperatorType: q.OperatorType,
			OrderNum:     q.OrderNum,
		}
		sq.Stack = arith.VerticalStack(&sq)
		studentQuestions[i] = sq
	}

	return model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		Type:            exam.Type,
		DurationMinutes: exam.DurationMinutes,
		Questions:       studentQuestions,
	}
}

// WarmExamCache loads an exam's paper, answer key and option counts from
// PostgreSQL into Redis. Core cache-warming logic used by Publish,
// RefreshCache and PrewarmAllCaches.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	paperJSON, err := json.Marshal(buildStudentPaper(exam, questions))
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	// Answer key and option counts, for RAM grading and answer validation.
	answerKey := make(map[string]interface{}, len(questions))
	optionCounts := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = strconv.Itoa(q.CorrectOption)
		optionCounts[q.ID.String()] = strconv.Itoa(len(q.Options))
	}

	examID := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(examID), paperJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKeyKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKeyKey(examID), answerKey)
	pipe.Del(ctx, config.CacheKey.ExamOptionCountsKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamOptionCountsKey(examID), optionCounts)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", examID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on startup, so the
// first session init never races a lazy cache fill.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetPaper retrieves the cached student paper, self-healing the cache from
// PostgreSQL on a miss (evicted key, flushed Redis).
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := s.rewarmPublished(ctx, examID); err != nil {
			return nil, err
		}
		data, err = s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("get paper after rewarm: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.ExamPaper
	if err := json.Unmarshal(data, &paper); err != nil {
		return nil, fmt.Errorf("unmarshal paper: %w", err)
	}
	return &paper, nil
}

// GetAnswerKey retrieves the answer key from Redis for in-RAM grading, with
// the same miss fallback as GetPaper.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (map[string]int, error) {
	return s.intHash(ctx, examID, config.CacheKey.ExamAnswerKeyKey(examID.String()))
}

// GetOptionCounts retrieves the per-question option counts from Redis, used
// to validate answers without touching PostgreSQL.
func (s *ExamService) GetOptionCounts(ctx context.Context, examID uuid.UUID) (map[string]int, error) {
	return s.intHash(ctx, examID, config.CacheKey.ExamOptionCountsKey(examID.String()))
}

func (s *ExamService) intHash(ctx context.Context, examID uuid.UUID, key string) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(raw) == 0 {
		if err := s.rewarmPublished(ctx, examID); err != nil {
			return nil, err
		}
		raw, err = s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("get %s after rewarm: %w", key, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("%s empty after rewarm", key)
		}
	}

	out := make(map[string]int, len(raw))
	for qid, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid entry in %s for %s: %w", key, qid, err)
		}
		out[qid] = n
	}
	return out, nil
}

// rewarmPublished refills the hot keys for a published exam after a cache
// miss. A draft or archived exam has no business in the hot path.
func (s *ExamService) rewarmPublished(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam for rewarm: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	s.log.Warn().Str("exam_id", examID.String()).Msg("Hot keys missing, rewarming")
	return s.WarmExamCache(ctx, exam)
}
