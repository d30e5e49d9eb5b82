package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sankhya-academy/exam-backend/internal/config"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/repository"
	"github.com/sankhya-academy/exam-backend/internal/session"
)

// Session domain errors.
var (
	ErrExamNotAvailable = errors.New("exam is not available")
	ErrSessionNotFound  = errors.New("no session for this exam")
	ErrSessionExpired   = errors.New("exam window has closed")
	ErrAlreadySubmitted = errors.New("session is already submitted")
)

// ExamSessionService owns the exam attempt lifecycle: init/resume, answer
// recording, review marks, heartbeat reconciliation and the single-shot
// submit. The Redis hot path carries the live attempt; PostgreSQL is the
// durable record and the fallback whenever a hot key is missing.
type ExamSessionService struct {
	sessionRepo *repository.ExamSessionRepository
	answerRepo  *repository.AnswerRepository
	examRepo    *repository.ExamRepository
	examService *ExamService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessionRepo *repository.ExamSessionRepository,
	answerRepo *repository.AnswerRepository,
	examRepo *repository.ExamRepository,
	examService *ExamService,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessionRepo: sessionRepo,
		answerRepo:  answerRepo,
		examRepo:    examRepo,
		examService: examService,
		rdb:         rdb,
		log:         logger.Component(log, "exam_session_service"),
	}
}

// LobbyEntry is an exam as displayed in the student lobby, with the
// student's own session state overlaid.
type LobbyEntry struct {
	model.Exam
	SessionStatus *model.SessionStatus `json:"session_status,omitempty"`
	FinalScore    *float64             `json:"final_score,omitempty"`
}

// GetLobby returns published exams with the student's attempt status.
func (s *ExamSessionService) GetLobby(ctx context.Context, studentID int) ([]LobbyEntry, error) {
	exams, err := s.examService.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	sessions, err := s.sessionRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessionMap := make(map[uuid.UUID]*model.ExamSession, len(sessions))
	for i := range sessions {
		sessionMap[sessions[i].ExamID] = &sessions[i]
	}

	lobby := make([]LobbyEntry, 0, len(exams))
	for _, exam := range exams {
		entry := LobbyEntry{Exam: exam}
		if sess, ok := sessionMap[exam.ID]; ok {
			entry.SessionStatus = &sess.Status
			entry.FinalScore = sess.FinalScore
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// InitSession creates or resumes the student's attempt and returns the full
// hydration payload: metadata, sanitized questions and resume state.
func (s *ExamSessionService) InitSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionInitPayload, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}

	now := time.Now()
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return nil, ErrExamNotAvailable
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return nil, ErrExamNotAvailable
	}

	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	if sess == nil {
		sess = &model.ExamSession{
			ExamID:    examID,
			StudentID: studentID,
			EndsAt:    now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
			Status:    model.SessionStatusInProgress,
		}
		if err := s.sessionRepo.Create(ctx, sess); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Concurrent init from another request won; use its row.
				sess, err = s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
				if err != nil {
					return nil, fmt.Errorf("concurrent init detected, but fetch failed: %w", err)
				}
			} else {
				return nil, fmt.Errorf("create session: %w", err)
			}
		} else {
			sess.LastQuestionIndex = 1
		}
	}

	if sess.Status == model.SessionStatusSubmitted {
		return nil, ErrAlreadySubmitted
	}
	if now.After(sess.EndsAt) {
		// Deadline passed while the student was away. Server state wins:
		// finalize with whatever was saved, then report the closure.
		if _, err := s.Submit(ctx, examID, studentID, nil, true); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Auto-submit on init failed")
		}
		return nil, ErrSessionExpired
	}

	s.cacheSessionRef(ctx, sess)

	paper, err := s.examService.GetPaper(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	resume, err := s.loadResume(ctx, sess)
	if err != nil {
		return nil, err
	}

	// Replay the saved state through the state machine so stale entries
	// (deleted questions, out-of-range options) are dropped, not served.
	refs := make([]session.QuestionRef, len(paper.Questions))
	for i, q := range paper.Questions {
		refs[i] = session.QuestionRef{ID: q.ID.String(), OptionCount: len(q.Options)}
	}
	st := session.New(refs, sess.EndsAt)
	st.Hydrate(resume)

	return &model.SessionInitPayload{
		Metadata: model.ExamMetadata{
			ExamSessionID:   sess.ID,
			SubmissionID:    sess.SubmissionID,
			ExamID:          exam.ID,
			ExamType:        exam.Type,
			DurationMinutes: exam.DurationMinutes,
			TotalQuestions:  len(paper.Questions),
			StartTime:       sess.StartedAt.UnixMilli(),
			EndTime:         sess.EndsAt.UnixMilli(),
		},
		Questions:            paper.Questions,
		SavedAnswers:         st.Answers(),
		LastQuestionIndex:    st.Current(),
		SavedMarkedQuestions: st.MarkedQuestions(),
	}, nil
}

// SaveAnswer records one answer: validated against the cached question set,
// written to the Redis hash for immediate resume visibility, then queued for
// durable persistence. The caller never waits on PostgreSQL.
func (s *ExamSessionService) SaveAnswer(ctx context.Context, examID uuid.UUID, studentID int, req *model.SaveAnswerRequest) (*model.SaveAnswerResult, error) {
	sess, err := s.resolveSession(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionStatusSubmitted {
		return nil, ErrAlreadySubmitted
	}

	now := time.Now()
	if now.After(sess.EndsAt) {
		if _, err := s.Submit(ctx, examID, studentID, nil, true); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Auto-submit on save failed")
		}
		return nil, ErrSessionExpired
	}

	counts, err := s.examService.GetOptionCounts(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get option counts: %w", err)
	}
	count, ok := counts[req.QuestionID]
	if !ok {
		return nil, session.ErrUnknownQuestion
	}
	optionIndex := *req.OptionIndex
	if optionIndex < 0 || optionIndex >= count {
		return nil, session.ErrInvalidOption
	}

	sessionID := sess.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.SessionAnswersKey(sessionID), req.QuestionID, optionIndex)
	if req.QuestionIndex > 0 {
		pipe.Set(ctx, config.CacheKey.SessionPositionKey(sessionID), req.QuestionIndex, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache answer: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"session_id":     sessionID,
		"question_id":    req.QuestionID,
		"option_index":   optionIndex,
		"question_index": req.QuestionIndex,
	})
	s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	return &model.SaveAnswerResult{
		QuestionID:  req.QuestionID,
		OptionIndex: optionIndex,
		SavedAt:     now,
	}, nil
}

// MarkQuestion sets or clears the review flag on a question. Marking is
// orthogonal to answering and never touches the answer hash.
func (s *ExamSessionService) MarkQuestion(ctx context.Context, examID uuid.UUID, studentID int, req *model.MarkQuestionRequest) error {
	sess, err := s.resolveSession(ctx, examID, studentID)
	if err != nil {
		return err
	}
	if sess.Status == model.SessionStatusSubmitted {
		return ErrAlreadySubmitted
	}
	if time.Now().After(sess.EndsAt) {
		return ErrSessionExpired
	}

	counts, err := s.examService.GetOptionCounts(ctx, examID)
	if err != nil {
		return fmt.Errorf("get option counts: %w", err)
	}
	if _, ok := counts[req.QuestionID]; !ok {
		return session.ErrUnknownQuestion
	}

	markedKey := config.CacheKey.SessionMarkedKey(sess.ID.String())
	if *req.Marked {
		if err := s.rdb.SAdd(ctx, markedKey, req.QuestionID).Err(); err != nil {
			return fmt.Errorf("mark question: %w", err)
		}
	} else {
		if err := s.rdb.SRem(ctx, markedKey, req.QuestionID).Err(); err != nil {
			return fmt.Errorf("unmark question: %w", err)
		}
	}

	// Mirror the set to PostgreSQL so marks survive cache eviction.
	members, err := s.rdb.SMembers(ctx, markedKey).Result()
	if err != nil {
		return fmt.Errorf("read marked set: %w", err)
	}
	marked := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		marked = append(marked, id)
	}
	if err := s.sessionRepo.SetMarkedQuestions(ctx, sess.ID, marked); err != nil {
		return fmt.Errorf("persist marked set: %w", err)
	}
	return nil
}

// Heartbeat is the authoritative timer check-in. Remaining time is derived
// from the session deadline; a local portal countdown is only a display.
func (s *ExamSessionService) Heartbeat(ctx context.Context, examID uuid.UUID, studentID int) (*model.HeartbeatPayload, error) {
	sess, err := s.resolveSession(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	answered, err := s.answeredCount(ctx, sess)
	if err != nil {
		return nil, err
	}

	if sess.Status == model.SessionStatusSubmitted {
		return &model.HeartbeatPayload{
			TimeRemaining:    0,
			AnsweredCount:    answered,
			ShouldAutoSubmit: false,
			Status:           model.SessionStatusSubmitted,
		}, nil
	}

	remaining := time.Until(sess.EndsAt)
	if remaining < 0 {
		remaining = 0
	}
	return &model.HeartbeatPayload{
		TimeRemaining:    remaining.Seconds(),
		AnsweredCount:    answered,
		ShouldAutoSubmit: remaining == 0,
		Status:           sess.Status,
	}, nil
}

// Submit finalizes the attempt exactly once. The client's complete answer
// map, when present, is merged over the incrementally saved answers so a
// dropped save call cannot silently lose an answer; invalid entries are
// rejected, never coerced. Duplicate submits return the recorded result.
func (s *ExamSessionService) Submit(ctx context.Context, examID uuid.UUID, studentID int, clientAnswers map[string]int, autoSubmitted bool) (*model.SubmitResult, error) {
	// Authoritative read: the cache ref may be stale on status.
	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	key, err := s.examService.GetAnswerKey(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	if sess.Status == model.SessionStatusSubmitted {
		return s.storedResult(ctx, sess, key)
	}

	paper, err := s.examService.GetPaper(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	saved, err := s.loadAnswers(ctx, sess)
	if err != nil {
		return nil, err
	}

	// Merge through the state machine: saved answers first, the client's
	// final map on top. SelectAnswer re-validates every entry.
	refs := make([]session.QuestionRef, len(paper.Questions))
	for i, q := range paper.Questions {
		refs[i] = session.QuestionRef{ID: q.ID.String(), OptionCount: len(q.Options)}
	}
	st := session.New(refs, sess.EndsAt)
	st.Hydrate(session.Resume{Answers: saved})
	for qid, idx := range clientAnswers {
		if err := st.SelectAnswer(qid, idx); err != nil {
			s.log.Warn().
				Str("session_id", sess.ID.String()).
				Str("question_id", qid).
				Int("option_index", idx).
				Msg("Dropping invalid answer from submit payload")
		}
	}
	st.BeginSubmit()

	merged := st.Answers()
	score, correct := Grade(merged, key)
	finishedAt := time.Now()

	won, err := s.sessionRepo.Finalize(ctx, sess.ID, score, autoSubmitted, finishedAt)
	if err != nil {
		// The session stays IN_PROGRESS: the student may retry, nothing
		// is discarded.
		return nil, fmt.Errorf("finalize session: %w", err)
	}
	if !won {
		// A concurrent trigger (double click racing timer expiry, or the
		// sweeper) already finalized. Collapse into its result.
		sess, err = s.sessionRepo.GetByID(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("refetch finalized session: %w", err)
		}
		return s.storedResult(ctx, sess, key)
	}
	st.FinishSubmit()

	// Queue the merged snapshot for durable persistence and hot-key
	// cleanup, then drop the session ref so later reads see PostgreSQL.
	payload, _ := json.Marshal(map[string]interface{}{
		"session_id": sess.ID.String(),
		"exam_id":    examID.String(),
		"student_id": studentID,
		"answers":    merged,
	})
	s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload)

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.StudentExamSessionKey(examID.String(), studentID))
	pipe.Del(ctx, config.CacheKey.SessionDeadlineKey(sess.ID.String()))
	_, _ = pipe.Exec(ctx)

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Float64("score", score).
		Bool("auto", autoSubmitted).
		Msg("Session submitted")

	return &model.SubmitResult{
		SubmissionID:   sess.SubmissionID,
		Score:          score,
		CorrectCount:   correct,
		AnsweredCount:  len(merged),
		TotalQuestions: len(key),
		AutoSubmitted:  autoSubmitted,
		FinishedAt:     finishedAt,
	}, nil
}

// ─── Internal helpers ──────────────────────────────────────────────

// resolveSession finds the student's session via the Redis ref and deadline
// keys, with a PostgreSQL fallback and self-heal mirroring the cache-miss
// failover on the init path. A cache hit implies IN_PROGRESS: finalize
// clears the ref.
func (s *ExamSessionService) resolveSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	refKey := config.CacheKey.StudentExamSessionKey(examID.String(), studentID)

	val, err := s.rdb.Get(ctx, refKey).Result()
	if err == nil {
		if sess := s.cachedSession(ctx, val, examID, studentID); sess != nil {
			return sess, nil
		}
		// Malformed or partial cache entry: fall through to the database.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error resolving session: %w", err)
	}

	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if sess.Status == model.SessionStatusInProgress {
		s.cacheSessionRef(ctx, sess)
	}
	return sess, nil
}

// cachedSession rebuilds a session from the ref and deadline keys. Any
// missing or unparseable piece returns nil so the caller hits PostgreSQL.
func (s *ExamSessionService) cachedSession(ctx context.Context, ref string, examID uuid.UUID, studentID int) *model.ExamSession {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil
	}
	val, err := s.rdb.Get(ctx, config.CacheKey.SessionDeadlineKey(ref)).Result()
	if err != nil {
		return nil
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil
	}
	return &model.ExamSession{
		ID:        id,
		ExamID:    examID,
		StudentID: studentID,
		EndsAt:    time.UnixMilli(millis),
		Status:    model.SessionStatusInProgress,
	}
}

// cacheSessionRef stores the session ID under the student+exam key and the
// deadline under the session key.
func (s *ExamSessionService) cacheSessionRef(ctx context.Context, sess *model.ExamSession) {
	sessionID := sess.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.StudentExamSessionKey(sess.ExamID.String(), sess.StudentID), sessionID, 0)
	pipe.Set(ctx, config.CacheKey.SessionDeadlineKey(sessionID), sess.EndsAt.UnixMilli(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to cache session ref")
	}
}

// loadAnswers reads the hot answer hash, falling back to PostgreSQL and
// self-healing the cache when the hash is missing.
func (s *ExamSessionService) loadAnswers(ctx context.Context, sess *model.ExamSession) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sess.ID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}

	answers := make(map[string]int, len(raw))
	for qid, v := range raw {
		idx, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		answers[qid] = idx
	}
	if len(answers) > 0 {
		return answers, nil
	}

	// Cache miss (evicted or fresh pod). PostgreSQL is the source of truth.
	answers, err = s.answerRepo.MapBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers from db: %w", err)
	}
	if len(answers) > 0 {
		healed := make(map[string]interface{}, len(answers))
		for qid, idx := range answers {
			healed[qid] = strconv.Itoa(idx)
		}
		_ = s.rdb.HSet(ctx, config.CacheKey.SessionAnswersKey(sess.ID.String()), healed).Err()
	}
	return answers, nil
}

// loadResume assembles the full resume payload for session init.
func (s *ExamSessionService) loadResume(ctx context.Context, sess *model.ExamSession) (session.Resume, error) {
	answers, err := s.loadAnswers(ctx, sess)
	if err != nil {
		return session.Resume{}, err
	}

	sessionID := sess.ID.String()
	marked, err := s.rdb.SMembers(ctx, config.CacheKey.SessionMarkedKey(sessionID)).Result()
	if err != nil {
		return session.Resume{}, fmt.Errorf("get marked set: %w", err)
	}
	if len(marked) == 0 {
		ids, err := s.sessionRepo.GetMarkedQuestions(ctx, sess.ID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return session.Resume{}, fmt.Errorf("load marked from db: %w", err)
		}
		for _, id := range ids {
			marked = append(marked, id.String())
		}
		if len(marked) > 0 {
			members := make([]interface{}, len(marked))
			for i, m := range marked {
				members[i] = m
			}
			_ = s.rdb.SAdd(ctx, config.CacheKey.SessionMarkedKey(sessionID), members...).Err()
		}
	}

	position := sess.LastQuestionIndex
	if val, err := s.rdb.Get(ctx, config.CacheKey.SessionPositionKey(sessionID)).Result(); err == nil {
		if n, convErr := strconv.Atoi(val); convErr == nil {
			position = n
		}
	}

	return session.Resume{
		Answers:           answers,
		LastQuestionIndex: position,
		MarkedQuestions:   marked,
	}, nil
}

// answeredCount reports how many questions carry an answer, preferring the
// hot hash and falling back to the durable rows.
func (s *ExamSessionService) answeredCount(ctx context.Context, sess *model.ExamSession) (int, error) {
	n, err := s.rdb.HLen(ctx, config.CacheKey.SessionAnswersKey(sess.ID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	if n > 0 {
		return int(n), nil
	}
	answers, err := s.answerRepo.MapBySession(ctx, sess.ID)
	if err != nil {
		return 0, fmt.Errorf("count answers from db: %w", err)
	}
	return len(answers), nil
}

// storedResult rebuilds the terminal summary of an already-finalized
// session, keeping submit idempotent. The counts derive from the stored
// final score, not from the answer rows: the result worker may still be
// flushing the submitted snapshot, and the score was written synchronously
// at finalize.
func (s *ExamSessionService) storedResult(ctx context.Context, sess *model.ExamSession, key map[string]int) (*model.SubmitResult, error) {
	score := 0.0
	if sess.FinalScore != nil {
		score = *sess.FinalScore
	}

	// Answered count: the hot hash outlives finalize until the result
	// worker lands the batch, so prefer it. No cache heal here: the
	// session is terminal and its keys are on their way out.
	answered := 0
	if n, err := s.rdb.HLen(ctx, config.CacheKey.SessionAnswersKey(sess.ID.String())).Result(); err == nil && n > 0 {
		answered = int(n)
	} else {
		answers, err := s.answerRepo.MapBySession(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("load stored answers: %w", err)
		}
		answered = len(answers)
	}

	finishedAt := time.Now()
	if sess.FinishedAt != nil {
		finishedAt = *sess.FinishedAt
	}

	return &model.SubmitResult{
		SubmissionID:   sess.SubmissionID,
		Score:          score,
		CorrectCount:   CorrectFromScore(score, len(key)),
		AnsweredCount:  answered,
		TotalQuestions: len(key),
		AutoSubmitted:  sess.AutoSubmitted,
		FinishedAt:     finishedAt,
	}, nil
}

// GetResults retrieves paginated exam results for staff.
func (s *ExamSessionService) GetResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.SessionResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	return s.sessionRepo.ListResults(ctx, examID, page, perPage)
}
