package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sankhya-academy/exam-backend/internal/config"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/repository"
)

// AnswerPersistWorker consumes persist_answers_queue and UPSERTs answers to
// PostgreSQL, along with the resume position the save carried. The save
// endpoint already wrote the Redis hash; this loop only makes the state
// durable, so the student never waits on it.
type AnswerPersistWorker struct {
	answerRepo  *repository.AnswerRepository
	sessionRepo *repository.ExamSessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAnswerPersistWorker creates a new AnswerPersistWorker.
func NewAnswerPersistWorker(
	answerRepo *repository.AnswerRepository,
	sessionRepo *repository.ExamSessionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AnswerPersistWorker {
	return &AnswerPersistWorker{
		answerRepo:  answerRepo,
		sessionRepo: sessionRepo,
		rdb:         rdb,
		log:         logger.Component(log, "answer_persist_worker"),
	}
}

type answerPayload struct {
	SessionID     string `json:"session_id"`
	QuestionID    string `json:"question_id"`
	OptionIndex   int    `json:"option_index"`
	QuestionIndex int    `json:"question_index"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerPersistWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerPersistWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload answerPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistAnswer(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Str("session_id", payload.SessionID).
			Str("question_id", payload.QuestionID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AnswerPersistWorker) persistAnswer(ctx context.Context, p *answerPayload) error {
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return err
	}
	questionID, err := uuid.Parse(p.QuestionID)
	if err != nil {
		return err
	}
	if err := w.answerRepo.Upsert(ctx, sessionID, questionID, p.OptionIndex); err != nil {
		return err
	}

	// Durable resume position, so a cold cache resumes where the student
	// left off rather than at question 1. Both writes are idempotent, so a
	// requeue replays them safely.
	if p.QuestionIndex > 0 {
		return w.sessionRepo.SetLastQuestionIndex(ctx, sessionID, p.QuestionIndex)
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerPersistWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var payload answerPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistAnswer(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
