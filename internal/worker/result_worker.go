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

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker consumes persist_results_queue. Submit already wrote the
// score synchronously; this loop bulk-writes the merged answer snapshot and
// clears the attempt's hot keys.
type ResultWorker struct {
	answerRepo *repository.AnswerRepository
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(answerRepo *repository.AnswerRepository, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		answerRepo: answerRepo,
		rdb:        rdb,
		log:        logger.Component(log, "result_worker"),
	}
}

type resultPayload struct {
	SessionID string         `json:"session_id"`
	ExamID    string         `json:"exam_id"`
	StudentID int            `json:"student_id"`
	Answers   map[string]int `json:"answers"`
}

// Start begins the worker loop with batching. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]*resultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p resultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkPersistAnswers(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk answer persist failed, requeueing")
		for _, p := range batch {
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
		}
		return
	}

	// Answers are durable; the attempt's hot keys can go.
	w.bulkClearSessionKeys(ctx, batch)
}

// bulkPersistAnswers flattens every snapshot in the batch into one UNNEST
// round trip.
func (w *ResultWorker) bulkPersistAnswers(ctx context.Context, batch []*resultPayload) error {
	var sessionIDs, questionIDs []uuid.UUID
	var optionIndexes []int

	for _, p := range batch {
		sessionID, err := uuid.Parse(p.SessionID)
		if err != nil {
			return err
		}
		for qid, idx := range p.Answers {
			questionID, err := uuid.Parse(qid)
			if err != nil {
				continue
			}
			sessionIDs = append(sessionIDs, sessionID)
			questionIDs = append(questionIDs, questionID)
			optionIndexes = append(optionIndexes, idx)
		}
	}

	return w.answerRepo.BulkUpsert(ctx, sessionIDs, questionIDs, optionIndexes)
}

func (w *ResultWorker) bulkClearSessionKeys(ctx context.Context, batch []*resultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx,
			config.CacheKey.SessionAnswersKey(p.SessionID),
			config.CacheKey.SessionMarkedKey(p.SessionID),
			config.CacheKey.SessionPositionKey(p.SessionID),
			config.CacheKey.SessionDeadlineKey(p.SessionID),
			config.CacheKey.StudentExamSessionKey(p.ExamID, p.StudentID),
		)
	}
	_, _ = pipe.Exec(ctx)
}
