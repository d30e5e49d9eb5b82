package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/repository"
	"github.com/sankhya-academy/exam-backend/internal/service"
)

const sweepBatchLimit = 100

// ExpirySweeper finalizes attempts whose deadline passed without a submit:
// closed laptops, dropped connections, dead tabs. The countdown a portal
// runs is advisory; this loop is the authority that actually ends the exam.
//
// Grace gives an in-flight client submit a short head start so the student's
// own final answer map wins when both race the deadline.
type ExpirySweeper struct {
	sessionRepo    *repository.ExamSessionRepository
	sessionService *service.ExamSessionService
	interval       time.Duration
	grace          time.Duration
	log            zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(
	sessionRepo *repository.ExamSessionRepository,
	sessionService *service.ExamSessionService,
	interval, grace time.Duration,
	log zerolog.Logger,
) *ExpirySweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ExpirySweeper{
		sessionRepo:    sessionRepo,
		sessionService: sessionService,
		interval:       interval,
		grace:          grace,
		log:            logger.Component(log, "expiry_sweeper"),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Sweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.grace)

	sessions, err := w.sessionRepo.ListExpired(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("List expired sessions failed")
		return
	}
	if len(sessions) == 0 {
		return
	}

	submitted := 0
	for i := range sessions {
		sess := &sessions[i]
		_, err := w.sessionService.Submit(ctx, sess.ExamID, sess.StudentID, nil, true)
		if err != nil {
			// Already-submitted means a client submit won the race; fine.
			if errors.Is(err, service.ErrAlreadySubmitted) {
				continue
			}
			w.log.Error().Err(err).
				Str("session_id", sess.ID.String()).
				Msg("Auto-submit failed")
			continue
		}
		submitted++
	}

	if submitted > 0 {
		w.log.Info().Int("count", submitted).Msg("Auto-submitted expired sessions")
	}
}
