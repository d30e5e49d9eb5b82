package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/middleware"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/service"
	"github.com/sankhya-academy/exam-backend/internal/session"
	ws "github.com/sankhya-academy/exam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one exam attempt over a WebSocket: autosave and mark
// actions inbound, a server-driven countdown outbound. The connection owns a
// session.State hydrated from the stored attempt, so every message is
// validated against the same machine the REST path uses.
type WSHandler struct {
	examService    *service.ExamService
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	heartbeatEvery time.Duration
}

// NewWSHandler creates a new WSHandler. heartbeatEvery controls the cadence
// of the countdown push.
func NewWSHandler(examService *service.ExamService, sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string, heartbeatEvery time.Duration) *WSHandler {
	return &WSHandler{
		examService:    examService,
		sessionService: sessionService,
		log:            logger.Component(log, "ws_handler"),
		upgrader:       buildUpgrader(allowedOrigins),
		heartbeatEvery: heartbeatEvery,
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream?token=...
// Upgrades to WebSocket for live autosave, review marks and the
// authoritative countdown push.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}
	studentID := claims.UserID

	// InitSession is idempotent: an open attempt resumes, a finished or
	// expired one is rejected before the upgrade.
	payload, err := h.sessionService.InitSession(c.Request.Context(), examID, studentID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	// Hydrate the connection's state machine from the stored attempt.
	refs := make([]session.QuestionRef, len(payload.Questions))
	for i, q := range payload.Questions {
		refs[i] = session.QuestionRef{ID: q.ID.String(), OptionCount: len(q.Options)}
	}
	st := session.New(refs, time.UnixMilli(payload.Metadata.EndTime))
	st.Hydrate(session.Resume{
		Answers:           payload.SavedAnswers,
		LastQuestionIndex: payload.LastQuestionIndex,
		MarkedQuestions:   payload.SavedMarkedQuestions,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Countdown pusher: heartbeats derived from the deadline, never from
	// a decrementing counter. On expiry the server finalizes; the portal
	// only displays.
	countdown := session.NewCountdown(st, h.heartbeatEvery)
	countdown.OnTick = func(remaining time.Duration) {
		counts := st.Counts()
		_ = conn.WriteTyped(ws.HeartbeatResponse{
			Event:         ws.EventHeartbeat,
			TimeRemaining: remaining.Seconds(),
			Clock:         session.FormatClock(remaining),
			AnsweredCount: counts.Answered,
		})
	}
	countdown.OnExpire = func() {
		_ = conn.WriteTyped(ws.HeartbeatResponse{
			Event:            ws.EventHeartbeat,
			TimeRemaining:    0,
			Clock:            session.FormatClock(0),
			AnsweredCount:    st.Counts().Answered,
			ShouldAutoSubmit: true,
		})
		h.finalize(ctx, conn, wsLog, st, examID, studentID, nil, true)
	}
	go countdown.Run(ctx)

	for {
		data, err := conn.ReadRaw()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, st, examID, studentID, data)
		case ws.ActionMark:
			h.handleMark(ctx, conn, wsLog, st, examID, studentID, data)
		case ws.ActionSubmit:
			var req ws.SubmitRequest
			if err := json.Unmarshal(data, &req); err != nil {
				conn.WriteError("malformed submit")
				continue
			}
			h.finalize(ctx, conn, wsLog, st, examID, studentID, req.Answers, false)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(envelope.Action))
		}
	}
}

// handleAutosave validates the answer against the state machine, then routes
// it through the same save path the REST endpoint uses.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, st *session.State, examID uuid.UUID, studentID int, data []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID == "" || req.OptionIndex == nil {
		conn.WriteError("question_id and selected_option_index are required")
		return
	}
	if _, err := uuid.Parse(req.QuestionID); err != nil {
		conn.WriteError("invalid question_id format")
		return
	}

	if err := st.SelectAnswer(req.QuestionID, *req.OptionIndex); err != nil {
		conn.WriteError(err.Error())
		return
	}
	if req.QuestionIndex > 0 {
		_ = st.GoTo(req.QuestionIndex)
	}

	_, err := h.sessionService.SaveAnswer(ctx, examID, studentID, &model.SaveAnswerRequest{
		QuestionID:    req.QuestionID,
		OptionIndex:   req.OptionIndex,
		QuestionIndex: req.QuestionIndex,
	})
	if err != nil {
		wsLog.Error().Err(err).Str("question_id", req.QuestionID).Msg("Autosave failed")
		conn.WriteError("save failed")
		return
	}

	conn.WriteTyped(ws.SavedResponse{
		Event:       ws.EventSaved,
		QuestionID:  req.QuestionID,
		OptionIndex: *req.OptionIndex,
	})
}

func (h *WSHandler) handleMark(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, st *session.State, examID uuid.UUID, studentID int, data []byte) {
	var req ws.MarkRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID == "" || req.Marked == nil {
		conn.WriteError("question_id and marked are required")
		return
	}

	if err := st.SetMarked(req.QuestionID, *req.Marked); err != nil {
		conn.WriteError(err.Error())
		return
	}

	err := h.sessionService.MarkQuestion(ctx, examID, studentID, &model.MarkQuestionRequest{
		QuestionID: req.QuestionID,
		Marked:     req.Marked,
	})
	if err != nil {
		wsLog.Error().Err(err).Str("question_id", req.QuestionID).Msg("Mark failed")
		conn.WriteError("mark failed")
		return
	}

	conn.WriteTyped(ws.MarkedResponse{
		Event:      ws.EventMarked,
		QuestionID: req.QuestionID,
		Marked:     *req.Marked,
	})
}

// finalize submits the attempt exactly once per connection. The state
// machine's CAS guards against the timer expiry racing a manual submit on
// the same socket; the conditional database update guards across replicas.
func (h *WSHandler) finalize(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, st *session.State, examID uuid.UUID, studentID int, answers map[string]int, auto bool) {
	if !st.BeginSubmit() {
		conn.WriteError("already submitted")
		return
	}

	result, err := h.sessionService.Submit(ctx, examID, studentID, answers, auto)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			st.FinishSubmit()
			conn.WriteError("already submitted")
			return
		}
		st.FailSubmit()
		wsLog.Error().Err(err).Msg("Submit failed")
		conn.WriteError("submit failed")
		return
	}
	st.FinishSubmit()

	wsLog.Info().
		Float64("score", result.Score).
		Bool("auto", auto).
		Msg("Session submitted over stream")

	conn.WriteTyped(ws.SubmittedResponse{
		Event:         ws.EventSubmitted,
		SubmissionID:  result.SubmissionID.String(),
		Score:         result.Score,
		AutoSubmitted: result.AutoSubmitted,
	})
}
