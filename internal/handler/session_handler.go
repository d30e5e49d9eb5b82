package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sankhya-academy/exam-backend/internal/middleware"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/response"
	"github.com/sankhya-academy/exam-backend/internal/service"
	"github.com/sankhya-academy/exam-backend/internal/session"
	"github.com/sankhya-academy/exam-backend/internal/validator"
)

// SessionHandler exposes the student exam-taking endpoints. Handlers stay
// thin: parse, delegate, map domain errors onto the response envelope.
type SessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// GetLobby godoc
// GET /api/v1/student/exams
// Published exams with the student's own attempt status overlaid.
func (h *SessionHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)

	lobby, err := h.sessionService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// InitSession godoc
// POST /api/v1/student/exams/:exam_id/session/init
// Creates or resumes the attempt and returns the full hydration payload.
func (h *SessionHandler) InitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	payload, err := h.sessionService.InitSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// SaveAnswer godoc
// POST /api/v1/student/exams/:exam_id/session/answer
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.SaveAnswer(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// MarkQuestion godoc
// POST /api/v1/student/exams/:exam_id/session/mark
func (h *SessionHandler) MarkQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.MarkQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.MarkQuestion(c.Request.Context(), examID, claims.UserID, &req); err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": req.QuestionID,
		"marked":      *req.Marked,
	})
}

// Heartbeat godoc
// GET /api/v1/student/exams/:exam_id/session/heartbeat
// The authoritative timer check-in; the portal reconciles to this.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	payload, err := h.sessionService.Heartbeat(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/session/submit
// Single-shot finalize; duplicate calls return the recorded result.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), examID, claims.UserID, req.Answers, false)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

func parseExamID(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

// failSessionError maps session domain errors onto envelope codes.
func failSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, service.ErrSessionExpired):
		response.Fail(c, http.StatusConflict, response.ErrSessionExpired)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrSessionAlreadySubmitted)
	case errors.Is(err, session.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, session.ErrInvalidOption):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidOption)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
