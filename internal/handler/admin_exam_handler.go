package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/response"
	"github.com/sankhya-academy/exam-backend/internal/service"
	"github.com/sankhya-academy/exam-backend/internal/validator"
)

// AdminExamHandler handles staff exam provisioning endpoints.
type AdminExamHandler struct {
	examService    *service.ExamService
	sessionService *service.ExamSessionService
}

// NewAdminExamHandler creates a new AdminExamHandler.
func NewAdminExamHandler(examService *service.ExamService, sessionService *service.ExamSessionService) *AdminExamHandler {
	return &AdminExamHandler{
		examService:    examService,
		sessionService: sessionService,
	}
}

// ListExams godoc
// GET /api/v1/staff/exams?page=1&per_page=25
func (h *AdminExamHandler) ListExams(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	exams, total, err := h.examService.List(c.Request.Context(), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exams": exams,
		"total": total,
	})
}

// GetExam godoc
// GET /api/v1/staff/exams/:exam_id
func (h *AdminExamHandler) GetExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		failExamError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// CreateExam godoc
// POST /api/v1/staff/exams
func (h *AdminExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:           req.Title,
		Type:            req.Type,
		DurationMinutes: req.DurationMinutes,
		ScheduledStart:  req.ScheduledStart,
		ScheduledEnd:    req.ScheduledEnd,
	}
	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/staff/exams/:exam_id
// Draft exams only.
func (h *AdminExamHandler) UpdateExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		failExamError(c, err)
		return
	}
	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Type != "" {
		exam.Type = req.Type
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.ScheduledStart != nil {
		exam.ScheduledStart = req.ScheduledStart
	}
	if req.ScheduledEnd != nil {
		exam.ScheduledEnd = req.ScheduledEnd
	}

	if err := h.examService.Update(c.Request.Context(), exam); err != nil {
		failExamError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/staff/exams/:exam_id
// Draft exams only.
func (h *AdminExamHandler) DeleteExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID); err != nil {
		failExamError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ReplaceQuestions godoc
// PUT /api/v1/staff/exams/:exam_id/questions
// Swaps the full question set of a draft exam.
func (h *AdminExamHandler) ReplaceQuestions(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		// Option.Index is the canonical answer key and the whole hot path
		// (option counts, grading) addresses options by position, so the
		// two must agree before anything is persisted.
		for j, opt := range q.Options {
			if opt.Index != j {
				response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
					"questions": fmt.Sprintf("option index %d at position %d of question %d; indexes must match positions", opt.Index, j, i),
				})
				return
			}
		}
		if q.CorrectOption >= len(q.Options) {
			response.FailWithDetails(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"questions": "correct_option out of range at position " + strconv.Itoa(i),
			})
			return
		}
		orderNum := q.OrderNum
		if orderNum == 0 {
			orderNum = i + 1
		}
		questions[i] = model.Question{
			ExamID:        examID,
			QuestionText:  q.QuestionText,
			ImageURL:      q.ImageURL,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Operations:    q.Operations,
			OperatorType:  q.OperatorType,
			OrderNum:      orderNum,
		}
	}

	if err := h.examService.ReplaceQuestions(c.Request.Context(), examID, questions); err != nil {
		failExamError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_count": len(questions)})
}

// ListQuestions godoc
// GET /api/v1/staff/exams/:exam_id/questions
// Full questions including answer keys.
func (h *AdminExamHandler) ListQuestions(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	questions, err := h.examService.ListQuestions(c.Request.Context(), examID)
	if err != nil {
		failExamError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// PublishExam godoc
// POST /api/v1/staff/exams/:exam_id/publish
// Warms the Redis hot path, then flips DRAFT to PUBLISHED.
func (h *AdminExamHandler) PublishExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.examService.Publish(c.Request.Context(), examID); err != nil {
		failExamError(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{}, "Exam published")
}

// RefreshCache godoc
// POST /api/v1/staff/exams/:exam_id/refresh-cache
func (h *AdminExamHandler) RefreshCache(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.examService.RefreshCache(c.Request.Context(), examID); err != nil {
		failExamError(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, gin.H{}, "Exam cache refreshed")
}

// GetResults godoc
// GET /api/v1/staff/exams/:exam_id/results?page=1&per_page=25
// Student results ranked by score.
func (h *AdminExamHandler) GetResults(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	results, total, err := h.sessionService.GetResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"results": results,
		"total":   total,
	})
}

// failExamError maps exam provisioning errors onto envelope codes.
func failExamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
