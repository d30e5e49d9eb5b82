package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamType distinguishes scored competitions from practice mock tests.
type ExamType string

const (
	ExamTypeCompetition ExamType = "COMPETITION"
	ExamTypeMockTest    ExamType = "MOCK_TEST"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents a timed abacus exam: a competition round or a mock test.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Type            ExamType   `json:"type"`
	DurationMinutes int        `json:"duration_minutes"`
	QuestionCount   int        `json:"question_count"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Type            ExamType   `json:"type" binding:"required,oneof=COMPETITION MOCK_TEST"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	Type            ExamType   `json:"type" binding:"omitempty,oneof=COMPETITION MOCK_TEST"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
}

// ExamPaper is the Redis-cached paper sent to students (no correct answers).
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	Type            ExamType             `json:"type"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}
