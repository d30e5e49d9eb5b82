package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
)

// ExamSession represents one student's attempt at an exam. EndsAt is the
// authoritative deadline: every remaining-time figure the API reports is
// derived from it, never from a client-side countdown.
type ExamSession struct {
	ID                uuid.UUID     `json:"exam_session_id"`
	SubmissionID      uuid.UUID     `json:"submission_id"`
	ExamID            uuid.UUID     `json:"exam_id"`
	StudentID         int           `json:"student_id"`
	StartedAt         time.Time     `json:"started_at"`
	EndsAt            time.Time     `json:"ends_at"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty"`
	Status            SessionStatus `json:"status"`
	AutoSubmitted     bool          `json:"auto_submitted"`
	FinalScore        *float64      `json:"final_score,omitempty"`
	LastQuestionIndex int           `json:"last_question_index"`
}

// ExamMetadata is the immutable per-session header returned by session init.
// StartTime/EndTime are epoch milliseconds defining the exam window.
type ExamMetadata struct {
	ExamSessionID   uuid.UUID `json:"exam_session_id"`
	SubmissionID    uuid.UUID `json:"submission_id"`
	ExamID          uuid.UUID `json:"exam_id"`
	ExamType        ExamType  `json:"exam_type"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalQuestions  int       `json:"total_questions"`
	StartTime       int64     `json:"start_time"`
	EndTime         int64     `json:"end_time"`
}

// SessionInitPayload is the full session-init response: metadata, the
// sanitized question set and the resume state for rebuilding the portal
// after a reload.
type SessionInitPayload struct {
	Metadata             ExamMetadata         `json:"metadata"`
	Questions            []QuestionForStudent `json:"questions"`
	SavedAnswers         map[string]int       `json:"saved_answers"`
	LastQuestionIndex    int                  `json:"last_question_index"`
	SavedMarkedQuestions []string             `json:"saved_marked_questions"`
}

// SaveAnswerRequest records one answer. OptionIndex is a pointer so that
// index 0 survives required-field validation. QuestionIndex, when present,
// updates the session's resume position.
type SaveAnswerRequest struct {
	QuestionID    string `json:"question_id" binding:"required,uuid"`
	OptionIndex   *int   `json:"selected_option_index" binding:"required,min=0"`
	QuestionIndex int    `json:"question_index" binding:"omitempty,min=1"`
}

// SaveAnswerResult echoes the stored answer back to the portal.
type SaveAnswerResult struct {
	QuestionID  string    `json:"question_id"`
	OptionIndex int       `json:"selected_option_index"`
	SavedAt     time.Time `json:"saved_at"`
}

// MarkQuestionRequest toggles the review flag on a question, independent of
// whether the question has been answered.
type MarkQuestionRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Marked     *bool  `json:"marked" binding:"required"`
}

// HeartbeatPayload is the authoritative timer/state check-in.
type HeartbeatPayload struct {
	TimeRemaining    float64       `json:"time_remaining"`
	AnsweredCount    int           `json:"answered_count"`
	ShouldAutoSubmit bool          `json:"should_auto_submit"`
	Status           SessionStatus `json:"status"`
}

// SubmitRequest finalizes the attempt. Answers carries the client's complete
// answer map so submission is self-sufficient even if an incremental save
// was dropped; it may be empty on the auto-submit path.
type SubmitRequest struct {
	Answers map[string]int `json:"answers" binding:"omitempty"`
}

// SubmitResult is the terminal summary of an attempt.
type SubmitResult struct {
	SubmissionID   uuid.UUID `json:"submission_id"`
	Score          float64   `json:"score"`
	CorrectCount   int       `json:"correct_count"`
	AnsweredCount  int       `json:"answered_count"`
	TotalQuestions int       `json:"total_questions"`
	AutoSubmitted  bool      `json:"auto_submitted"`
	FinishedAt     time.Time `json:"finished_at"`
}
