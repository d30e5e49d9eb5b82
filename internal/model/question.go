package model

import (
	"github.com/google/uuid"
)

// Operator classifies the arithmetic drill a question renders as a vertical
// stack on the portal: addition/subtraction chains, multiplication or
// division. Display metadata only; scoring always compares option indexes.
type Operator string

const (
	OperatorAddition       Operator = "ADDITION"
	OperatorMultiplication Operator = "MULTIPLICATION"
	OperatorDivision       Operator = "DIVISION"
)

// VerticalStack is the portal-facing vertical rendering of a drill
// question: the operand column and the operator header.
type VerticalStack struct {
	Operands []int64  `json:"operands"`
	Operator Operator `json:"operator"`
}

// Option is a single answer choice. Index is the canonical answer key and
// must equal the option's position in the array; provisioning rejects
// payloads where the two diverge.
type Option struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	QuestionText  string    `json:"question_text"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Options       []Option  `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Operations    []int64   `json:"operations,omitempty"`
	OperatorType  *Operator `json:"operator_type,omitempty"`
	OrderNum      int       `json:"order_num"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID      `json:"id"`
	QuestionText string         `json:"question_text"`
	ImageURL     *string        `json:"image_url,omitempty"`
	Options      []Option       `json:"options"`
	Operations   []int64        `json:"operations,omitempty"`
	OperatorType *Operator      `json:"operator_type,omitempty"`
	Stack        *VerticalStack `json:"stack,omitempty"`
	OrderNum     int            `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	QuestionText  string    `json:"question_text" binding:"required,min=1,max=2000"`
	ImageURL      *string   `json:"image_url" binding:"omitempty,url"`
	Options       []Option  `json:"options" binding:"required,min=2,max=10,dive"`
	CorrectOption int       `json:"correct_option" binding:"min=0"`
	Operations    []int64   `json:"operations" binding:"omitempty"`
	OperatorType  *Operator `json:"operator_type" binding:"omitempty,oneof=ADDITION MULTIPLICATION DIVISION"`
	OrderNum      int       `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
