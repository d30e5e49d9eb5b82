package service

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/sankhya-academy/exam-backend/internal/model"
)

func TestBuildStudentPaper(t *testing.T) {
	mul := model.OperatorMultiplication
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Level 3 Mock",
		Type:            "MOCK_TEST",
		DurationMinutes: 30,
	}
	questions := []model.Question{
		{
			ID:            uuid.New(),
			QuestionText:  "12 + 34 - 5",
			Options:       []model.Option{{Index: 0, Text: "41"}, {Index: 1, Text: "42"}},
			CorrectOption: 0,
			OrderNum:      1,
		},
		{
			ID:            uuid.New(),
			QuestionText:  "23 × 4",
			Options:       []model.Option{{Index: 0, Text: "92"}, {Index: 1, Text: "96"}},
			CorrectOption: 0,
			Operations:    []int64{23, 4},
			OperatorType:  &mul,
			OrderNum:      2,
		},
		{
			ID:            uuid.New(),
			QuestionText:  "How many beads on the upper deck?",
			Options:       []model.Option{{Index: 0, Text: "1"}, {Index: 1, Text: "2"}},
			CorrectOption: 1,
			OrderNum:      3,
		},
	}

	paper := buildStudentPaper(exam, questions)

	if paper.ExamID != exam.ID || len(paper.Questions) != 3 {
		t.Fatalf("paper = %+v, want 3 questions for exam %s", paper, exam.ID)
	}

	// Text-only drill: operands recovered from the question text, operator
	// defaulting to addition.
	chain := paper.Questions[0]
	if chain.Stack == nil {
		t.Fatal("no stack derived for addition chain")
	}
	if !reflect.DeepEqual(chain.Stack.Operands, []int64{12, 34, -5}) {
		t.Errorf("chain operands = %v, want [12 34 -5]", chain.Stack.Operands)
	}
	if chain.Stack.Operator != model.OperatorAddition {
		t.Errorf("chain operator = %s, want ADDITION", chain.Stack.Operator)
	}

	// Structured drill: the operations array wins over the text.
	drill := paper.Questions[1]
	if drill.Stack == nil {
		t.Fatal("no stack derived for structured drill")
	}
	if !reflect.DeepEqual(drill.Stack.Operands, []int64{23, 4}) {
		t.Errorf("drill operands = %v, want [23 4]", drill.Stack.Operands)
	}
	if drill.Stack.Operator != model.OperatorMultiplication {
		t.Errorf("drill operator = %s, want MULTIPLICATION", drill.Stack.Operator)
	}

	// Word questions have no vertical rendering.
	if paper.Questions[2].Stack != nil {
		t.Errorf("word question stack = %+v, want nil", paper.Questions[2].Stack)
	}
}
