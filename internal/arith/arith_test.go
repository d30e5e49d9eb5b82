package arith

import (
	"reflect"
	"testing"

	"github.com/sankhya-academy/exam-backend/internal/model"
)

func TestParseTerms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []int64
	}{
		{"addition chain", "12 + 34 + 5", []int64{12, 34, 5}},
		{"subtraction normalized", "40 - 15", []int64{40, -15}},
		{"mixed chain", "8 + 17 - 9 + 4", []int64{8, 17, -9, 4}},
		{"leading negative", "-3 + 10", []int64{-3, 10}},
		{"garbage tokens dropped", "7 + abacus + 2", []int64{7, 2}},
		{"no digits", "what is the answer?", []int64{}},
		{"single number", "42", []int64{42}},
		{"empty", "", []int64{}},
		{"multiplication text yields nothing", "12 × 3", []int64{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseTerms(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseTerms(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestOperandsPrefersStructured(t *testing.T) {
	got := Operands([]int64{5, -2, 9}, "1 + 1")
	if !reflect.DeepEqual(got, []int64{5, -2, 9}) {
		t.Errorf("Operands = %v, want structured array to win", got)
	}

	// Returned slice must be a copy, not an alias of the question data.
	ops := []int64{1, 2}
	got = Operands(ops, "")
	got[0] = 99
	if ops[0] != 1 {
		t.Error("Operands aliased the structured array")
	}
}

func TestOperandsFallsBackToText(t *testing.T) {
	got := Operands(nil, "30 - 12 + 7")
	if !reflect.DeepEqual(got, []int64{30, -12, 7}) {
		t.Errorf("Operands fallback = %v, want [30 -12 7]", got)
	}
}

func TestDetectOperator(t *testing.T) {
	tests := []struct {
		in     string
		want   model.Operator
		wantOK bool
	}{
		{"12 × 3", model.OperatorMultiplication, true},
		{"12 * 3", model.OperatorMultiplication, true},
		{"81 ÷ 9", model.OperatorDivision, true},
		{"81 / 9", model.OperatorDivision, true},
		{"1 + 2", "", false},
	}
	for _, tc := range tests {
		got, ok := DetectOperator(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("DetectOperator(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestVerticalStack(t *testing.T) {
	mul := model.OperatorMultiplication

	t.Run("structured operations", func(t *testing.T) {
		q := &model.QuestionForStudent{
			QuestionText: "23 × 4",
			Operations:   []int64{23, 4},
			OperatorType: &mul,
		}
		got := VerticalStack(q)
		if got == nil {
			t.Fatal("no stack derived")
		}
		if got.Operator != model.OperatorMultiplication {
			t.Errorf("operator = %s, want MULTIPLICATION", got.Operator)
		}
		if !reflect.DeepEqual(got.Operands, []int64{23, 4}) {
			t.Errorf("operands = %v, want [23 4]", got.Operands)
		}
	})

	t.Run("text fallback defaults to addition", func(t *testing.T) {
		q := &model.QuestionForStudent{QuestionText: "15 + 6 - 3"}
		got := VerticalStack(q)
		if got == nil {
			t.Fatal("no stack derived")
		}
		if got.Operator != model.OperatorAddition {
			t.Errorf("operator = %s, want ADDITION", got.Operator)
		}
		if !reflect.DeepEqual(got.Operands, []int64{15, 6, -3}) {
			t.Errorf("operands = %v, want [15 6 -3]", got.Operands)
		}
	})

	t.Run("operator detected from text symbols", func(t *testing.T) {
		q := &model.QuestionForStudent{
			QuestionText: "96 ÷ 8",
			Operations:   []int64{96, 8},
		}
		got := VerticalStack(q)
		if got == nil {
			t.Fatal("no stack derived")
		}
		if got.Operator != model.OperatorDivision {
			t.Errorf("operator = %s, want DIVISION", got.Operator)
		}
	})

	t.Run("unstackable question", func(t *testing.T) {
		q := &model.QuestionForStudent{QuestionText: "How many beads on the upper deck?"}
		if got := VerticalStack(q); got != nil {
			t.Errorf("stack = %+v, want nil for word question", got)
		}
	})
}
