// Package arith derives the vertical-stack operand display for abacus drill
// questions. This is a formatting concern only: scoring always compares the
// selected option index against the answer key, never by re-evaluating the
// arithmetic.
package arith

import (
	"strconv"
	"strings"

	"github.com/sankhya-academy/exam-backend/internal/model"
)

// VerticalStack derives the stack for a question. A structured operations
// array wins; otherwise the question text is tokenized as a fallback. A
// question that yields fewer than two operands has no stack rendering and
// returns nil.
func VerticalStack(q *model.QuestionForStudent) *model.VerticalStack {
	operands := Operands(q.Operations, q.QuestionText)
	if len(operands) < 2 {
		return nil
	}

	op := model.OperatorAddition
	if q.OperatorType != nil {
		op = *q.OperatorType
	} else if detected, ok := DetectOperator(q.QuestionText); ok {
		op = detected
	}

	return &model.VerticalStack{Operands: operands, Operator: op}
}

// Operands returns the numeric terms of a drill. The structured array is
// authoritative when present; the text parse is a best-effort fallback.
func Operands(operations []int64, questionText string) []int64 {
	if len(operations) > 0 {
		out := make([]int64, len(operations))
		copy(out, operations)
		return out
	}
	return ParseTerms(questionText)
}

// ParseTerms recovers integer terms from a textual addition/subtraction
// chain. "a - b" is normalized to "a + -b" and split on "+"; any token that
// fails integer parsing is silently dropped. Documented failure mode: a
// malformed question yields fewer terms, never an error.
func ParseTerms(text string) []int64 {
	normalized := strings.ReplaceAll(text, "-", "+-")
	parts := strings.Split(normalized, "+")

	terms := make([]int64, 0, len(parts))
	for _, part := range parts {
		// "a - b" normalizes to a "- b" token with an interior space.
		token := strings.ReplaceAll(part, " ", "")
		if token == "" {
			continue
		}
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			continue
		}
		terms = append(terms, n)
	}
	return terms
}

// DetectOperator inspects question text for multiplication or division
// symbols. Addition is never "detected" here: it is the caller's default.
func DetectOperator(text string) (model.Operator, bool) {
	if strings.ContainsAny(text, "×*") {
		return model.OperatorMultiplication, true
	}
	if strings.ContainsAny(text, "÷/") {
		return model.OperatorDivision, true
	}
	return "", false
}
