package service

import (
	"strconv"
	"testing"
)

func TestGrade(t *testing.T) {
	key := map[string]int{"q1": 2, "q2": 0, "q3": 1, "q4": 3}

	tests := []struct {
		name        string
		answers     map[string]int
		wantScore   float64
		wantCorrect int
	}{
		{"all correct", map[string]int{"q1": 2, "q2": 0, "q3": 1, "q4": 3}, 100, 4},
		{"half correct", map[string]int{"q1": 2, "q2": 0, "q3": 0, "q4": 0}, 50, 2},
		{"none answered", map[string]int{}, 0, 0},
		{"wrong answers", map[string]int{"q1": 1, "q2": 1, "q3": 0, "q4": 0}, 0, 0},
		{"unknown questions ignored", map[string]int{"q1": 2, "ghost": 2}, 25, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, correct := Grade(tc.answers, key)
			if score != tc.wantScore || correct != tc.wantCorrect {
				t.Errorf("Grade = (%.1f, %d), want (%.1f, %d)", score, correct, tc.wantScore, tc.wantCorrect)
			}
		})
	}
}

func TestGradeEmptyKey(t *testing.T) {
	score, correct := Grade(map[string]int{"q1": 0}, map[string]int{})
	if score != 0 || correct != 0 {
		t.Errorf("Grade with empty key = (%.1f, %d), want (0, 0)", score, correct)
	}
}

// CorrectFromScore must invert Grade exactly for every achievable count,
// including totals where the percentage is not representable exactly.
func TestCorrectFromScoreInvertsGrade(t *testing.T) {
	for _, total := range []int{1, 2, 3, 7, 20, 60} {
		key := make(map[string]int, total)
		for i := 0; i < total; i++ {
			key[qkey(i)] = 0
		}
		for correct := 0; correct <= total; correct++ {
			answers := make(map[string]int, correct)
			for i := 0; i < correct; i++ {
				answers[qkey(i)] = 0
			}
			score, _ := Grade(answers, key)
			if got := CorrectFromScore(score, total); got != correct {
				t.Errorf("CorrectFromScore(%.6f, %d) = %d, want %d", score, total, got, correct)
			}
		}
	}

	if got := CorrectFromScore(50, 0); got != 0 {
		t.Errorf("CorrectFromScore with zero total = %d, want 0", got)
	}
}

func qkey(n int) string {
	return "q" + strconv.Itoa(n)
}
