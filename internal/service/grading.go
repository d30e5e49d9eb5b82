package service

import "math"

// Grade scores an answer map against the answer key. Score is the
// percentage of key questions answered with the correct option index.
// Answers for questions outside the key are ignored.
func Grade(answers map[string]int, key map[string]int) (score float64, correct int) {
	total := len(key)
	if total == 0 {
		return 0, 0
	}
	for qid, want := range key {
		if got, ok := answers[qid]; ok && got == want {
			correct++
		}
	}
	return float64(correct) / float64(total) * 100, correct
}

// CorrectFromScore inverts Grade's percentage back to the correct-answer
// count. The stored score is authoritative once a session is finalized, so
// duplicate submits echo counts derived from it rather than from answer
// rows that a persistence batch may still be flushing.
func CorrectFromScore(score float64, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(score * float64(total) / 100))
}
