package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentExamSessionKey returns the cache key mapping a student+exam pair to
// its in-progress exam session ID
func (r *CacheKeyStruct) StudentExamSessionKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session", studentID, examID)
}

// SessionDeadlineKey returns the cache key for a session's absolute deadline
// in unix milliseconds
func (r *CacheKeyStruct) SessionDeadlineKey(sessionID string) string {
	return fmt.Sprintf("session:%s:deadline", sessionID)
}

// SessionAnswersKey returns the cache key for a session's answer hash
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// SessionMarkedKey returns the cache key for a session's marked-for-review set
func (r *CacheKeyStruct) SessionMarkedKey(sessionID string) string {
	return fmt.Sprintf("session:%s:marked", sessionID)
}

// SessionPositionKey returns the cache key for a session's last question index
func (r *CacheKeyStruct) SessionPositionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:position", sessionID)
}

// ExamPaperKey returns the cache key for an exam's student-facing paper
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamAnswerKeyKey returns the cache key for an exam's answer key hash
func (r *CacheKeyStruct) ExamAnswerKeyKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamOptionCountsKey returns the cache key for an exam's per-question option
// count hash, used to validate answer indexes without touching PostgreSQL
func (r *CacheKeyStruct) ExamOptionCountsKey(examID string) string {
	return fmt.Sprintf("exam:%s:optcounts", examID)
}

var CacheKey = NewCacheKeyStruct()
