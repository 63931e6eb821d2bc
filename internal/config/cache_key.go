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

// AttemptStartKey returns the cache key for a student's attempt start time
func (r *CacheKeyStruct) AttemptStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:attempt_start", studentID, examID)
}

// ShuffledQuestionsKey returns the cache key for a student's shuffled questions
func (r *CacheKeyStruct) ShuffledQuestionsKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:shuffled_questions", studentID, examID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// StudentLogsKey returns the cache key for a student's attempt event log
func (r *CacheKeyStruct) StudentLogsKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:logs", studentID, examID)
}

// ExamPayloadKey returns the cache key for an exam's student-facing payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamDurationKey returns the cache key for an exam's duration
func (r *CacheKeyStruct) ExamDurationKey(examID string) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// ExamQuestionsKey returns the cache key for an exam's full question set,
// answer keys included
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// StudentActiveExamKey returns the cache key for a student's currently active exam
func (r *CacheKeyStruct) StudentActiveExamKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_exam", studentID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
