package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LoginSessionKey returns the cache key for a user's login session.
func (r *CacheKeyStruct) LoginSessionKey(userID uuid.UUID) string {
	return fmt.Sprintf("login:%s", userID)
}

// ExamPaperKey returns the cache key for the taker-facing exam paper.
func (r *CacheKeyStruct) ExamPaperKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamDurationKey returns the cache key for an exam's duration in minutes.
func (r *CacheKeyStruct) ExamDurationKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// TakerSessionStartKey returns the cache key recording when a taker's
// attempt began.
func (r *CacheKeyStruct) TakerSessionStartKey(examID, takerID uuid.UUID) string {
	return fmt.Sprintf("taker:%s:exam:%s:session_start", takerID, examID)
}

// TakerAnswersKey returns the cache key holding a taker's latest answer
// snapshot for crash recovery.
func (r *CacheKeyStruct) TakerAnswersKey(examID, takerID uuid.UUID) string {
	return fmt.Sprintf("taker:%s:exam:%s:answers", takerID, examID)
}

// TakerActiveExamKey returns the cache key for a taker's currently active exam.
func (r *CacheKeyStruct) TakerActiveExamKey(takerID uuid.UUID) string {
	return fmt.Sprintf("taker:%s:active_exam", takerID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for live exam
// monitoring.
func (r *CacheKeyStruct) ExamMonitorChannel(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
