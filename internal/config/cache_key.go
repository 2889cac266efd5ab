package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the JTI of a user's active login.
func (r *CacheKeyStruct) UserSessionKey(userID int64) string {
	return fmt.Sprintf("login:%d", userID)
}

// ExamPaperKey returns the cache key for an exam's student-facing paper.
func (r *CacheKeyStruct) ExamPaperKey(examID int64) string {
	return fmt.Sprintf("exam:%d:paper", examID)
}

// AttemptDraftKey returns the cache key for the answers a student has captured
// but not yet submitted.
func (r *CacheKeyStruct) AttemptDraftKey(examID, userID int64) string {
	return fmt.Sprintf("user:%d:exam:%d:draft", userID, examID)
}

// AttemptViolationCountKey returns the counter of anti-cheat violations for an attempt.
func (r *CacheKeyStruct) AttemptViolationCountKey(examID, userID int64) string {
	return fmt.Sprintf("user:%d:exam:%d:violations", userID, examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor.
func (r *CacheKeyStruct) ExamMonitorChannel(examID int64) string {
	return fmt.Sprintf("exam:%d:monitor", examID)
}

// RateLimitKey returns the fixed-window counter key for scope and client.
func (r *CacheKeyStruct) RateLimitKey(scope, client string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, client, window)
}

var CacheKey = NewCacheKeyStruct()
