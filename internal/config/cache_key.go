package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizPayloadKey returns the cache key for a quiz definition with its slots and sections.
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizOverridesKey returns the cache key for a quiz's user and group overrides.
func (r *CacheKeyStruct) QuizOverridesKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:overrides", quizID)
}

// PasswordVerifiedKey marks that a user has entered the quiz password.
func (r *CacheKeyStruct) PasswordVerifiedKey(quizID string, userID int) string {
	return fmt.Sprintf("user:%d:quiz:%s:password_ok", userID, quizID)
}

// QuizEventsChannel returns the Redis PubSub channel for a quiz's attempt events.
func (r *CacheKeyStruct) QuizEventsChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:events", quizID)
}

var CacheKey = NewCacheKeyStruct()
