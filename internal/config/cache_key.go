package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizInfoKey returns the cache key for a quiz's startability snapshot
func (r *CacheKeyStruct) QuizInfoKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:info", quizID)
}

// QuizQuestionBankKey returns the cache key for a quiz's answer key
func (r *CacheKeyStruct) QuizQuestionBankKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:question_bank", quizID)
}

// QuizSessionChannel returns the Redis PubSub channel name for a quiz's session events
func (r *CacheKeyStruct) QuizSessionChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:sessions", quizID)
}

var CacheKey = NewCacheKeyStruct()
