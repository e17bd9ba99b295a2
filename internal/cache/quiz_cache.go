// Package cache keeps read-mostly quiz data in Redis in front of Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"golang.org/x/sync/singleflight"
)

// QuizSource loads quiz data from the backing store on a cache miss.
type QuizSource interface {
	GetInfo(ctx context.Context, id uuid.UUID) (*model.QuizInfo, error)
	QuestionBank(ctx context.Context, quizID uuid.UUID) ([]model.QuestionKey, error)
}

// QuizCache caches quiz info and question banks as JSON strings.
// Concurrent misses for the same key collapse into one source load.
// Redis failures degrade to reading the source directly. Entries live for
// the configured TTL unless Invalidate drops them after a quiz is written.
type QuizCache struct {
	rdb    *redis.Client
	source QuizSource
	ttl    time.Duration
	sf     singleflight.Group
	log    zerolog.Logger
}

// NewQuizCache creates a QuizCache. A ttl of zero stores entries without expiry.
func NewQuizCache(rdb *redis.Client, source QuizSource, ttl time.Duration, log zerolog.Logger) *QuizCache {
	return &QuizCache{
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    logger.Component(log, "quiz_cache"),
	}
}

// GetInfo returns the quiz info, loading and caching it on a miss.
func (c *QuizCache) GetInfo(ctx context.Context, id uuid.UUID) (*model.QuizInfo, error) {
	key := config.CacheKey.QuizInfoKey(id.String())
	var info model.QuizInfo
	if c.lookup(ctx, key, &info) {
		return &info, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Shared by every waiter; detached from the first caller's cancellation.
		loadCtx := context.WithoutCancel(ctx)
		var cached model.QuizInfo
		if c.lookup(loadCtx, key, &cached) {
			return &cached, nil
		}
		loaded, err := c.source.GetInfo(loadCtx, id)
		if err != nil {
			return nil, err
		}
		c.store(loadCtx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*model.QuizInfo)
	return &out, nil
}

// QuestionBank returns the quiz's question bank, loading and caching it on a miss.
func (c *QuizCache) QuestionBank(ctx context.Context, quizID uuid.UUID) ([]model.QuestionKey, error) {
	key := config.CacheKey.QuizQuestionBankKey(quizID.String())
	var bank []model.QuestionKey
	if c.lookup(ctx, key, &bank) {
		return bank, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		var cached []model.QuestionKey
		if c.lookup(loadCtx, key, &cached) {
			return cached, nil
		}
		loaded, err := c.source.QuestionBank(loadCtx, quizID)
		if err != nil {
			return nil, err
		}
		c.store(loadCtx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]model.QuestionKey(nil), v.([]model.QuestionKey)...), nil
}

// Invalidate drops every cached entry of a quiz.
func (c *QuizCache) Invalidate(ctx context.Context, quizID uuid.UUID) error {
	id := quizID.String()
	if err := c.rdb.Del(ctx,
		config.CacheKey.QuizInfoKey(id),
		config.CacheKey.QuizQuestionBankKey(id),
	).Err(); err != nil {
		return fmt.Errorf("invalidate quiz cache: %w", err)
	}
	return nil
}

func (c *QuizCache) lookup(ctx context.Context, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (c *QuizCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
