// Package aicache stores AI dimension scores in Redis, keyed by the content
// hash of the pair that was scored, so identical text is only sent to the
// provider once.
package aicache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"localeforge/api/internal/quality"
)

const defaultTTL = 7 * 24 * time.Hour

type entry struct {
	Scores   quality.AIScores `json:"scores"`
	StoredAt time.Time        `json:"stored_at"`
}

// RedisStore implements the evaluation AI cache on Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStoreWithClient creates a store on a shared Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "aiscore:",
		ttl:    ttl,
		logger: logger.With().Str("component", "aicache").Logger(),
	}
}

func (s *RedisStore) key(contentHash, sourceLanguage, targetLanguage string) string {
	return s.prefix + strings.ToLower(sourceLanguage) + ":" + strings.ToLower(targetLanguage) + ":" + contentHash
}

func (s *RedisStore) Get(ctx context.Context, contentHash, sourceLanguage, targetLanguage string) (quality.AIScores, bool) {
	raw, err := s.client.Get(ctx, s.key(contentHash, sourceLanguage, targetLanguage)).Result()
	if errors.Is(err, redis.Nil) {
		return quality.AIScores{}, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("content_hash", contentHash).Msg("lookup ai score")
		return quality.AIScores{}, false
	}

	var stored entry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Warn().Err(err).Str("content_hash", contentHash).Msg("decode ai score")
		return quality.AIScores{}, false
	}
	return stored.Scores, true
}

func (s *RedisStore) Set(ctx context.Context, contentHash, sourceLanguage, targetLanguage string, scores quality.AIScores) {
	payload, err := json.Marshal(entry{Scores: scores, StoredAt: time.Now().UTC()})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode ai score")
		return
	}
	if err := s.client.Set(ctx, s.key(contentHash, sourceLanguage, targetLanguage), payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("content_hash", contentHash).Msg("save ai score")
	}
}
