package prompts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// RedisConfig holds configuration for the Redis prompt cache.
type RedisConfig struct {
	Addr     string // e.g., "localhost:6379"
	Password string // Leave empty if no password
	DB       int
	CacheTTL time.Duration // Time-to-live for cached prompts
}

// RedisFetcher is a Fetcher that caches prompts in Redis and falls back to
// another Fetcher (the Parameter Store one) on a cache miss. Useful when many
// processor instances share a parameter budget.
type RedisFetcher struct {
	client   *redis.Client
	fallback Fetcher
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewRedisFetcher creates a new caching fetcher backed by Redis.
func NewRedisFetcher(ctx context.Context, cfg *RedisConfig, fallback Fetcher, logger zerolog.Logger) (*RedisFetcher, error) {
	if fallback == nil {
		return nil, errors.New("fallback fetcher cannot be nil")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Connected to Redis for prompt cache.")

	return &RedisFetcher{
		client:   rdb,
		fallback: fallback,
		ttl:      cfg.CacheTTL,
		logger:   logger.With().Str("component", "RedisPromptCache").Logger(),
	}, nil
}

func redisPromptKey(source types.Source) string {
	return "tender-ingest:prompt:" + string(source)
}

// FetchPrompt implements the Fetcher interface, checking Redis first.
func (f *RedisFetcher) FetchPrompt(ctx context.Context, source types.Source) (string, error) {
	key := redisPromptKey(source)

	cached, err := f.client.Get(ctx, key).Result()
	if err == nil && cached != "" {
		f.logger.Debug().Str("source", string(source)).Msg("Redis prompt cache hit.")
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		// A broken cache must not take down enrichment; fall through to source.
		f.logger.Error().Err(err).Str("source", string(source)).Msg("Error fetching prompt from Redis cache.")
	}

	prompt, err := f.fallback.FetchPrompt(ctx, source)
	if err != nil {
		return "", err
	}

	if setErr := f.client.Set(ctx, key, prompt, f.ttl).Err(); setErr != nil {
		f.logger.Error().Err(setErr).Str("source", string(source)).Msg("Failed to store prompt in Redis cache.")
	}
	return prompt, nil
}

// Close closes the Redis client and the fallback fetcher.
func (f *RedisFetcher) Close() error {
	var firstErr error
	if err := f.client.Close(); err != nil {
		firstErr = err
	}
	if err := f.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
