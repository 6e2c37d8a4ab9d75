package prompts

import (
	"context"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// CachingFetcher wraps a Fetcher with a process-lifetime in-memory cache.
// Instruction prompts change rarely, so entries are never evicted; a restart
// picks up new values. Safe for concurrent use from in-flight enrichment calls.
//
// The cache is advisory, never correctness-critical: a miss simply re-fetches
// from the underlying source.
type CachingFetcher struct {
	source Fetcher
	mu     sync.RWMutex
	cache  map[types.Source]string
	logger zerolog.Logger
}

// NewCachingFetcher creates a CachingFetcher in front of source.
func NewCachingFetcher(source Fetcher, logger zerolog.Logger) (*CachingFetcher, error) {
	if source == nil {
		return nil, fmt.Errorf("source fetcher cannot be nil")
	}
	return &CachingFetcher{
		source: source,
		cache:  make(map[types.Source]string),
		logger: logger.With().Str("component", "PromptCache").Logger(),
	}, nil
}

// FetchPrompt implements the Fetcher interface.
func (c *CachingFetcher) FetchPrompt(ctx context.Context, source types.Source) (string, error) {
	c.mu.RLock()
	prompt, found := c.cache[source]
	c.mu.RUnlock()
	if found {
		c.logger.Debug().Str("source", string(source)).Msg("Prompt cache hit.")
		return prompt, nil
	}

	prompt, err := c.source.FetchPrompt(ctx, source)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[source] = prompt
	c.mu.Unlock()
	c.logger.Debug().Str("source", string(source)).Msg("Prompt fetched from source and cached.")
	return prompt, nil
}

// Close closes the underlying source.
func (c *CachingFetcher) Close() error {
	return c.source.Close()
}
