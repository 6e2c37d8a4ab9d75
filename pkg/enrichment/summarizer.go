package enrichment

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-tender-ingest/pkg/prompts"
	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ====================================================================================
// Summarizer: the retry/concurrency wrapper around the model invoker. One
// Summarizer instance owns the process-wide semaphore; every caller shares it,
// so total in-flight model calls stay capped regardless of batch size.
// Summarize never fails: exhausted retries and fatal errors degrade to the
// deterministic fallback summary.
// ====================================================================================

// defaultInstruction is used when the prompt store is unreachable. Enrichment
// degrades, it never blocks the pipeline.
const defaultInstruction = "Summarize the following public procurement notice in two or three plain sentences."

// Config holds Summarizer tuning.
type Config struct {
	// MaxAttempts bounds throttling retries per notice.
	MaxAttempts int
	// BaseDelay is the first backoff delay; doubled each attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential term before jitter is applied.
	MaxDelay time.Duration
	// MaxConcurrent caps simultaneous model calls process-wide.
	MaxConcurrent int64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:   5,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		MaxConcurrent: 3,
	}
}

// LoadConfigFromEnv loads Summarizer tuning from environment variables,
// falling back to the defaults for anything unset.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if ma := os.Getenv("TENDER_ENRICH_MAX_ATTEMPTS"); ma != "" {
		if val, err := strconv.Atoi(ma); err == nil && val > 0 {
			cfg.MaxAttempts = val
		}
	}
	if mc := os.Getenv("TENDER_ENRICH_MAX_CONCURRENT"); mc != "" {
		if val, err := strconv.ParseInt(mc, 10, 64); err == nil && val > 0 {
			cfg.MaxConcurrent = val
		}
	}
	return cfg
}

// Summarizer produces generated summaries for notices.
type Summarizer struct {
	invoker ModelInvoker
	prompts prompts.Fetcher
	sem     *semaphore.Weighted
	cfg     *Config
	logger  zerolog.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration)
}

// NewSummarizer creates a Summarizer owning its concurrency semaphore. Share
// one instance across the process; constructing one per batch defeats the cap.
func NewSummarizer(invoker ModelInvoker, promptFetcher prompts.Fetcher, cfg *Config, logger zerolog.Logger) *Summarizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Summarizer{
		invoker: invoker,
		prompts: promptFetcher,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:     cfg,
		logger:  logger.With().Str("component", "Summarizer").Logger(),
	}
}

// Summarize returns a summary for the notice. It blocks until a semaphore slot
// is free, retries throttled calls with jittered exponential backoff, and on
// any unrecoverable outcome returns the fallback summary. It never returns an
// empty string.
func (s *Summarizer) Summarize(ctx context.Context, n types.Notice) string {
	tenderID := n.Common().TenderID.String()

	instruction, err := s.prompts.FetchPrompt(ctx, n.Source())
	if err != nil {
		s.logger.Warn().Err(err).Str("source", string(n.Source())).Msg("Prompt store unavailable, using built-in instruction.")
		instruction = defaultInstruction
	}
	request, err := BuildPrompt(instruction, n)
	if err != nil {
		s.logger.Error().Err(err).Str("tender_id", tenderID).Msg("Failed to build model request.")
		return FallbackSummary(n)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.logger.Warn().Err(err).Str("tender_id", tenderID).Msg("Gave up waiting for an enrichment slot.")
		return FallbackSummary(n)
	}
	defer s.sem.Release(1)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		result := s.invoker.Invoke(ctx, request)
		switch result.Kind {
		case OutcomeOK:
			summary := strings.TrimSpace(result.Summary)
			if summary == "" {
				return FallbackSummary(n)
			}
			return summary

		case OutcomeThrottled:
			if attempt == s.cfg.MaxAttempts {
				s.logger.Warn().
					Str("tender_id", tenderID).
					Int("attempts", attempt).
					Msg("Model throttled on every attempt, degrading to fallback summary.")
				return FallbackSummary(n)
			}
			delay := s.backoffDelay(attempt)
			s.logger.Debug().
				Str("tender_id", tenderID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Model throttled, backing off.")
			s.wait(ctx, delay)
			if ctx.Err() != nil {
				return FallbackSummary(n)
			}

		default:
			s.logger.Error().Err(result.Err).Str("tender_id", tenderID).Msg("Model invocation failed, using fallback summary.")
			return FallbackSummary(n)
		}
	}
	return FallbackSummary(n)
}

// backoffDelay computes the jittered exponential delay for a 1-indexed
// attempt: uniform [0.75, 1.25] jitter over min(base*2^(attempt-1), cap).
func (s *Summarizer) backoffDelay(attempt int) time.Duration {
	exp := s.cfg.BaseDelay << uint(attempt-1)
	if exp > s.cfg.MaxDelay || exp <= 0 {
		exp = s.cfg.MaxDelay
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(exp) * jitter)
}

// wait sleeps for d, returning early if ctx is cancelled.
func (s *Summarizer) wait(ctx context.Context, d time.Duration) {
	if s.sleep != nil {
		s.sleep(ctx, d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
