package poller

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// The poll loop is the invocation-level driver. It processes any items handed
// to it at invocation start, then keeps draining the source queue until a
// fetch comes back empty or the remaining execution budget drops below the
// safety margin. A batch that has started is always run to completion, even
// past the margin: a half-committed batch is worse than a late one.
// ====================================================================================

// Fetcher pulls a batch of raw items from the source queue.
type Fetcher interface {
	Receive(ctx context.Context, max int) ([]types.ConsumedItem, error)
}

// BatchProcessor runs one batch through the commit protocol.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, items []types.ConsumedItem) (types.BatchResult, error)
}

// Config holds poll loop tuning.
type Config struct {
	// BatchSize is the fetch size per poll; the wire protocol caps it at 10.
	BatchSize int
	// SafetyMargin is the reserved trailing portion of the budget. No new
	// fetch starts once remaining time drops below it.
	SafetyMargin time.Duration
	// PollDelay is the fixed yield between fetches so the poll endpoint is
	// not saturated.
	PollDelay time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:    10,
		SafetyMargin: 30 * time.Second,
		PollDelay:    100 * time.Millisecond,
	}
}

// LoadConfigFromEnv loads poll loop tuning from environment variables,
// falling back to the defaults for anything unset.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if sm := os.Getenv("TENDER_POLL_SAFETY_MARGIN"); sm != "" {
		if val, err := time.ParseDuration(sm); err == nil && val > 0 {
			cfg.SafetyMargin = val
		}
	}
	if pd := os.Getenv("TENDER_POLL_DELAY"); pd != "" {
		if val, err := time.ParseDuration(pd); err == nil && val >= 0 {
			cfg.PollDelay = val
		}
	}
	return cfg
}

// Summary aggregates one invocation's work. It exists only for the duration
// of the invocation and is reported as its result.
type Summary struct {
	Batches   int
	Processed int
	Failed    int
	Deleted   int
	Elapsed   time.Duration
}

// String renders the invocation result line.
func (s Summary) String() string {
	return fmt.Sprintf("batches=%d processed=%d failed=%d deleted=%d elapsed=%s",
		s.Batches, s.Processed, s.Failed, s.Deleted, s.Elapsed.Round(time.Millisecond))
}

// Poller drives batches through the processor within a time budget.
type Poller struct {
	fetcher   Fetcher
	processor BatchProcessor
	cfg       *Config
	logger    zerolog.Logger

	// now and sleep are swapped out in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewPoller creates a Poller.
func NewPoller(fetcher Fetcher, processor BatchProcessor, cfg *Config, logger zerolog.Logger) (*Poller, error) {
	if fetcher == nil || processor == nil {
		return nil, fmt.Errorf("fetcher and processor are both required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Poller{
		fetcher:   fetcher,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "PollLoop").Logger(),
		now:       time.Now,
		sleep:     sleepWithContext,
	}, nil
}

// Run processes initial (possibly empty), then drains the source queue until
// it is empty or the remaining budget falls below the safety margin. Errors
// from batch processing or fetching propagate: the outer runtime owns retry at
// that level.
func (p *Poller) Run(ctx context.Context, deadline time.Time, initial []types.ConsumedItem) (Summary, error) {
	start := p.now()
	var summary Summary

	// Items delivered with the invocation are processed unconditionally;
	// the safety margin only gates new fetches.
	if len(initial) > 0 {
		result, err := p.processor.ProcessBatch(ctx, initial)
		summary.Batches++
		summary.Processed += result.Processed
		summary.Failed += result.Failed
		summary.Deleted += result.Deleted
		if err != nil {
			summary.Elapsed = p.now().Sub(start)
			return summary, fmt.Errorf("initial batch failed: %w", err)
		}
	}

	for {
		remaining := deadline.Sub(p.now())
		if remaining < p.cfg.SafetyMargin {
			p.logger.Info().
				Dur("remaining", remaining).
				Dur("safety_margin", p.cfg.SafetyMargin).
				Msg("Remaining budget below safety margin, stopping fetches.")
			break
		}
		if ctx.Err() != nil {
			summary.Elapsed = p.now().Sub(start)
			return summary, ctx.Err()
		}

		items, err := p.fetcher.Receive(ctx, p.cfg.BatchSize)
		if err != nil {
			summary.Elapsed = p.now().Sub(start)
			return summary, fmt.Errorf("source queue fetch failed: %w", err)
		}
		if len(items) == 0 {
			p.logger.Debug().Msg("Source queue empty.")
			break
		}

		result, err := p.processor.ProcessBatch(ctx, items)
		summary.Batches++
		summary.Processed += result.Processed
		summary.Failed += result.Failed
		summary.Deleted += result.Deleted
		if err != nil {
			summary.Elapsed = p.now().Sub(start)
			return summary, fmt.Errorf("batch %d failed: %w", summary.Batches, err)
		}

		// Yield briefly between fetches.
		p.sleep(ctx, p.cfg.PollDelay)
	}

	summary.Elapsed = p.now().Sub(start)
	p.logger.Info().Str("summary", summary.String()).Msg("Invocation complete.")
	return summary, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
