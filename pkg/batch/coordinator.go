package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-tender-ingest/pkg/queue"
	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// The batch coordinator drives one batch of raw queue items through four
// strictly ordered phases:
//
//   1. classify & enrich   - per-item, failures contained to the item
//   2. commit success      - batch send to the notices queue
//   3. commit failure      - batch send to the dead-letter queue
//   4. delete acknowledged - batch delete from the source queue
//
// There is no rollback: each phase's outcome is final for the items it
// touches. Only a dead-letter write failure aborts the batch, because losing
// failure visibility is worse than reprocessing.
// ====================================================================================

// pipelineTag is attached to every notice that passes through this pipeline.
const pipelineTag = "ingest:v1"

// Classifier turns a raw payload and classification key into a typed notice.
type Classifier interface {
	Classify(body []byte, key string) (types.Notice, error)
}

// Enricher produces a summary for a notice. Implementations never fail; they
// degrade to a fallback summary instead.
type Enricher interface {
	Summarize(ctx context.Context, n types.Notice) string
}

// Gateway is the queue surface the coordinator commits through.
type Gateway interface {
	SendBatch(ctx context.Context, queueURL string, entries []queue.SendEntry) ([]queue.EntryFailure, error)
	DeleteBatch(ctx context.Context, items []types.ConsumedItem) ([]queue.EntryFailure, error)
}

// Coordinator orchestrates batches. One instance serves the whole process.
type Coordinator struct {
	classifier  Classifier
	enricher    Enricher
	gateway     Gateway
	noticeQueue string
	dlqQueue    string
	processedBy string
	now         func() time.Time
	logger      zerolog.Logger
}

// NewCoordinator creates a Coordinator. processedBy identifies this processor
// instance in dead-letter records.
func NewCoordinator(
	classifier Classifier,
	enricher Enricher,
	gateway Gateway,
	cfg *queue.Config,
	processedBy string,
	logger zerolog.Logger,
) (*Coordinator, error) {
	if classifier == nil || enricher == nil || gateway == nil {
		return nil, fmt.Errorf("classifier, enricher and gateway are all required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config cannot be nil")
	}
	return &Coordinator{
		classifier:  classifier,
		enricher:    enricher,
		gateway:     gateway,
		noticeQueue: cfg.NoticeQueueURL,
		dlqQueue:    cfg.DeadLetterQueueURL,
		processedBy: processedBy,
		now:         time.Now,
		logger:      logger.With().Str("component", "BatchCoordinator").Logger(),
	}, nil
}

// processedItem pairs a classified notice with its source item and the
// serialized body that will be sent downstream.
type processedItem struct {
	item   types.ConsumedItem
	notice types.Notice
	body   string
}

// failedItem pairs a source item with its failure record.
type failedItem struct {
	item   types.ConsumedItem
	record types.FailureRecord
}

// ProcessBatch runs one batch through the four phases and reports per-message
// fate. The returned error is non-nil only when the dead-letter write failed;
// the caller must treat that as fatal to the invocation.
func (c *Coordinator) ProcessBatch(ctx context.Context, items []types.ConsumedItem) (types.BatchResult, error) {
	var result types.BatchResult
	if len(items) == 0 {
		return result, nil
	}
	c.logger.Debug().Int("batch_size", len(items)).Msg("Processing batch.")

	// Phase 1: classify and enrich. Enrichment runs concurrently per item;
	// the summarizer's own semaphore bounds total model calls.
	succeeded, failed := c.classifyAndEnrich(ctx, items)

	// Phase 2: commit successes to the notices queue.
	acknowledged, deliveryFailures := c.commitSuccess(ctx, succeeded)
	failed = append(failed, deliveryFailures...)
	result.Processed = len(acknowledged)
	result.Failed = len(failed)

	// Phase 3: commit failures to the dead-letter queue. Errors here abort
	// the batch so the outer runtime redelivers it.
	if err := c.commitFailure(ctx, failed); err != nil {
		return result, err
	}

	// Phase 4: delete acknowledged items from the source queue. Failures are
	// tolerated; the messages are simply redelivered.
	result.Deleted = c.deleteAcknowledged(ctx, acknowledged)

	c.logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("deleted", result.Deleted).
		Msg("Batch complete.")
	return result, nil
}

// classifyAndEnrich runs phase 1. A failure moves that single item to the
// failed set; it never aborts the batch.
func (c *Coordinator) classifyAndEnrich(ctx context.Context, items []types.ConsumedItem) ([]processedItem, []failedItem) {
	var (
		mu        sync.Mutex
		succeeded []processedItem
		failed    []failedItem
		wg        sync.WaitGroup
	)

	for _, item := range items {
		wg.Add(1)
		go func(item types.ConsumedItem) {
			defer wg.Done()
			processed, failure := c.processItem(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				failed = append(failed, *failure)
			} else {
				succeeded = append(succeeded, *processed)
			}
		}(item)
	}
	wg.Wait()
	return succeeded, failed
}

// processItem classifies, tags and (where required) enriches one item.
func (c *Coordinator) processItem(ctx context.Context, item types.ConsumedItem) (*processedItem, *failedItem) {
	notice, err := c.classifier.Classify([]byte(item.Body), item.ClassificationKey)
	if err != nil {
		c.logger.Warn().Err(err).Str("msg_id", item.ID).Msg("Message failed classification.")
		return nil, c.newFailure(item, item.Body, err, types.ErrorCategoryClassification)
	}

	notice.Common().AttachTag(pipelineTag)
	notice.Common().AttachTag("source:" + string(notice.Source()))

	if notice.NeedsEnrichment() && notice.Common().Summary == "" {
		// Summarize never fails; throttling and model errors degrade to a
		// fallback summary inside the enricher.
		notice.Common().Summary = c.enricher.Summarize(ctx, notice)
	}

	body, err := json.Marshal(notice)
	if err != nil {
		c.logger.Error().Err(err).Str("msg_id", item.ID).Msg("Failed to serialize processed notice.")
		return nil, c.newFailure(item, item.Body, err, types.ErrorCategoryProcessing)
	}

	return &processedItem{item: item, notice: notice, body: string(body)}, nil
}

// commitSuccess runs phase 2. A batch-level send error reclassifies every
// processed item as failed; per-entry rejections reclassify only those items.
func (c *Coordinator) commitSuccess(ctx context.Context, succeeded []processedItem) ([]processedItem, []failedItem) {
	if len(succeeded) == 0 {
		return nil, nil
	}

	entries := make([]queue.SendEntry, 0, len(succeeded))
	for _, p := range succeeded {
		entries = append(entries, queue.SendEntry{
			ID:       p.item.ID,
			Body:     p.body,
			GroupKey: p.notice.GroupKey(),
		})
	}

	rejected, err := c.gateway.SendBatch(ctx, c.noticeQueue, entries)
	if err != nil {
		c.logger.Error().Err(err).Int("count", len(succeeded)).
			Msg("Notices queue send failed, reclassifying whole set as failed.")
		failed := make([]failedItem, 0, len(succeeded))
		for _, p := range succeeded {
			// The processed serialization is the best available payload here.
			failed = append(failed, *c.newFailure(p.item, p.body, err, types.ErrorCategoryDelivery))
		}
		return nil, failed
	}

	if len(rejected) == 0 {
		return succeeded, nil
	}

	rejectedIDs := make(map[string]queue.EntryFailure, len(rejected))
	for _, r := range rejected {
		rejectedIDs[r.ID] = r
	}
	var acknowledged []processedItem
	var failed []failedItem
	for _, p := range succeeded {
		if r, ok := rejectedIDs[p.item.ID]; ok {
			rejectErr := fmt.Errorf("notices queue rejected entry (%s): %s", r.Code, r.Message)
			failed = append(failed, *c.newFailure(p.item, p.body, rejectErr, types.ErrorCategoryDelivery))
			continue
		}
		acknowledged = append(acknowledged, p)
	}
	return acknowledged, failed
}

// commitFailure runs phase 3. Any failure to land a dead-letter record is
// fatal: silently dropping these writes would lose failure visibility.
func (c *Coordinator) commitFailure(ctx context.Context, failed []failedItem) error {
	if len(failed) == 0 {
		return nil
	}

	entries := make([]queue.SendEntry, 0, len(failed))
	for _, f := range failed {
		body, err := json.Marshal(f.record)
		if err != nil {
			return fmt.Errorf("failed to serialize dead-letter record for %s: %w", f.item.ID, err)
		}
		groupKey := f.record.ClassificationKey
		if groupKey == "" || groupKey == string(types.SourceUnknown) {
			// An unclassifiable message has no real routing key. The fixed
			// fallback group is deliberate and logged, not silent.
			c.logger.Warn().Str("msg_id", f.item.ID).
				Msg("Dead-letter record has no resolvable group key, using fallback group.")
			groupKey = "unknown"
		}
		entries = append(entries, queue.SendEntry{
			ID:       f.item.ID,
			Body:     string(body),
			GroupKey: groupKey,
		})
	}

	rejected, err := c.gateway.SendBatch(ctx, c.dlqQueue, entries)
	if err != nil {
		return fmt.Errorf("dead-letter queue send failed: %w", err)
	}
	if len(rejected) > 0 {
		return fmt.Errorf("dead-letter queue rejected %d of %d records", len(rejected), len(entries))
	}
	c.logger.Info().Int("count", len(entries)).Msg("Failure records committed to dead-letter queue.")
	return nil
}

// deleteAcknowledged runs phase 4 and returns how many deletes succeeded.
func (c *Coordinator) deleteAcknowledged(ctx context.Context, acknowledged []processedItem) int {
	if len(acknowledged) == 0 {
		return 0
	}

	items := make([]types.ConsumedItem, 0, len(acknowledged))
	for _, p := range acknowledged {
		items = append(items, p.item)
	}

	failures, err := c.gateway.DeleteBatch(ctx, items)
	if err != nil {
		// The messages stay in the source queue and will be redelivered;
		// at-least-once makes this safe.
		c.logger.Error().Err(err).Int("count", len(items)).
			Msg("Source queue delete failed, messages will be redelivered.")
		return 0
	}
	for _, f := range failures {
		c.logger.Error().
			Str("msg_id", f.ID).
			Str("code", f.Code).
			Str("reason", f.Message).
			Msg("Failed to delete message from source queue, it will be redelivered.")
	}
	return len(items) - len(failures)
}

// newFailure builds the dead-letter pairing for one item.
func (c *Coordinator) newFailure(item types.ConsumedItem, payload string, cause error, category string) *failedItem {
	return &failedItem{
		item: item,
		record: types.FailureRecord{
			OriginalMessage:   payload,
			ClassificationKey: item.ClassificationKey,
			ErrorMessage:      cause.Error(),
			ErrorCategory:     category,
			ProcessedBy:       c.processedBy,
			ProcessedAt:       c.now().UTC(),
		},
	}
}
