package types

import (
	"time"
)

// ConsumedItem is a raw message as delivered from the source queue. It is
// immutable once received; the batch coordinator owns it for the duration of
// one batch and is the only component that may delete it.
type ConsumedItem struct {
	// ID is the queue-assigned message identifier.
	ID string
	// Body is the raw UTF-8 payload.
	Body string
	// ReceiptHandle is the opaque acknowledgment token required to delete
	// the message from the source queue.
	ReceiptHandle string
	// ClassificationKey is the routing tag resolved from the message's
	// group attribute, falling back to a custom attribute of the same name.
	// "Unknown" when neither was present.
	ClassificationKey string
	// Attributes carries the remaining transport attributes verbatim.
	Attributes map[string]string
}

// Error categories stamped onto dead-letter records so DLQ consumers can
// triage without parsing error text.
const (
	ErrorCategoryClassification = "classification"
	ErrorCategoryEnrichment     = "enrichment"
	ErrorCategoryDelivery       = "delivery"
	ErrorCategoryProcessing     = "processing"
)

// FailureRecord is the dead-letter envelope for a message that could not
// complete the pipeline. Written once to the dead-letter queue, then discarded.
type FailureRecord struct {
	// OriginalMessage is the raw payload, or the best available
	// serialization when the original was already transformed.
	OriginalMessage   string    `json:"originalMessage"`
	ClassificationKey string    `json:"classificationKey"`
	ErrorMessage      string    `json:"errorMessage"`
	ErrorCategory     string    `json:"errorCategory"`
	ProcessedBy       string    `json:"processedBy"`
	ProcessedAt       time.Time `json:"processedAt"`
}

// BatchResult is the per-batch aggregate returned by the coordinator. It is
// never persisted; the poll loop folds it into the invocation summary.
type BatchResult struct {
	// Processed counts items durably committed to the notices queue.
	Processed int
	// Failed counts items routed to the dead-letter queue.
	Failed int
	// Deleted counts items removed from the source queue. Deleted can lag
	// Processed when a source delete fails; those items are redelivered.
	Deleted int
}

// Add folds another result into this one.
func (r *BatchResult) Add(other BatchResult) {
	r.Processed += other.Processed
	r.Failed += other.Failed
	r.Deleted += other.Deleted
}
