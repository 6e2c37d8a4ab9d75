package queue

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds the three queue locations the pipeline operates against.
// All three are required; a missing one is a startup failure, never a
// per-message failure.
type Config struct {
	// SourceQueueURL is the queue drained by the poll loop.
	SourceQueueURL string
	// NoticeQueueURL receives successfully processed notices.
	NoticeQueueURL string
	// DeadLetterQueueURL receives failure records.
	DeadLetterQueueURL string
	// ReceiveWaitTime is the short-poll wait applied to each fetch.
	ReceiveWaitTime time.Duration
	// ReceiveBatchSize caps how many messages one fetch may return.
	// The wire protocol allows at most 10.
	ReceiveBatchSize int
}

// LoadConfigFromEnv loads queue configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		SourceQueueURL:     os.Getenv("TENDER_SOURCE_QUEUE_URL"),
		NoticeQueueURL:     os.Getenv("TENDER_NOTICE_QUEUE_URL"),
		DeadLetterQueueURL: os.Getenv("TENDER_DEADLETTER_QUEUE_URL"),
		ReceiveWaitTime:    1 * time.Second,
		ReceiveBatchSize:   maxBatchEntries,
	}
	if cfg.SourceQueueURL == "" {
		return nil, errors.New("TENDER_SOURCE_QUEUE_URL environment variable not set")
	}
	if cfg.NoticeQueueURL == "" {
		return nil, errors.New("TENDER_NOTICE_QUEUE_URL environment variable not set")
	}
	if cfg.DeadLetterQueueURL == "" {
		return nil, errors.New("TENDER_DEADLETTER_QUEUE_URL environment variable not set")
	}
	if wt := os.Getenv("TENDER_RECEIVE_WAIT"); wt != "" {
		if val, err := time.ParseDuration(wt); err == nil && val >= 0 {
			cfg.ReceiveWaitTime = val
		}
	}
	if bs := os.Getenv("TENDER_RECEIVE_BATCH_SIZE"); bs != "" {
		if val, err := strconv.Atoi(bs); err == nil && val > 0 && val <= maxBatchEntries {
			cfg.ReceiveBatchSize = val
		}
	}
	return cfg, nil
}
