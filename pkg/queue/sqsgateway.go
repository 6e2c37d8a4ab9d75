package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// SQS-backed queue gateway. Sends and deletes operate in wire-limit batches of
// at most 10 entries and surface partial per-entry failure instead of failing
// the whole call.
// ====================================================================================

// maxBatchEntries is the SQS batch API limit per call.
const maxBatchEntries = 10

// classificationAttribute is the custom message attribute consulted when a
// message carries no queue-level group id.
const classificationAttribute = "classificationKey"

// groupIDAttribute is the system attribute SQS reports the FIFO group under.
const groupIDAttribute = "MessageGroupId"

// API is the subset of the SQS client the gateway needs. Narrowed for
// dependency injection in tests.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// SendEntry is one outbound message. The group key is an explicit field filled
// from the notice's own GroupKey capability, never inferred by inspection.
type SendEntry struct {
	ID       string
	Body     string
	GroupKey string
}

// EntryFailure describes one entry of a batch call that the queue rejected
// while the rest of the batch succeeded.
type EntryFailure struct {
	ID          string
	Code        string
	Message     string
	SenderFault bool
}

func (f EntryFailure) String() string {
	return fmt.Sprintf("entry %s failed (%s): %s", f.ID, f.Code, f.Message)
}

// Gateway wraps the SQS batch APIs for the three pipeline queues.
type Gateway struct {
	client API
	cfg    *Config
	logger zerolog.Logger
}

// NewGateway creates a Gateway. It takes an existing SQS client, allowing for
// dependency injection.
func NewGateway(client API, cfg *Config, logger zerolog.Logger) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("queue config cannot be nil")
	}
	return &Gateway{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "QueueGateway").Logger(),
	}, nil
}

// Receive fetches up to max messages from the source queue with the configured
// short-poll wait. The classification key is resolved from the queue-level
// group attribute first, then the custom attribute, then "Unknown".
func (g *Gateway) Receive(ctx context.Context, max int) ([]types.ConsumedItem, error) {
	if max <= 0 || max > maxBatchEntries {
		max = maxBatchEntries
	}

	out, err := g.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(g.cfg.SourceQueueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(g.cfg.ReceiveWaitTime.Seconds()),
		MessageAttributeNames: []string{
			classificationAttribute,
		},
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeName(groupIDAttribute),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from source queue: %w", err)
	}

	items := make([]types.ConsumedItem, 0, len(out.Messages))
	for _, msg := range out.Messages {
		items = append(items, types.ConsumedItem{
			ID:                aws.ToString(msg.MessageId),
			Body:              aws.ToString(msg.Body),
			ReceiptHandle:     aws.ToString(msg.ReceiptHandle),
			ClassificationKey: resolveClassificationKey(msg),
			Attributes:        msg.Attributes,
		})
	}
	g.logger.Debug().Int("count", len(items)).Msg("Received messages from source queue.")
	return items, nil
}

// resolveClassificationKey prefers the queue-level group attribute and falls
// back to the custom message attribute of the same meaning.
func resolveClassificationKey(msg sqstypes.Message) string {
	if key, ok := msg.Attributes[groupIDAttribute]; ok && key != "" {
		return key
	}
	if attr, ok := msg.MessageAttributes[classificationAttribute]; ok {
		if v := aws.ToString(attr.StringValue); v != "" {
			return v
		}
	}
	return string(types.SourceUnknown)
}

// SendBatch sends entries to queueURL in chunks of at most 10, merging
// per-entry failures across chunks. A non-nil error means a whole chunk was
// rejected; the returned failures then cover only chunks sent before the error.
func (g *Gateway) SendBatch(ctx context.Context, queueURL string, entries []SendEntry) ([]EntryFailure, error) {
	var failures []EntryFailure
	fifo := strings.HasSuffix(queueURL, ".fifo")

	for start := 0; start < len(entries); start += maxBatchEntries {
		end := start + maxBatchEntries
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		batchEntries := make([]sqstypes.SendMessageBatchRequestEntry, 0, len(chunk))
		for i, entry := range chunk {
			// Batch entry ids only need to be unique within the call.
			batchID := fmt.Sprintf("e%d", i)
			req := sqstypes.SendMessageBatchRequestEntry{
				Id:          aws.String(batchID),
				MessageBody: aws.String(entry.Body),
				MessageAttributes: map[string]sqstypes.MessageAttributeValue{
					classificationAttribute: {
						DataType:    aws.String("String"),
						StringValue: aws.String(entry.GroupKey),
					},
				},
			}
			if fifo {
				req.MessageGroupId = aws.String(entry.GroupKey)
				req.MessageDeduplicationId = aws.String(uuid.NewString())
			}
			batchEntries = append(batchEntries, req)
		}

		out, err := g.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  batchEntries,
		})
		if err != nil {
			return failures, fmt.Errorf("batch send to %s failed: %w", queueURL, err)
		}

		for _, f := range out.Failed {
			idx, ok := parseBatchID(aws.ToString(f.Id))
			if !ok || idx >= len(chunk) {
				continue
			}
			failure := EntryFailure{
				ID:          chunk[idx].ID,
				Code:        aws.ToString(f.Code),
				Message:     aws.ToString(f.Message),
				SenderFault: f.SenderFault,
			}
			g.logger.Warn().Str("entry_id", failure.ID).Str("code", failure.Code).Msg("Queue rejected batch entry.")
			failures = append(failures, failure)
		}
	}
	return failures, nil
}

// DeleteBatch removes items from the source queue in chunks of at most 10 and
// reports per-entry failures. Callers treat those as tolerable: the messages
// stay visible and are redelivered.
func (g *Gateway) DeleteBatch(ctx context.Context, items []types.ConsumedItem) ([]EntryFailure, error) {
	var failures []EntryFailure

	for start := 0; start < len(items); start += maxBatchEntries {
		end := start + maxBatchEntries
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		batchEntries := make([]sqstypes.DeleteMessageBatchRequestEntry, 0, len(chunk))
		for i, item := range chunk {
			batchEntries = append(batchEntries, sqstypes.DeleteMessageBatchRequestEntry{
				Id:            aws.String(fmt.Sprintf("e%d", i)),
				ReceiptHandle: aws.String(item.ReceiptHandle),
			})
		}

		out, err := g.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(g.cfg.SourceQueueURL),
			Entries:  batchEntries,
		})
		if err != nil {
			return failures, fmt.Errorf("batch delete from source queue failed: %w", err)
		}

		for _, f := range out.Failed {
			idx, ok := parseBatchID(aws.ToString(f.Id))
			if !ok || idx >= len(chunk) {
				continue
			}
			failures = append(failures, EntryFailure{
				ID:          chunk[idx].ID,
				Code:        aws.ToString(f.Code),
				Message:     aws.ToString(f.Message),
				SenderFault: f.SenderFault,
			})
		}
	}
	return failures, nil
}

// parseBatchID recovers the chunk-local index from an "e<n>" batch entry id.
func parseBatchID(id string) (int, bool) {
	if len(id) < 2 || id[0] != 'e' {
		return 0, false
	}
	idx := 0
	for _, c := range id[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		idx = idx*10 + int(c-'0')
	}
	return idx, true
}
