package enrichment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// BedrockConfig holds configuration for the Bedrock model invoker.
type BedrockConfig struct {
	ModelID   string
	MaxTokens int32
}

// LoadBedrockConfigFromEnv loads invoker configuration from environment variables.
func LoadBedrockConfigFromEnv() (*BedrockConfig, error) {
	cfg := &BedrockConfig{
		ModelID:   os.Getenv("TENDER_BEDROCK_MODEL_ID"),
		MaxTokens: 512,
	}
	if cfg.ModelID == "" {
		return nil, errors.New("TENDER_BEDROCK_MODEL_ID environment variable not set")
	}
	if mt := os.Getenv("TENDER_BEDROCK_MAX_TOKENS"); mt != "" {
		if val, err := strconv.Atoi(mt); err == nil && val > 0 {
			cfg.MaxTokens = int32(val)
		}
	}
	return cfg, nil
}

// ConverseAPI is the subset of the Bedrock runtime client the invoker needs.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockInvoker implements ModelInvoker against the Bedrock Converse API.
type BedrockInvoker struct {
	client ConverseAPI
	cfg    *BedrockConfig
	logger zerolog.Logger
}

// NewBedrockInvoker creates a BedrockInvoker. It takes an existing Bedrock
// runtime client, allowing for dependency injection.
func NewBedrockInvoker(client ConverseAPI, cfg *BedrockConfig, logger zerolog.Logger) (*BedrockInvoker, error) {
	if client == nil {
		return nil, fmt.Errorf("bedrock client cannot be nil")
	}
	if cfg == nil || cfg.ModelID == "" {
		return nil, fmt.Errorf("bedrock config requires a model id")
	}
	return &BedrockInvoker{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "BedrockInvoker").Str("model_id", cfg.ModelID).Logger(),
	}, nil
}

// Invoke implements the ModelInvoker interface.
func (b *BedrockInvoker) Invoke(ctx context.Context, prompt string) InvokeResult {
	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.cfg.ModelID),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(b.cfg.MaxTokens),
		},
	})
	if err != nil {
		kind := classifyInvokeError(err)
		b.logger.Debug().Err(err).Str("outcome", kind.String()).Msg("Model invocation failed.")
		return InvokeResult{Kind: kind, Err: err}
	}

	summary := extractText(out)
	if summary == "" {
		return InvokeResult{Kind: OutcomeFatal, Err: errors.New("model returned no text content")}
	}
	return InvokeResult{Kind: OutcomeOK, Summary: summary}
}

// classifyInvokeError maps transport errors onto outcome tags. Only throttling
// and quota signals are retryable.
func classifyInvokeError(err error) OutcomeKind {
	var throttled *brtypes.ThrottlingException
	if errors.As(err, &throttled) {
		return OutcomeThrottled
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return OutcomeThrottled
		}
	}
	return OutcomeFatal
}

// extractText pulls the first text block out of a Converse response.
func extractText(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok && text.Value != "" {
			parts = append(parts, text.Value)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
