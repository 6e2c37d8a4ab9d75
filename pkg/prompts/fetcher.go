package prompts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// Prompt store. The enrichment call prefixes its request with an instruction
// text looked up by the notice's source, falling back to one global default
// key. Implementations are layered: Parameter Store is the source of truth,
// with in-memory and optional Redis caches in front of it.
// ====================================================================================

// Fetcher is the contract for any source of instruction prompts.
type Fetcher interface {
	// FetchPrompt returns the instruction text for a notice source.
	FetchPrompt(ctx context.Context, source types.Source) (string, error)
	io.Closer
}

// defaultPromptKey is the trailing segment of the global fallback parameter.
const defaultPromptKey = "default"

// Config holds Parameter Store lookup configuration.
type Config struct {
	// PathPrefix is prepended to the source name to form the parameter name,
	// e.g. "/tender-ingest/prompts/" + "award".
	PathPrefix string
}

// LoadConfigFromEnv loads prompt store configuration from environment variables.
func LoadConfigFromEnv() *Config {
	cfg := &Config{PathPrefix: os.Getenv("TENDER_PROMPT_PREFIX")}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/tender-ingest/prompts/"
	}
	if !strings.HasSuffix(cfg.PathPrefix, "/") {
		cfg.PathPrefix += "/"
	}
	return cfg
}

// ParameterAPI is the subset of the SSM client the fetcher needs.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMFetcher reads instruction prompts from AWS Systems Manager Parameter
// Store. A missing per-source parameter falls back to the global default
// parameter; a missing default is an error.
type SSMFetcher struct {
	client ParameterAPI
	cfg    *Config
	logger zerolog.Logger
}

// NewSSMFetcher creates an SSMFetcher. It takes an existing SSM client,
// allowing for dependency injection.
func NewSSMFetcher(client ParameterAPI, cfg *Config, logger zerolog.Logger) (*SSMFetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("ssm client cannot be nil")
	}
	if cfg == nil {
		cfg = LoadConfigFromEnv()
	}
	return &SSMFetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "SSMPromptFetcher").Logger(),
	}, nil
}

// FetchPrompt implements the Fetcher interface.
func (f *SSMFetcher) FetchPrompt(ctx context.Context, source types.Source) (string, error) {
	name := f.cfg.PathPrefix + strings.ToLower(string(source))
	value, err := f.getParameter(ctx, name)
	if err == nil {
		return value, nil
	}

	var notFound *ssmtypes.ParameterNotFound
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("failed to fetch prompt parameter %q: %w", name, err)
	}

	f.logger.Debug().Str("parameter", name).Msg("No per-source prompt, falling back to default.")
	defaultName := f.cfg.PathPrefix + defaultPromptKey
	value, err = f.getParameter(ctx, defaultName)
	if err != nil {
		return "", fmt.Errorf("failed to fetch default prompt parameter %q: %w", defaultName, err)
	}
	return value, nil
}

func (f *SSMFetcher) getParameter(ctx context.Context, name string) (string, error) {
	out, err := f.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", err
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %q is empty", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// Close implements io.Closer. The SSM client is injected, so there is nothing
// to release here.
func (f *SSMFetcher) Close() error { return nil }
