package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illmade-knight/go-tender-ingest/pkg/batch"
	"github.com/illmade-knight/go-tender-ingest/pkg/enrichment"
	"github.com/illmade-knight/go-tender-ingest/pkg/notices"
	"github.com/illmade-knight/go-tender-ingest/pkg/poller"
	"github.com/illmade-knight/go-tender-ingest/pkg/prompts"
	"github.com/illmade-knight/go-tender-ingest/pkg/queue"
)

func main() {
	runtimeCfg := defaultRuntimeConfig()
	if path := os.Getenv("TENDER_CONFIG_FILE"); path != "" {
		loaded, err := LoadAndValidateRuntimeConfig(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load runtime config.")
		}
		runtimeCfg = loaded
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "tender-ingestor").Logger()
	if runtimeCfg.PrettyLogs {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// One invocation is bounded by the run budget; SIGTERM cancels early.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queueCfg, err := queue.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Queue configuration is incomplete.")
	}
	bedrockCfg, err := enrichment.LoadBedrockConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Bedrock configuration is incomplete.")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS configuration.")
	}

	gateway, err := queue.NewGateway(sqs.NewFromConfig(awsCfg), queueCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create queue gateway.")
	}

	promptFetcher, err := buildPromptFetcher(ctx, ssm.NewFromConfig(awsCfg), runtimeCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create prompt fetcher.")
	}
	defer func() {
		if err := promptFetcher.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing prompt fetcher.")
		}
	}()

	invoker, err := enrichment.NewBedrockInvoker(bedrockruntime.NewFromConfig(awsCfg), bedrockCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create model invoker.")
	}
	summarizer := enrichment.NewSummarizer(invoker, promptFetcher, enrichment.LoadConfigFromEnv(), logger)

	processedBy := "tender-ingestor-" + uuid.NewString()
	coordinator, err := batch.NewCoordinator(notices.NewRouter(logger), summarizer, gateway, queueCfg, processedBy, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create batch coordinator.")
	}

	loop, err := poller.NewPoller(gateway, coordinator, poller.LoadConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create poll loop.")
	}

	deadline := time.Now().Add(runtimeCfg.RunBudget)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	summary, err := loop.Run(runCtx, deadline, nil)
	if err != nil {
		// A propagated error means the invocation must be retried by the
		// scheduler; undeleted messages are redelivered.
		logger.Error().Err(err).Str("summary", summary.String()).Msg("Invocation failed.")
		os.Exit(1)
	}
	logger.Info().Str("summary", summary.String()).Msg("Invocation succeeded.")
}

// buildPromptFetcher assembles the prompt store: Parameter Store as the source
// of truth, optionally fronted by Redis, always fronted by the process cache.
func buildPromptFetcher(ctx context.Context, ssmClient prompts.ParameterAPI, cfg *RuntimeConfig, logger zerolog.Logger) (prompts.Fetcher, error) {
	var fetcher prompts.Fetcher
	fetcher, err := prompts.NewSSMFetcher(ssmClient, prompts.LoadConfigFromEnv(), logger)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		fetcher, err = prompts.NewRedisFetcher(ctx, &prompts.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			CacheTTL: cfg.Redis.CacheTTL,
		}, fetcher, logger)
		if err != nil {
			return nil, err
		}
	}

	return prompts.NewCachingFetcher(fetcher, logger)
}
