package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/config"
	"github.com/helpdesk-cloud/faqd/internal/domain"
	logpkg "github.com/helpdesk-cloud/faqd/internal/logger"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
	"github.com/helpdesk-cloud/faqd/internal/queue"
	"github.com/helpdesk-cloud/faqd/internal/repository/corpus"
	"github.com/helpdesk-cloud/faqd/internal/repository/embcache"
	openaiTransport "github.com/helpdesk-cloud/faqd/internal/transport/openai"
	embeddinguc "github.com/helpdesk-cloud/faqd/internal/usecase/embedding"
	enrichuc "github.com/helpdesk-cloud/faqd/internal/usecase/enrich"
	"github.com/helpdesk-cloud/faqd/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting faqd enrichment worker",
		zap.String("version", version.Version),
		zap.String("env", env),
		zap.String("stream", cfg.Redis.Stream),
		zap.String("group", cfg.Redis.Group),
	)

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Corpus store
	pool, err := newPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("Failed to create Postgres pool", zap.Error(err))
	}
	defer pool.Close()

	repo := corpus.New(pool, cfg.Embedding.Dimensions, logger)
	if err := repo.WaitForReady(ctx, time.Duration(cfg.Postgres.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Postgres not ready", zap.Error(err))
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}
	logger.Info("Connected to Postgres")

	// Enrichment queue
	queueClient, err := queue.NewClient(queue.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		Stream:   cfg.Redis.Stream,
		Group:    cfg.Redis.Group,
	})
	if err != nil {
		logger.Fatal("Failed to create queue client", zap.Error(err))
	}
	defer queueClient.Close()

	if err := queueClient.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	if err := queueClient.EnsureGroup(ctx); err != nil {
		logger.Fatal("Failed to ensure consumer group", zap.Error(err))
	}
	logger.Info("Connected to Redis")

	// Embedder chain, shared with the API server wiring
	embedder, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Failed to build embedder", zap.Error(err))
	}

	enrichSvc := enrichuc.New(embedder, repo, cfg.Embedding.Dimensions, logger)

	consumer := queue.NewConsumer(queueClient, queue.ConsumerConfig{
		Name:         consumerName(),
		MaxAttempts:  cfg.Enrichment.MaxAttempts,
		BlockMsec:    cfg.Enrichment.BlockMsec,
		ClaimMinIdle: time.Duration(cfg.Enrichment.ClaimSec) * time.Second,
	}, enrichSvc.Process, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Consumer stopped", zap.Error(err))
	}

	logger.Info("Worker stopped gracefully")
}

func newPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Truncating.
func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, error) {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	cached, err := embcache.New(base, cfg.CacheSize, metrics.EmbeddingCacheTotal, logger)
	if err != nil {
		return nil, err
	}

	return embeddinguc.NewTruncating(cached, cfg.Model, cfg.MaxTokens, logger)
}

// consumerName identifies this process within the consumer group. A stable
// name lets a restarted worker pick up its own pending entries.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("enricher-%d", os.Getpid())
	}
	return host
}
