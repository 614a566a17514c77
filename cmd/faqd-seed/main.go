package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/config"
	"github.com/helpdesk-cloud/faqd/internal/domain"
	logpkg "github.com/helpdesk-cloud/faqd/internal/logger"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
	"github.com/helpdesk-cloud/faqd/internal/repository/corpus"
	openaiTransport "github.com/helpdesk-cloud/faqd/internal/transport/openai"
	embeddinguc "github.com/helpdesk-cloud/faqd/internal/usecase/embedding"
	"github.com/helpdesk-cloud/faqd/internal/version"
)

type seedEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// seedBatchSize bounds how many questions go into one embeddings API call
// and one database batch.
const seedBatchSize = 64

func main() {
	file := flag.String("file", "data/faq.json", "path to the seed file")
	collection := flag.String("collection", "", "target collection (default: routing.default_collection)")
	limit := flag.Int("limit", 100, "maximum number of entries to load, 0 for all")
	flag.Parse()

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

	target := *collection
	if target == "" {
		target = cfg.Routing.DefaultCollection
	}

	logger.Info("Seeding corpus",
		zap.String("version", version.Version),
		zap.String("file", *file),
		zap.String("collection", target),
	)

	metrics.Register()

	entries, err := loadSeedFile(*file, *limit)
	if err != nil {
		logger.Fatal("Failed to load seed file", zap.Error(err))
	}

	ctx := context.Background()

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

	embedder, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Failed to build embedder", zap.Error(err))
	}

	inserted, skipped := 0, 0
	for offset := 0; offset < len(entries); offset += seedBatchSize {
		end := offset + seedBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		fresh := make([]seedEntry, 0, end-offset)
		for _, e := range entries[offset:end] {
			exists, err := repo.Exists(ctx, e.Question, target)
			if err != nil {
				logger.Fatal("Failed to check for existing entry", zap.Error(err))
			}
			if exists {
				skipped++
				continue
			}
			fresh = append(fresh, e)
		}
		if len(fresh) == 0 {
			continue
		}

		questions := make([]string, len(fresh))
		for i, e := range fresh {
			questions[i] = e.Question
		}

		res, err := embedder.BatchEmbed(ctx, questions)
		if err != nil {
			logger.Fatal("Failed to embed batch",
				zap.Int("size", len(questions)), zap.Error(err))
		}

		batch := make([]domain.Entry, len(fresh))
		for i, e := range fresh {
			batch[i] = domain.Entry{
				Content:    e.Question,
				Answer:     e.Answer,
				Collection: target,
				Embedding:  res.Embeddings[i],
			}
		}
		if err := repo.InsertBatch(ctx, batch); err != nil {
			logger.Fatal("Failed to insert batch",
				zap.Int("size", len(batch)), zap.Error(err))
		}
		inserted += len(batch)
	}

	logger.Info("Seed finished",
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
	)
}

func loadSeedFile(path string, limit int) ([]seedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc struct {
		FAQs []seedEntry `json:"faqs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	entries := doc.FAQs
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	for i, e := range entries {
		if e.Question == "" || e.Answer == "" {
			return nil, fmt.Errorf("entry %d is missing question or answer", i)
		}
	}
	return entries, nil
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

func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*embeddinguc.TruncatingEmbedder, error) {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	return embeddinguc.NewTruncating(base, cfg.Model, cfg.MaxTokens, logger)
}
