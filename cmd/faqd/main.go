package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/config"
	"github.com/helpdesk-cloud/faqd/internal/domain"
	logpkg "github.com/helpdesk-cloud/faqd/internal/logger"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
	"github.com/helpdesk-cloud/faqd/internal/queue"
	"github.com/helpdesk-cloud/faqd/internal/repository/corpus"
	"github.com/helpdesk-cloud/faqd/internal/repository/embcache"
	chiTransport "github.com/helpdesk-cloud/faqd/internal/transport/chi"
	openaiTransport "github.com/helpdesk-cloud/faqd/internal/transport/openai"
	embeddinguc "github.com/helpdesk-cloud/faqd/internal/usecase/embedding"
	healthuc "github.com/helpdesk-cloud/faqd/internal/usecase/health"
	routeuc "github.com/helpdesk-cloud/faqd/internal/usecase/route"
	"github.com/helpdesk-cloud/faqd/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting faqd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	metrics.Register()

	ctx := context.Background()

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

	producer := queue.NewProducer(queueClient, logger)

	// Embedder chain and generative fallback
	embedder, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Failed to build embedder", zap.Error(err))
	}
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("max_tokens", cfg.Embedding.MaxTokens),
	)

	responder := openaiTransport.NewResponder(&openaiTransport.ResponderConfig{
		APIKey:      cfg.Generative.APIKey,
		BaseURL:     cfg.Generative.BaseURL,
		Model:       cfg.Generative.Model,
		MaxTokens:   cfg.Generative.MaxTokens,
		Temperature: cfg.Generative.Temperature,
		Timeout:     time.Duration(cfg.Generative.TimeoutSec) * time.Second,
		Logger:      logger,
	})

	// Use case services
	routeSvc := routeuc.New(
		embedder, repo, responder, producer,
		cfg.Routing.SimilarityThreshold, logger,
	).WithDefaultCollection(cfg.Routing.DefaultCollection)
	healthSvc := healthuc.New(repo, queueClient, newEmbeddingHealthChecker(embedder))

	// HTTP server
	server := chiTransport.NewServer(routeSvc, repo, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
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
// Truncation sits outermost so the cache is keyed on the truncated text.
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

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
