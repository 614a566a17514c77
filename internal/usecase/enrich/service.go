package enrich

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/metrics"
	"github.com/helpdesk-cloud/faqd/internal/queue"
)

// Service turns queued question-answer pairs into corpus entries.
type Service struct {
	embedder   Embedder
	store      Store
	dimensions int
	logger     *zap.Logger
}

// New creates the enrichment service.
func New(embedder Embedder, store Store, dimensions int, logger *zap.Logger) *Service {
	return &Service{embedder: embedder, store: store, dimensions: dimensions, logger: logger}
}

// Process inserts one task into the corpus. The vector shipped with the task
// is reused when its dimensionality matches the store; anything else is
// re-embedded. Tasks whose content is already stored are acknowledged
// without a second insert, which keeps redeliveries idempotent.
func (s *Service) Process(ctx context.Context, task queue.Task) error {
	exists, err := s.store.Exists(ctx, task.Content, task.Collection)
	if err != nil {
		return fmt.Errorf("checking for existing entry: %w", err)
	}
	if exists {
		s.logger.Debug("Skipping duplicate task", zap.String("collection", task.Collection))
		return nil
	}

	entry := task.Entry()
	if len(entry.Embedding) != s.dimensions {
		res, err := s.embedder.Embed(ctx, task.Content)
		if err != nil {
			return fmt.Errorf("embedding task content: %w", err)
		}
		entry.Embedding = res.Embedding
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	metrics.EnrichmentTasksTotal.WithLabelValues("inserted").Inc()
	s.logger.Info("Corpus enriched",
		zap.String("collection", entry.Collection),
		zap.Int("content_len", len(entry.Content)),
	)
	return nil
}
