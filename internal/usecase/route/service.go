package route

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
)

// Service routes a question to a stored answer or the generative fallback.
type Service struct {
	embedder   Embedder
	matcher    Matcher
	responder  Responder
	enqueuer   Enqueuer
	threshold  float64
	defaultCol string
	logger     *zap.Logger
}

// New creates the routing service. Enqueuer may be nil, which disables
// corpus enrichment without affecting answers.
func New(
	embedder Embedder, matcher Matcher, responder Responder, enqueuer Enqueuer,
	threshold float64, logger *zap.Logger,
) *Service {
	return &Service{
		embedder:   embedder,
		matcher:    matcher,
		responder:  responder,
		enqueuer:   enqueuer,
		threshold:  threshold,
		defaultCol: domain.DefaultCollection,
		logger:     logger,
	}
}

// WithDefaultCollection overrides the collection used when a request names
// none.
func (s *Service) WithDefaultCollection(name string) *Service {
	if name != "" {
		s.defaultCol = name
	}
	return s
}

// Route answers one question. The corpus answer wins if its best cosine
// similarity reaches the threshold; otherwise the generative fallback runs
// and, unless it refused, the new pair is queued for enrichment. Enqueue
// failures never fail the request: the caller already has an answer.
func (s *Service) Route(ctx context.Context, question, collection string) (domain.Decision, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Decision{}, fmt.Errorf("question is empty: %w", domain.ErrInvalidInput)
	}
	if collection == "" {
		collection = s.defaultCol
	}

	res, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("embedding question: %w", err)
	}

	match, found, err := s.matcher.FindBestMatch(ctx, res.Embedding, collection)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("searching corpus: %w", err)
	}

	if found {
		metrics.SimilarityScore.Observe(match.Score)
	}
	if found && match.Score >= s.threshold {
		metrics.RoutingDecisionsTotal.WithLabelValues(string(domain.ActionCorpus)).Inc()
		s.logger.Info("Answered from corpus",
			zap.String("collection", collection),
			zap.Float64("score", match.Score),
		)
		return domain.Decision{
			Action:          domain.ActionCorpus,
			Answer:          match.Answer,
			MatchedQuestion: match.Content,
			Score:           match.Score,
		}, nil
	}

	reply, err := s.responder.Answer(ctx, question)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("generating answer: %w", err)
	}

	decision := domain.Decision{Answer: reply.Text, Score: match.Score}
	if reply.Refused {
		decision.Action = domain.ActionRefused
	} else {
		decision.Action = domain.ActionGenerated
		s.enqueue(ctx, domain.Entry{
			Content:    question,
			Answer:     reply.Text,
			Collection: collection,
			Embedding:  res.Embedding,
		})
	}

	metrics.RoutingDecisionsTotal.WithLabelValues(string(decision.Action)).Inc()
	s.logger.Info("Answered via fallback",
		zap.String("collection", collection),
		zap.String("action", string(decision.Action)),
		zap.Float64("best_score", match.Score),
	)
	return decision, nil
}

func (s *Service) enqueue(ctx context.Context, entry domain.Entry) {
	if s.enqueuer == nil {
		return
	}
	if err := s.enqueuer.Enqueue(ctx, entry); err != nil {
		s.logger.Error("Enqueueing enrichment task failed",
			zap.String("collection", entry.Collection),
			zap.Error(err),
		)
	}
}
