package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
)

const fallbackEncoding = "cl100k_base"

// TruncatingEmbedder bounds embedding cost by cutting input to a fixed token
// budget before delegating. Truncation is deterministic, so two texts that
// differ only past the cutoff produce the same downstream input. It sits
// outermost in the embedder chain so the cache below it is keyed on the
// truncated text.
type TruncatingEmbedder struct {
	inner     domain.Embedder
	codec     *tiktoken.Tiktoken
	maxTokens int
	logger    *zap.Logger
}

// NewTruncating wraps inner with a token-budget guard. model selects the
// tokenizer; unknown models fall back to cl100k_base.
func NewTruncating(inner domain.Embedder, model string, maxTokens int, logger *zap.Logger) (*TruncatingEmbedder, error) {
	codec, err := tiktoken.EncodingForModel(model)
	if err != nil {
		codec, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}

	return &TruncatingEmbedder{
		inner:     inner,
		codec:     codec,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Embed implements domain.Embedder. Over-long input is truncated, not
// rejected, so availability never depends on question length.
func (t *TruncatingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("empty text: %w", domain.ErrInvalidInput)
	}

	truncated, cut := t.Truncate(text)
	if cut {
		metrics.EmbeddingTruncationsTotal.Inc()
		t.logger.Debug("Truncated question to token budget",
			zap.Int("max_tokens", t.maxTokens),
			zap.Int("original_len", len(text)),
			zap.Int("truncated_len", len(truncated)),
		)
	}

	return t.inner.Embed(ctx, truncated)
}

// BatchEmbed truncates every text and delegates the whole batch downstream.
// When the inner embedder has no native batch support each text is embedded
// individually.
func (t *TruncatingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	truncated := make([]string, len(texts))
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty text [%d]: %w", i, domain.ErrInvalidInput)
		}
		cutText, cut := t.Truncate(text)
		if cut {
			metrics.EmbeddingTruncationsTotal.Inc()
		}
		truncated[i] = cutText
	}

	if be, ok := t.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, truncated)
	}
	return domain.BatchFallback(ctx, t.inner, truncated)
}

// Truncate returns text cut to the configured token budget and whether any
// tokens were removed.
func (t *TruncatingEmbedder) Truncate(text string) (string, bool) {
	tokens := t.codec.Encode(text, nil, nil)
	if len(tokens) <= t.maxTokens {
		return text, false
	}
	return t.codec.Decode(tokens[:t.maxTokens]), true
}

// HealthCheck forwards to the inner embedder when it supports checks.
func (t *TruncatingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := t.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
