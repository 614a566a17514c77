package enrich

import (
	"context"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// Embedder vectorizes question text for tasks that arrived without a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Store persists corpus entries.
type Store interface {
	Insert(ctx context.Context, entry domain.Entry) error
	Exists(ctx context.Context, content, collection string) (bool, error)
}
