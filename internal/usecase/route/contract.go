package route

import (
	"context"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// Embedder vectorizes question text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Matcher finds the closest stored question by cosine similarity.
type Matcher interface {
	FindBestMatch(ctx context.Context, vector []float32, collection string) (domain.Match, bool, error)
}

// Responder produces a generative answer or refuses an off-topic question.
type Responder interface {
	Answer(ctx context.Context, question string) (domain.Reply, error)
}

// Enqueuer hands a generated question-answer pair to the enrichment queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, entry domain.Entry) error
}
