package corpus

import (
	"context"
	"fmt"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// EnsureSchema creates the pgvector extension, the question_entries table
// and the cosine HNSW index if they do not exist. The vector column is fixed
// to the configured dimension; rows of any other dimension are rejected by
// the database itself.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS question_entries (
			   id         bigserial PRIMARY KEY,
			   content    text NOT NULL CHECK (content <> ''),
			   embedding  vector(%d) NOT NULL,
			   answer     text NOT NULL CHECK (answer <> ''),
			   collection text NOT NULL DEFAULT '%s',
			   created_at timestamptz NOT NULL DEFAULT now()
			 )`,
			r.dimensions, domain.DefaultCollection),
		`CREATE INDEX IF NOT EXISTS question_entries_collection_idx
		   ON question_entries (collection)`,
		`CREATE INDEX IF NOT EXISTS question_entries_embedding_idx
		   ON question_entries USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %v: %w", err, domain.ErrStoreUnavailable)
		}
	}
	return nil
}
