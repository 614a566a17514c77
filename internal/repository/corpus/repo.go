package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// querier is the subset of pgxpool.Pool the repository uses. *pgxpool.Pool
// and pgx.Tx both satisfy it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository stores question entries in PostgreSQL with pgvector similarity
// search. Top-1 ranking runs inside the database against the cosine index;
// the full collection is never pulled into the process.
type Repository struct {
	db         querier
	dimensions int
	logger     *zap.Logger
}

// New creates a corpus repository. dimensions is the fixed embedding
// dimension every stored entry must have.
func New(db querier, dimensions int, logger *zap.Logger) *Repository {
	return &Repository{db: db, dimensions: dimensions, logger: logger}
}

// FindBestMatch returns the single highest-similarity entry in the
// collection, or found=false when the collection is empty. Score is
// 1 - cosine_distance, in [-1, 1].
func (r *Repository) FindBestMatch(ctx context.Context, vector []float32, collection string) (domain.Match, bool, error) {
	if len(vector) != r.dimensions {
		return domain.Match{}, false, fmt.Errorf(
			"query vector has %d dimensions, expected %d: %w",
			len(vector), r.dimensions, domain.ErrDimensionMismatch)
	}

	var m domain.Match
	err := r.db.QueryRow(ctx,
		`SELECT content, answer, 1 - (embedding <=> $1) AS similarity
		 FROM question_entries
		 WHERE collection = $2
		 ORDER BY embedding <=> $1
		 LIMIT 1`,
		pgvector.NewVector(vector), collection,
	).Scan(&m.Content, &m.Answer, &m.Score)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Match{}, false, nil
	case err != nil:
		return domain.Match{}, false, fmt.Errorf("querying best match: %v: %w", err, domain.ErrStoreUnavailable)
	default:
		return m, true, nil
	}
}

// Insert appends a new question entry. Idempotency is not guaranteed:
// duplicate content may be inserted with differing embeddings. Callers
// needing dedup check FindBestMatch or Exists first.
func (r *Repository) Insert(ctx context.Context, entry domain.Entry) error {
	if err := entry.Validate(r.dimensions); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO question_entries (content, embedding, answer, collection)
		 VALUES ($1, $2, $3, $4)`,
		entry.Content, pgvector.NewVector(entry.Embedding), entry.Answer, entry.Collection,
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %v: %w", err, domain.ErrStoreUnavailable)
	}

	r.logger.Debug("Inserted corpus entry",
		zap.String("collection", entry.Collection),
		zap.Int("content_len", len(entry.Content)),
	)
	return nil
}

// InsertBatch appends multiple entries in a single database round trip.
// All entries are validated before anything is sent; a failed statement
// aborts the remainder of the batch.
func (r *Repository) InsertBatch(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for i, entry := range entries {
		if err := entry.Validate(r.dimensions); err != nil {
			return fmt.Errorf("entry [%d]: %w", i, err)
		}
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(
			`INSERT INTO question_entries (content, embedding, answer, collection)
			 VALUES ($1, $2, $3, $4)`,
			entry.Content, pgvector.NewVector(entry.Embedding), entry.Answer, entry.Collection,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting batch entry [%d]: %v: %w", i, err, domain.ErrStoreUnavailable)
		}
	}

	r.logger.Debug("Inserted corpus batch",
		zap.String("collection", entries[0].Collection),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Exists reports whether an entry with this exact content is already stored
// in the collection. Used by the seeder to keep reloads idempotent.
func (r *Repository) Exists(ctx context.Context, content, collection string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM question_entries WHERE content = $1 AND collection = $2
		 )`,
		content, collection,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking entry existence: %v: %w", err, domain.ErrStoreUnavailable)
	}
	return exists, nil
}

// CollectionInfo describes one search space of the corpus.
type CollectionInfo struct {
	Name    string
	Entries int64
}

// Collections lists the distinct collections with their entry counts.
func (r *Repository) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := r.db.Query(ctx,
		`SELECT collection, count(*) FROM question_entries GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %v: %w", err, domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Entries); err != nil {
			return nil, fmt.Errorf("scanning collection row: %v: %w", err, domain.ErrStoreUnavailable)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %v: %w", err, domain.ErrStoreUnavailable)
	}
	return infos, nil
}

// Collection returns one collection with its entry count, or
// domain.ErrCollectionNotFound if no entry belongs to it.
func (r *Repository) Collection(ctx context.Context, name string) (CollectionInfo, error) {
	var info CollectionInfo
	err := r.db.QueryRow(ctx,
		`SELECT collection, count(*) FROM question_entries WHERE collection = $1 GROUP BY collection`,
		name,
	).Scan(&info.Name, &info.Entries)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return CollectionInfo{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
	case err != nil:
		return CollectionInfo{}, fmt.Errorf("fetching collection: %v: %w", err, domain.ErrStoreUnavailable)
	default:
		return info, nil
	}
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (r *Repository) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := r.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}
