package enrich

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
	"github.com/helpdesk-cloud/faqd/internal/queue"
)

// --- Mocks ---

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockStore struct {
	exists    bool
	existsErr error
	insertErr error
	inserted  []domain.Entry
}

func (m *mockStore) Insert(_ context.Context, entry domain.Entry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, entry)
	return nil
}

func (m *mockStore) Exists(_ context.Context, _, _ string) (bool, error) {
	return m.exists, m.existsErr
}

// --- Tests ---

func TestProcess_ReusesShippedVector(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockStore{}
	svc := New(embedder, store, 3, zap.NewNop())

	task := queue.Task{
		Content: "q", Answer: "a", Collection: "faq",
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	if err := svc.Process(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.called {
		t.Error("a matching vector must not be re-embedded")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(store.inserted))
	}
}

func TestProcess_ReembedsWrongDimension(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.4, 0.5, 0.6}}
	store := &mockStore{}
	svc := New(embedder, store, 3, zap.NewNop())

	task := queue.Task{Content: "q", Answer: "a", Collection: "faq", Embedding: []float32{0.1}}
	if err := svc.Process(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !embedder.called {
		t.Fatal("a mismatched vector must be re-embedded")
	}
	if got := store.inserted[0].Embedding; len(got) != 3 || got[0] != 0.4 {
		t.Errorf("expected the fresh vector to be stored, got %v", got)
	}
}

func TestProcess_ReembedsMissingVector(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.4, 0.5, 0.6}}
	store := &mockStore{}
	svc := New(embedder, store, 3, zap.NewNop())

	task := queue.Task{Content: "q", Answer: "a", Collection: "faq"}
	if err := svc.Process(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !embedder.called {
		t.Fatal("a task without a vector must be embedded")
	}
}

func TestProcess_SkipsDuplicates(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockStore{exists: true}
	svc := New(embedder, store, 3, zap.NewNop())

	task := queue.Task{Content: "q", Answer: "a", Collection: "faq", Embedding: []float32{1, 2, 3}}
	if err := svc.Process(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Error("duplicate content must not be inserted twice")
	}
}

func TestProcess_EmbedderError(t *testing.T) {
	embedder := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	svc := New(embedder, &mockStore{}, 3, zap.NewNop())

	task := queue.Task{Content: "q", Answer: "a", Collection: "faq"}
	err := svc.Process(context.Background(), task)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestProcess_InsertError(t *testing.T) {
	store := &mockStore{insertErr: domain.ErrStoreUnavailable}
	svc := New(&mockEmbedder{}, store, 3, zap.NewNop())

	task := queue.Task{Content: "q", Answer: "a", Collection: "faq", Embedding: []float32{1, 2, 3}}
	err := svc.Process(context.Background(), task)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
