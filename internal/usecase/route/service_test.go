package route

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
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

type mockMatcher struct {
	match          domain.Match
	found          bool
	err            error
	lastCollection string
	lastVector     []float32
}

func (m *mockMatcher) FindBestMatch(_ context.Context, vector []float32, collection string) (domain.Match, bool, error) {
	m.lastVector = vector
	m.lastCollection = collection
	return m.match, m.found, m.err
}

type mockResponder struct {
	reply  domain.Reply
	err    error
	called bool
}

func (m *mockResponder) Answer(_ context.Context, _ string) (domain.Reply, error) {
	m.called = true
	return m.reply, m.err
}

type mockEnqueuer struct {
	entries []domain.Entry
	err     error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, entry domain.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func newTestService(
	e *mockEmbedder, m *mockMatcher, r *mockResponder, q *mockEnqueuer,
) *Service {
	return New(e, m, r, q, 0.85, zap.NewNop())
}

// --- Tests ---

func TestRoute_CorpusHit(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.1, 0.2}}
	matcher := &mockMatcher{
		match: domain.Match{Content: "How do I reset my password?", Answer: "Visit /reset", Score: 0.93},
		found: true,
	}
	responder := &mockResponder{}
	enqueuer := &mockEnqueuer{}

	d, err := newTestService(embedder, matcher, responder, enqueuer).
		Route(context.Background(), "how to reset password", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != domain.ActionCorpus {
		t.Fatalf("expected corpus action, got %s", d.Action)
	}
	if d.Answer != "Visit /reset" || d.MatchedQuestion != "How do I reset my password?" || d.Score != 0.93 {
		t.Errorf("unexpected decision: %+v", d)
	}
	if responder.called {
		t.Error("confident corpus hit must not invoke the fallback")
	}
	if len(enqueuer.entries) != 0 {
		t.Error("corpus hit must not enqueue enrichment")
	}
	if matcher.lastCollection != domain.DefaultCollection {
		t.Errorf("empty collection must default, got %q", matcher.lastCollection)
	}
}

func TestRoute_WithDefaultCollection(t *testing.T) {
	matcher := &mockMatcher{match: domain.Match{Answer: "a", Score: 0.9}, found: true}
	svc := newTestService(&mockEmbedder{vec: []float32{0.1}}, matcher, &mockResponder{}, &mockEnqueuer{}).
		WithDefaultCollection("kb")

	if _, err := svc.Route(context.Background(), "q", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matcher.lastCollection != "kb" {
		t.Errorf("expected configured default collection, got %q", matcher.lastCollection)
	}
}

func TestRoute_ScoreAtThresholdUsesCorpus(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.1}}
	matcher := &mockMatcher{match: domain.Match{Answer: "a", Score: 0.85}, found: true}
	responder := &mockResponder{}

	d, err := newTestService(embedder, matcher, responder, &mockEnqueuer{}).
		Route(context.Background(), "q", "faq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != domain.ActionCorpus {
		t.Fatalf("threshold is inclusive, got %s", d.Action)
	}
}

func TestRoute_BelowThresholdFallsBack(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.1, 0.2}}
	matcher := &mockMatcher{match: domain.Match{Answer: "stale", Score: 0.60}, found: true}
	responder := &mockResponder{reply: domain.Reply{Text: "Generated answer"}}
	enqueuer := &mockEnqueuer{}

	d, err := newTestService(embedder, matcher, responder, enqueuer).
		Route(context.Background(), "an unseen question", "faq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != domain.ActionGenerated || d.Answer != "Generated answer" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if len(enqueuer.entries) != 1 {
		t.Fatalf("expected one enrichment task, got %d", len(enqueuer.entries))
	}
	entry := enqueuer.entries[0]
	if entry.Content != "an unseen question" || entry.Answer != "Generated answer" {
		t.Errorf("unexpected task content: %+v", entry)
	}
	if len(entry.Embedding) != 2 {
		t.Error("the already computed vector must travel with the task")
	}
}

func TestRoute_EmptyCorpusFallsBack(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.1}}
	matcher := &mockMatcher{found: false}
	responder := &mockResponder{reply: domain.Reply{Text: "Generated answer"}}
	enqueuer := &mockEnqueuer{}

	d, err := newTestService(embedder, matcher, responder, enqueuer).
		Route(context.Background(), "first ever question", "faq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != domain.ActionGenerated {
		t.Fatalf("expected generated action, got %s", d.Action)
	}
	if d.Score != 0 {
		t.Errorf("score must be zero with an empty corpus, got %v", d.Score)
	}
	if len(enqueuer.entries) != 1 {
		t.Fatalf("expected one enrichment task, got %d", len(enqueuer.entries))
	}
}

func TestRoute_RefusalSkipsEnrichment(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{0.1}}
	matcher := &mockMatcher{found: false}
	responder := &mockResponder{reply: domain.Reply{Text: "This is not really what I was trained for, therefore I cannot answer. Try again.", Refused: true}}
	enqueuer := &mockEnqueuer{}

	d, err := newTestService(embedder, matcher, responder, enqueuer).
		Route(context.Background(), "best pizza topping?", "faq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != domain.ActionRefused {
		t.Fatalf("expected refused action, got %s", d.Action)
	}
	if len(enqueuer.entries) != 0 {
		t.Error("refusals must never enrich the corpus")
	}
}

func TestRoute_EmptyQuestion(t *testing.T) {
	embedder := &mockEmbedder{}

	_, err := newTestService(embedder, &mockMatcher{}, &mockResponder{}, &mockEnqueuer{}).
		Route(context.Background(), "   ", "faq")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if embedder.called {
		t.Error("blank input must be rejected before embedding")
	}
}

func TestRoute_EmbedderError(t *testing.T) {
	embedder := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}

	_, err := newTestService(embedder, &mockMatcher{}, &mockResponder{}, &mockEnqueuer{}).
		Route(context.Background(), "q", "faq")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestRoute_MatcherError(t *testing.T) {
	matcher := &mockMatcher{err: domain.ErrStoreUnavailable}
	responder := &mockResponder{}

	_, err := newTestService(&mockEmbedder{vec: []float32{0.1}}, matcher, responder, &mockEnqueuer{}).
		Route(context.Background(), "q", "faq")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if responder.called {
		t.Error("store failure must not mask itself behind the fallback")
	}
}

func TestRoute_ResponderError(t *testing.T) {
	responder := &mockResponder{err: domain.ErrGenerativeUnavailable}

	_, err := newTestService(&mockEmbedder{vec: []float32{0.1}}, &mockMatcher{}, responder, &mockEnqueuer{}).
		Route(context.Background(), "q", "faq")
	if !errors.Is(err, domain.ErrGenerativeUnavailable) {
		t.Fatalf("expected ErrGenerativeUnavailable, got %v", err)
	}
}

func TestRoute_EnqueueFailureDoesNotFailRequest(t *testing.T) {
	responder := &mockResponder{reply: domain.Reply{Text: "Generated answer"}}
	enqueuer := &mockEnqueuer{err: errors.New("redis down")}

	d, err := newTestService(&mockEmbedder{vec: []float32{0.1}}, &mockMatcher{}, responder, enqueuer).
		Route(context.Background(), "q", "faq")
	if err != nil {
		t.Fatalf("enqueue failure must not surface: %v", err)
	}
	if d.Action != domain.ActionGenerated || d.Answer != "Generated answer" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestRoute_NilEnqueuer(t *testing.T) {
	responder := &mockResponder{reply: domain.Reply{Text: "Generated answer"}}

	d, err := New(&mockEmbedder{vec: []float32{0.1}}, &mockMatcher{}, responder, nil, 0.85, zap.NewNop()).
		Route(context.Background(), "q", "faq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != domain.ActionGenerated {
		t.Errorf("unexpected decision: %+v", d)
	}
}
