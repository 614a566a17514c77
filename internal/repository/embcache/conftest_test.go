package embcache

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// mockEmbedder counts calls atomically so concurrent cache-miss tests stay
// race-free.
type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  atomic.Int64
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	return m.result, m.err
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder, size int) *CachedEmbedder {
	t.Helper()
	ce, err := New(inner, size, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ce
}
