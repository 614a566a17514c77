package embcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce := newTestCachedEmbedder(t, inner, 16)

	result, err := ce.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls.Load())
	}
	if ce.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", ce.Len())
	}
}

func TestEmbed_CacheHitIsIdentical(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce := newTestCachedEmbedder(t, inner, 16)
	ctx := context.Background()

	first, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls.Load() != 1 {
		t.Fatalf("expected exactly 1 inner call, got %d", inner.calls.Load())
	}
	if len(first.Embedding) != len(second.Embedding) {
		t.Fatal("hit returned a vector of different length")
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Fatalf("vec[%d] differs between calls: %f vs %f", i, first.Embedding[i], second.Embedding[i])
		}
	}
	if second.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", second.TotalTokens)
	}
}

func TestEmbed_InnerErrorNotCached(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce := newTestCachedEmbedder(t, inner, 16)

	if _, err := ce.Embed(context.Background(), "test text"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
	if ce.Len() != 0 {
		t.Fatalf("failed embedding must not be cached, got %d entries", ce.Len())
	}
}

func TestEmbed_BoundedEviction(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	ce := newTestCachedEmbedder(t, inner, 4)
	ctx := context.Background()

	for i := 0; i < 32; i++ {
		if _, err := ce.Embed(ctx, fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if ce.Len() > 4 {
		t.Fatalf("cache exceeded its bound: %d entries", ce.Len())
	}
}

func TestEmbed_ConcurrentAccess(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}}
	ce := newTestCachedEmbedder(t, inner, 64)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				text := fmt.Sprintf("question %d", (n+j)%8)
				if _, err := ce.Embed(context.Background(), text); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	// 8 distinct texts, 800 lookups. Concurrent misses on the same key may
	// each reach the inner embedder, but the vast majority must be hits.
	if n := inner.calls.Load(); n < 8 || n >= 800 {
		t.Fatalf("expected between 8 and 799 inner calls, got %d", n)
	}
}
