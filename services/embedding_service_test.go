package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/models"
)

func TestEmbedSplitsOversizedBatches(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestEmbeddings(provider, EmbeddingOptions{BatchSize: 96})

	texts := make([]string, 200)
	for i := range texts {
		texts[i] = "chunk"
	}

	vectors, err := svc.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 200 {
		t.Fatalf("expected 200 vectors, got %d", len(vectors))
	}
	if provider.calls() != 3 {
		t.Errorf("200 items at batch size 96 should take 3 calls, got %d", provider.calls())
	}
	if provider.embedSizes[0] != 96 || provider.embedSizes[1] != 96 || provider.embedSizes[2] != 8 {
		t.Errorf("unexpected batch sizes: %v", provider.embedSizes)
	}
}

func TestEmbedTruncatesOversizedText(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestEmbeddings(provider, EmbeddingOptions{MaxChars: 10, Truncate: true})

	_, err := svc.Embed(context.Background(), []string{strings.Repeat("x", 50)})
	if err != nil {
		t.Fatalf("truncation mode should not error: %v", err)
	}
}

func TestEmbedRejectsOversizedText(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestEmbeddings(provider, EmbeddingOptions{MaxChars: 10, Truncate: false})

	_, err := svc.Embed(context.Background(), []string{strings.Repeat("x", 50)})
	if !errors.Is(err, ai.ErrContentTooLarge) {
		t.Fatalf("expected ErrContentTooLarge, got %v", err)
	}
	if provider.calls() != 0 {
		t.Errorf("rejected input should never reach the provider")
	}
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	attempts := 0
	provider := &fakeProvider{
		embedFunc: func(texts []string) ([][]float32, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = []float32{1}
			}
			return vectors, nil
		},
	}
	svc := newTestEmbeddings(provider, EmbeddingOptions{RetryAttempts: 3})

	if _, err := svc.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("should succeed on third attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestEmbedExhaustedRetriesWrapProviderError(t *testing.T) {
	provider := &fakeProvider{
		embedFunc: func(texts []string) ([][]float32, error) {
			return nil, errors.New("boom")
		},
	}
	svc := newTestEmbeddings(provider, EmbeddingOptions{RetryAttempts: 2})

	_, err := svc.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ai.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
	if provider.calls() != 2 {
		t.Errorf("expected 2 attempts, got %d", provider.calls())
	}
}

func TestEmbedDoesNotRetryRateLimitTimeout(t *testing.T) {
	provider := &fakeProvider{
		embedFunc: func(texts []string) ([][]float32, error) {
			return nil, ai.ErrRateLimitTimeout
		},
	}
	svc := newTestEmbeddings(provider, EmbeddingOptions{RetryAttempts: 3})

	_, err := svc.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ai.ErrRateLimitTimeout) {
		t.Fatalf("expected ErrRateLimitTimeout, got %v", err)
	}
	if provider.calls() != 1 {
		t.Errorf("rate-limit timeout must not be retried, got %d calls", provider.calls())
	}
}

func TestEmbedChunksStampsVectorMetadata(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestEmbeddings(provider, EmbeddingOptions{Model: "text-embedding-004"})

	chunks := []models.ContentChunk{
		{ID: "abc123", Text: "forward kinematics"},
		{ID: "def456", Text: "inverse kinematics"},
	}
	vectors, err := svc.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("embed chunks: %v", err)
	}
	if len(vectors) != len(chunks) {
		t.Fatalf("expected %d vectors, got %d", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if v.ChunkID != chunks[i].ID || v.ID != chunks[i].ID {
			t.Errorf("vector %d not tied to its chunk: %+v", i, v)
		}
		if v.Model != "text-embedding-004" {
			t.Errorf("vector %d missing model stamp, got %q", i, v.Model)
		}
		if len(v.Vector) == 0 {
			t.Errorf("vector %d is empty", i)
		}
		if v.IndexedAt.IsZero() {
			t.Errorf("vector %d missing indexed time", i)
		}
	}
}

func TestEmbedDetectsDimensionalityMismatch(t *testing.T) {
	dims := 3
	provider := &fakeProvider{
		embedFunc: func(texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = make([]float32, dims)
			}
			return vectors, nil
		},
	}
	svc := newTestEmbeddings(provider, EmbeddingOptions{})

	if _, err := svc.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("first embed: %v", err)
	}

	dims = 5
	_, err := svc.Embed(context.Background(), []string{"b"})
	if !errors.Is(err, ai.ErrDimensionalityMismatch) {
		t.Fatalf("expected ErrDimensionalityMismatch, got %v", err)
	}
}
