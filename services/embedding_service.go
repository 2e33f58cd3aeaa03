package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/models"
)

// EmbeddingService wraps a provider with the batching, size and retry policy
// the rest of the system relies on. A batch larger than the provider maximum
// is split internally; oversized items are truncated or rejected per
// configuration; transient provider failures are retried with exponential
// backoff before surfacing as ErrEmbeddingProvider.
type EmbeddingService struct {
	provider      ai.Provider
	model         string
	batchSize     int
	maxChars      int
	truncate      bool
	retryAttempts int
	baseDelay     time.Duration

	mu   sync.Mutex
	dims int // learned from the first successful batch
}

type EmbeddingOptions struct {
	Model         string
	BatchSize     int
	MaxChars      int
	Truncate      bool
	RetryAttempts int
	BaseDelay     time.Duration
}

func NewEmbeddingService(provider ai.Provider, opts EmbeddingOptions) *EmbeddingService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 96
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 16000
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	return &EmbeddingService{
		provider:      provider,
		model:         opts.Model,
		batchSize:     opts.BatchSize,
		maxChars:      opts.MaxChars,
		truncate:      opts.Truncate,
		retryAttempts: opts.RetryAttempts,
		baseDelay:     opts.BaseDelay,
	}
}

// Embed returns one vector per input, preserving order.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	prepared := make([]string, len(texts))
	for i, text := range texts {
		t, err := s.prepare(text)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		prepared[i] = t
	}

	vectors := make([][]float32, 0, len(prepared))
	for start := 0; start < len(prepared); start += s.batchSize {
		end := start + s.batchSize
		if end > len(prepared) {
			end = len(prepared)
		}
		batch, err := s.embedBatch(ctx, prepared[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedChunks embeds a set of content chunks into their typed vector form,
// one active vector per chunk, all stamped with the producing model.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []models.ContentChunk) ([]models.EmbeddingVector, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	raw, err := s.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	vectors := make([]models.EmbeddingVector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = models.EmbeddingVector{
			ID:        chunk.ID,
			ChunkID:   chunk.ID,
			Vector:    raw[i],
			Model:     s.model,
			IndexedAt: now,
		}
	}
	return vectors, nil
}

// EmbedOne embeds a single text.
func (s *EmbeddingService) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *EmbeddingService) prepare(text string) (string, error) {
	runes := []rune(text)
	if len(runes) <= s.maxChars {
		return text, nil
	}
	if s.truncate {
		return string(runes[:s.maxChars]), nil
	}
	return "", fmt.Errorf("%w: %d chars exceeds limit %d", ai.ErrContentTooLarge, len(runes), s.maxChars)
}

func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := s.baseDelay

	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		vectors, err := s.provider.Embed(ctx, texts)
		if err == nil {
			if err := s.checkDimensions(vectors); err != nil {
				return nil, err
			}
			return vectors, nil
		}

		// Rate-limit timeouts and cancellation are not retried here: the
		// limiter already waited as long as the caller allowed.
		if errors.Is(err, ai.ErrRateLimitTimeout) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		if attempt < s.retryAttempts {
			logger.Warn("Embedding batch failed, retrying",
				"attempt", attempt, "batch_size", len(texts), "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("%w: %v", ai.ErrEmbeddingProvider, lastErr)
}

// checkDimensions enforces that every vector in the collection shares the
// dimensionality of the first one the provider ever returned. A mismatch
// means the model changed under us and the collection needs a migration.
func (s *EmbeddingService) checkDimensions(vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vectors {
		if s.dims == 0 {
			s.dims = len(v)
			continue
		}
		if len(v) != s.dims {
			return fmt.Errorf("%w: got %d, collection has %d", ai.ErrDimensionalityMismatch, len(v), s.dims)
		}
	}
	return nil
}
