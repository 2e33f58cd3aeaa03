package ai

import "errors"

// Error kinds surfaced by the embedding and generation paths. Callers match
// with errors.Is; the wrapped cause carries provider detail for logs only and
// is never returned to clients.
var (
	// ErrContentTooLarge means a single input exceeded the per-item size
	// ceiling and truncation is disabled.
	ErrContentTooLarge = errors.New("content too large for embedding")

	// ErrRateLimitTimeout means the caller blocked on the shared rate
	// limiter until its hard deadline elapsed.
	ErrRateLimitTimeout = errors.New("rate limit wait timed out")

	// ErrEmbeddingProvider wraps the last failure after embedding retries
	// are exhausted.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrDimensionalityMismatch means the provider returned vectors whose
	// length disagrees with the collection's dimensionality. Fatal: mixing
	// models requires a new collection.
	ErrDimensionalityMismatch = errors.New("embedding dimensionality mismatch")

	// ErrLLMProvider wraps generation failures after retries.
	ErrLLMProvider = errors.New("llm provider error")
)
