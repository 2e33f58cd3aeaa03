package vectorstore

import (
	"context"
	"errors"
)

// ErrUnavailable means the underlying store could not be reached. Callers
// must surface this as a distinct degraded mode, never as an empty result.
var ErrUnavailable = errors.New("vector store unavailable")

// Record is one (vector, metadata) pair to index.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Result is one ranked query hit. Score is cosine similarity in [0,1],
// descending; ties rank the most recently indexed record first.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}

// Store indexes embedding vectors and answers k-nearest-neighbor queries.
// Query never returns more than topK results and never returns entries below
// minScore; pass minScore 0 for an unfiltered ranking.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	UpsertBatch(ctx context.Context, recs []Record) error
	Query(ctx context.Context, vector []float32, topK int, minScore float64, filter map[string]string) ([]Result, error)
	Delete(ctx context.Context, id string) error
	DeleteWhere(ctx context.Context, filter map[string]string) error
	Has(ctx context.Context, id string) (bool, error)
	Count() int
}
