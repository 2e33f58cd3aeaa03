package services

import (
	"context"

	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/internal/vectorstore"
	"book-chatbot-backend/models"
)

// Retriever answers "which chunks are relevant to this query". An empty
// result is a normal outcome meaning no relevant content; embedding and
// store failures propagate as their distinct error kinds.
type Retriever struct {
	embeddings *EmbeddingService
	store      vectorstore.Store
	topK       int
	minScore   float64
}

// RetrieveOptions override the configured defaults for one call. A non-nil
// MinScore of 0 deliberately requests an unfiltered ranking. SelectedText
// carries a user highlight: retrieval is scoped to the highlight's source
// file first, falling back to the full corpus when the scoped search comes
// up empty.
type RetrieveOptions struct {
	TopK         int
	MinScore     *float64
	SelectedText string
}

func NewRetriever(embeddings *EmbeddingService, store vectorstore.Store, topK int, minScore float64) *Retriever {
	return &Retriever{
		embeddings: embeddings,
		store:      store,
		topK:       topK,
		minScore:   minScore,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]models.RetrievedChunk, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}
	minScore := r.minScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	vector, err := r.embeddings.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	var filter map[string]string
	if opts.SelectedText != "" {
		if file := r.locateHighlight(ctx, opts.SelectedText); file != "" {
			filter = map[string]string{"source_file": file}
		}
	}

	results, err := r.store.Query(ctx, vector, topK, minScore, filter)
	if err != nil {
		return nil, err
	}

	// A scoped search that finds nothing falls back to the full corpus.
	if len(results) == 0 && filter != nil {
		results, err = r.store.Query(ctx, vector, topK, minScore, nil)
		if err != nil {
			return nil, err
		}
	}

	chunks := make([]models.RetrievedChunk, len(results))
	for i, res := range results {
		chunks[i] = models.RetrievedChunk{
			ContentChunk: models.ContentChunk{
				ID:             res.ID,
				Text:           res.Content,
				SourceFile:     res.Metadata["source_file"],
				SourceLocation: res.Metadata["source_location"],
			},
			Score: res.Score,
		}
	}
	return chunks, nil
}

// locateHighlight finds the source file whose content best matches the
// highlighted text. Failures here only widen the search, they never fail the
// retrieval.
func (r *Retriever) locateHighlight(ctx context.Context, selected string) string {
	vector, err := r.embeddings.EmbedOne(ctx, selected)
	if err != nil {
		logger.Debug("Highlight embedding failed, searching full corpus", "error", err)
		return ""
	}
	results, err := r.store.Query(ctx, vector, 1, 0, nil)
	if err != nil || len(results) == 0 {
		return ""
	}
	return results[0].Metadata["source_file"]
}
