package vectorstore

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

// ChromemStore persists vectors in an embedded chromem-go database. chromem
// ranks by cosine similarity, which matches the Store contract.
type ChromemStore struct {
	collection *chromem.Collection
}

// NewChromemStore opens (or creates) a persistent collection at path. An
// empty path yields an in-process, non-persistent database.
func NewChromemStore(path, collection string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		db = d
	}

	c, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &ChromemStore{collection: c}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, rec Record) error {
	doc := chromem.Document{
		ID:        rec.ID,
		Metadata:  rec.Metadata,
		Embedding: rec.Vector,
		Content:   rec.Content,
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *ChromemStore) UpsertBatch(ctx context.Context, recs []Record) error {
	for _, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, minScore float64, filter map[string]string) ([]Result, error) {
	n := topK
	if count := s.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < minScore {
			continue
		}
		out = append(out, Result{
			ID:       r.ID,
			Score:    score,
			Content:  r.Content,
			Metadata: r.Metadata,
		})
	}
	return out, nil
}

func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteWhere removes every record whose metadata matches filter, used to
// supersede a file's old chunks on forced re-indexing.
func (s *ChromemStore) DeleteWhere(ctx context.Context, filter map[string]string) error {
	if err := s.collection.Delete(ctx, filter, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *ChromemStore) Has(ctx context.Context, id string) (bool, error) {
	_, err := s.collection.GetByID(ctx, id)
	if err != nil {
		// chromem returns a plain error for unknown ids
		return false, nil
	}
	return true, nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}
