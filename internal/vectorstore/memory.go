package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryRecord struct {
	Record
	seq int64
}

// MemoryStore is a thread-safe in-memory Store with exact cosine ranking.
// It backs tests and deployments that do not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[rec.ID] = memoryRecord{Record: rec, seq: s.seq}
	return nil
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, recs []Record) error {
	for _, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, topK int, minScore float64, filter map[string]string) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   memoryRecord
		score float64
	}

	candidates := make([]scored, 0, len(s.records))
	for _, rec := range s.records {
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		score := cosineSimilarity(vector, rec.Vector)
		if score < minScore {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: score})
	}

	// Descending by score; ties go to the most recently indexed record.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq > candidates[j].rec.seq
	})

	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{
			ID:       c.rec.ID,
			Score:    c.score,
			Content:  c.rec.Content,
			Metadata: c.rec.Metadata,
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteWhere(ctx context.Context, filter map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if matchesFilter(rec.Metadata, filter) {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *MemoryStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// cosineSimilarity returns the cosine of the angle between a and b, clamped
// to 0 for degenerate inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
