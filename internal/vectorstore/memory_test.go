package vectorstore

import (
	"context"
	"testing"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	records := []Record{
		{ID: "a", Vector: []float32{1, 0, 0}, Content: "exact match", Metadata: map[string]string{"source_file": "ch1.md"}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}, Content: "close match", Metadata: map[string]string{"source_file": "ch1.md"}},
		{ID: "c", Vector: []float32{0, 1, 0}, Content: "orthogonal", Metadata: map[string]string{"source_file": "ch2.md"}},
	}
	if err := store.UpsertBatch(context.Background(), records); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestQueryRanksByScoreDescending(t *testing.T) {
	store := seedStore(t)

	results, err := store.Query(context.Background(), []float32{1, 0, 0}, 10, 0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" || results[2].ID != "c" {
		t.Errorf("wrong order: %s, %s, %s", results[0].ID, results[1].ID, results[2].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestQueryAppliesMinScoreAndTopK(t *testing.T) {
	store := seedStore(t)

	results, err := store.Query(context.Background(), []float32{1, 0, 0}, 10, 0.5, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, r := range results {
		if r.Score < 0.5 {
			t.Errorf("result %s below min score: %f", r.ID, r.Score)
		}
		if r.ID == "c" {
			t.Errorf("orthogonal record should be filtered out")
		}
	}

	limited, err := store.Query(context.Background(), []float32{1, 0, 0}, 1, 0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "a" {
		t.Fatalf("topK=1 should return only the best result")
	}
}

func TestQueryTieBreaksByRecency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	// identical vectors, indexed in order: old then new
	store.Upsert(ctx, Record{ID: "old", Vector: []float32{1, 0}})
	store.Upsert(ctx, Record{ID: "new", Vector: []float32{1, 0}})

	results, err := store.Query(ctx, []float32{1, 0}, 2, 0, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if results[0].ID != "new" {
		t.Errorf("tie should rank the most recently indexed first, got %s", results[0].ID)
	}
}

func TestQueryMetadataFilter(t *testing.T) {
	store := seedStore(t)

	results, err := store.Query(context.Background(), []float32{1, 0, 0}, 10, 0, map[string]string{"source_file": "ch2.md"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c" {
		t.Fatalf("filter should only match ch2.md records, got %d results", len(results))
	}
}

func TestDeleteWhere(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	if err := store.DeleteWhere(ctx, map[string]string{"source_file": "ch1.md"}); err != nil {
		t.Fatalf("delete where: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 record left, got %d", store.Count())
	}
	if ok, _ := store.Has(ctx, "c"); !ok {
		t.Errorf("unmatched record should survive")
	}
}

func TestHasAndUpsertOverwrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if ok, _ := store.Has(ctx, "x"); ok {
		t.Fatalf("empty store should not contain x")
	}
	store.Upsert(ctx, Record{ID: "x", Vector: []float32{1}, Content: "v1"})
	store.Upsert(ctx, Record{ID: "x", Vector: []float32{1}, Content: "v2"})
	if store.Count() != 1 {
		t.Fatalf("upsert should overwrite, count = %d", store.Count())
	}
}
