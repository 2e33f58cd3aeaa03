package models

import "time"

// ContentChunk is a bounded segment of book text, the unit of embedding and
// retrieval. The ID is a stable content hash so re-ingesting unchanged
// content is idempotent: a changed chunk gets a new ID and the stale vector
// is deleted rather than mutated.
type ContentChunk struct {
	ID             string            `bson:"_id" json:"id"`
	Text           string            `bson:"text" json:"text"`
	SourceFile     string            `bson:"source_file" json:"source_file"`
	SourceLocation string            `bson:"source_location" json:"source_location"`
	Order          int               `bson:"order" json:"order"`
	Metadata       map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// EmbeddingVector pairs a chunk with its numeric representation. Exactly one
// active vector exists per active chunk; all vectors in one collection share
// the dimensionality of the model that produced them.
type EmbeddingVector struct {
	ID        string    `bson:"_id" json:"id"`
	ChunkID   string    `bson:"chunk_id" json:"chunk_id"`
	Vector    []float32 `bson:"vector" json:"vector"`
	Model     string    `bson:"model" json:"model"`
	IndexedAt time.Time `bson:"indexed_at" json:"indexed_at"`
}

// RetrievedChunk is a ContentChunk annotated with a query-time relevance
// score in [0,1]. It lives only inside one retrieval result set and is never
// persisted.
type RetrievedChunk struct {
	ContentChunk `bson:",inline"`
	Score        float64 `json:"relevance_score"`
}
