package models

import "time"

// Ingestion job states. A job is terminal once completed or failed; a retry
// starts a new job.
const (
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// IngestionJob tracks one batch embedding run. Counters are updated after
// every embedding batch so status queries mid-run are accurate.
// Invariant: ProcessedChunks + FailedChunks <= TotalChunks.
type IngestionJob struct {
	ID              string    `bson:"_id" json:"task_id"`
	Source          string    `bson:"source" json:"source"`
	Status          string    `bson:"status" json:"status"`
	TotalChunks     int       `bson:"total_chunks" json:"total_chunks"`
	ProcessedChunks int       `bson:"processed_chunks" json:"processed_chunks"`
	FailedChunks    int       `bson:"failed_chunks" json:"failed_chunks"`
	FilesCount      int       `bson:"files_count" json:"files_count"`
	ErrorLog        []string  `bson:"error_log,omitempty" json:"error_log,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// Terminal reports whether the job reached a final state.
func (j *IngestionJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
