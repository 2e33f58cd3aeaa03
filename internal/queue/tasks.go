package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/services"
)

const TaskIngestContent = "content:ingest"

// IngestPayload carries one ingestion run from the API process to the worker.
type IngestPayload struct {
	JobID      string `json:"job_id"`
	ContentDir string `json:"content_dir"`
	Force      bool   `json:"force"`
}

// NewIngestTask builds the asynq task for an ingestion run. Retries are left
// to the embedding layer; a run that fails at the infrastructure level gets
// one more attempt before the job stays failed.
func NewIngestTask(jobID, contentDir string, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		JobID:      jobID,
		ContentDir: contentDir,
		Force:      force,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestContent,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor executes queued tasks inside the worker process.
type TaskProcessor struct {
	pipeline *services.IngestionPipeline
}

func NewTaskProcessor(pipeline *services.IngestionPipeline) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Starting ingestion run", "job_id", payload.JobID, "force", payload.Force)
	return p.pipeline.Run(ctx, payload.JobID, payload.ContentDir, payload.Force)
}
