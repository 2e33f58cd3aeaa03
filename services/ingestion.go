package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/internal/vectorstore"
	"book-chatbot-backend/models"
)

var contentExtensions = map[string]bool{
	".md":       true,
	".mdx":      true,
	".markdown": true,
	".txt":      true,
}

// IngestionPipeline walks a content directory and indexes every document:
// chunk, embed, upsert. Re-running over unchanged content is a no-op because
// chunk ids are content hashes; force removes a file's existing chunks first
// so edits fully supersede stale entries.
type IngestionPipeline struct {
	chunker    *Chunker
	embeddings *EmbeddingService
	store      vectorstore.Store
	jobs       JobStore
	batchSize  int

	mu sync.Mutex // one run at a time per process
}

func NewIngestionPipeline(chunker *Chunker, embeddings *EmbeddingService, store vectorstore.Store, jobs JobStore, batchSize int) *IngestionPipeline {
	if batchSize <= 0 {
		batchSize = 96
	}
	return &IngestionPipeline{
		chunker:    chunker,
		embeddings: embeddings,
		store:      store,
		jobs:       jobs,
		batchSize:  batchSize,
	}
}

// CountFiles reports how many ingestible documents live under dir, for the
// enqueue response.
func (p *IngestionPipeline) CountFiles(dir string) (int, error) {
	files, err := listContentFiles(dir)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Run executes the job end to end, updating its record as batches complete.
// The returned error reflects infrastructure problems; per-chunk failures are
// recorded on the job instead.
func (p *IngestionPipeline) Run(ctx context.Context, jobID, contentDir string, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = models.JobInProgress
	if err := p.jobs.Update(ctx, job); err != nil {
		return err
	}

	files, err := listContentFiles(contentDir)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("listing content: %w", err))
	}

	var chunks []models.ContentChunk
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			job.ErrorLog = append(job.ErrorLog, fmt.Sprintf("%s: %v", file, err))
			continue
		}
		rel, err := filepath.Rel(contentDir, file)
		if err != nil {
			rel = file
		}
		chunks = append(chunks, p.chunker.Chunk(string(raw), SourceMeta{File: rel})...)
	}

	job.TotalChunks = len(chunks)
	if err := p.jobs.Update(ctx, job); err != nil {
		return err
	}

	if len(chunks) == 0 {
		// An empty corpus completes with zero counts rather than failing.
		job.Status = models.JobCompleted
		return p.jobs.Update(ctx, job)
	}

	if force {
		if err := p.supersede(ctx, chunks); err != nil {
			return p.fail(ctx, job, err)
		}
	}

	upserted := 0
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		n, err := p.processBatch(ctx, job, chunks[start:end])
		if err != nil {
			return p.fail(ctx, job, err)
		}
		upserted += n
		if err := p.jobs.Update(ctx, job); err != nil {
			return err
		}
	}

	if job.ProcessedChunks == 0 && job.TotalChunks > 0 {
		job.Status = models.JobFailed
	} else {
		job.Status = models.JobCompleted
	}
	logger.Info("Ingestion run finished",
		"job_id", job.ID, "status", job.Status,
		"total", job.TotalChunks, "processed", job.ProcessedChunks,
		"failed", job.FailedChunks, "upserted", upserted)
	return p.jobs.Update(ctx, job)
}

// processBatch embeds and indexes one batch of chunks. Chunks already present
// in the store are skipped and count as processed; that is what makes a
// re-run over unchanged content a cheap no-op.
func (p *IngestionPipeline) processBatch(ctx context.Context, job *models.IngestionJob, batch []models.ContentChunk) (int, error) {
	pending := make([]models.ContentChunk, 0, len(batch))
	for _, chunk := range batch {
		exists, err := p.store.Has(ctx, chunk.ID)
		if err != nil {
			return 0, err
		}
		if exists {
			job.ProcessedChunks++
			continue
		}
		pending = append(pending, chunk)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	vectors, err := p.embeddings.EmbedChunks(ctx, pending)
	if err != nil {
		// Oversized chunks fail individually without sinking the run; any
		// other embedding error is infrastructure and aborts.
		if errors.Is(err, ai.ErrContentTooLarge) {
			return p.embedOneByOne(ctx, job, pending)
		}
		return 0, err
	}

	records := make([]vectorstore.Record, len(pending))
	for i, chunk := range pending {
		records[i] = chunkRecord(chunk, vectors[i].Vector)
	}
	if err := p.store.UpsertBatch(ctx, records); err != nil {
		return 0, err
	}
	job.ProcessedChunks += len(pending)
	return len(pending), nil
}

// embedOneByOne retries a failed batch item by item so one rejected chunk
// only costs itself.
func (p *IngestionPipeline) embedOneByOne(ctx context.Context, job *models.IngestionJob, pending []models.ContentChunk) (int, error) {
	upserted := 0
	for _, chunk := range pending {
		vectors, err := p.embeddings.EmbedChunks(ctx, []models.ContentChunk{chunk})
		if err != nil {
			if errors.Is(err, ai.ErrContentTooLarge) {
				job.FailedChunks++
				job.ErrorLog = append(job.ErrorLog,
					fmt.Sprintf("%s %s: %v", chunk.SourceFile, chunk.SourceLocation, err))
				continue
			}
			return upserted, err
		}
		if err := p.store.Upsert(ctx, chunkRecord(chunk, vectors[0].Vector)); err != nil {
			return upserted, err
		}
		job.ProcessedChunks++
		upserted++
	}
	return upserted, nil
}

func chunkRecord(chunk models.ContentChunk, vector []float32) vectorstore.Record {
	return vectorstore.Record{
		ID:      chunk.ID,
		Vector:  vector,
		Content: chunk.Text,
		Metadata: map[string]string{
			"source_file":     chunk.SourceFile,
			"source_location": chunk.SourceLocation,
		},
	}
}

// supersede drops existing chunks for every file in the run so the fresh
// index fully replaces the old one.
func (p *IngestionPipeline) supersede(ctx context.Context, chunks []models.ContentChunk) error {
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		if seen[chunk.SourceFile] {
			continue
		}
		seen[chunk.SourceFile] = true
		if err := p.store.DeleteWhere(ctx, map[string]string{"source_file": chunk.SourceFile}); err != nil {
			return err
		}
	}
	return nil
}

func (p *IngestionPipeline) fail(ctx context.Context, job *models.IngestionJob, cause error) error {
	logger.Error("Ingestion run failed", "job_id", job.ID, "error", cause)
	job.Status = models.JobFailed
	job.ErrorLog = append(job.ErrorLog, cause.Error())
	if err := p.jobs.Update(ctx, job); err != nil {
		logger.Error("Failed to record job failure", "job_id", job.ID, "error", err)
	}
	return cause
}

func listContentFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if contentExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
