package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"book-chatbot-backend/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = errors.New("ingestion job not found")

// JobStore tracks ingestion job lifecycle. Counters update as batches
// complete so polling clients see live progress.
type JobStore interface {
	Create(ctx context.Context, source string, filesCount int) (*models.IngestionJob, error)
	Get(ctx context.Context, id string) (*models.IngestionJob, error)
	Update(ctx context.Context, job *models.IngestionJob) error
	ActiveForSource(ctx context.Context, source string) (*models.IngestionJob, error)
}

// MongoJobStore persists jobs in the "ingestion_jobs" collection, which makes
// progress visible across processes: the API enqueues, the worker updates,
// and status polls read the same documents.
type MongoJobStore struct {
	collection *mongo.Collection
}

func NewMongoJobStore(db *mongo.Database) *MongoJobStore {
	return &MongoJobStore{collection: db.Collection("ingestion_jobs")}
}

func (s *MongoJobStore) Create(ctx context.Context, source string, filesCount int) (*models.IngestionJob, error) {
	now := time.Now().UTC()
	job := &models.IngestionJob{
		ID:         uuid.NewString(),
		Source:     source,
		Status:     models.JobPending,
		FilesCount: filesCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.collection.InsertOne(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *MongoJobStore) Get(ctx context.Context, id string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *MongoJobStore) Update(ctx context.Context, job *models.IngestionJob) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ActiveForSource returns the newest pending or in-progress job for a source,
// or nil when there is none. Callers use this to refuse concurrent ingestion
// runs over the same content.
func (s *MongoJobStore) ActiveForSource(ctx context.Context, source string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := s.collection.FindOne(ctx,
		bson.M{
			"source": source,
			"status": bson.M{"$in": []string{models.JobPending, models.JobInProgress}},
		},
		options.FindOne().SetSort(bson.M{"created_at": -1}),
	).Decode(&job)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// MemoryJobStore is the in-memory JobStore for tests and single-process runs.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.IngestionJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.IngestionJob)}
}

func (s *MemoryJobStore) Create(ctx context.Context, source string, filesCount int) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job := &models.IngestionJob{
		ID:         uuid.NewString(),
		Source:     source,
		Status:     models.JobPending,
		FilesCount: filesCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	return copyJob(job), nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(job), nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryJobStore) ActiveForSource(ctx context.Context, source string) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.IngestionJob
	for _, job := range s.jobs {
		if job.Source != source || job.Terminal() {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) {
			newest = job
		}
	}
	if newest == nil {
		return nil, nil
	}
	return copyJob(newest), nil
}

func copyJob(job *models.IngestionJob) *models.IngestionJob {
	out := *job
	out.ErrorLog = append([]string(nil), job.ErrorLog...)
	return &out
}
