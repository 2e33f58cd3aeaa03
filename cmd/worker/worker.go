package main

import (
	"context"
	"log"
	"time"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/internal/config"
	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/internal/queue"
	"book-chatbot-backend/internal/vectorstore"
	"book-chatbot-backend/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	store, err := vectorstore.NewChromemStore(cfg.VectorDBPath, cfg.Collection)
	if err != nil {
		log.Fatal("Failed to open vector store:", err)
	}

	gemini, err := ai.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, ai.GeminiOptions{
		Model:             cfg.GeminiModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		RequestsPerWindow: cfg.RateLimitPerWindow,
		WindowSeconds:     cfg.RateLimitWindowSecs,
	})
	if err != nil {
		log.Fatal("Failed to create Gemini client:", err)
	}
	defer gemini.Close()

	embeddings := services.NewEmbeddingService(gemini, services.EmbeddingOptions{
		Model:         cfg.EmbeddingModel,
		BatchSize:     cfg.EmbeddingBatchSize,
		MaxChars:      cfg.MaxEmbeddingChars,
		Truncate:      cfg.TruncateOversized,
		RetryAttempts: cfg.RetryAttempts,
	})
	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize)
	jobs := services.NewMongoJobStore(db)
	pipeline := services.NewIngestionPipeline(chunker, embeddings, store, jobs, cfg.EmbeddingBatchSize)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			// Ingestion runs are long and serialize on the pipeline; one
			// worker slot is enough, the rest absorb retries.
			Concurrency: 2,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(pipeline)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestContent, processor.ProcessIngest)

	logger.Info("Starting worker", "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
