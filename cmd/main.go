package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/internal/config"
	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/internal/telemetry"
	"book-chatbot-backend/internal/vectorstore"
	"book-chatbot-backend/middleware"
	"book-chatbot-backend/routes"
	"book-chatbot-backend/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("book-chatbot-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

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

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	store, err := vectorstore.NewChromemStore(cfg.VectorDBPath, cfg.Collection)
	if err != nil {
		log.Fatal("Failed to open vector store:", err)
	}

	ctx := context.Background()
	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, ai.GeminiOptions{
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
	retriever := services.NewRetriever(embeddings, store, cfg.TopK, cfg.MinRelevanceScore)
	agent := services.NewAgent(retriever, gemini, cfg.HistoryWindow, cfg.MaxTokens, cfg.Temperature)
	sessions := services.NewMongoSessionStore(db)
	orchestrator := services.NewChatOrchestrator(sessions, agent)

	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.MinChunkSize)
	jobs := services.NewMongoJobStore(db)
	pipeline := services.NewIngestionPipeline(chunker, embeddings, store, jobs, cfg.EmbeddingBatchSize)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"indexed_chunks": store.Count(),
			"timestamp":      time.Now().UTC(),
		})
	})

	requestTimeout := time.Duration(cfg.RequestTimeout) * time.Second
	routes.SetupChatRoutes(router, orchestrator, requestTimeout)
	routes.SetupIngestRoutes(router, pipeline, jobs, asynqClient, cfg.ContentDir, cfg.AdminToken)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
