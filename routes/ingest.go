package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/internal/queue"
	"book-chatbot-backend/middleware"
	"book-chatbot-backend/services"
	"book-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// SetupIngestRoutes wires the admin ingestion surface. Triggering a run
// creates a job record and enqueues the work; the worker process picks it up,
// so the trigger returns immediately and clients poll the status endpoint.
func SetupIngestRoutes(router *gin.Engine, pipeline *services.IngestionPipeline, jobs services.JobStore, asynqClient *asynq.Client, contentDir, adminToken string) {
	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuth(adminToken))

	admin.POST("/ingest", func(c *gin.Context) {
		force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

		ctx, cancel := contextWithTimeout(c, 10*time.Second)
		defer cancel()

		active, err := jobs.ActiveForSource(ctx, contentDir)
		if err != nil {
			logger.Error("Active job lookup failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to check ingestion state")
			return
		}
		if active != nil {
			utils.RespondWithConflict(c, "Ingestion already running, job "+active.ID)
			return
		}

		filesCount, err := pipeline.CountFiles(contentDir)
		if err != nil {
			logger.Error("Content directory scan failed", "dir", contentDir, "error", err)
			utils.RespondWithInternalError(c, "Failed to scan content directory")
			return
		}

		job, err := jobs.Create(ctx, contentDir, filesCount)
		if err != nil {
			logger.Error("Job creation failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to create ingestion job")
			return
		}

		task, err := queue.NewIngestTask(job.ID, contentDir, force)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build ingestion task")
			return
		}
		if _, err := asynqClient.EnqueueContext(ctx, task); err != nil {
			logger.Error("Task enqueue failed", "job_id", job.ID, "error", err)
			utils.RespondWithInternalError(c, "Failed to enqueue ingestion task")
			return
		}

		logger.Info("Ingestion enqueued", "job_id", job.ID, "files", filesCount, "force", force)
		c.JSON(http.StatusAccepted, gin.H{
			"task_id":     job.ID,
			"status":      job.Status,
			"files_count": filesCount,
		})
	})

	admin.GET("/ingest/:task_id", func(c *gin.Context) {
		ctx, cancel := contextWithTimeout(c, 10*time.Second)
		defer cancel()

		job, err := jobs.Get(ctx, c.Param("task_id"))
		if err != nil {
			if errors.Is(err, services.ErrJobNotFound) {
				utils.RespondWithNotFound(c, "Ingestion job not found")
				return
			}
			logger.Error("Job lookup failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to read ingestion job")
			return
		}
		c.JSON(http.StatusOK, job)
	})
}
