package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/models"
	"book-chatbot-backend/services"
	"book-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The widget is embedded in the book site; CORS policy is enforced at
	// the HTTP layer, so the upgrade itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetupChatRoutes wires the public chat surface: one-shot chat, session
// inspection and reset, and the streaming WebSocket transport.
func SetupChatRoutes(router *gin.Engine, orchestrator *services.ChatOrchestrator, requestTimeout time.Duration) {
	router.POST("/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request: "+err.Error())
			return
		}

		ctx, cancel := contextWithTimeout(c, requestTimeout)
		defer cancel()

		resp, err := orchestrator.Handle(ctx, req)
		if err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				utils.RespondWithNotFound(c, "Session not found")
				return
			}
			logger.Error("Chat request failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to process chat request")
			return
		}

		// Degraded responses still return 200: the client gets a usable
		// answer body with the error field populated.
		c.JSON(http.StatusOK, resp)
	})

	router.GET("/session/:session_id", func(c *gin.Context) {
		ctx, cancel := contextWithTimeout(c, requestTimeout)
		defer cancel()

		session, err := orchestrator.Session(ctx, c.Param("session_id"))
		if err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				utils.RespondWithNotFound(c, "Session not found")
				return
			}
			logger.Error("Session read failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to read session")
			return
		}
		c.JSON(http.StatusOK, session)
	})

	router.DELETE("/session/:session_id", func(c *gin.Context) {
		ctx, cancel := contextWithTimeout(c, requestTimeout)
		defer cancel()

		sessionID := c.Param("session_id")
		if err := orchestrator.ClearSession(ctx, sessionID); err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				utils.RespondWithNotFound(c, "Session not found")
				return
			}
			logger.Error("Session clear failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to clear session")
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cleared": true})
	})

	router.GET("/ws/chat", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("WebSocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		serveChatSocket(c, conn, orchestrator, requestTimeout)
	})
}

// serveChatSocket runs the streaming protocol. Each request gets its own
// query id and the frame sequence response_start (with the sources, sent as
// soon as retrieval completes), response_chunk per generated fragment, then
// response_end. A failure replaces the remainder of the sequence with an
// error frame and keeps the connection open for the next request.
func serveChatSocket(c *gin.Context, conn *websocket.Conn, orchestrator *services.ChatOrchestrator, requestTimeout time.Duration) {
	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket closed unexpectedly", "error", err)
			}
			return
		}

		queryID := uuid.NewString()
		if req.Message == "" {
			conn.WriteJSON(models.StreamEvent{Type: models.EventError, QueryID: queryID, Detail: "Message is required"})
			continue
		}

		ctx, cancel := contextWithTimeout(c, requestTimeout)

		streamed := false
		onSources := func(sources []models.SourceRef) error {
			return conn.WriteJSON(models.StreamEvent{
				Type:    models.EventResponseStart,
				QueryID: queryID,
				Sources: sources,
			})
		}
		onChunk := func(chunk string) error {
			streamed = true
			return conn.WriteJSON(models.StreamEvent{
				Type:    models.EventResponseChunk,
				QueryID: queryID,
				Content: chunk,
			})
		}

		resp, err := orchestrator.HandleStream(ctx, req, onSources, onChunk)
		cancel()
		if err != nil {
			detail := "Failed to process chat request"
			if errors.Is(err, services.ErrSessionNotFound) {
				detail = "Session not found"
			}
			conn.WriteJSON(models.StreamEvent{Type: models.EventError, QueryID: queryID, Detail: detail})
			continue
		}
		if resp.Error != "" {
			conn.WriteJSON(models.StreamEvent{Type: models.EventError, QueryID: queryID, Detail: resp.Response})
			continue
		}

		// The no-content path never generates, so its answer arrives as a
		// single chunk before the sequence closes.
		if !streamed {
			if err := conn.WriteJSON(models.StreamEvent{Type: models.EventResponseChunk, QueryID: queryID, Content: resp.Response}); err != nil {
				return
			}
		}
		if err := conn.WriteJSON(models.StreamEvent{Type: models.EventResponseEnd, QueryID: queryID}); err != nil {
			return
		}
	}
}

func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}
