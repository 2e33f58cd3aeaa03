package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/internal/vectorstore"
	"book-chatbot-backend/models"
	"book-chatbot-backend/services"
	"book-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type stubProvider struct{}

func (stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (stubProvider) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	return "stub answer", nil
}

func (stubProvider) GenerateStream(ctx context.Context, req ai.GenerateRequest, fn func(chunk string) error) (string, error) {
	if err := fn("stub answer"); err != nil {
		return "", err
	}
	return "stub answer", nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *vectorstore.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := vectorstore.NewMemoryStore()
	embeddings := services.NewEmbeddingService(stubProvider{}, services.EmbeddingOptions{})
	retriever := services.NewRetriever(embeddings, store, 5, 0.3)
	agent := services.NewAgent(retriever, stubProvider{}, 10, 1000, 0.7)
	sessions := services.NewMemorySessionStore()
	orchestrator := services.NewChatOrchestrator(sessions, agent)

	router := gin.New()
	SetupChatRoutes(router, orchestrator, 5*time.Second)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/chat", map[string]string{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body utils.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Detail == "" {
		t.Errorf("error body should carry a detail message")
	}
}

func TestChatUnknownSessionReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/chat", map[string]string{
		"message":    "hello",
		"session_id": "ghost",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestChatNoContentStillReturns200(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/chat", map[string]string{"message": "anything"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.AgentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HasRelevantContent {
		t.Errorf("empty index should yield no relevant content")
	}
	if resp.SessionID == "" {
		t.Errorf("a session should have been created")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	store.Upsert(context.Background(), vectorstore.Record{
		ID: "c1", Vector: []float32{1, 0}, Content: "indexed content",
		Metadata: map[string]string{"source_file": "ch1.md", "source_location": "Intro#0"},
	})

	w := doJSON(t, router, http.MethodPost, "/chat", map[string]string{"message": "question"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d", w.Code)
	}
	var resp models.AgentResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	w = doJSON(t, router, http.MethodGet, "/session/"+resp.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session read: %d", w.Code)
	}
	var session models.ChatSession
	json.Unmarshal(w.Body.Bytes(), &session)
	if len(session.History) != 2 {
		t.Errorf("expected 2 turns, got %d", len(session.History))
	}

	w = doJSON(t, router, http.MethodDelete, "/session/"+resp.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session clear: %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/session/"+resp.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cleared session must stay readable: %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &session)
	if len(session.History) != 0 {
		t.Errorf("history should be empty after clear")
	}
}

func TestSessionUnknownIDReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := doJSON(t, router, http.MethodGet, "/session/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("get: expected 404, got %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodDelete, "/session/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete: expected 404, got %d", w.Code)
	}
}

func dialChatSocket(t *testing.T, router *gin.Engine) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.StreamEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.StreamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return ev
}

func TestChatSocketFrameSequence(t *testing.T) {
	router, store := newTestRouter(t)
	store.Upsert(context.Background(), vectorstore.Record{
		ID: "c1", Vector: []float32{1, 0}, Content: "indexed content",
		Metadata: map[string]string{"source_file": "ch1.md", "source_location": "Intro#0"},
	})
	conn := dialChatSocket(t, router)

	if err := conn.WriteJSON(models.ChatRequest{Message: "question"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	start := readEvent(t, conn)
	if start.Type != models.EventResponseStart {
		t.Fatalf("expected %s first, got %s", models.EventResponseStart, start.Type)
	}
	if start.QueryID == "" {
		t.Fatalf("start frame missing query id")
	}
	if len(start.Sources) != 1 || start.Sources[0].SourceFile != "ch1.md" {
		t.Fatalf("start frame should carry the sources, got %+v", start.Sources)
	}

	chunk := readEvent(t, conn)
	if chunk.Type != models.EventResponseChunk || chunk.Content == "" {
		t.Fatalf("expected a content chunk, got %+v", chunk)
	}
	if chunk.QueryID != start.QueryID {
		t.Errorf("chunk query id %q does not match start %q", chunk.QueryID, start.QueryID)
	}

	end := readEvent(t, conn)
	if end.Type != models.EventResponseEnd {
		t.Fatalf("expected %s, got %s", models.EventResponseEnd, end.Type)
	}
	if end.QueryID != start.QueryID {
		t.Errorf("end query id %q does not match start %q", end.QueryID, start.QueryID)
	}

	// A second request on the same connection gets a fresh query id.
	if err := conn.WriteJSON(models.ChatRequest{Message: "question"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	next := readEvent(t, conn)
	if next.QueryID == start.QueryID {
		t.Errorf("query id must be per request")
	}
}

func TestChatSocketEmptyMessageSendsError(t *testing.T) {
	router, _ := newTestRouter(t)
	conn := dialChatSocket(t, router)

	if err := conn.WriteJSON(models.ChatRequest{Message: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != models.EventError {
		t.Fatalf("expected error frame, got %s", ev.Type)
	}
	if ev.Detail == "" || ev.QueryID == "" {
		t.Errorf("error frame should carry detail and query id, got %+v", ev)
	}
}

func TestAdminIngestRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	store := vectorstore.NewMemoryStore()
	embeddings := services.NewEmbeddingService(stubProvider{}, services.EmbeddingOptions{})
	chunker := services.NewChunker(4000, 200, 50)
	jobs := services.NewMemoryJobStore()
	pipeline := services.NewIngestionPipeline(chunker, embeddings, store, jobs, 96)
	SetupIngestRoutes(router, pipeline, jobs, nil, t.TempDir(), "secret")

	w := doJSON(t, router, http.MethodPost, "/admin/ingest", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/ingest/ghost", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/ingest/ghost", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job with valid token: expected 404, got %d", rec.Code)
	}
}
