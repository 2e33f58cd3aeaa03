package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"book-chatbot-backend/internal/ai"
	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/models"
)

// Agent states. Each call walks Idle -> Retrieving and then terminates in
// Responded, NoContentFound, or Failed.
const (
	StateIdle           = "idle"
	StateRetrieving     = "retrieving"
	StateGenerating     = "generating"
	StateResponded      = "responded"
	StateNoContentFound = "no_content_found"
	StateFailed         = "failed"
)

// Canned responses. The not-found text is fixed: when retrieval finds
// nothing relevant the agent must say so rather than invent an answer.
const (
	noContentResponse = "I don't have information about that in the book. " +
		"Try asking about a topic the indexed chapters cover."
	degradedResponse = "I'm having trouble answering right now. Please try again shortly."
)

const systemInstructions = `You are a reading assistant for a book about humanoid robotics.
Answer using ONLY the provided context excerpts. Cite the source of each claim
using the [source: file] tags given with the excerpts. If the context does not
contain enough information to answer, say so explicitly instead of guessing.`

// ProcessOptions tune one agent call. Nil pointer fields fall back to the
// configured defaults.
type ProcessOptions struct {
	SelectedText string
	Temperature  *float32
	MaxTokens    *int

	// RequireSources defaults to true: without relevant chunks the agent
	// refuses rather than answers. Setting it false permits an ungrounded
	// answer when retrieval comes up empty.
	RequireSources *bool

	// OnSources, when set, fires once retrieval completes and before any
	// generation, with the sources in descending relevance order.
	OnSources func(sources []models.SourceRef) error

	// OnChunk, when set, streams generation fragments as they arrive. The
	// full response is still assembled and returned.
	OnChunk func(chunk string) error
}

// Agent turns a query plus retrieved context plus history into a grounded
// answer. It owns retrieval for the call but never touches session state;
// persisting the result is the orchestrator's job.
type Agent struct {
	retriever     *Retriever
	provider      ai.Provider
	historyWindow int
	temperature   float32
	maxTokens     int
}

func NewAgent(retriever *Retriever, provider ai.Provider, historyWindow, maxTokens int, temperature float32) *Agent {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Agent{
		retriever:     retriever,
		provider:      provider,
		historyWindow: historyWindow,
		temperature:   temperature,
		maxTokens:     maxTokens,
	}
}

// Process runs one query through the state machine and always returns a
// well-formed response; failures populate Error and a user-safe message
// instead of propagating.
func (a *Agent) Process(ctx context.Context, query string, history []models.ConversationTurn, opts ProcessOptions) *models.AgentResponse {
	state := StateRetrieving

	retrieved, err := a.retriever.Retrieve(ctx, query, RetrieveOptions{SelectedText: opts.SelectedText})
	if err != nil {
		logger.Error("Retrieval failed", "state", state, "error", err)
		return a.failed(query, err)
	}

	refs := sourceRefs(retrieved)
	if opts.OnSources != nil {
		if err := opts.OnSources(refs); err != nil {
			return a.failed(query, err)
		}
	}

	requireSources := opts.RequireSources == nil || *opts.RequireSources
	if len(retrieved) == 0 && requireSources {
		return &models.AgentResponse{
			Query:              query,
			Response:           noContentResponse,
			Sources:            []models.SourceRef{},
			HasRelevantContent: false,
			Timestamp:          time.Now().UTC(),
		}
	}

	state = StateGenerating
	req := ai.GenerateRequest{
		System:      systemInstructions,
		Messages:    a.buildMessages(query, retrieved, history),
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}

	var answer string
	if opts.OnChunk != nil {
		answer, err = a.provider.GenerateStream(ctx, req, opts.OnChunk)
	} else {
		answer, err = a.provider.Generate(ctx, req)
	}
	if err != nil {
		logger.Error("Generation failed", "state", state, "error", err)
		return a.failed(query, fmt.Errorf("%w: %v", ai.ErrLLMProvider, err))
	}

	return &models.AgentResponse{
		Query:              query,
		Response:           strings.TrimSpace(answer),
		Sources:            refs,
		HasRelevantContent: len(retrieved) > 0,
		Timestamp:          time.Now().UTC(),
	}
}

func (a *Agent) failed(query string, err error) *models.AgentResponse {
	return &models.AgentResponse{
		Query:              query,
		Response:           degradedResponse,
		Sources:            []models.SourceRef{},
		HasRelevantContent: false,
		Timestamp:          time.Now().UTC(),
		Error:              err.Error(),
	}
}

// buildMessages assembles the bounded conversation window and the grounded
// user prompt. History truncates most-recent-first when over the window.
func (a *Agent) buildMessages(query string, retrieved []models.RetrievedChunk, history []models.ConversationTurn) []ai.Message {
	if len(history) > a.historyWindow {
		history = history[len(history)-a.historyWindow:]
	}

	messages := make([]ai.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, ai.Message{Role: turn.Role, Content: turn.Content})
	}

	var prompt strings.Builder
	if len(retrieved) > 0 {
		prompt.WriteString("Context excerpts from the book:\n\n")
		for i, chunk := range retrieved {
			fmt.Fprintf(&prompt, "[%d] [source: %s | %s]\n%s\n\n",
				i+1, chunk.SourceFile, chunk.SourceLocation, chunk.Text)
		}
	}
	prompt.WriteString("Question: ")
	prompt.WriteString(query)

	messages = append(messages, ai.Message{Role: models.RoleUser, Content: prompt.String()})
	return messages
}

// sourceRefs preserves the retriever's descending-relevance order.
func sourceRefs(retrieved []models.RetrievedChunk) []models.SourceRef {
	refs := make([]models.SourceRef, len(retrieved))
	for i, chunk := range retrieved {
		refs[i] = models.SourceRef{
			ID:             chunk.ID,
			Content:        chunk.Text,
			SourceFile:     chunk.SourceFile,
			SourceLocation: chunk.SourceLocation,
			RelevanceScore: chunk.Score,
		}
	}
	return refs
}
