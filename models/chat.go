package models

import "time"

// ChatRequest is the body of POST /chat. SelectedText carries an optional
// user highlight used to scope retrieval toward its source section.
type ChatRequest struct {
	Message        string   `json:"message" binding:"required,min=1,max=10000"`
	SessionID      string   `json:"session_id,omitempty"`
	SelectedText   string   `json:"selected_text,omitempty"`
	RequireSources *bool    `json:"require_sources,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty" binding:"omitempty,min=0,max=1"`
	MaxTokens      *int     `json:"max_tokens,omitempty" binding:"omitempty,min=1"`
}

// SourceRef is one cited chunk in a chat response, ordered by descending
// relevance as received from the retriever.
type SourceRef struct {
	ID             string  `json:"id"`
	Content        string  `json:"content"`
	SourceFile     string  `json:"source_file"`
	SourceLocation string  `json:"source_location"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AgentResponse is the result of one query against a session. It is produced
// by the conversation agent, persisted into the session history by the
// orchestrator, and returned to the client unchanged.
type AgentResponse struct {
	SessionID          string      `json:"session_id"`
	Query              string      `json:"query"`
	Response           string      `json:"response"`
	Sources            []SourceRef `json:"sources"`
	ConversationTurn   int         `json:"conversation_turn"`
	HasRelevantContent bool        `json:"has_relevant_content"`
	Timestamp          time.Time   `json:"timestamp"`
	Error              string      `json:"error,omitempty"`
}

// Streaming event types delivered over the WebSocket chat transport, in
// order: response_start, one or more response_chunk, response_end. An error
// event replaces the remainder of the sequence.
const (
	EventResponseStart = "response_start"
	EventResponseChunk = "response_chunk"
	EventResponseEnd   = "response_end"
	EventError         = "error"
)

// StreamEvent is one frame of the streaming chat protocol.
type StreamEvent struct {
	Type    string      `json:"type"`
	QueryID string      `json:"query_id,omitempty"`
	Content string      `json:"content,omitempty"`
	Sources []SourceRef `json:"sources,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}
