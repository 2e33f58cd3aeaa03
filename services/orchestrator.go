package services

import (
	"context"
	"time"

	"book-chatbot-backend/internal/logger"
	"book-chatbot-backend/models"
)

// ChatOrchestrator ties session state to the agent: resolve or create the
// session, hand history to the agent, persist the exchange, and return the
// response stamped with its session id and turn number.
type ChatOrchestrator struct {
	sessions SessionStore
	agent    *Agent
}

func NewChatOrchestrator(sessions SessionStore, agent *Agent) *ChatOrchestrator {
	return &ChatOrchestrator{sessions: sessions, agent: agent}
}

// Handle processes one chat request. A missing session id creates a new
// session; an unknown one returns ErrSessionNotFound. Failed exchanges are
// returned to the client but never persisted, so a degraded provider cannot
// corrupt history.
func (o *ChatOrchestrator) Handle(ctx context.Context, req models.ChatRequest) (*models.AgentResponse, error) {
	return o.handle(ctx, req, ProcessOptions{
		SelectedText:   req.SelectedText,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		RequireSources: req.RequireSources,
	})
}

// HandleStream is Handle with incremental delivery: onSources fires once
// retrieval completes (before any generation), onChunk receives response
// fragments as they arrive, and the full response is persisted only after
// the last fragment.
func (o *ChatOrchestrator) HandleStream(ctx context.Context, req models.ChatRequest, onSources func(sources []models.SourceRef) error, onChunk func(chunk string) error) (*models.AgentResponse, error) {
	return o.handle(ctx, req, ProcessOptions{
		SelectedText:   req.SelectedText,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		RequireSources: req.RequireSources,
		OnSources:      onSources,
		OnChunk:        onChunk,
	})
}

func (o *ChatOrchestrator) handle(ctx context.Context, req models.ChatRequest, opts ProcessOptions) (*models.AgentResponse, error) {
	session, err := o.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	resp := o.agent.Process(ctx, req.Message, session.History, opts)
	resp.SessionID = session.SessionID

	if resp.Error == "" {
		// The store computes the turn number in the same atomic step as
		// the append, so concurrent messages in one session never share a
		// number.
		turn, err := o.persist(ctx, session.SessionID, req.Message, resp)
		if err != nil {
			logger.Error("Failed to persist exchange", "session_id", session.SessionID, "error", err)
			resp.ConversationTurn = session.UserTurns() + 1
		} else {
			resp.ConversationTurn = turn
		}
	} else {
		resp.ConversationTurn = session.UserTurns() + 1
	}
	return resp, nil
}

// Session returns a session's full history.
func (o *ChatOrchestrator) Session(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	return o.sessions.Read(ctx, sessionID)
}

// ClearSession empties a session's history; the id stays usable.
func (o *ChatOrchestrator) ClearSession(ctx context.Context, sessionID string) error {
	return o.sessions.Clear(ctx, sessionID)
}

func (o *ChatOrchestrator) resolveSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		id, err := o.sessions.Create(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = id
	}
	return o.sessions.Read(ctx, sessionID)
}

// persist appends the user and assistant turns in one call so concurrent
// requests against the same session never interleave a half-exchange, and
// returns the post-append user-turn count.
func (o *ChatOrchestrator) persist(ctx context.Context, sessionID, query string, resp *models.AgentResponse) (int, error) {
	sources := make([]string, len(resp.Sources))
	for i, src := range resp.Sources {
		sources[i] = src.ID
	}
	return o.sessions.Append(ctx, sessionID,
		models.ConversationTurn{
			Role:      models.RoleUser,
			Content:   query,
			Timestamp: resp.Timestamp,
		},
		models.ConversationTurn{
			Role:      models.RoleAssistant,
			Content:   resp.Response,
			Timestamp: time.Now().UTC(),
			Sources:   sources,
		},
	)
}
