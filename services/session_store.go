package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"book-chatbot-backend/models"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore holds per-session conversation history. Append is the only
// mutation; concurrent appends to the same session serialize so turns are
// never interleaved or lost. Append returns the user-turn count after the
// write, computed in the same atomic step, so callers get a strictly
// incrementing exchange number even under concurrency. Clear empties the
// history but keeps the session id valid.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Append(ctx context.Context, sessionID string, turns ...models.ConversationTurn) (int, error)
	Read(ctx context.Context, sessionID string) (*models.ChatSession, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemorySessionStore is the in-memory SessionStore. It serves tests and
// single-process deployments; the Mongo store takes over when durability is
// needed, with no caller changes.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.ChatSession)}
}

func (s *MemorySessionStore) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := time.Now().UTC()
	s.sessions[id] = &models.ChatSession{
		SessionID: id,
		CreatedAt: now,
		UpdatedAt: now,
		History:   []models.ConversationTurn{},
	}
	return id, nil
}

func (s *MemorySessionStore) Append(ctx context.Context, sessionID string, turns ...models.ConversationTurn) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	session.History = append(session.History, turns...)
	session.UpdatedAt = time.Now().UTC()
	return session.UserTurns(), nil
}

func (s *MemorySessionStore) Read(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	// Copy so callers never observe a concurrent append mid-read.
	out := *session
	out.History = make([]models.ConversationTurn, len(session.History))
	copy(out.History, session.History)
	return &out, nil
}

func (s *MemorySessionStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.History = []models.ConversationTurn{}
	session.UpdatedAt = time.Now().UTC()
	return nil
}
