package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"book-chatbot-backend/models"
)

func TestSessionRoundTrip(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	id, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	turn, err := store.Append(ctx, id,
		models.ConversationTurn{Role: models.RoleUser, Content: "hi", Timestamp: time.Now()},
		models.ConversationTurn{Role: models.RoleAssistant, Content: "hello", Timestamp: time.Now()},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if turn != 1 {
		t.Errorf("expected user-turn count 1 after first exchange, got %d", turn)
	}

	session, err := store.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(session.History) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(session.History))
	}
	if session.History[0].Role != models.RoleUser || session.History[1].Role != models.RoleAssistant {
		t.Errorf("turns out of order")
	}
	if session.UserTurns() != 1 {
		t.Errorf("expected 1 user turn, got %d", session.UserTurns())
	}
}

func TestSessionUnknownID(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if _, err := store.Read(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("read: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Append(ctx, "nope", models.ConversationTurn{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("append: expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Clear(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("clear: expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionClearKeepsIDValid(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	id, _ := store.Create(ctx)
	store.Append(ctx, id, models.ConversationTurn{Role: models.RoleUser, Content: "hi"})

	if err := store.Clear(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}

	session, err := store.Read(ctx, id)
	if err != nil {
		t.Fatalf("cleared session must stay readable: %v", err)
	}
	if len(session.History) != 0 {
		t.Errorf("history should be empty after clear, got %d turns", len(session.History))
	}

	// And still writable, with turn numbering restarted.
	turn, err := store.Append(ctx, id, models.ConversationTurn{Role: models.RoleUser, Content: "again"})
	if err != nil {
		t.Errorf("append after clear: %v", err)
	}
	if turn != 1 {
		t.Errorf("expected turn numbering to restart after clear, got %d", turn)
	}
}

func TestSessionConcurrentAppends(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	id, _ := store.Create(ctx)

	const n = 50
	turns := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turns[i], _ = store.Append(ctx, id,
				models.ConversationTurn{Role: models.RoleUser, Content: "q"},
				models.ConversationTurn{Role: models.RoleAssistant, Content: "a"},
			)
		}(i)
	}
	wg.Wait()

	// Each append computes its count atomically, so no two callers can
	// observe the same value.
	seen := make(map[int]bool, n)
	for _, turn := range turns {
		if turn < 1 || turn > n {
			t.Fatalf("turn count %d out of range 1..%d", turn, n)
		}
		if seen[turn] {
			t.Fatalf("turn count %d handed out twice", turn)
		}
		seen[turn] = true
	}

	session, err := store.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(session.History) != 2*n {
		t.Fatalf("expected %d turns, got %d", 2*n, len(session.History))
	}
	// Exchanges are appended atomically, so the sequence must alternate.
	for i := 0; i < len(session.History); i += 2 {
		if session.History[i].Role != models.RoleUser || session.History[i+1].Role != models.RoleAssistant {
			t.Fatalf("interleaved exchange at %d", i)
		}
	}
}
