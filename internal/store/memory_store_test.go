package store

import (
	"context"
	"testing"

	"github.com/agentcore/nexus/pkg/models"
)

func TestMemoryStore_AppendAssignsSeq(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	e1, err := s.Append(ctx, "c1", models.Event{Type: models.EventTypeMessage, Message: &models.MessageEvent{Role: models.MessageRoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e1.Seq != 0 {
		t.Fatalf("expected seq 0, got %d", e1.Seq)
	}

	e2, err := s.Append(ctx, "c1", models.Event{Type: models.EventTypeMessage, Message: &models.MessageEvent{Role: models.MessageRoleAssistant, Content: "hello"}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e2.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", e2.Seq)
	}

	log, err := s.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 events, got %d", len(log))
	}
}

func TestMemoryStore_LoadMissingConversation(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Load(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_IsolatesConversations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Append(ctx, "a", models.Event{Type: models.EventTypeMessage, Message: &models.MessageEvent{Content: "a0"}})
	s.Append(ctx, "b", models.Event{Type: models.EventTypeMessage, Message: &models.MessageEvent{Content: "b0"}})

	logA, _ := s.Load(ctx, "a")
	logB, _ := s.Load(ctx, "b")
	if len(logA) != 1 || len(logB) != 1 {
		t.Fatalf("expected 1 event per conversation, got %d and %d", len(logA), len(logB))
	}
}
