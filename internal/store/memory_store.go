package store

import (
	"context"
	"sync"

	"github.com/agentcore/nexus/pkg/models"
)

// MemoryStore is an in-process EventStore backed by a mutex-guarded map
// of slices. It is the default store for tests and single-process runs;
// nothing is persisted across restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	logs  map[string][]models.Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]models.Event)}
}

func (s *MemoryStore) Append(_ context.Context, conversationID string, ev models.Event) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[conversationID]
	ev.ConversationID = conversationID
	ev.Seq = len(log)
	log = append(log, ev)
	s.logs[conversationID] = log
	return ev, nil
}

func (s *MemoryStore) Load(_ context.Context, conversationID string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Event, len(log))
	copy(out, log)
	return out, nil
}

func (s *MemoryStore) View(ctx context.Context, conversationID string) (models.View, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return models.View{}, err
	}
	return models.ViewForLLM(log), nil
}

func (s *MemoryStore) Close() error { return nil }
