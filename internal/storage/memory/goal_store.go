package memory

import (
	"context"
	"sync"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// GoalStore is an in-memory implementation of storage.GoalStore.
type GoalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Goal // keyed by goal_key
}

// NewGoalStore creates a new in-memory goal store.
func NewGoalStore() *GoalStore {
	return &GoalStore{data: make(map[string]*domain.Goal)}
}

var _ storage.GoalStore = (*GoalStore)(nil)

// Get retrieves a goal by key.
func (s *GoalStore) Get(_ context.Context, goalKey string) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.data[goalKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *g
	return &c, nil
}

// Upsert updates or inserts the goal, keeping the original CreatedAt.
func (s *GoalStore) Upsert(_ context.Context, g *domain.Goal) error {
	if err := storage.ValidateGoal(g); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *g
	if existing, ok := s.data[g.GoalKey]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	s.data[g.GoalKey] = &c
	return nil
}
