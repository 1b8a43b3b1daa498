package memory

import (
	"context"
	"sync"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// ActionLogStore is an in-memory implementation of storage.ActionLogStore.
type ActionLogStore struct {
	mu     sync.RWMutex
	data   []*domain.AgentAction // insertion order
	nextID int64
}

// NewActionLogStore creates a new in-memory action log store.
func NewActionLogStore() *ActionLogStore {
	return &ActionLogStore{nextID: 1}
}

var _ storage.ActionLogStore = (*ActionLogStore)(nil)

// Append stores a copy of a and assigns its ID.
func (s *ActionLogStore) Append(_ context.Context, a *domain.AgentAction) (int64, error) {
	if a == nil || a.AgentName == "" || a.ActionType == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := copyAction(a)
	entry.ID = s.nextID
	s.nextID++
	s.data = append(s.data, entry)
	return entry.ID, nil
}

// Recent returns up to limit entries, newest first.
func (s *ActionLogStore) Recent(_ context.Context, limit int) ([]*domain.AgentAction, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AgentAction, 0, min(limit, len(s.data)))
	for i := len(s.data) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, copyAction(s.data[i]))
	}
	return result, nil
}

// Len returns the number of stored entries.
func (s *ActionLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// ByType returns every entry with the given action type, oldest first.
func (s *ActionLogStore) ByType(actionType string) []*domain.AgentAction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AgentAction
	for _, a := range s.data {
		if a.ActionType == actionType {
			result = append(result, copyAction(a))
		}
	}
	return result
}

func copyAction(a *domain.AgentAction) *domain.AgentAction {
	c := *a
	if a.Details != nil {
		c.Details = make(map[string]any, len(a.Details))
		for k, v := range a.Details {
			c.Details[k] = v
		}
	}
	return &c
}
