package postgres

import (
	"context"
	"fmt"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// ActionLogStore implements storage.ActionLogStore using PostgreSQL.
type ActionLogStore struct {
	pool *Pool
}

// NewActionLogStore creates a new ActionLogStore.
func NewActionLogStore(pool *Pool) *ActionLogStore {
	return &ActionLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionLogStore = (*ActionLogStore)(nil)

// Append inserts one audit entry. details is stored as JSONB.
func (s *ActionLogStore) Append(ctx context.Context, a *domain.AgentAction) (int64, error) {
	if a == nil || a.AgentName == "" || a.ActionType == "" {
		return 0, storage.ErrInvalidInput
	}

	details := a.Details
	if details == nil {
		details = map[string]any{}
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_actions (agent_name, action_type, details, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, a.AgentName, a.ActionType, details, a.Timestamp).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert agent action: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (s *ActionLogStore) Recent(ctx context.Context, limit int) ([]*domain.AgentAction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_name, action_type, details, timestamp
		FROM agent_actions
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query agent actions: %w", err)
	}
	defer rows.Close()

	var result []*domain.AgentAction
	for rows.Next() {
		var a domain.AgentAction
		if err := rows.Scan(&a.ID, &a.AgentName, &a.ActionType, &a.Details, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan agent action: %w", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}
