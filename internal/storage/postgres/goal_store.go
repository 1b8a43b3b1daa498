package postgres

import (
	"context"
	"fmt"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// GoalStore implements storage.GoalStore using PostgreSQL.
type GoalStore struct {
	pool *Pool
}

// NewGoalStore creates a new GoalStore.
func NewGoalStore(pool *Pool) *GoalStore {
	return &GoalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GoalStore = (*GoalStore)(nil)

// Get retrieves a goal by key. Returns ErrNotFound if not exists.
func (s *GoalStore) Get(ctx context.Context, goalKey string) (*domain.Goal, error) {
	var g domain.Goal
	err := s.pool.QueryRow(ctx, `
		SELECT goal_key, target_balance, current_balance, target_apy,
		       days_to_goal, status, created_at, updated_at
		FROM goals
		WHERE goal_key = $1
	`, goalKey).Scan(
		&g.GoalKey, &g.TargetBalance, &g.CurrentBalance, &g.TargetAPY,
		&g.DaysToGoal, &g.Status, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return &g, nil
}

// Upsert updates the goal row with the same key or inserts it.
// DOUBLE PRECISION accepts +Infinity for unreachable goals.
func (s *GoalStore) Upsert(ctx context.Context, g *domain.Goal) error {
	if err := storage.ValidateGoal(g); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO goals (
			goal_key, target_balance, current_balance, target_apy,
			days_to_goal, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (goal_key) DO UPDATE
		SET target_balance = EXCLUDED.target_balance,
		    current_balance = EXCLUDED.current_balance,
		    target_apy = EXCLUDED.target_apy,
		    days_to_goal = EXCLUDED.days_to_goal,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
	`, g.GoalKey, g.TargetBalance, g.CurrentBalance, g.TargetAPY,
		g.DaysToGoal, string(g.Status), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}
	return nil
}
