package storage

import (
	"context"

	"solana-yield-agent/internal/domain"
)

// Default and maximum row counts for Recent queries.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// ActionLogStore provides access to agent_actions storage (insert-only).
type ActionLogStore interface {
	// Append inserts one audit entry and returns its store-assigned ID.
	Append(ctx context.Context, a *domain.AgentAction) (int64, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.AgentAction, error)
}

// YieldReportStore provides access to yield_reports storage (insert-only).
type YieldReportStore interface {
	// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate report_id.
	InsertBulk(ctx context.Context, reports []*domain.YieldReport) error

	// Recent returns up to limit reports, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.YieldReport, error)
}

// GoalStore provides access to the goals table (one mutable row per goal key).
type GoalStore interface {
	// Get retrieves a goal by key. Returns ErrNotFound if not exists.
	Get(ctx context.Context, goalKey string) (*domain.Goal, error)

	// Upsert updates the goal with the same key or inserts it.
	// CreatedAt of an existing row is preserved.
	Upsert(ctx context.Context, g *domain.Goal) error
}

// Stores bundles the three logical stores of one backend.
type Stores struct {
	Actions ActionLogStore
	Yields  YieldReportStore
	Goals   GoalStore
}

// ClampLimit maps a requested limit onto [1, MaxRecentLimit], using the default for limit <= 0.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

// ValidateGoal checks the invariants a goal row must satisfy before it is written.
func ValidateGoal(g *domain.Goal) error {
	if g == nil || g.GoalKey == "" || g.TargetBalance <= 0 || g.CurrentBalance < 0 {
		return ErrInvalidInput
	}
	switch g.Status {
	case domain.GoalActive, domain.GoalAchieved, domain.GoalPaused:
		return nil
	}
	return ErrInvalidInput
}

// ValidateYieldReport checks a report before it is written.
func ValidateYieldReport(r *domain.YieldReport) error {
	if r == nil || r.ReportID == "" || r.Protocol == "" {
		return ErrInvalidInput
	}
	return nil
}
