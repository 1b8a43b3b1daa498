package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// ActionLogStore implements storage.ActionLogStore on SQLite.
type ActionLogStore struct {
	db *DB
}

// NewActionLogStore creates a new ActionLogStore.
func NewActionLogStore(db *DB) *ActionLogStore {
	return &ActionLogStore{db: db}
}

var _ storage.ActionLogStore = (*ActionLogStore)(nil)

// Append inserts one audit entry; details are stored as JSON text.
func (s *ActionLogStore) Append(ctx context.Context, a *domain.AgentAction) (int64, error) {
	if a == nil || a.AgentName == "" || a.ActionType == "" {
		return 0, storage.ErrInvalidInput
	}

	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("marshal details: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_actions (agent_name, action_type, details, timestamp)
		VALUES (?, ?, ?, ?)
	`, a.AgentName, a.ActionType, string(raw), a.Timestamp.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert agent action: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (s *ActionLogStore) Recent(ctx context.Context, limit int) ([]*domain.AgentAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_name, action_type, details, timestamp
		FROM agent_actions
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query agent actions: %w", err)
	}
	defer rows.Close()

	var result []*domain.AgentAction
	for rows.Next() {
		var a domain.AgentAction
		var details string
		var ts int64
		if err := rows.Scan(&a.ID, &a.AgentName, &a.ActionType, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan agent action: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details of action %d: %w", a.ID, err)
		}
		a.Timestamp = time.UnixMilli(ts).UTC()
		result = append(result, &a)
	}
	return result, rows.Err()
}

// YieldReportStore implements storage.YieldReportStore on SQLite.
type YieldReportStore struct {
	db *DB
}

// NewYieldReportStore creates a new YieldReportStore.
func NewYieldReportStore(db *DB) *YieldReportStore {
	return &YieldReportStore{db: db}
}

var _ storage.YieldReportStore = (*YieldReportStore)(nil)

// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
func (s *YieldReportStore) InsertBulk(ctx context.Context, reports []*domain.YieldReport) error {
	if len(reports) == 0 {
		return nil
	}
	for _, r := range reports {
		if err := storage.ValidateYieldReport(r); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reports {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO yield_reports (
				report_id, tick_id, protocol, name, type,
				apy, tvl, risk, chain, reported_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ReportID, r.TickID, r.Protocol, r.Name, r.Type,
			r.APY, r.TVL, r.Risk, r.Chain, r.ReportedAt.UnixMilli())
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert yield report in bulk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *YieldReportStore) Recent(ctx context.Context, limit int) ([]*domain.YieldReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, tick_id, protocol, name, type,
		       apy, tvl, risk, chain, reported_at
		FROM yield_reports
		ORDER BY reported_at DESC, rowid DESC
		LIMIT ?
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query yield reports: %w", err)
	}
	defer rows.Close()

	var result []*domain.YieldReport
	for rows.Next() {
		var r domain.YieldReport
		var ts int64
		err := rows.Scan(
			&r.ReportID, &r.TickID, &r.Protocol, &r.Name, &r.Type,
			&r.APY, &r.TVL, &r.Risk, &r.Chain, &ts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan yield report: %w", err)
		}
		r.ReportedAt = time.UnixMilli(ts).UTC()
		result = append(result, &r)
	}
	return result, rows.Err()
}

// GoalStore implements storage.GoalStore on SQLite.
type GoalStore struct {
	db *DB
}

// NewGoalStore creates a new GoalStore.
func NewGoalStore(db *DB) *GoalStore {
	return &GoalStore{db: db}
}

var _ storage.GoalStore = (*GoalStore)(nil)

// Get retrieves a goal by key. A NULL days_to_goal reads back as +Inf.
func (s *GoalStore) Get(ctx context.Context, goalKey string) (*domain.Goal, error) {
	var g domain.Goal
	var days sql.NullFloat64
	var status string
	var created, updated int64

	err := s.db.QueryRowContext(ctx, `
		SELECT goal_key, target_balance, current_balance, target_apy,
		       days_to_goal, status, created_at, updated_at
		FROM goals
		WHERE goal_key = ?
	`, goalKey).Scan(
		&g.GoalKey, &g.TargetBalance, &g.CurrentBalance, &g.TargetAPY,
		&days, &status, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get goal: %w", err)
	}

	g.DaysToGoal = math.Inf(1)
	if days.Valid {
		g.DaysToGoal = days.Float64
	}
	g.Status = domain.GoalStatus(status)
	g.CreatedAt = time.UnixMilli(created).UTC()
	g.UpdatedAt = time.UnixMilli(updated).UTC()
	return &g, nil
}

// Upsert updates the goal row with the same key or inserts it.
func (s *GoalStore) Upsert(ctx context.Context, g *domain.Goal) error {
	if err := storage.ValidateGoal(g); err != nil {
		return err
	}

	var days sql.NullFloat64
	if !math.IsInf(g.DaysToGoal, 0) && !math.IsNaN(g.DaysToGoal) {
		days = sql.NullFloat64{Float64: g.DaysToGoal, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (
			goal_key, target_balance, current_balance, target_apy,
			days_to_goal, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (goal_key) DO UPDATE
		SET target_balance = excluded.target_balance,
		    current_balance = excluded.current_balance,
		    target_apy = excluded.target_apy,
		    days_to_goal = excluded.days_to_goal,
		    status = excluded.status,
		    updated_at = excluded.updated_at
	`, g.GoalKey, g.TargetBalance, g.CurrentBalance, g.TargetAPY,
		days, string(g.Status), g.CreatedAt.UnixMilli(), g.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}
	return nil
}

// NewStores returns the SQLite-backed stores sharing one database.
func NewStores(db *DB) storage.Stores {
	return storage.Stores{
		Actions: NewActionLogStore(db),
		Yields:  NewYieldReportStore(db),
		Goals:   NewGoalStore(db),
	}
}
