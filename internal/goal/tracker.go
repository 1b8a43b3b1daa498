package goal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// DefaultTarget is the target balance of a freshly created goal, in SOL.
const DefaultTarget = 1.0

// ErrInvalidTarget is returned for non-positive targets.
var ErrInvalidTarget = errors.New("target balance must be positive")

// Tracker owns the lifecycle of the singleton goal record.
// Callers serialise access; the orchestrator never runs two ticks at once.
type Tracker struct {
	store  storage.GoalStore
	audit  audit.Logger
	logger *log.Logger
	key    string
	target float64
	now    func() time.Time
}

// Options configures a Tracker.
type Options struct {
	Store  storage.GoalStore
	Audit  audit.Logger
	Logger *log.Logger
	// GoalKey identifies the singleton record. Defaults to domain.PrimaryGoalKey.
	GoalKey string
	// Target is used when no goal exists yet. Defaults to DefaultTarget.
	Target float64
	Now    func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		store:  opts.Store,
		audit:  opts.Audit,
		logger: opts.Logger,
		key:    opts.GoalKey,
		target: opts.Target,
		now:    opts.Now,
	}
	if t.audit == nil {
		t.audit = audit.Noop{}
	}
	if t.logger == nil {
		t.logger = log.New(log.Writer(), "[goal] ", log.LstdFlags)
	}
	if t.key == "" {
		t.key = domain.PrimaryGoalKey
	}
	if t.target <= 0 {
		t.target = DefaultTarget
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// UpdateGoal recomputes the goal from the observed balance and APY estimate and
// upserts it. An achieved goal stays achieved: observations below target after
// that point are audited but do not rewrite the record.
func (t *Tracker) UpdateGoal(ctx context.Context, currentBalance, currentAPY float64) (*domain.Goal, error) {
	if currentBalance < 0 {
		return nil, fmt.Errorf("negative balance %f", currentBalance)
	}

	now := t.now().UTC()
	g, err := t.load(ctx, now)
	if err != nil {
		return nil, err
	}

	if g.Status == domain.GoalAchieved && currentBalance < g.TargetBalance {
		t.audit.Log(domain.AgentGoal, domain.ActionTypeGoalUpdate, map[string]any{
			"goal_key":          g.GoalKey,
			"status":            string(g.Status),
			"observed_balance":  currentBalance,
			"target_balance":    g.TargetBalance,
			"below_target":      true,
			"record_unmodified": true,
		})
		return g, nil
	}

	g.CurrentBalance = currentBalance
	g.TargetAPY = currentAPY
	g.DaysToGoal = CalculateDaysToGoal(currentBalance, g.TargetBalance, currentAPY)
	g.Status = domain.GoalActive
	if currentBalance >= g.TargetBalance {
		g.Status = domain.GoalAchieved
	}
	g.UpdatedAt = now

	if err := t.store.Upsert(ctx, g); err != nil {
		return nil, fmt.Errorf("upsert goal: %w", err)
	}

	t.audit.Log(domain.AgentGoal, domain.ActionTypeGoalUpdate, map[string]any{
		"goal_key":        g.GoalKey,
		"status":          string(g.Status),
		"current_balance": g.CurrentBalance,
		"target_balance":  g.TargetBalance,
		"target_apy":      g.TargetAPY,
		"days_to_goal":    domain.FiniteOrNil(g.DaysToGoal),
	})
	return g, nil
}

// SetTarget raises the goal target. A higher target starts a new goal lifetime
// in which status is recomputed; a lower or equal target is ignored.
// It reports whether the target changed.
func (t *Tracker) SetTarget(ctx context.Context, target float64) (bool, error) {
	if target <= 0 {
		return false, ErrInvalidTarget
	}

	now := t.now().UTC()
	g, err := t.load(ctx, now)
	if err != nil {
		return false, err
	}
	if target <= g.TargetBalance {
		return false, nil
	}

	g.TargetBalance = target
	g.DaysToGoal = CalculateDaysToGoal(g.CurrentBalance, target, g.TargetAPY)
	g.Status = domain.GoalActive
	if g.CurrentBalance >= target {
		g.Status = domain.GoalAchieved
	}
	g.UpdatedAt = now

	if err := t.store.Upsert(ctx, g); err != nil {
		return false, fmt.Errorf("upsert goal: %w", err)
	}
	t.target = target

	t.audit.Log(domain.AgentGoal, domain.ActionTypeGoalUpdate, map[string]any{
		"goal_key":       g.GoalKey,
		"status":         string(g.Status),
		"target_balance": target,
		"new_lifetime":   true,
	})
	return true, nil
}

// GetActiveGoal returns the goal if its status is active, or nil.
func (t *Tracker) GetActiveGoal(ctx context.Context) (*domain.Goal, error) {
	g, err := t.store.Get(ctx, t.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if g.Status != domain.GoalActive {
		return nil, nil
	}
	return g, nil
}

// Goal returns the current goal record regardless of status.
func (t *Tracker) Goal(ctx context.Context) (*domain.Goal, error) {
	return t.store.Get(ctx, t.key)
}

// LogProgress writes a GOAL_PROGRESS audit entry.
func (t *Tracker) LogProgress(currentBalance, earnedToday, currentAPY float64) {
	projection := CalculateCompoundEarnings(currentBalance, currentAPY, 1)
	t.audit.Log(domain.AgentGoal, domain.ActionTypeGoalProgress, map[string]any{
		"current_balance":  currentBalance,
		"earned_today":     earnedToday,
		"current_apy":      currentAPY,
		"projected_daily":  projection.Earnings,
		"projected_yearly": CalculateCompoundEarnings(currentBalance, currentAPY, DaysPerYear).Earnings,
		"target_balance":   t.target,
		"days_to_goal":     domain.FiniteOrNil(CalculateDaysToGoal(currentBalance, t.target, currentAPY)),
		"progress_pct":     progressPct(currentBalance, t.target),
	})
}

// load returns the stored goal or a new active goal with the configured target.
func (t *Tracker) load(ctx context.Context, now time.Time) (*domain.Goal, error) {
	g, err := t.store.Get(ctx, t.key)
	if err == nil {
		t.target = g.TargetBalance
		return g, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return &domain.Goal{
		GoalKey:       t.key,
		TargetBalance: t.target,
		Status:        domain.GoalActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func progressPct(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	p := current / target * 100
	if p > 100 {
		return 100
	}
	return p
}
