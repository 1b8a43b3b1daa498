package domain

import (
	"math"
	"time"
)

// GoalStatus is the lifecycle state of a savings goal.
type GoalStatus string

const (
	GoalActive   GoalStatus = "active"
	GoalAchieved GoalStatus = "achieved"
	GoalPaused   GoalStatus = "paused"
)

// PrimaryGoalKey is the stable identity of the singleton goal record.
const PrimaryGoalKey = "primary"

// Goal tracks progress toward a target balance.
// Corresponds to the goals table (one mutable row per goal key).
type Goal struct {
	GoalKey        string     `json:"goal_key"`
	TargetBalance  float64    `json:"target_balance"` // > 0
	CurrentBalance float64    `json:"current_balance"`
	TargetAPY      float64    `json:"target_apy"`
	DaysToGoal     float64    `json:"days_to_goal"` // may be +Inf
	Status         GoalStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FiniteOrNil returns f, or nil when f is infinite or NaN. JSON has no encoding
// for +Inf, so unreachable projections are written as null.
func FiniteOrNil(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return f
}
