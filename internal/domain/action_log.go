package domain

import "time"

// AgentAction is one append-only audit entry. Corresponds to agent_actions table.
type AgentAction struct {
	ID         int64          `json:"id"` // assigned by the store
	AgentName  string         `json:"agent_name"`
	ActionType string         `json:"action_type"`
	Details    map[string]any `json:"details"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Agent names stamped on audit entries.
const (
	AgentOrchestrator = "Orchestrator"
	AgentBalance      = "BalanceMonitor"
	AgentScanner      = "OpportunityScanner"
	AgentAggregator   = "OpportunityAggregator"
	AgentOracle       = "DecisionOracle"
	AgentExecutor     = "TradeExecutor"
	AgentGoal         = "GoalTracker"
)

// Audit action types.
const (
	ActionTypeBalanceCheck     = "BALANCE_CHECK"
	ActionTypeDegraded         = "DEGRADED"
	ActionTypeBalanceTooLow    = "BALANCE_TOO_LOW"
	ActionTypeScanFailed       = "SCAN_FAILED"
	ActionTypeScanComplete     = "SCAN_COMPLETE"
	ActionTypeBrainThinking    = "BRAIN_THINKING"
	ActionTypeStrategyDecision = "STRATEGY_DECISION"
	ActionTypeReadOnly         = "READ_ONLY"
	ActionTypeExecutionStarted = "EXECUTION_STARTED"
	ActionTypeExecutionSuccess = "EXECUTION_SUCCESS"
	ActionTypeExecutionFailed  = "EXECUTION_FAILED"
	ActionTypeGoalUpdate       = "GOAL_UPDATE"
	ActionTypeGoalProgress     = "GOAL_PROGRESS"
	ActionTypeTickFailed       = "TICK_FAILED"
)
