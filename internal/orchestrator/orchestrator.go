// Package orchestrator runs the agent's control loop.
// One tick: balance → scan → filter → decide → execute → goal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"solana-yield-agent/internal/aggregator"
	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/balance"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/executor"
	"solana-yield-agent/internal/goal"
	"solana-yield-agent/internal/idhash"
	"solana-yield-agent/internal/observability"
	"solana-yield-agent/internal/oracle"
	"solana-yield-agent/internal/storage"
)

// Collaborators, narrowed to what a tick needs.
type (
	BalanceChecker interface {
		Address() string
		Check(ctx context.Context) balance.Reading
	}
	OpportunitySource interface {
		ScanAll(ctx context.Context) []domain.YieldOpportunity
	}
	DecisionMaker interface {
		Consult(ctx context.Context, opps []domain.YieldOpportunity, wallet domain.WalletState) domain.StrategyDecision
	}
	TradeExecutor interface {
		Execute(ctx context.Context, action domain.Action, opp domain.YieldOpportunity) executor.ExecutionResult
	}
	GoalUpdater interface {
		UpdateGoal(ctx context.Context, balance, apy float64) (*domain.Goal, error)
		Goal(ctx context.Context) (*domain.Goal, error)
		LogProgress(balance, earnedToday, apy float64)
	}
)

var (
	_ BalanceChecker    = (*balance.Monitor)(nil)
	_ OpportunitySource = (*aggregator.Aggregator)(nil)
	_ DecisionMaker     = (*oracle.Oracle)(nil)
	_ TradeExecutor     = (*executor.Executor)(nil)
	_ GoalUpdater       = (*goal.Tracker)(nil)
)

// Defaults.
const (
	DefaultMinBalanceSOL = 0.05
	DefaultTickDeadline  = 2 * time.Minute
	goalWriteTimeout     = 10 * time.Second
)

// DefaultExecuteActions are the decisions that lead to an execution.
var DefaultExecuteActions = []domain.Action{domain.ActionSwap, domain.ActionStake, domain.ActionDeploy}

// TickContext is the state carried from one tick into the next.
type TickContext struct {
	Ticks       int
	LastTickID  string
	PrevBalance float64
	HavePrev    bool
	// CurrentAPY is the APY estimate used for goal projection.
	CurrentAPY float64
}

// TickReport summarises one tick.
type TickReport struct {
	TickID        string
	StartedAt     time.Time
	FinishedAt    time.Time
	Balance       float64
	Degraded      bool
	Skipped       bool // balance below the activity threshold
	Opportunities int
	Eligible      int
	Decision      *domain.StrategyDecision
	Execution     *executor.ExecutionResult
	Goal          *domain.Goal
	APY           float64
	Errors        []string
}

// Options for creating Orchestrator.
type Options struct {
	Balance    BalanceChecker
	Aggregator OpportunitySource
	Oracle     DecisionMaker
	Executor   TradeExecutor
	Goal       GoalUpdater
	Yields     storage.YieldReportStore // optional
	Audit      audit.Logger
	Logger     *log.Logger

	Filter         domain.FilterCriteria
	MinBalanceSOL  float64
	ExecuteActions []domain.Action
	// DefaultAPY, when positive, is the fixed APY estimate for goal projection.
	// Otherwise the top eligible opportunity's APY is used.
	DefaultAPY   float64
	TickDeadline time.Duration
	Chain        string

	NewTickID func() string
	Now       func() time.Time
}

// Orchestrator coordinates one tick at a time. It keeps no state between
// ticks: everything carried forward lives in TickContext.
type Orchestrator struct {
	balance    BalanceChecker
	aggregator OpportunitySource
	oracle     DecisionMaker
	executor   TradeExecutor
	goal       GoalUpdater
	yields     storage.YieldReportStore
	audit      audit.Logger
	logger     *log.Logger

	filter         domain.FilterCriteria
	minBalance     float64
	executeActions []domain.Action
	defaultAPY     float64
	tickDeadline   time.Duration
	chain          string

	newTickID func() string
	now       func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		balance:        opts.Balance,
		aggregator:     opts.Aggregator,
		oracle:         opts.Oracle,
		executor:       opts.Executor,
		goal:           opts.Goal,
		yields:         opts.Yields,
		audit:          opts.Audit,
		logger:         opts.Logger,
		filter:         opts.Filter,
		minBalance:     opts.MinBalanceSOL,
		executeActions: opts.ExecuteActions,
		defaultAPY:     opts.DefaultAPY,
		tickDeadline:   opts.TickDeadline,
		chain:          opts.Chain,
		newTickID:      opts.NewTickID,
		now:            opts.Now,
	}
	if o.audit == nil {
		o.audit = audit.Noop{}
	}
	if o.logger == nil {
		o.logger = log.New(log.Writer(), "[orchestrator] ", log.LstdFlags)
	}
	if o.minBalance <= 0 {
		o.minBalance = DefaultMinBalanceSOL
	}
	if o.executeActions == nil {
		o.executeActions = DefaultExecuteActions
	}
	if o.tickDeadline <= 0 {
		o.tickDeadline = DefaultTickDeadline
	}
	if o.chain == "" {
		o.chain = "solana"
	}
	if o.newTickID == nil {
		o.newTickID = uuid.NewString
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Tick runs one full cycle and returns the context for the next tick.
// Nothing escapes a tick: every failure is recovered to a safe default and
// recorded in the report and the audit log.
func (o *Orchestrator) Tick(ctx context.Context, tc TickContext) (next TickContext, report TickReport) {
	report = TickReport{TickID: o.newTickID(), StartedAt: o.now().UTC()}
	next = tc
	next.Ticks = tc.Ticks + 1
	next.LastTickID = report.TickID

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("tick panic: %v", r)
			report.Errors = append(report.Errors, msg)
			o.logger.Printf("ERROR: %s", msg)
			o.audit.Log(domain.AgentOrchestrator, domain.ActionTypeTickFailed, map[string]any{
				"tick_id": report.TickID,
				"error":   msg,
			})
		}
		report.FinishedAt = o.now().UTC()
		outcome := "completed"
		switch {
		case len(report.Errors) > 0:
			outcome = "errors"
		case report.Skipped:
			outcome = "skipped"
		}
		observability.RecordTick(outcome, report.FinishedAt.Sub(report.StartedAt).Seconds(), report.FinishedAt.Unix())
	}()

	tctx, cancel := context.WithTimeout(ctx, o.tickDeadline)
	defer cancel()

	// Phase 1: balance
	reading := o.balance.Check(tctx)
	report.Balance = reading.Float()
	report.Degraded = reading.Degraded
	wallet := domain.WalletState{Address: o.balance.Address(), BalanceSOL: report.Balance}
	apy := o.estimateAPY(nil, tc.CurrentAPY)

	if report.Balance < o.minBalance {
		report.Skipped = true
		o.logger.Printf("balance %.4f SOL below %.4f SOL, skipping scan", report.Balance, o.minBalance)
		o.audit.Log(domain.AgentOrchestrator, domain.ActionTypeBalanceTooLow, map[string]any{
			"tick_id":   report.TickID,
			"balance":   report.Balance,
			"threshold": o.minBalance,
		})
	} else {
		apy = o.runMarket(tctx, wallet, tc, &report)
	}

	// Phase 5: goal
	report.APY = apy
	next.CurrentAPY = apy
	if reading.HasValue {
		o.updateGoal(ctx, reading, tc, apy, &report)
		next.PrevBalance = report.Balance
		next.HavePrev = true
	} else {
		report.Errors = append(report.Errors, "goal update skipped: no balance observed yet")
	}

	o.logger.Printf("tick %s done: balance=%.4f opportunities=%d eligible=%d errors=%d",
		report.TickID, report.Balance, report.Opportunities, report.Eligible, len(report.Errors))
	return next, report
}

// runMarket runs scan, filter, decide and execute. It returns the APY estimate
// for goal projection.
func (o *Orchestrator) runMarket(ctx context.Context, wallet domain.WalletState, tc TickContext, report *TickReport) float64 {
	// Phase 2: scan
	opps := o.aggregator.ScanAll(ctx)
	report.Opportunities = len(opps)
	if err := o.storeReports(ctx, report.TickID, opps); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("store yield reports: %v", err))
	}

	// Phase 3: filter and decide
	eligible := aggregator.Filter(opps, o.filter)
	report.Eligible = len(eligible)
	observability.RecordEligible(len(eligible))
	apy := o.estimateAPY(eligible, tc.CurrentAPY)

	if len(eligible) == 0 {
		d := domain.StrategyDecision{Advice: "no eligible opportunities", Action: domain.ActionHold}
		report.Decision = &d
		return apy
	}

	decision := o.oracle.Consult(ctx, eligible, wallet)
	report.Decision = &decision

	// Phase 4: execute
	if !slices.Contains(o.executeActions, decision.Action) {
		return apy
	}
	target := selectTarget(decision.Action, eligible)
	res := o.executor.Execute(ctx, decision.Action, target)
	report.Execution = &res
	if res.Status == executor.StatusFailed {
		report.Errors = append(report.Errors, fmt.Sprintf("execute %s/%s at %s: %v", target.Protocol, target.Name, res.Stage, res.Err))
	}
	return apy
}

// updateGoal writes the goal even when the tick deadline has passed: it is the
// last step and must not be skipped because scanning ran long.
func (o *Orchestrator) updateGoal(ctx context.Context, reading balance.Reading, tc TickContext, apy float64, report *TickReport) {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), goalWriteTimeout)
	defer cancel()

	bal := reading.Float()
	g, err := o.goal.UpdateGoal(gctx, bal, apy)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("update goal: %v", err))
		return
	}
	report.Goal = g

	earned := 0.0
	if tc.HavePrev {
		earned = bal - tc.PrevBalance
	}
	o.goal.LogProgress(bal, earned, apy)

	progress := 0.0
	if g.TargetBalance > 0 {
		progress = min(bal/g.TargetBalance*100, 100)
	}
	observability.RecordGoal(g.DaysToGoal, progress)
}

// estimateAPY returns the explicit estimate when configured, otherwise the
// top eligible APY, otherwise the previous estimate.
func (o *Orchestrator) estimateAPY(eligible []domain.YieldOpportunity, prev float64) float64 {
	switch {
	case o.defaultAPY > 0:
		return o.defaultAPY
	case len(eligible) > 0:
		return eligible[0].APY
	default:
		return prev
	}
}

// storeReports writes one yield report per distinct opportunity.
func (o *Orchestrator) storeReports(ctx context.Context, tickID string, opps []domain.YieldOpportunity) error {
	if o.yields == nil || len(opps) == 0 {
		return nil
	}
	now := o.now().UTC()
	seen := make(map[string]bool, len(opps))
	reports := make([]*domain.YieldReport, 0, len(opps))
	for _, op := range opps {
		id := idhash.ComputeReportID(tickID, op.Protocol, op.Name, string(op.Type))
		if seen[id] {
			continue
		}
		seen[id] = true
		reports = append(reports, &domain.YieldReport{
			ReportID:   id,
			TickID:     tickID,
			Protocol:   op.Protocol,
			Name:       op.Name,
			Type:       string(op.Type),
			APY:        op.APY,
			TVL:        op.TVL,
			Risk:       string(op.Risk),
			Chain:      o.chain,
			ReportedAt: now,
		})
	}
	if err := o.yields.InsertBulk(ctx, reports); err != nil {
		o.logger.Printf("WARN: store %d yield reports: %v", len(reports), err)
		return err
	}
	observability.RecordYieldReports(len(reports))
	return nil
}

// selectTarget picks the opportunity an action applies to. Eligible is
// ranked, so the first match wins. For STAKE and DEPLOY a match that names
// its output mint beats one that doesn't, since the executor refuses those
// without a mint. The top opportunity is the fallback.
func selectTarget(action domain.Action, eligible []domain.YieldOpportunity) domain.YieldOpportunity {
	var want []domain.OpportunityType
	switch action {
	case domain.ActionStake:
		want = []domain.OpportunityType{domain.TypeStaking}
	case domain.ActionDeploy:
		want = []domain.OpportunityType{domain.TypeLiquidity, domain.TypeLending, domain.TypeFarming}
	default:
		return eligible[0]
	}
	first := -1
	for i, op := range eligible {
		if !slices.Contains(want, op.Type) {
			continue
		}
		if executor.DestinationMint(op) != "" {
			return op
		}
		if first < 0 {
			first = i
		}
	}
	if first >= 0 {
		return eligible[first]
	}
	return eligible[0]
}

// CheckBalance runs a single balance check and goal update outside the
// scheduler. The goal is projected with the configured APY estimate, or the
// stored goal's APY when none is configured.
func (o *Orchestrator) CheckBalance(ctx context.Context) balance.Reading {
	reading := o.balance.Check(ctx)
	if reading.HasValue {
		var report TickReport
		o.updateGoal(ctx, reading, TickContext{}, o.estimateAPY(nil, o.storedAPY(ctx)), &report)
		for _, e := range report.Errors {
			o.logger.Printf("WARN: %s", e)
		}
	}
	return reading
}

// storedAPY returns the APY of the persisted goal, 0 when there is none.
func (o *Orchestrator) storedAPY(ctx context.Context) float64 {
	g, err := o.goal.Goal(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Printf("WARN: load goal: %v", err)
		}
		return 0
	}
	return g.TargetAPY
}

// ScanOnce runs a single scan outside the scheduler, stores the yield reports
// and returns the ranked, unfiltered opportunities.
func (o *Orchestrator) ScanOnce(ctx context.Context) []domain.YieldOpportunity {
	opps := o.aggregator.ScanAll(ctx)
	if err := o.storeReports(ctx, o.newTickID(), opps); err != nil {
		o.logger.Printf("WARN: scan once: %v", err)
	}
	return opps
}
