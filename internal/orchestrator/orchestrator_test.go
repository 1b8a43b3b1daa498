package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"solana-yield-agent/internal/balance"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/executor"
	"solana-yield-agent/internal/goal"
	"solana-yield-agent/internal/storage"
	"solana-yield-agent/internal/storage/memory"
)

var quiet = log.New(io.Discard, "", 0)

type fakeBalance struct {
	readings []balance.Reading
	calls    int
}

func (f *fakeBalance) Address() string { return "wallet" }

func (f *fakeBalance) Check(context.Context) balance.Reading {
	r := f.readings[min(f.calls, len(f.readings)-1)]
	f.calls++
	return r
}

func solReading(lamports uint64) balance.Reading {
	return balance.Reading{SOL: balance.LamportsToSOL(lamports), Lamports: lamports, HasValue: true}
}

type fakeSource struct {
	opps  []domain.YieldOpportunity
	calls int
	panic bool
}

func (f *fakeSource) ScanAll(context.Context) []domain.YieldOpportunity {
	f.calls++
	if f.panic {
		panic("scanner exploded")
	}
	return f.opps
}

type fakeOracle struct {
	decision domain.StrategyDecision
	calls    int
	seen     []domain.YieldOpportunity
	wallet   domain.WalletState
}

func (f *fakeOracle) Consult(_ context.Context, opps []domain.YieldOpportunity, w domain.WalletState) domain.StrategyDecision {
	f.calls++
	f.seen = opps
	f.wallet = w
	return f.decision
}

type fakeExecutor struct {
	result  executor.ExecutionResult
	actions []domain.Action
	targets []domain.YieldOpportunity
}

func (f *fakeExecutor) Execute(_ context.Context, action domain.Action, opp domain.YieldOpportunity) executor.ExecutionResult {
	f.actions = append(f.actions, action)
	f.targets = append(f.targets, opp)
	return f.result
}

type goalCall struct{ balance, apy, earned float64 }

type fakeGoal struct {
	updates  []goalCall
	progress []goalCall
	stored   *domain.Goal
	err      error
}

func (f *fakeGoal) Goal(context.Context) (*domain.Goal, error) {
	if f.stored == nil {
		return nil, storage.ErrNotFound
	}
	return f.stored, nil
}

func (f *fakeGoal) UpdateGoal(_ context.Context, bal, apy float64) (*domain.Goal, error) {
	f.updates = append(f.updates, goalCall{balance: bal, apy: apy})
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Goal{GoalKey: "primary", TargetBalance: 1, CurrentBalance: bal, TargetAPY: apy, Status: domain.GoalActive}, nil
}

func (f *fakeGoal) LogProgress(bal, earned, apy float64) {
	f.progress = append(f.progress, goalCall{balance: bal, apy: apy, earned: earned})
}

type captureLogger struct {
	mu    sync.Mutex
	types []string
}

func (c *captureLogger) Log(_, actionType string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, actionType)
}

func (c *captureLogger) has(actionType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.types {
		if t == actionType {
			return true
		}
	}
	return false
}

var market = []domain.YieldOpportunity{
	{Protocol: "Kamino", Name: "SOL-USDC", Type: domain.TypeLiquidity, APY: 12.5, TVL: 25e6, Risk: domain.RiskMedium},
	{Protocol: "Marinade", Name: "mSOL", Type: domain.TypeStaking, APY: 8.2, TVL: 5e9, Risk: domain.RiskLow},
	{Protocol: "degen", Name: "MEME", Type: domain.TypeFarming, APY: 900, TVL: 1e4, Risk: domain.RiskHigh},
}

type harness struct {
	balance *fakeBalance
	source  *fakeSource
	oracle  *fakeOracle
	exec    *fakeExecutor
	goal    *fakeGoal
	yields  *memory.YieldReportStore
	logs    *captureLogger
}

func newHarness(lamports uint64, action domain.Action) *harness {
	return &harness{
		balance: &fakeBalance{readings: []balance.Reading{solReading(lamports)}},
		source:  &fakeSource{opps: market},
		oracle:  &fakeOracle{decision: domain.StrategyDecision{Advice: "go", Pathway: "p", Action: action}},
		exec:    &fakeExecutor{result: executor.ExecutionResult{Status: executor.StatusSuccess}},
		goal:    &fakeGoal{},
		yields:  memory.NewYieldReportStore(),
		logs:    &captureLogger{},
	}
}

func (h *harness) orchestrator(mutate func(*Options)) *Orchestrator {
	maxRisk := domain.RiskMedium
	minTVL := 1e6
	n := 0
	opts := Options{
		Balance:    h.balance,
		Aggregator: h.source,
		Oracle:     h.oracle,
		Executor:   h.exec,
		Goal:       h.goal,
		Yields:     h.yields,
		Audit:      h.logs,
		Logger:     quiet,
		Filter:     domain.FilterCriteria{MaxRisk: &maxRisk, MinTVL: &minTVL},
		NewTickID: func() string {
			n++
			return fmt.Sprintf("tick-%d", n)
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func TestTick_FullCycle(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionStake)
	o := h.orchestrator(nil)

	next, report := o.Tick(context.Background(), TickContext{})

	if report.TickID != "tick-1" || len(report.Errors) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Opportunities != 3 || report.Eligible != 2 {
		t.Errorf("opportunities=%d eligible=%d, want 3/2", report.Opportunities, report.Eligible)
	}
	if h.oracle.calls != 1 || len(h.oracle.seen) != 2 || h.oracle.wallet.BalanceSOL != 0.5 {
		t.Errorf("oracle consulted with %d opps, wallet %+v", len(h.oracle.seen), h.oracle.wallet)
	}
	if len(h.exec.targets) != 1 || h.exec.targets[0].Protocol != "Marinade" {
		t.Errorf("STAKE must target the staking opportunity, got %+v", h.exec.targets)
	}
	if len(h.exec.actions) != 1 || h.exec.actions[0] != domain.ActionStake {
		t.Errorf("executor must receive the decided action, got %v", h.exec.actions)
	}

	stored, _ := h.yields.Recent(context.Background(), 10)
	if len(stored) != 3 {
		t.Errorf("expected 3 yield reports, got %d", len(stored))
	}
	for _, r := range stored {
		if r.TickID != "tick-1" {
			t.Errorf("report tick id = %s", r.TickID)
		}
	}

	if len(h.goal.updates) != 1 || h.goal.updates[0].apy != 12.5 || h.goal.updates[0].balance != 0.5 {
		t.Errorf("goal updates = %+v", h.goal.updates)
	}
	if next.Ticks != 1 || !next.HavePrev || next.PrevBalance != 0.5 || next.CurrentAPY != 12.5 || next.LastTickID != "tick-1" {
		t.Errorf("unexpected next context %+v", next)
	}
}

func TestTick_ThreadsEarnedToday(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	h.balance.readings = []balance.Reading{solReading(500_000_000), solReading(510_000_000)}
	o := h.orchestrator(nil)

	tc, _ := o.Tick(context.Background(), TickContext{})
	o.Tick(context.Background(), tc)

	if len(h.goal.progress) != 2 {
		t.Fatalf("expected 2 progress entries, got %d", len(h.goal.progress))
	}
	if h.goal.progress[0].earned != 0 {
		t.Errorf("first tick has no previous balance, got earned %v", h.goal.progress[0].earned)
	}
	if got := h.goal.progress[1].earned; got < 0.0099999 || got > 0.0100001 {
		t.Errorf("earned = %v, want 0.01", got)
	}
}

func TestTick_BalanceTooLow(t *testing.T) {
	h := newHarness(10_000_000, domain.ActionSwap)
	o := h.orchestrator(nil)

	next, report := o.Tick(context.Background(), TickContext{CurrentAPY: 7})

	if !report.Skipped {
		t.Error("expected skipped tick")
	}
	if h.source.calls != 0 || h.oracle.calls != 0 || len(h.exec.targets) != 0 {
		t.Error("nothing may run below the activity threshold")
	}
	if !h.logs.has(domain.ActionTypeBalanceTooLow) {
		t.Error("expected BALANCE_TOO_LOW")
	}
	if len(h.goal.updates) != 1 || h.goal.updates[0].apy != 7 {
		t.Errorf("goal must still update with the carried APY, got %+v", h.goal.updates)
	}
	if next.CurrentAPY != 7 {
		t.Errorf("CurrentAPY = %v, want 7", next.CurrentAPY)
	}
}

func TestTick_HoldDoesNotExecute(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	_, report := h.orchestrator(nil).Tick(context.Background(), TickContext{})

	if len(h.exec.targets) != 0 || report.Execution != nil {
		t.Error("HOLD must not execute")
	}
	if report.Decision == nil || report.Decision.Action != domain.ActionHold {
		t.Errorf("decision = %+v", report.Decision)
	}
}

func TestTick_ExecuteActionsRestrict(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionSwap)
	o := h.orchestrator(func(opts *Options) {
		opts.ExecuteActions = []domain.Action{domain.ActionStake}
	})
	o.Tick(context.Background(), TickContext{})

	if len(h.exec.targets) != 0 {
		t.Error("SWAP is not an enabled action")
	}
}

func TestTick_NoEligibleSkipsOracle(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionSwap)
	h.source.opps = []domain.YieldOpportunity{market[2]}

	next, report := h.orchestrator(nil).Tick(context.Background(), TickContext{CurrentAPY: 6})
	if h.oracle.calls != 0 || len(h.exec.targets) != 0 {
		t.Error("oracle and executor must not run without eligible opportunities")
	}
	if report.Decision == nil || report.Decision.Action != domain.ActionHold {
		t.Errorf("expected HOLD, got %+v", report.Decision)
	}
	if next.CurrentAPY != 6 {
		t.Errorf("APY estimate must carry over, got %v", next.CurrentAPY)
	}
}

func TestTick_ExplicitAPYEstimate(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	o := h.orchestrator(func(opts *Options) { opts.DefaultAPY = 8.4 })

	next, _ := o.Tick(context.Background(), TickContext{})
	if h.goal.updates[0].apy != 8.4 || next.CurrentAPY != 8.4 {
		t.Errorf("expected the configured estimate, got %+v", h.goal.updates)
	}
}

func TestTick_ExecutionFailureIsReported(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionSwap)
	h.exec.result = executor.ExecutionResult{Status: executor.StatusFailed, Stage: executor.StageQuote, Err: errors.New("no route")}

	_, report := h.orchestrator(nil).Tick(context.Background(), TickContext{})
	if len(report.Errors) != 1 {
		t.Errorf("expected one error, got %v", report.Errors)
	}
	if len(h.goal.updates) != 1 {
		t.Error("goal must update after a failed execution")
	}
}

func TestTick_PanicIsContained(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionSwap)
	h.source.panic = true

	next, report := h.orchestrator(nil).Tick(context.Background(), TickContext{Ticks: 4})
	if len(report.Errors) == 0 || !h.logs.has(domain.ActionTypeTickFailed) {
		t.Error("expected TICK_FAILED")
	}
	if next.Ticks != 5 {
		t.Errorf("Ticks = %d, want 5", next.Ticks)
	}
}

func TestTick_NoBalanceObservedSkipsGoal(t *testing.T) {
	h := newHarness(0, domain.ActionHold)
	h.balance.readings = []balance.Reading{{Degraded: true, Err: errors.New("down")}}

	next, report := h.orchestrator(nil).Tick(context.Background(), TickContext{})
	if len(h.goal.updates) != 0 {
		t.Error("goal must not be written without an observed balance")
	}
	if !report.Degraded || next.HavePrev {
		t.Errorf("unexpected report %+v / next %+v", report, next)
	}
}

func TestTick_DuplicateOpportunitiesStoredOnce(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	h.source.opps = []domain.YieldOpportunity{market[0], market[0], market[1]}

	_, report := h.orchestrator(nil).Tick(context.Background(), TickContext{})
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
	stored, _ := h.yields.Recent(context.Background(), 10)
	if len(stored) != 2 {
		t.Errorf("expected 2 distinct reports, got %d", len(stored))
	}
}

func TestSelectTarget(t *testing.T) {
	ranked := []domain.YieldOpportunity{
		{Name: "lp", Type: domain.TypeLiquidity},
		{Name: "stake", Type: domain.TypeStaking},
		{Name: "lend", Type: domain.TypeLending},
	}
	tests := []struct {
		action domain.Action
		want   string
	}{
		{domain.ActionSwap, "lp"},
		{domain.ActionStake, "stake"},
		{domain.ActionDeploy, "lp"},
	}
	for _, tt := range tests {
		if got := selectTarget(tt.action, ranked); got.Name != tt.want {
			t.Errorf("selectTarget(%s) = %s, want %s", tt.action, got.Name, tt.want)
		}
	}
	if got := selectTarget(domain.ActionStake, ranked[:1]); got.Name != "lp" {
		t.Errorf("fallback must be the top opportunity, got %s", got.Name)
	}
}

func TestSelectTarget_PrefersKnownMint(t *testing.T) {
	ranked := []domain.YieldOpportunity{
		{Protocol: "jito-liquid-staking", Name: "JITOSOL", Type: domain.TypeStaking, APY: 7.9},
		{Protocol: "Marinade", Name: "mSOL", Type: domain.TypeStaking, APY: 7.1,
			Details: map[string]any{"output_mint": "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"}},
	}
	if got := selectTarget(domain.ActionStake, ranked); got.Protocol != "Marinade" {
		t.Errorf("STAKE must prefer an opportunity with an output mint, got %s", got.Protocol)
	}
	if got := selectTarget(domain.ActionStake, ranked[:1]); got.Protocol != "jito-liquid-staking" {
		t.Errorf("without a mint-carrying match the first staking opportunity is used, got %s", got.Protocol)
	}
	if got := selectTarget(domain.ActionSwap, ranked); got.Protocol != "jito-liquid-staking" {
		t.Errorf("SWAP takes the top opportunity, got %s", got.Protocol)
	}
}

func TestCheckBalanceAndScanOnce(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	o := h.orchestrator(func(opts *Options) { opts.DefaultAPY = 5 })

	r := o.CheckBalance(context.Background())
	if r.Float() != 0.5 || len(h.goal.updates) != 1 || h.goal.updates[0].apy != 5 {
		t.Errorf("CheckBalance: reading %+v, goal updates %+v", r, h.goal.updates)
	}

	opps := o.ScanOnce(context.Background())
	if len(opps) != 3 || h.oracle.calls != 0 {
		t.Errorf("ScanOnce must only scan, got %d opps and %d consults", len(opps), h.oracle.calls)
	}
	stored, _ := h.yields.Recent(context.Background(), 10)
	if len(stored) != 3 {
		t.Errorf("expected stored reports, got %d", len(stored))
	}
}

func TestCheckBalance_KeepsStoredAPYWithoutEstimate(t *testing.T) {
	store := memory.NewGoalStore()
	err := store.Upsert(context.Background(), &domain.Goal{
		GoalKey:        domain.PrimaryGoalKey,
		TargetBalance:  1,
		CurrentBalance: 0.5,
		TargetAPY:      8.4,
		Status:         domain.GoalActive,
	})
	if err != nil {
		t.Fatalf("seed goal: %v", err)
	}
	tracker := goal.NewTracker(goal.Options{Store: store, Logger: quiet, Target: 1})

	h := newHarness(500_000_000, domain.ActionHold)
	o := h.orchestrator(func(opts *Options) { opts.Goal = tracker })
	o.CheckBalance(context.Background())

	g, err := store.Get(context.Background(), domain.PrimaryGoalKey)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if g.TargetAPY != 8.4 {
		t.Errorf("TargetAPY = %v, want the stored 8.4", g.TargetAPY)
	}
	if math.IsInf(g.DaysToGoal, 0) || g.DaysToGoal <= 0 {
		t.Errorf("DaysToGoal = %v, want a finite projection", g.DaysToGoal)
	}
}

func TestCheckBalance_NoGoalNoEstimate(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	o := h.orchestrator(nil)

	o.CheckBalance(context.Background())
	if len(h.goal.updates) != 1 || h.goal.updates[0].apy != 0 {
		t.Errorf("goal updates = %+v", h.goal.updates)
	}

	h.goal.stored = &domain.Goal{GoalKey: domain.PrimaryGoalKey, TargetBalance: 1, TargetAPY: 6.2}
	o.CheckBalance(context.Background())
	if len(h.goal.updates) != 2 || h.goal.updates[1].apy != 6.2 {
		t.Errorf("stored APY not reused: %+v", h.goal.updates)
	}
}

func TestTick_Deadline(t *testing.T) {
	h := newHarness(500_000_000, domain.ActionHold)
	slow := &deadlineSource{}
	o := h.orchestrator(func(opts *Options) {
		opts.Aggregator = slow
		opts.TickDeadline = 10 * time.Millisecond
	})

	start := time.Now()
	o.Tick(context.Background(), TickContext{})
	if time.Since(start) > time.Second {
		t.Error("tick deadline not applied to scanning")
	}
	if len(h.goal.updates) != 1 {
		t.Error("goal update must run after the deadline")
	}
}

type deadlineSource struct{}

func (deadlineSource) ScanAll(ctx context.Context) []domain.YieldOpportunity {
	<-ctx.Done()
	return nil
}
