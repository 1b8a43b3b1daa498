// Package oracle consults an external reasoning endpoint for a strategy decision.
//
// The endpoint's reply is untrusted text. It is parsed into a Verdict and any
// reply that fails validation resolves to the HOLD default.
package oracle

import (
	"context"
	"log"
	"time"

	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/observability"
)

const (
	// DefaultTopN bounds how many opportunities are described to the oracle.
	DefaultTopN = 5
	// DefaultTimeout bounds one consultation.
	DefaultTimeout = 60 * time.Second

	// AdviceOffline is returned when no chat client is configured.
	AdviceOffline = "Oracle is offline: no API key configured."
)

// Options configures an Oracle. A nil Client puts the oracle in offline mode.
type Options struct {
	Client    ChatClient
	Model     string
	Audit     audit.Logger
	Logger    *log.Logger
	TopN      int
	Timeout   time.Duration
	TargetSOL float64
}

// Oracle produces one validated StrategyDecision per call.
type Oracle struct {
	client    ChatClient
	model     string
	audit     audit.Logger
	logger    *log.Logger
	topN      int
	timeout   time.Duration
	targetSOL float64
}

// New creates an Oracle.
func New(opts Options) *Oracle {
	o := &Oracle{
		client:    opts.Client,
		model:     opts.Model,
		audit:     opts.Audit,
		logger:    opts.Logger,
		topN:      opts.TopN,
		timeout:   opts.Timeout,
		targetSOL: opts.TargetSOL,
	}
	if o.audit == nil {
		o.audit = audit.Noop{}
	}
	if o.logger == nil {
		o.logger = log.New(log.Writer(), "[oracle] ", log.LstdFlags)
	}
	if o.topN <= 0 {
		o.topN = DefaultTopN
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.client != nil {
		o.logger.Printf("oracle online (model=%s)", o.model)
	} else {
		o.logger.Printf("WARN: no oracle API key, decisions default to HOLD")
	}
	return o
}

// Offline reports whether the oracle has no client.
func (o *Oracle) Offline() bool {
	return o.client == nil
}

// Consult asks the oracle for a decision. It makes at most one request and
// never returns an unvalidated action: every failure resolves to HOLD.
func (o *Oracle) Consult(ctx context.Context, opps []domain.YieldOpportunity, wallet domain.WalletState) domain.StrategyDecision {
	if o.client == nil {
		d := domain.StrategyDecision{Advice: AdviceOffline, Action: domain.ActionHold}
		o.audit.Log(domain.AgentOracle, domain.ActionTypeStrategyDecision, map[string]any{
			"advice":  d.Advice,
			"action":  string(d.Action),
			"offline": true,
		})
		observability.RecordOracleDecision(string(d.Action), "offline", 0)
		return d
	}

	o.audit.Log(domain.AgentOracle, domain.ActionTypeBrainThinking, map[string]any{
		"status":        "consulting oracle",
		"model":         o.model,
		"opportunities": min(o.topN, len(opps)),
	})

	start := time.Now()
	verdict, outcome := o.consult(ctx, opps, wallet)
	elapsed := time.Since(start)
	d := Resolve(verdict)

	details := map[string]any{
		"advice":     d.Advice,
		"pathway":    d.Pathway,
		"action":     string(d.Action),
		"valid":      outcome == "valid",
		"latency_ms": elapsed.Milliseconds(),
	}
	if inv, ok := verdict.(Invalid); ok {
		details["reason"] = inv.Reason
		o.logger.Printf("WARN: oracle reply rejected (%s): %s", outcome, inv.Reason)
	}
	o.audit.Log(domain.AgentOracle, domain.ActionTypeStrategyDecision, details)
	observability.RecordOracleDecision(string(d.Action), outcome, elapsed.Seconds())
	return d
}

// consult returns the verdict and an outcome label: valid, invalid or unavailable.
func (o *Oracle) consult(ctx context.Context, opps []domain.YieldOpportunity, wallet domain.WalletState) (Verdict, string) {
	prompt, err := renderPrompt(opps, wallet, o.targetSOL, o.topN)
	if err != nil {
		return Invalid{Reason: err.Error()}, "invalid"
	}

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reply, err := o.client.Complete(cctx, systemPrompt, prompt)
	if err != nil {
		return Invalid{Reason: "provider: " + err.Error()}, "unavailable"
	}

	v := Parse(reply)
	if _, ok := v.(Valid); ok {
		return v, "valid"
	}
	return v, "invalid"
}
