// Package executor builds, signs and broadcasts the capital-moving transaction
// for a selected opportunity.
//
// A transaction is broadcast at most once per execution. When the outcome of a
// broadcast or its confirmation is unclear, the executor looks the signature up
// on chain and reports what it finds. It never re-broadcasts.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/idhash"
	"solana-yield-agent/internal/observability"
	"solana-yield-agent/internal/solana"
)

// Status is the outcome of an execution.
type Status string

const (
	StatusReadOnly Status = "read_only"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// Stage names the step an execution reached.
type Stage string

const (
	StageNone      Stage = ""
	StageQuote     Stage = "quote"
	StageBuild     Stage = "build"
	StageSign      Stage = "sign"
	StageBroadcast Stage = "broadcast"
	StageConfirm   Stage = "confirm"
)

var (
	// ErrUnconfirmed is returned when a broadcast transaction could not be
	// confirmed within the polling budget. It may still land.
	ErrUnconfirmed = errors.New("transaction not confirmed")
	// ErrTransactionFailed is returned when the transaction landed with an error.
	ErrTransactionFailed = errors.New("transaction failed on chain")
	// ErrAlreadySubmitted is returned when the same opportunity/quote pair was
	// already broadcast by this executor.
	ErrAlreadySubmitted = errors.New("execution already submitted")
	// ErrUnknownDestination is returned for a STAKE or DEPLOY on an opportunity
	// that names no output mint. Only SWAP falls back to the configured mint.
	ErrUnknownDestination = errors.New("opportunity names no output mint")
)

// DestinationMint returns the mint an opportunity's position is held in, or ""
// when the scanner did not provide one.
func DestinationMint(opp domain.YieldOpportunity) string {
	m, _ := opp.Details["output_mint"].(string)
	return m
}

// ExecutionResult describes one Execute call.
type ExecutionResult struct {
	ExecutionID string
	Status      Status
	Stage       Stage // last stage reached
	Signature   string
	Slot        int64
	OutAmount   string
	Err         error
}

// Defaults.
const (
	DefaultSlippageBps     = 50
	DefaultConfirmRetries  = 2
	DefaultConfirmInterval = 2 * time.Second
	DefaultAmountLamports  = 100_000_000 // 0.1 SOL
	broadcastTimeout       = 30 * time.Second
)

// Options configures an Executor. A nil Keypair selects read-only mode.
type Options struct {
	Keypair *solana.Keypair
	RPC     solana.RPCClient
	WS      solana.WSClient // optional confirmation fast path
	Swap    SwapAPI
	Audit   audit.Logger
	Logger  *log.Logger

	InputMint       string
	OutputMint      string // used when the opportunity names no output mint
	AmountLamports  uint64
	SlippageBps     int
	ConfirmRetries  int
	ConfirmInterval time.Duration
}

// Executor owns the signing keypair; nothing else in the agent sees it.
type Executor struct {
	kp     *solana.Keypair
	rpc    solana.RPCClient
	ws     solana.WSClient
	swap   SwapAPI
	audit  audit.Logger
	logger *log.Logger

	inputMint       string
	outputMint      string
	amount          uint64
	slippageBps     int
	confirmRetries  int
	confirmInterval time.Duration

	readOnlyOnce sync.Once

	mu        sync.Mutex
	submitted map[string]string // execution id -> signature
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{
		kp:              opts.Keypair,
		rpc:             opts.RPC,
		ws:              opts.WS,
		swap:            opts.Swap,
		audit:           opts.Audit,
		logger:          opts.Logger,
		inputMint:       opts.InputMint,
		outputMint:      opts.OutputMint,
		amount:          opts.AmountLamports,
		slippageBps:     opts.SlippageBps,
		confirmRetries:  opts.ConfirmRetries,
		confirmInterval: opts.ConfirmInterval,
		submitted:       make(map[string]string),
	}
	if e.audit == nil {
		e.audit = audit.Noop{}
	}
	if e.logger == nil {
		e.logger = log.New(log.Writer(), "[executor] ", log.LstdFlags)
	}
	if e.inputMint == "" {
		e.inputMint = solana.WrappedSOLMint
	}
	if e.outputMint == "" {
		e.outputMint = solana.USDCMint
	}
	if e.amount == 0 {
		e.amount = DefaultAmountLamports
	}
	if e.slippageBps <= 0 {
		e.slippageBps = DefaultSlippageBps
	}
	if e.confirmRetries < 0 {
		e.confirmRetries = 0
	}
	if e.confirmInterval <= 0 {
		e.confirmInterval = DefaultConfirmInterval
	}
	return e
}

// ReadOnly reports whether the executor has no signing keypair.
func (e *Executor) ReadOnly() bool {
	return e.kp == nil
}

// Execute runs quote, build, sign, broadcast and confirm for opp on behalf of
// action. It never panics and never returns an error value: failures are
// reported in the result and the audit log.
func (e *Executor) Execute(ctx context.Context, action domain.Action, opp domain.YieldOpportunity) ExecutionResult {
	if e.kp == nil {
		e.readOnlyOnce.Do(func() {
			e.logger.Printf("no signing key configured, running in read-only mode")
			e.audit.Log(domain.AgentExecutor, domain.ActionTypeReadOnly, map[string]any{
				"reason": "signing credential missing",
			})
		})
		observability.RecordExecution(string(StatusReadOnly), string(StageNone))
		return ExecutionResult{Status: StatusReadOnly}
	}

	outputMint := DestinationMint(opp)
	if outputMint == "" {
		if action != domain.ActionSwap {
			return e.fail(ExecutionResult{Stage: StageQuote}, opp,
				fmt.Errorf("%w: %s %s/%s", ErrUnknownDestination, action, opp.Protocol, opp.Name))
		}
		outputMint = e.outputMint
	}

	e.audit.Log(domain.AgentExecutor, domain.ActionTypeExecutionStarted, map[string]any{
		"action":      string(action),
		"protocol":    opp.Protocol,
		"name":        opp.Name,
		"input_mint":  e.inputMint,
		"output_mint": outputMint,
		"amount_sol":  lamportsToSOL(e.amount),
	})

	res := ExecutionResult{Stage: StageQuote}
	quote, err := e.swap.Quote(ctx, QuoteRequest{
		InputMint:   e.inputMint,
		OutputMint:  outputMint,
		Amount:      e.amount,
		SlippageBps: e.slippageBps,
	})
	if err != nil {
		return e.fail(res, opp, err)
	}
	res.OutAmount = quote.OutAmount
	res.ExecutionID = idhash.ComputeExecutionID(opp.Protocol, opp.Name, e.inputMint, outputMint, e.amount, quote.Raw)

	if sig, dup := e.previous(res.ExecutionID); dup {
		res.Signature = sig
		res.Stage = StageBroadcast
		return e.fail(res, opp, fmt.Errorf("%w as %s", ErrAlreadySubmitted, sig))
	}

	res.Stage = StageBuild
	unsigned, err := e.swap.SwapTransaction(ctx, quote, e.kp.PublicKey())
	if err != nil {
		return e.fail(res, opp, err)
	}

	res.Stage = StageSign
	signed, txID, err := solana.SignTransaction(unsigned, e.kp)
	if err != nil {
		return e.fail(res, opp, err)
	}
	res.Signature = txID

	// Past this point the transaction may be on chain: the tick deadline no
	// longer applies.
	sendCtx := context.WithoutCancel(ctx)

	res.Stage = StageBroadcast
	e.remember(res.ExecutionID, txID)
	sendErr := e.broadcast(sendCtx, signed, &res)

	// A failed send may still land: confirmation runs either way.
	if sendErr == nil {
		res.Stage = StageConfirm
	}
	if err := e.confirm(sendCtx, &res); err != nil {
		if sendErr != nil {
			err = fmt.Errorf("%w; %w", sendErr, err)
		}
		return e.fail(res, opp, err)
	}
	res.Stage = StageConfirm

	res.Status = StatusSuccess
	e.logger.Printf("execution %s confirmed: %s (slot %d)", res.ExecutionID, res.Signature, res.Slot)
	e.audit.Log(domain.AgentExecutor, domain.ActionTypeExecutionSuccess, map[string]any{
		"execution_id": res.ExecutionID,
		"signature":    res.Signature,
		"slot":         res.Slot,
		"protocol":     opp.Protocol,
		"name":         opp.Name,
		"amount_sol":   lamportsToSOL(e.amount),
		"out_amount":   res.OutAmount,
	})
	observability.RecordExecution(string(StatusSuccess), string(res.Stage))
	return res
}

// broadcast sends the signed transaction once. On a send error it checks
// whether the transaction reached the cluster anyway; an error return means
// the outcome is still unknown.
func (e *Executor) broadcast(ctx context.Context, signed string, res *ExecutionResult) error {
	bctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
	defer cancel()

	sig, err := e.rpc.SendTransaction(bctx, signed)
	if err == nil {
		if sig != "" && sig != res.Signature {
			e.logger.Printf("WARN: node returned signature %s, expected %s", sig, res.Signature)
			res.Signature = sig
		}
		return nil
	}

	e.logger.Printf("WARN: broadcast of %s returned error, checking chain: %v", res.Signature, err)
	status, lookupErr := e.lookup(ctx, res.Signature)
	if lookupErr != nil {
		return fmt.Errorf("broadcast: %w (status unknown: %v)", err, lookupErr)
	}
	if status == nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	e.logger.Printf("transaction %s found on chain despite broadcast error", res.Signature)
	return nil
}

// confirm waits for the signature to reach confirmed commitment: WebSocket
// notification first, then a bounded number of status polls, then a final
// history lookup.
func (e *Executor) confirm(ctx context.Context, res *ExecutionResult) error {
	budget := e.confirmInterval * time.Duration(e.confirmRetries+1)

	if e.ws != nil {
		wctx, cancel := context.WithTimeout(ctx, budget)
		ch, err := e.ws.SubscribeSignature(wctx, res.Signature, solana.CommitmentConfirmed)
		if err == nil {
			select {
			case n, ok := <-ch:
				if ok {
					cancel()
					res.Slot = n.Slot
					if n.Err != nil {
						return fmt.Errorf("%w: %v", ErrTransactionFailed, n.Err)
					}
					return nil
				}
			case <-wctx.Done():
			}
		} else {
			e.logger.Printf("WARN: signature subscribe failed, polling: %v", err)
		}
		cancel()
	}

	for attempt := 0; attempt <= e.confirmRetries; attempt++ {
		statuses, err := e.rpc.GetSignatureStatuses(ctx, []string{res.Signature}, false)
		if err == nil && len(statuses) == 1 {
			if done, err := settle(statuses[0], res); done {
				return err
			}
		} else if err != nil {
			e.logger.Printf("WARN: status poll %d for %s failed: %v", attempt+1, res.Signature, err)
		}
		if attempt < e.confirmRetries {
			if err := sleep(ctx, e.confirmInterval); err != nil {
				break
			}
		}
	}

	status, err := e.lookup(ctx, res.Signature)
	if err == nil {
		if done, err := settle(status, res); done {
			return err
		}
	}
	return fmt.Errorf("%w after %d polls", ErrUnconfirmed, e.confirmRetries+1)
}

// settle reports whether status is final and, if so, its outcome.
func settle(status *solana.SignatureStatus, res *ExecutionResult) (bool, error) {
	switch {
	case status.Failed():
		res.Slot = status.Slot
		return true, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	case status.Confirmed():
		res.Slot = status.Slot
		return true, nil
	}
	return false, nil
}

// lookup searches the transaction history for signature. A nil status means
// the cluster does not know it.
func (e *Executor) lookup(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	statuses, err := e.rpc.GetSignatureStatuses(ctx, []string{signature}, true)
	if err != nil {
		return nil, err
	}
	if len(statuses) != 1 {
		return nil, fmt.Errorf("expected 1 status, got %d", len(statuses))
	}
	return statuses[0], nil
}

func (e *Executor) fail(res ExecutionResult, opp domain.YieldOpportunity, err error) ExecutionResult {
	res.Status = StatusFailed
	res.Err = err
	e.logger.Printf("ERROR: execution failed at %s stage: %v", res.Stage, err)

	details := map[string]any{
		"stage":    string(res.Stage),
		"error":    err.Error(),
		"protocol": opp.Protocol,
		"name":     opp.Name,
	}
	if res.ExecutionID != "" {
		details["execution_id"] = res.ExecutionID
	}
	if res.Signature != "" {
		details["signature"] = res.Signature
		details["rebroadcast"] = false
	}
	e.audit.Log(domain.AgentExecutor, domain.ActionTypeExecutionFailed, details)
	observability.RecordExecution(string(StatusFailed), string(res.Stage))
	return res
}

func (e *Executor) previous(executionID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.submitted[executionID]
	return sig, ok
}

func (e *Executor) remember(executionID, signature string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted[executionID] = signature
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lamportsToSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).String()
}
