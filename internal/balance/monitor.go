// Package balance reads the custodial wallet balance.
package balance

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/observability"
	"solana-yield-agent/internal/solana"
)

// DefaultTimeout bounds one balance query.
const DefaultTimeout = 15 * time.Second

// Reading is the result of one balance check.
type Reading struct {
	SOL      decimal.Decimal
	Lamports uint64
	Degraded bool  // true when SOL is the cached value
	HasValue bool  // false when degraded with nothing cached
	Err      error // query error behind a degraded reading
}

// Float returns the balance in SOL as a float64.
func (r Reading) Float() float64 {
	f, _ := r.SOL.Float64()
	return f
}

// Monitor queries the ledger balance and falls back to the last good value.
type Monitor struct {
	rpc     solana.RPCClient
	address string
	audit   audit.Logger
	logger  *log.Logger
	timeout time.Duration

	mu       sync.Mutex
	last     Reading
	haveLast bool
}

// NewMonitor creates a Monitor for address.
func NewMonitor(rpc solana.RPCClient, address string, auditLog audit.Logger, logger *log.Logger) *Monitor {
	if auditLog == nil {
		auditLog = audit.Noop{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[balance] ", log.LstdFlags)
	}
	return &Monitor{
		rpc:     rpc,
		address: address,
		audit:   auditLog,
		logger:  logger,
		timeout: DefaultTimeout,
	}
}

// Address returns the monitored address.
func (m *Monitor) Address() string {
	return m.address
}

// Check returns the current balance. On query failure it returns the last
// known-good balance (zero if there is none) marked Degraded.
func (m *Monitor) Check(ctx context.Context) Reading {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	lamports, err := m.rpc.GetBalance(cctx, m.address)

	m.mu.Lock()
	var r Reading
	if err != nil {
		r = m.last
		r.Degraded = true
		r.Err = err
	} else {
		r = Reading{SOL: LamportsToSOL(lamports), Lamports: lamports, HasValue: true}
		m.last = r
		m.haveLast = true
	}
	cached := m.haveLast
	m.mu.Unlock()

	if r.Degraded {
		m.logger.Printf("WARN: balance query failed, using cached value %s SOL: %v", r.SOL.String(), err)
		m.audit.Log(domain.AgentBalance, domain.ActionTypeDegraded, map[string]any{
			"address":        m.address,
			"error":          err.Error(),
			"cached_balance": r.Float(),
			"cache_present":  cached,
		})
	} else {
		m.logger.Printf("balance: %s SOL", r.SOL.StringFixed(4))
	}

	m.audit.Log(domain.AgentBalance, domain.ActionTypeBalanceCheck, map[string]any{
		"address":  m.address,
		"balance":  r.Float(),
		"lamports": r.Lamports,
		"degraded": r.Degraded,
	})
	observability.RecordBalance(r.Float(), r.Degraded)
	return r
}

// LamportsToSOL converts lamports to SOL exactly (nine decimal places).
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}
