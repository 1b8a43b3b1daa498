package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-yield-agent/internal/solana"
)

// ErrUnavailable is returned when the stub is configured to fail.
var ErrUnavailable = errors.New("rpc unavailable")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Balances map[string]uint64
	Statuses map[string]*solana.SignatureStatus

	// BalanceErr, SendErr and StatusErr force the matching call to fail.
	BalanceErr error
	SendErr    error
	StatusErr  error

	// NextSignature is returned by SendTransaction when set.
	NextSignature string

	Sent         []string
	BalanceCalls int
	StatusCalls  int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances: make(map[string]uint64),
		Statuses: make(map[string]*solana.SignatureStatus),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetBalance returns the configured balance for address.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BalanceCalls++
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[address], nil
}

// SendTransaction records the transaction and returns NextSignature.
func (c *RPCClient) SendTransaction(_ context.Context, signedTx string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, signedTx)
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if c.NextSignature != "" {
		return c.NextSignature, nil
	}
	return fmt.Sprintf("stubsig%d", len(c.Sent)), nil
}

// GetSignatureStatuses returns configured statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string, _ bool) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StatusCalls++
	if c.StatusErr != nil {
		return nil, c.StatusErr
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// SetBalance sets the lamport balance for address.
func (c *RPCClient) SetBalance(address string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[address] = lamports
}

// SetStatus sets the status reported for signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SentCount returns how many transactions were broadcast.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
