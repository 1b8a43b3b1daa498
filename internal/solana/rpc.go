package solana

import "context"

// Commitment levels.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Well-known mints.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MSOLMint       = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So" // Marinade staked SOL
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// RPCClient is the subset of the Solana JSON-RPC API the agent uses.
type RPCClient interface {
	// GetBalance returns the balance of an address in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// SendTransaction broadcasts a signed base64 transaction and returns its signature.
	// Implementations must not retry the broadcast.
	SendTransaction(ctx context.Context, signedTx string) (string, error)

	// GetSignatureStatuses returns one status per signature (nil when unknown to the node).
	GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*SignatureStatus, error)
}

// SignatureStatus is a transaction status as reported by getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64 // nil once rooted
	Err                any
	ConfirmationStatus string // processed | confirmed | finalized
}

// Confirmed reports whether the transaction reached at least confirmed commitment.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

// Failed reports whether the transaction landed with an execution error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && s.Err != nil
}
