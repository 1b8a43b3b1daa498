package scanner

import (
	"context"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/solana"
)

const (
	// DefaultMarinadeURL is Marinade's total-locked-value endpoint.
	DefaultMarinadeURL = "https://api.marinade.finance/tlv"

	// MarinadeEstimatedAPY is used when the endpoint carries no APY.
	MarinadeEstimatedAPY = 8.2
	// MarinadeFallbackTVL is used when total_active_balance is absent.
	MarinadeFallbackTVL = 5_000_000_000

	marinadeProgram = "MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD"
)

// Marinade scans Marinade liquid staking (SOL -> mSOL).
type Marinade struct {
	base
}

// NewMarinade creates a Marinade scanner.
func NewMarinade(opts ...Option) *Marinade {
	return &Marinade{base: newBase("Marinade", DefaultMarinadeURL, opts)}
}

// Scan returns the single mSOL staking opportunity.
func (m *Marinade) Scan(ctx context.Context) ([]domain.YieldOpportunity, error) {
	doc, err := m.fetch(ctx)
	if err != nil {
		return m.fail(err)
	}
	if !doc.IsObject() {
		return m.fail(ErrMalformedPayload)
	}

	tvl, ok := firstNumber(doc, "total_active_balance")
	if !ok || tvl <= 0 {
		tvl = MarinadeFallbackTVL
	}
	apy, ok := firstNumber(doc, "apy", "msol_apy")
	estimated := !ok
	if !ok || apy < 0 {
		apy = MarinadeEstimatedAPY
		estimated = true
	}

	opp := domain.YieldOpportunity{
		Protocol:        m.name,
		Name:            "mSOL Liquid Staking",
		Type:            domain.TypeStaking,
		APY:             apy,
		TVL:             tvl,
		Risk:            domain.RiskLow,
		ContractAddress: marinadeProgram,
		Details: map[string]any{
			"description":   "Stake SOL to receive liquid mSOL tokens that earn staking rewards",
			"min_deposit":   0.01,
			"withdrawal":    "instant via liquidity pool or 2-3 epochs to unstake",
			"apy_estimated": estimated,
			"output_mint":   solana.MSOLMint,
		},
	}
	m.logger.Printf("%s: found %s at %.2f%% APY", m.name, opp.Name, opp.APY)
	return []domain.YieldOpportunity{opp}, nil
}
