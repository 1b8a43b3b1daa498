package scanner

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"solana-yield-agent/internal/domain"
)

// DefaultKaminoURL lists Kamino strategy metrics on mainnet.
const DefaultKaminoURL = "https://api.kamino.finance/strategies/metrics?env=mainnet-beta&status=LIVE"

// Kamino scans Kamino automated liquidity strategies.
type Kamino struct {
	base
}

// NewKamino creates a Kamino scanner.
func NewKamino(opts ...Option) *Kamino {
	return &Kamino{base: newBase("Kamino", DefaultKaminoURL, opts)}
}

// Scan maps every strategy entry that carries a usable APY.
// Strategy APYs are reported as fractions and converted to percent.
func (k *Kamino) Scan(ctx context.Context) ([]domain.YieldOpportunity, error) {
	doc, err := k.fetch(ctx)
	if err != nil {
		return k.fail(err)
	}
	if doc.IsObject() && doc.Get("strategies").IsArray() {
		doc = doc.Get("strategies")
	}
	if !doc.IsArray() {
		return k.fail(ErrMalformedPayload)
	}

	var opps []domain.YieldOpportunity
	skipped := 0
	doc.ForEach(func(_, s gjson.Result) bool {
		opp, ok := k.mapStrategy(s)
		if !ok {
			skipped++
			return true
		}
		opps = append(opps, opp)
		return true
	})

	if len(opps) == 0 && skipped > 0 {
		return k.fail(fmt.Errorf("%w: no usable strategies among %d entries", ErrMalformedPayload, skipped))
	}
	k.logger.Printf("%s: found %d strategies (%d skipped)", k.name, len(opps), skipped)
	if opps == nil {
		opps = []domain.YieldOpportunity{}
	}
	return opps, nil
}

func (k *Kamino) mapStrategy(s gjson.Result) (domain.YieldOpportunity, bool) {
	if !s.IsObject() {
		return domain.YieldOpportunity{}, false
	}
	apy, ok := firstNumber(s, "apy.vault.totalApy", "apy.totalApy", "apy")
	if !ok || apy < 0 {
		return domain.YieldOpportunity{}, false
	}
	apy *= 100

	tvl, _ := firstNumber(s, "totalValueLocked", "tvl")
	if tvl < 0 {
		tvl = 0
	}

	name := firstString(s, "strategyName", "name")
	if name == "" {
		a, b := s.Get("tokenA").String(), s.Get("tokenB").String()
		if a == "" || b == "" {
			return domain.YieldOpportunity{}, false
		}
		name = a + "-" + b + " Auto-Compound"
	}

	return domain.YieldOpportunity{
		Protocol:        k.name,
		Name:            name,
		Type:            domain.TypeLiquidity,
		APY:             apy,
		TVL:             tvl,
		Risk:            domain.RiskMedium,
		ContractAddress: firstString(s, "strategy", "address"),
		Details: map[string]any{
			"token_a":    s.Get("tokenA").String(),
			"token_b":    s.Get("tokenB").String(),
			"withdrawal": "instant",
		},
	}, true
}
