package aggregator

import (
	"slices"

	"solana-yield-agent/internal/domain"
)

// Filter returns the opportunities satisfying every present constraint, in
// input order. The input is not modified.
//
//   - MinAPY and MinTVL are inclusive lower bounds.
//   - MaxRisk is a ceiling under low < medium < high.
//   - Types is an allow-list.
func Filter(opps []domain.YieldOpportunity, c domain.FilterCriteria) []domain.YieldOpportunity {
	out := make([]domain.YieldOpportunity, 0, len(opps))
	for _, o := range opps {
		if Matches(o, c) {
			out = append(out, o)
		}
	}
	return out
}

// Matches reports whether a single opportunity satisfies the criteria.
func Matches(o domain.YieldOpportunity, c domain.FilterCriteria) bool {
	if c.MinAPY != nil && o.APY < *c.MinAPY {
		return false
	}
	if c.MinTVL != nil && o.TVL < *c.MinTVL {
		return false
	}
	if c.MaxRisk != nil {
		level := o.Risk.Level()
		if level == 0 || level > c.MaxRisk.Level() {
			return false
		}
	}
	if c.Types != nil && !slices.Contains(c.Types, o.Type) {
		return false
	}
	return true
}
