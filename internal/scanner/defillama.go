package scanner

import (
	"context"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"solana-yield-agent/internal/domain"
)

const (
	// DefaultLlamaURL is the DefiLlama yields pool listing.
	DefaultLlamaURL = "https://yields.llama.fi/pools"

	llamaChain        = "Solana"
	defaultLlamaMin   = 1_000_000
	defaultLlamaLimit = 50
)

// liquid staking tokens, matched against the pool symbol
var stakingSymbols = map[string]bool{
	"MSOL": true, "JITOSOL": true, "BSOL": true, "JUPSOL": true,
	"INF": true, "STSOL": true, "BNSOL": true, "HSOL": true, "SOL": true,
}

// DefiLlama scans DefiLlama's cross-protocol yield index, restricted to Solana pools.
type DefiLlama struct {
	base
	minTVL float64
	limit  int
}

// NewDefiLlama creates a DefiLlama scanner keeping the limit largest pools with
// at least minTVL USD locked. Zero values select the defaults.
func NewDefiLlama(minTVL float64, limit int, opts ...Option) *DefiLlama {
	if minTVL <= 0 {
		minTVL = defaultLlamaMin
	}
	if limit <= 0 {
		limit = defaultLlamaLimit
	}
	return &DefiLlama{
		base:   newBase("DefiLlama", DefaultLlamaURL, opts),
		minTVL: minTVL,
		limit:  limit,
	}
}

// Scan returns Solana pools above the TVL floor, largest first.
// The protocol of each opportunity is the DefiLlama project slug.
func (d *DefiLlama) Scan(ctx context.Context) ([]domain.YieldOpportunity, error) {
	doc, err := d.fetch(ctx)
	if err != nil {
		return d.fail(err)
	}
	pools := doc.Get("data")
	if !pools.IsArray() {
		return d.fail(ErrMalformedPayload)
	}

	var opps []domain.YieldOpportunity
	pools.ForEach(func(_, p gjson.Result) bool {
		if !strings.EqualFold(p.Get("chain").String(), llamaChain) {
			return true
		}
		if opp, ok := d.mapPool(p); ok {
			opps = append(opps, opp)
		}
		return true
	})

	sort.SliceStable(opps, func(i, j int) bool { return opps[i].TVL > opps[j].TVL })
	if len(opps) > d.limit {
		opps = opps[:d.limit]
	}
	if opps == nil {
		opps = []domain.YieldOpportunity{}
	}
	d.logger.Printf("%s: found %d Solana pools", d.name, len(opps))
	return opps, nil
}

func (d *DefiLlama) mapPool(p gjson.Result) (domain.YieldOpportunity, bool) {
	project := p.Get("project").String()
	symbol := p.Get("symbol").String()
	apy, ok := firstNumber(p, "apy")
	if !ok || project == "" || symbol == "" || apy < 0 {
		return domain.YieldOpportunity{}, false
	}
	tvl, _ := firstNumber(p, "tvlUsd")
	if tvl < d.minTVL {
		return domain.YieldOpportunity{}, false
	}

	ilRisk := strings.EqualFold(p.Get("ilRisk").String(), "yes")
	rewardAPY, _ := firstNumber(p, "apyReward")

	return domain.YieldOpportunity{
		Protocol:        project,
		Name:            symbol,
		Type:            classifyPool(symbol, p.Get("exposure").String(), ilRisk, rewardAPY),
		APY:             apy,
		TVL:             tvl,
		Risk:            gradePool(tvl, ilRisk, p.Get("stablecoin").Bool()),
		ContractAddress: "",
		Details: map[string]any{
			"pool":       p.Get("pool").String(),
			"apy_base":   p.Get("apyBase").Float(),
			"apy_reward": rewardAPY,
			"il_risk":    ilRisk,
			"source":     "defillama",
		},
	}, true
}

func classifyPool(symbol, exposure string, ilRisk bool, rewardAPY float64) domain.OpportunityType {
	switch {
	case exposure == "multi" || ilRisk:
		if rewardAPY > 0 {
			return domain.TypeFarming
		}
		return domain.TypeLiquidity
	case stakingSymbols[strings.ToUpper(symbol)]:
		return domain.TypeStaking
	case rewardAPY > 0:
		return domain.TypeFarming
	default:
		return domain.TypeLending
	}
}

func gradePool(tvl float64, ilRisk, stable bool) domain.Risk {
	switch {
	case ilRisk || tvl < 10_000_000:
		return domain.RiskHigh
	case tvl >= 100_000_000 || stable:
		return domain.RiskLow
	default:
		return domain.RiskMedium
	}
}
