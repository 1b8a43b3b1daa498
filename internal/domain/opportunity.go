package domain

// OpportunityType classifies how a yield opportunity earns.
type OpportunityType string

const (
	TypeStaking   OpportunityType = "staking"
	TypeLending   OpportunityType = "lending"
	TypeLiquidity OpportunityType = "liquidity"
	TypeFarming   OpportunityType = "farming"
)

// IsValid checks if the type is a known value.
func (t OpportunityType) IsValid() bool {
	switch t {
	case TypeStaking, TypeLending, TypeLiquidity, TypeFarming:
		return true
	}
	return false
}

// Risk is an ordinal risk grade: low < medium < high.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Level returns the ordinal position of the risk grade (1..3), 0 if unknown.
func (r Risk) Level() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// IsValid checks if the risk is a known value.
func (r Risk) IsValid() bool {
	return r.Level() > 0
}

// YieldOpportunity is a point-in-time yield estimate produced by a scanner.
// Values are treated as immutable once created.
type YieldOpportunity struct {
	Protocol        string
	Name            string
	Type            OpportunityType
	APY             float64 // percent, >= 0
	TVL             float64 // >= 0, same unit across sources
	Risk            Risk
	ContractAddress string // empty when unknown
	Details         map[string]any
}

// FilterCriteria describes optional constraints for selecting opportunities.
// Nil fields impose no constraint.
type FilterCriteria struct {
	MinAPY  *float64          `yaml:"min_apy" json:"min_apy,omitempty"`
	MaxRisk *Risk             `yaml:"max_risk" json:"max_risk,omitempty"`
	MinTVL  *float64          `yaml:"min_tvl" json:"min_tvl,omitempty"`
	Types   []OpportunityType `yaml:"types" json:"types,omitempty"`
}
