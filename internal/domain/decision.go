package domain

// Action is the recommended next step returned by the decision oracle.
type Action string

const (
	ActionSwap   Action = "SWAP"
	ActionStake  Action = "STAKE"
	ActionDeploy Action = "DEPLOY"
	ActionHold   Action = "HOLD"
)

// AllActions lists every action the oracle may return.
var AllActions = []Action{ActionSwap, ActionStake, ActionDeploy, ActionHold}

// ParseAction maps raw text onto a known action. Only the exact upper-case
// names match; ok is false for anything else.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	for _, known := range AllActions {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// StrategyDecision is the validated output of one oracle consultation.
type StrategyDecision struct {
	Advice  string `json:"advice"`
	Pathway string `json:"pathway"`
	Action  Action `json:"action"`
}

// AdviceProviderUnavailable is the advice carried by the fail-safe decision.
const AdviceProviderUnavailable = "<provider unavailable>"

// HoldDecision returns the fail-safe default decision.
func HoldDecision() StrategyDecision {
	return StrategyDecision{Advice: AdviceProviderUnavailable, Action: ActionHold}
}
