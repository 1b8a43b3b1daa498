package oracle

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"solana-yield-agent/internal/domain"
)

//go:embed prompts/system.md
var systemPrompt string

//go:embed prompts/decision.md
var decisionPrompt string

var decisionTemplate = template.Must(template.New("decision").Parse(decisionPrompt))

// promptOpportunity is the bounded view of an opportunity sent to the oracle.
type promptOpportunity struct {
	Protocol string  `json:"protocol"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	APY      float64 `json:"apy"`
	TVL      float64 `json:"tvl"`
	Risk     string  `json:"risk"`
}

type decisionData struct {
	Wallet        string
	TargetSOL     float64
	Count         int
	Opportunities string
}

const maxNameLen = 64

// renderPrompt builds the user prompt from at most topN opportunities.
func renderPrompt(opps []domain.YieldOpportunity, wallet domain.WalletState, targetSOL float64, topN int) (string, error) {
	n := min(topN, len(opps))
	view := make([]promptOpportunity, 0, n)
	for _, o := range opps[:n] {
		name := o.Name
		if len(name) > maxNameLen {
			name = name[:maxNameLen]
		}
		view = append(view, promptOpportunity{
			Protocol: o.Protocol,
			Name:     name,
			Type:     string(o.Type),
			APY:      o.APY,
			TVL:      o.TVL,
			Risk:     string(o.Risk),
		})
	}

	walletJSON, err := json.Marshal(wallet)
	if err != nil {
		return "", fmt.Errorf("marshal wallet: %w", err)
	}
	oppsJSON, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal opportunities: %w", err)
	}

	var b strings.Builder
	err = decisionTemplate.Execute(&b, decisionData{
		Wallet:        string(walletJSON),
		TargetSOL:     targetSOL,
		Count:         n,
		Opportunities: string(oppsJSON),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
