package domain

import "time"

// YieldReport is an insert-only snapshot of one discovered opportunity.
// Corresponds to yield_reports table.
type YieldReport struct {
	ReportID   string    `json:"report_id"` // deterministic hash of tick + opportunity
	TickID     string    `json:"tick_id"`
	Protocol   string    `json:"protocol"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	APY        float64   `json:"apy"`
	TVL        float64   `json:"tvl"`
	Risk       string    `json:"risk"`
	Chain      string    `json:"chain"`
	ReportedAt time.Time `json:"reported_at"`
}
