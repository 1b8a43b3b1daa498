// Package goal tracks progress toward a target balance using compound-interest projections.
package goal

import "math"

// DaysPerYear converts an APY into a daily compounding rate.
const DaysPerYear = 365

// DailyRate converts an APY percentage into a daily compounding rate.
func DailyRate(apyPercent float64) float64 {
	return apyPercent / 100 / DaysPerYear
}

// CalculateDaysToGoal returns the whole number of days of daily compounding at
// apyPercent needed for current to reach target.
// Returns 0 when current >= target and +Inf when apyPercent <= 0 or current <= 0.
func CalculateDaysToGoal(current, target, apyPercent float64) float64 {
	if current >= target {
		return 0
	}
	if apyPercent <= 0 || current <= 0 {
		return math.Inf(1)
	}
	days := math.Log(target/current) / math.Log1p(DailyRate(apyPercent))
	return math.Ceil(days)
}

// ProjectBalance returns current compounded daily at apyPercent for days.
func ProjectBalance(current, apyPercent, days float64) float64 {
	if days == 0 {
		return current
	}
	return current * math.Exp(days*math.Log1p(DailyRate(apyPercent)))
}

// CompoundEarnings summarises a projection.
type CompoundEarnings struct {
	FutureBalance float64 `json:"future_balance"`
	Earnings      float64 `json:"earnings"`
	ROI           float64 `json:"roi"` // percent
	Days          float64 `json:"days"`
	DailyEarning  float64 `json:"daily_earning"`
}

// CalculateCompoundEarnings projects principal forward and derives earnings, ROI
// and the average daily earning. ROI is 0 for a zero principal and DailyEarning
// is 0 for zero days.
func CalculateCompoundEarnings(principal, apyPercent, days float64) CompoundEarnings {
	future := ProjectBalance(principal, apyPercent, days)
	e := CompoundEarnings{
		FutureBalance: future,
		Earnings:      future - principal,
		Days:          days,
	}
	if principal != 0 {
		e.ROI = e.Earnings / principal * 100
	}
	if days != 0 {
		e.DailyEarning = e.Earnings / days
	}
	return e
}
