package goal

import (
	"math"
	"testing"
)

func TestCalculateDaysToGoal(t *testing.T) {
	tests := []struct {
		name                 string
		current, target, apy float64
		want                 float64
	}{
		{"already reached", 1.0, 1.0, 8.4, 0},
		{"above target", 2.0, 1.0, 0, 0},
		{"zero apy", 0.5, 1.0, 0, math.Inf(1)},
		{"negative apy", 0.5, 1.0, -3, math.Inf(1)},
		{"zero balance", 0, 1.0, 8.4, math.Inf(1)},
		{"one day", 1.0, 1.0001, 36.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDaysToGoal(tt.current, tt.target, tt.apy)
			if got != tt.want {
				t.Errorf("CalculateDaysToGoal(%v, %v, %v) = %v, want %v", tt.current, tt.target, tt.apy, got, tt.want)
			}
		})
	}
}

func TestCalculateDaysToGoal_HalfWayAtModestAPY(t *testing.T) {
	days := CalculateDaysToGoal(0.5, 1.0, 8.4)
	if days != 3013 {
		t.Errorf("expected 3013 days, got %v", days)
	}
	if math.Abs(days-3014) > 1 {
		t.Errorf("expected about 3014 days, got %v", days)
	}
}

func TestCalculateDaysToGoal_FinitePositiveInteger(t *testing.T) {
	for _, apy := range []float64{0.01, 1, 5, 12.5, 100, 1000} {
		for _, current := range []float64{0.001, 0.1, 0.99} {
			days := CalculateDaysToGoal(current, 1.0, apy)
			if math.IsInf(days, 0) || days <= 0 || days != math.Trunc(days) {
				t.Errorf("days(%v, 1, %v) = %v, want finite positive integer", current, apy, days)
			}
		}
	}
}

func TestProjectBalance_ZeroDays(t *testing.T) {
	for _, p := range []float64{0, 0.3, 1e6} {
		for _, apy := range []float64{-5, 0, 8.4, 300} {
			if got := ProjectBalance(p, apy, 0); got != p {
				t.Errorf("ProjectBalance(%v, %v, 0) = %v, want %v", p, apy, got, p)
			}
		}
	}
}

func TestProjectBalance_StrictlyIncreasing(t *testing.T) {
	prev := ProjectBalance(1, 8.4, 0)
	for d := 1.0; d <= 3650; d++ {
		cur := ProjectBalance(1, 8.4, d)
		if cur <= prev {
			t.Fatalf("not increasing at day %v: %v <= %v", d, cur, prev)
		}
		prev = cur
	}
}

func TestProjectBalance_ReachesTarget(t *testing.T) {
	cases := []struct{ current, target, apy float64 }{
		{0.5, 1.0, 8.4},
		{0.05, 1.0, 7.2},
		{0.999, 1.0, 0.5},
		{1, 1000, 250},
		{0.3, 0.31, 4},
	}
	for _, c := range cases {
		days := CalculateDaysToGoal(c.current, c.target, c.apy)
		got := ProjectBalance(c.current, c.apy, days)
		if got < c.target*(1-1e-12) {
			t.Errorf("ProjectBalance(%v, %v, %v) = %v < target %v", c.current, c.apy, days, got, c.target)
		}
		if days > 0 {
			before := ProjectBalance(c.current, c.apy, days-1)
			if before >= c.target {
				t.Errorf("days not minimal: day %v already reaches %v", days-1, before)
			}
		}
	}
}

func TestCalculateCompoundEarnings(t *testing.T) {
	e := CalculateCompoundEarnings(1, 36.5, 1)
	if math.Abs(e.FutureBalance-1.001) > 1e-12 {
		t.Errorf("FutureBalance = %v, want 1.001", e.FutureBalance)
	}
	if math.Abs(e.Earnings-0.001) > 1e-12 {
		t.Errorf("Earnings = %v, want 0.001", e.Earnings)
	}
	if math.Abs(e.ROI-0.1) > 1e-9 {
		t.Errorf("ROI = %v, want 0.1", e.ROI)
	}
	if math.Abs(e.DailyEarning-0.001) > 1e-12 {
		t.Errorf("DailyEarning = %v, want 0.001", e.DailyEarning)
	}

	zero := CalculateCompoundEarnings(0, 10, 30)
	if zero.ROI != 0 || zero.Earnings != 0 {
		t.Errorf("zero principal: %+v", zero)
	}

	noDays := CalculateCompoundEarnings(5, 10, 0)
	if noDays.DailyEarning != 0 || noDays.FutureBalance != 5 {
		t.Errorf("zero days: %+v", noDays)
	}
}
