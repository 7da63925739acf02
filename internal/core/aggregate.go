package core

import (
	"sort"
	"time"
)

const (
	SortHighest SortCriterion = "highest"
	SortLowest  SortCriterion = "lowest"
	SortNearest SortCriterion = "nearest"
)

type (
	// SortCriterion selects an ordering for subscription lists.
	SortCriterion string

	// Trend is a six-point historical spend series, oldest month first.
	Trend struct {
		Labels []string  `json:"labels"`
		Values []float64 `json:"values"`
	}

	// IntervalCounts is the per-cadence breakdown of a subscription list.
	IntervalCounts struct {
		Monthly   int `json:"monthly"`
		Quarterly int `json:"quarterly"`
		Yearly    int `json:"yearly"`
	}
)

// TotalMonthlySpend is the home-screen "what you owe this month" figure.
//
// Quarterly subscriptions contribute their raw charge only in months they
// actually bill (per DueInMonth against the current month); everything else
// contributes its monthly equivalent. The figure therefore mixes actual cash
// outflow (quarterly branch) with a normalized monthly average (other
// intervals) on purpose.
func TotalMonthlySpend(subs []Subscription, now time.Time) float64 {
	month := int(now.Month())
	year := now.Year()

	var total float64
	for _, sub := range subs {
		if sub.Interval.Norm() == Quarterly {
			if DueInMonth(sub, month, year) {
				total += sub.Amount
			}
			continue
		}
		total += MonthlyEquivalent(sub.Amount, sub.Interval)
	}
	return total
}

// TotalYearlySpend sums the yearly equivalent of every subscription.
func TotalYearlySpend(subs []Subscription) float64 {
	var total float64
	for _, sub := range subs {
		total += YearlyEquivalent(sub.Amount, sub.Interval)
	}
	return total
}

// MostExpensive returns the subscription with the greatest monthly
// equivalent, or nil for an empty list. Ties keep the first encountered.
func MostExpensive(subs []Subscription) *Subscription {
	if len(subs) == 0 {
		return nil
	}
	best := subs[0]
	for _, sub := range subs[1:] {
		if MonthlyEquivalent(sub.Amount, sub.Interval) > MonthlyEquivalent(best.Amount, best.Interval) {
			best = sub
		}
	}
	return &best
}

// AverageMonthlySpend is the mean monthly equivalent, 0 for an empty list.
func AverageMonthlySpend(subs []Subscription) float64 {
	if len(subs) == 0 {
		return 0
	}
	var total float64
	for _, sub := range subs {
		total += MonthlyEquivalent(sub.Amount, sub.Interval)
	}
	return total / float64(len(subs))
}

// SixMonthTrend computes per-month totals for the trailing six calendar
// months ending at the current one, oldest first. Monthly subscriptions
// contribute every month, yearly ones a twelfth every month, and quarterly
// ones their full charge only in due months.
func SixMonthTrend(subs []Subscription, now time.Time) Trend {
	trend := Trend{
		Labels: make([]string, 0, 6),
		Values: make([]float64, 0, 6),
	}

	for i := 5; i >= 0; i-- {
		target := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, now.Location())
		month := int(target.Month())
		year := target.Year()

		var total float64
		for _, sub := range subs {
			switch sub.Interval.Norm() {
			case Monthly:
				total += sub.Amount
			case Yearly:
				total += sub.Amount / 12
			case Quarterly:
				if DueInMonth(sub, month, year) {
					total += sub.Amount
				}
			}
		}

		trend.Labels = append(trend.Labels, target.Format("Jan"))
		trend.Values = append(trend.Values, total)
	}

	return trend
}

// CountByInterval tallies subscriptions per billing cadence.
func CountByInterval(subs []Subscription) IntervalCounts {
	var counts IntervalCounts
	for _, sub := range subs {
		switch sub.Interval.Norm() {
		case Monthly:
			counts.Monthly++
		case Quarterly:
			counts.Quarterly++
		case Yearly:
			counts.Yearly++
		}
	}
	return counts
}

// SortByCriterion returns a sorted copy of the list. Highest and lowest order
// by the raw charge without interval normalization; nearest orders by renewal
// date ascending, treating a missing date as "now" so undated items sort as
// if due immediately.
func SortByCriterion(subs []Subscription, criterion SortCriterion, now time.Time) []Subscription {
	sorted := append([]Subscription(nil), subs...)

	switch criterion {
	case SortHighest:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Amount > sorted[j].Amount
		})
	case SortLowest:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Amount < sorted[j].Amount
		})
	case SortNearest:
		key := func(s Subscription) time.Time {
			if !s.HasRenewal() {
				return now
			}
			return s.NextRenewal.Time
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			return key(sorted[i]).Before(key(sorted[j]))
		})
	}

	return sorted
}
