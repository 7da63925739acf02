package core

// DueInMonth reports whether the subscription bills in the given calendar
// month (1-12) of the given year.
//
// Quarterly subscriptions bill in four months of the anchor's year: the
// anchor month and every third month after it, wrapping within the year
// (an anchor in February means {2, 5, 8, 11}). The year comparison is always
// against the anchor's own year; the predicate is not generalized to future
// years. Every other interval matches only the anchor's exact month and year.
// A missing anchor date is never due.
func DueInMonth(sub Subscription, month, year int) bool {
	if !sub.HasRenewal() {
		return false
	}

	renewalMonth := int(sub.NextRenewal.Month())
	renewalYear := sub.NextRenewal.Year()

	if sub.Interval.Norm() == Quarterly {
		for i := 0; i < 4; i++ {
			quarterMonth := ((renewalMonth - 1 + i*3) % 12) + 1
			if quarterMonth == month {
				return renewalYear == year
			}
		}
		return false
	}

	return renewalMonth == month && renewalYear == year
}
