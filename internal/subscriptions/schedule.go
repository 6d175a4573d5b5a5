package subscriptions

import (
	"time"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

// Advance moves from forward by count intervals. A count below one is
// treated as one.
func Advance(from time.Time, interval enums.BillingInterval, count int) time.Time {
	if count < 1 {
		count = 1
	}
	switch interval {
	case enums.BillingIntervalWeekly:
		return from.AddDate(0, 0, 7*count)
	case enums.BillingIntervalQuarterly:
		return from.AddDate(0, 3*count, 0)
	case enums.BillingIntervalYearly:
		return from.AddDate(count, 0, 0)
	default:
		return from.AddDate(0, count, 0)
	}
}

// FirstBillingAt is the second cycle's due date: the checkout order is cycle one.
func FirstBillingAt(start time.Time, trialDays int, interval enums.BillingInterval, count int) time.Time {
	if trialDays > 0 {
		start = start.AddDate(0, 0, trialDays)
	}
	return Advance(start, interval, count)
}

// NextAfter advances due by one period and guarantees the result is after
// now, so a subscription never stays due once processed.
func NextAfter(due *time.Time, now time.Time, interval enums.BillingInterval, count int) time.Time {
	base := now
	if due != nil {
		base = *due
	}
	next := Advance(base, interval, count)
	if !next.After(now) {
		next = Advance(now, interval, count)
	}
	return next
}
