package billing

import "time"

// NextDueDate advances current by one billing cycle of plan. When the
// day-of-month does not exist in the target month the result clamps to that
// month's last day, so Jan 31 + 1 month is Feb 29 (leap) or Feb 28.
// The time of day and location of current are preserved.
func NextDueDate(current time.Time, plan string) time.Time {
	return addMonthsClamped(current, cycleMonths(plan))
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	// Day 1 never overflows, so this lands in the intended target month.
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
