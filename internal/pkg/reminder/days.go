package reminder

import "time"

// DaysBetween counts whole calendar days from from to to using the date
// components each value carries. Clock time never affects the result.
func DaysBetween(from, to time.Time) int {
	return int(civil(to).Sub(civil(from)).Hours() / 24)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
