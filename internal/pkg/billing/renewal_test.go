package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		name    string
		current time.Time
		plan    string
		want    time.Time
	}{
		{"monthly plain", date(2024, 3, 15), models.PlanMonthly, date(2024, 4, 15)},
		{"monthly clamps into leap february", date(2024, 1, 31), models.PlanMonthly, date(2024, 2, 29)},
		{"monthly clamps into february", date(2023, 1, 31), models.PlanMonthly, date(2023, 2, 28)},
		{"monthly 31st into 30 day month", date(2024, 3, 31), models.PlanMonthly, date(2024, 4, 30)},
		{"monthly crosses year", date(2024, 12, 31), models.PlanMonthly, date(2025, 1, 31)},
		{"yearly plain", date(2024, 6, 1), models.PlanYearly, date(2025, 6, 1)},
		{"yearly from leap day", date(2024, 2, 29), models.PlanYearly, date(2025, 2, 28)},
		{"three year anniversary", date(2024, 5, 20), models.PlanThreeYear, date(2027, 5, 20)},
		{"three year from leap day", date(2024, 2, 29), models.PlanThreeYear, date(2027, 2, 28)},
		{"three year onto leap day", date(2025, 2, 28), models.PlanThreeYear, date(2028, 2, 28)},
		{"unknown plan behaves monthly", date(2024, 1, 30), "weekly", date(2024, 2, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDueDate(tt.current, tt.plan))
		})
	}
}

func TestNextDueDatePreservesClockAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	current := time.Date(2024, 1, 31, 23, 30, 15, 0, loc)

	got := NextDueDate(current, models.PlanMonthly)

	assert.Equal(t, time.Date(2024, 2, 29, 23, 30, 15, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestNextDueDateAlwaysAdvancesToAValidDate(t *testing.T) {
	plans := []string{models.PlanMonthly, models.PlanYearly, models.PlanThreeYear}
	start := date(2023, 1, 1)
	end := date(2029, 1, 1)

	for current := start; current.Before(end); current = current.AddDate(0, 0, 1) {
		for _, plan := range plans {
			next := NextDueDate(current, plan)
			if !next.After(current) {
				t.Fatalf("NextDueDate(%s, %s) = %s did not advance", current.Format("2006-01-02"), plan, next.Format("2006-01-02"))
			}
			if next.Day() > daysIn(next.Year(), next.Month()) {
				t.Fatalf("NextDueDate(%s, %s) produced invalid day %d", current.Format("2006-01-02"), plan, next.Day())
			}
			wantMonth := (int(current.Month())-1+cycleMonths(plan))%12 + 1
			if int(next.Month()) != wantMonth {
				t.Fatalf("NextDueDate(%s, %s) landed in month %d, want %d", current.Format("2006-01-02"), plan, next.Month(), wantMonth)
			}
		}
	}
}
