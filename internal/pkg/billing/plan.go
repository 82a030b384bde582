package billing

import (
	"strings"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
)

// NormalizePlan maps free-form plan names onto a known cadence. Unknown
// values fall back to monthly, the shortest cycle.
func NormalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case models.PlanYearly, "year", "annual", "annually", "12_months":
		return models.PlanYearly
	case models.PlanThreeYear, "three_years", "3_year", "3_years", "3y", "36_months":
		return models.PlanThreeYear
	default:
		return models.PlanMonthly
	}
}

// cycleMonths is the length of one billing cycle in calendar months.
func cycleMonths(plan string) int {
	switch NormalizePlan(plan) {
	case models.PlanThreeYear:
		return 36
	case models.PlanYearly:
		return 12
	default:
		return 1
	}
}
