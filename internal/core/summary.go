package core

import (
	"math"
	"time"
)

// Totals summarizes the meals ordered on one day.
type Totals struct {
	TotalCost    int64 `json:"totalCost"`
	ChickenCount int   `json:"chickenCount"`
	VegCount     int   `json:"vegCount"`
}

// Stats summarizes everything a single member has ordered.
type Stats struct {
	TotalSpent         int64 `json:"totalSpent"`
	ChickenMeals       int   `json:"chickenMeals"`
	VegMeals           int   `json:"vegMeals"`
	TotalMeals         int   `json:"totalMeals"`
	AverageCostPerMeal int64 `json:"averageCostPerMeal"`
}

// TeamStats sums member stats across the whole team.
type TeamStats struct {
	TotalMembers int   `json:"totalMembers"`
	TotalMeals   int   `json:"totalMeals"`
	TotalSpent   int64 `json:"totalSpent"`
	TotalChicken int   `json:"totalChicken"`
	TotalVeg     int   `json:"totalVeg"`
}

func (t *Totals) add(e MealEntry) {
	t.TotalCost += e.Cost
	switch e.Type {
	case MealChicken:
		t.ChickenCount++
	case MealVeg:
		t.VegCount++
	}
}

// EntryFor resolves the member's entry for date. A missing entry resolves to
// a zero cost NONE entry.
func EntryFor(m TeamMember, date string) MealEntry {
	for _, e := range m.Meals {
		if e.Date == date {
			return e
		}
	}
	return MealEntry{TeamMemberID: m.ID, Date: date, Type: MealNone}
}

// DailyTotals sums cost and counts meal types across members for date.
func DailyTotals(members []TeamMember, date string) Totals {
	var t Totals
	for _, m := range members {
		t.add(EntryFor(m, date))
	}
	return t
}

// TotalsFromEntries applies the daily arithmetic to a flat list of entries.
func TotalsFromEntries(entries []MealEntry) Totals {
	var t Totals
	for _, e := range entries {
		t.add(e)
	}
	return t
}

// WeekStart returns the Sunday on or before reference.
func WeekStart(reference time.Time) time.Time {
	day := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// WeekDates lists the seven dates, Sunday through Saturday, of the week
// containing reference.
func WeekDates(reference time.Time) [7]string {
	start := WeekStart(reference)
	var dates [7]string
	for i := range dates {
		dates[i] = FormatDate(start.AddDate(0, 0, i))
	}
	return dates
}

// WeekRange returns the first and last date of the week containing reference.
func WeekRange(reference time.Time) (string, string) {
	dates := WeekDates(reference)
	return dates[0], dates[6]
}

// WeeklyTotal sums every member's cost over the week containing reference.
func WeeklyTotal(members []TeamMember, reference time.Time) int64 {
	var total int64
	for _, date := range WeekDates(reference) {
		for _, m := range members {
			total += EntryFor(m, date).Cost
		}
	}
	return total
}

// MemberStats computes spending and meal counts for m. NONE entries count
// towards neither the meal total nor the average.
func MemberStats(m TeamMember) Stats {
	var s Stats
	for _, e := range m.Meals {
		s.TotalSpent += e.Cost
		switch e.Type {
		case MealChicken:
			s.ChickenMeals++
		case MealVeg:
			s.VegMeals++
		}
	}
	s.TotalMeals = s.ChickenMeals + s.VegMeals
	if s.TotalMeals > 0 {
		s.AverageCostPerMeal = int64(math.Round(float64(s.TotalSpent) / float64(s.TotalMeals)))
	}
	return s
}

// OverallStats folds MemberStats over every member. Members without meals
// still count towards TotalMembers.
func OverallStats(members []TeamMember) TeamStats {
	ts := TeamStats{TotalMembers: len(members)}
	for _, m := range members {
		s := MemberStats(m)
		ts.TotalMeals += s.TotalMeals
		ts.TotalSpent += s.TotalSpent
		ts.TotalChicken += s.ChickenMeals
		ts.TotalVeg += s.VegMeals
	}
	return ts
}
