// Package seed loads the sample team and its January 2024 meals.
package seed

import (
	"context"
	"errors"
	"fmt"

	"mealtracker/internal/core"
	"mealtracker/internal/log"
	"mealtracker/internal/store"
)

type Meal struct {
	Date string
	// Type is empty when no meal was taken; it is stored as NONE.
	Type string
}

type Member struct {
	EmployeeID string
	Name       string
	Meals      []Meal
}

// Sample is the demo data set.
var Sample = []Member{
	{
		EmployeeID: "EMP001",
		Name:       "Ahmed Khan",
		Meals: []Meal{
			{"2024-01-10", "CHICKEN"},
			{"2024-01-11", "VEG"},
			{"2024-01-12", "CHICKEN"},
			{"2024-01-15", "CHICKEN"},
			{"2024-01-16", "VEG"},
			{"2024-01-17", ""},
			{"2024-01-18", "CHICKEN"},
			{"2024-01-19", "VEG"},
		},
	},
	{
		EmployeeID: "EMP002",
		Name:       "Sarah Ali",
		Meals: []Meal{
			{"2024-01-10", "VEG"},
			{"2024-01-11", "VEG"},
			{"2024-01-12", "CHICKEN"},
			{"2024-01-15", "VEG"},
			{"2024-01-16", "CHICKEN"},
			{"2024-01-17", "CHICKEN"},
			{"2024-01-18", "VEG"},
		},
	},
	{
		EmployeeID: "EMP003",
		Name:       "Hassan Ahmed",
		Meals: []Meal{
			{"2024-01-09", "CHICKEN"},
			{"2024-01-10", "CHICKEN"},
			{"2024-01-11", ""},
			{"2024-01-12", "VEG"},
			{"2024-01-15", "CHICKEN"},
			{"2024-01-16", ""},
			{"2024-01-17", "VEG"},
			{"2024-01-18", "CHICKEN"},
			{"2024-01-19", "CHICKEN"},
		},
	},
}

type Result struct {
	MembersCreated  int
	MembersExisting int
	Meals           int
}

// Load writes members into st. Members whose employee id already exists are
// reused, and meals are upserted, so running it twice changes nothing.
func Load(ctx context.Context, st store.Store, members []Member) (Result, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSeed)
	var res Result

	for _, md := range members {
		m, err := st.CreateTeamMember(ctx, md.EmployeeID, md.Name)
		switch {
		case errors.Is(err, core.ErrDuplicateKey):
			m, err = findByEmployeeID(ctx, st, md.EmployeeID)
			if err != nil {
				return res, err
			}
			res.MembersExisting++
		case err != nil:
			return res, fmt.Errorf("create %s: %w", md.EmployeeID, err)
		default:
			res.MembersCreated++
			logger.InfoContext(ctx, "Created team member", log.FieldEmployeeID, m.EmployeeID, "name", m.Name)
		}

		for _, meal := range md.Meals {
			t, err := core.ParseMealType(meal.Type)
			if err != nil {
				return res, fmt.Errorf("%s on %s: %w", md.EmployeeID, meal.Date, err)
			}
			cost, err := core.PriceFor(t)
			if err != nil {
				return res, err
			}
			if _, err := st.UpsertMealEntry(ctx, m.ID, meal.Date, t, cost); err != nil {
				return res, fmt.Errorf("meal %s on %s: %w", md.EmployeeID, meal.Date, err)
			}
			res.Meals++
		}
		logger.InfoContext(ctx, "Added meals", log.FieldEmployeeID, m.EmployeeID, "count", len(md.Meals))
	}
	return res, nil
}

func findByEmployeeID(ctx context.Context, st store.Store, employeeID string) (core.TeamMember, error) {
	members, err := st.ListTeamMembers(ctx)
	if err != nil {
		return core.TeamMember{}, fmt.Errorf("list team members: %w", err)
	}
	for _, m := range members {
		if m.EmployeeID == employeeID {
			return m, nil
		}
	}
	return core.TeamMember{}, fmt.Errorf("employee %s: %w", employeeID, core.ErrNotFound)
}
