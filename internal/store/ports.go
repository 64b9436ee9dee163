// Package store declares the persistence ports for team members and their
// meal entries.
package store

import (
	"context"

	"mealtracker/internal/core"
)

type (
	// MemberStore owns team members. Every read returns members with their
	// meals ordered by date, newest first.
	MemberStore interface {
		ListTeamMembers(ctx context.Context) ([]core.TeamMember, error)
		GetTeamMember(ctx context.Context, id string) (core.TeamMember, error)
		CreateTeamMember(ctx context.Context, employeeID, name string) (core.TeamMember, error)
		UpdateTeamMember(ctx context.Context, id, employeeID, name string) (core.TeamMember, error)
		// DeleteTeamMember removes the member and all of its meals atomically.
		DeleteTeamMember(ctx context.Context, id string) error
	}

	// MealStore owns meal entries, at most one per (member, date).
	MealStore interface {
		// UpsertMealEntry overwrites the entry for (teamMemberID, date) in
		// place or creates it when absent.
		UpsertMealEntry(ctx context.Context, teamMemberID, date string, t core.MealType, cost int64) (core.MealEntry, error)
		GetMealEntry(ctx context.Context, teamMemberID, date string) (core.MealEntry, error)
		GetMealsForDate(ctx context.Context, date string) ([]core.MealWithMember, error)
		// ListMealsInRange returns entries with from <= date <= to.
		ListMealsInRange(ctx context.Context, from, to string) ([]core.MealEntry, error)
	}

	Store interface {
		MemberStore
		MealStore
		Ping(ctx context.Context) error
		Close() error
	}
)
