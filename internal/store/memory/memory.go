// Package memory is a process-local store used for development and tests.
// All state sits behind one mutex, so every operation is atomic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealtracker/internal/core"
	"mealtracker/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	order   []string // member ids in creation order
	members map[string]core.TeamMember
	meals   map[string]core.MealEntry // keyed by core.MealKey
	now     func() time.Time
}

func New() *Store {
	return &Store{
		members: make(map[string]core.TeamMember),
		meals:   make(map[string]core.MealEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ListTeamMembers(_ context.Context) ([]core.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TeamMember, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.withMeals(s.members[id]))
	}
	return out, nil
}

func (s *Store) GetTeamMember(_ context.Context, id string) (core.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return core.TeamMember{}, fmt.Errorf("team member %s: %w", id, core.ErrNotFound)
	}
	return s.withMeals(m), nil
}

func (s *Store) CreateTeamMember(_ context.Context, employeeID, name string) (core.TeamMember, error) {
	employeeID, name, err := core.NormalizeMember(employeeID, name)
	if err != nil {
		return core.TeamMember{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.employeeTaken(employeeID, "") {
		return core.TeamMember{}, fmt.Errorf("employee id %s: %w", employeeID, core.ErrDuplicateKey)
	}
	now := s.now()
	m := core.TeamMember{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.members[m.ID] = m
	s.order = append(s.order, m.ID)
	return s.withMeals(m), nil
}

func (s *Store) UpdateTeamMember(_ context.Context, id, employeeID, name string) (core.TeamMember, error) {
	employeeID, name, err := core.NormalizeMember(employeeID, name)
	if err != nil {
		return core.TeamMember{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return core.TeamMember{}, fmt.Errorf("team member %s: %w", id, core.ErrNotFound)
	}
	if s.employeeTaken(employeeID, id) {
		return core.TeamMember{}, fmt.Errorf("employee id %s: %w", employeeID, core.ErrDuplicateKey)
	}
	m.EmployeeID = employeeID
	m.Name = name
	m.UpdatedAt = s.now()
	s.members[id] = m
	return s.withMeals(m), nil
}

func (s *Store) DeleteTeamMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return fmt.Errorf("team member %s: %w", id, core.ErrNotFound)
	}
	for key, e := range s.meals {
		if e.TeamMemberID == id {
			delete(s.meals, key)
		}
	}
	delete(s.members, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) UpsertMealEntry(_ context.Context, teamMemberID, date string, t core.MealType, cost int64) (core.MealEntry, error) {
	entry := core.MealEntry{TeamMemberID: teamMemberID, Date: date, Type: t, Cost: cost}
	if err := entry.Validate(); err != nil {
		return core.MealEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[teamMemberID]; !ok {
		return core.MealEntry{}, fmt.Errorf("team member %s: %w", teamMemberID, core.ErrNotFound)
	}
	now := s.now()
	key := core.MealKey(teamMemberID, date)
	if existing, ok := s.meals[key]; ok {
		existing.Type = t
		existing.Cost = cost
		existing.UpdatedAt = now
		s.meals[key] = existing
		return existing, nil
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.meals[key] = entry
	return entry, nil
}

func (s *Store) GetMealEntry(_ context.Context, teamMemberID, date string) (core.MealEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.meals[core.MealKey(teamMemberID, date)]
	if !ok {
		return core.MealEntry{}, fmt.Errorf("meal entry %s on %s: %w", teamMemberID, date, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) GetMealsForDate(_ context.Context, date string) ([]core.MealWithMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MealWithMember
	for _, id := range s.order {
		e, ok := s.meals[core.MealKey(id, date)]
		if !ok {
			continue
		}
		out = append(out, core.MealWithMember{MealEntry: e, TeamMember: s.members[id]})
	}
	return out, nil
}

func (s *Store) ListMealsInRange(_ context.Context, from, to string) ([]core.MealEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MealEntry
	for _, e := range s.meals {
		if e.Date >= from && e.Date <= to {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TeamMemberID < out[j].TeamMemberID
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// employeeTaken reports whether another member than exceptID uses employeeID.
func (s *Store) employeeTaken(employeeID, exceptID string) bool {
	for id, m := range s.members {
		if id != exceptID && m.EmployeeID == employeeID {
			return true
		}
	}
	return false
}

// withMeals returns a copy of m carrying its meals, newest date first.
func (s *Store) withMeals(m core.TeamMember) core.TeamMember {
	meals := []core.MealEntry{}
	for _, e := range s.meals {
		if e.TeamMemberID == m.ID {
			meals = append(meals, e)
		}
	}
	sort.Slice(meals, func(i, j int) bool { return meals[i].Date > meals[j].Date })
	m.Meals = meals
	return m
}
