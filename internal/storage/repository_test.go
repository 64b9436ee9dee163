package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mealtracker/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "meals.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meals.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := repo.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
		_ = repo.Close()
	}
}

func TestTeamMemberLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	m, err := repo.CreateTeamMember(ctx, "EMP001", " Ahmed Khan ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Name != "Ahmed Khan" {
		t.Fatalf("name not trimmed: %q", m.Name)
	}

	if _, err := repo.CreateTeamMember(ctx, "EMP001", "Other"); !errors.Is(err, core.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	other, _ := repo.CreateTeamMember(ctx, "EMP002", "Sarah Ali")
	if _, err := repo.UpdateTeamMember(ctx, other.ID, "EMP001", "Sarah Ali"); !errors.Is(err, core.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey on update, got %v", err)
	}

	updated, err := repo.UpdateTeamMember(ctx, m.ID, "EMP001", "Ahmed K.")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Ahmed K." || !updated.CreatedAt.Equal(m.CreatedAt) {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if _, err := repo.UpdateTeamMember(ctx, "missing", "EMP009", "x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := repo.ListTeamMembers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != m.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].Meals == nil {
		t.Fatalf("members without meals must carry an empty list")
	}
}

func TestUpsertMealEntry(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	m, _ := repo.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")

	first, err := repo.UpsertMealEntry(ctx, m.ID, "2024-01-10", core.MealChicken, 220)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := repo.UpsertMealEntry(ctx, m.ID, "2024-01-10", core.MealVeg, 120)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert changed id: %s -> %s", first.ID, second.ID)
	}
	if second.Type != core.MealVeg || second.Cost != 120 {
		t.Fatalf("last write should win: %+v", second)
	}

	got, err := repo.GetMealEntry(ctx, m.ID, "2024-01-10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != core.MealVeg {
		t.Fatalf("stored type = %s", got.Type)
	}

	if _, err := repo.UpsertMealEntry(ctx, "missing", "2024-01-10", core.MealVeg, 120); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown member, got %v", err)
	}
	if _, err := repo.UpsertMealEntry(ctx, m.ID, "2024-01-10", core.MealType("FISH"), 0); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := repo.GetMealEntry(ctx, m.ID, "2024-01-11"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTeamMemberCascades(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, _ := repo.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	b, _ := repo.CreateTeamMember(ctx, "EMP002", "Sarah Ali")
	for _, d := range []string{"2024-01-10", "2024-01-11"} {
		if _, err := repo.UpsertMealEntry(ctx, a.ID, d, core.MealChicken, 220); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	_, _ = repo.UpsertMealEntry(ctx, b.ID, "2024-01-10", core.MealVeg, 120)

	if err := repo.DeleteTeamMember(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteTeamMember(ctx, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	left, err := repo.ListMealsInRange(ctx, "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(left) != 1 || left[0].TeamMemberID != b.ID {
		t.Fatalf("cascade left unexpected meals: %+v", left)
	}
}

func TestGetMealsForDateAndMemberOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, _ := repo.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	b, _ := repo.CreateTeamMember(ctx, "EMP002", "Sarah Ali")
	_, _ = repo.UpsertMealEntry(ctx, a.ID, "2024-01-10", core.MealChicken, 220)
	_, _ = repo.UpsertMealEntry(ctx, a.ID, "2024-01-12", core.MealVeg, 120)
	_, _ = repo.UpsertMealEntry(ctx, b.ID, "2024-01-10", core.MealVeg, 120)

	day, err := repo.GetMealsForDate(ctx, "2024-01-10")
	if err != nil {
		t.Fatalf("meals for date: %v", err)
	}
	if len(day) != 2 {
		t.Fatalf("expected 2 meals, got %d", len(day))
	}
	if day[0].TeamMember.EmployeeID != "EMP001" || day[1].TeamMember.EmployeeID != "EMP002" {
		t.Fatalf("meals should carry their members: %+v", day)
	}

	got, _ := repo.GetTeamMember(ctx, a.ID)
	if len(got.Meals) != 2 || got.Meals[0].Date != "2024-01-12" {
		t.Fatalf("meals should be newest first: %+v", got.Meals)
	}
	if stats := core.MemberStats(got); stats.TotalSpent != 340 || stats.TotalMeals != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestConcurrentCreatesWithSameEmployeeID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	var created, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.CreateTeamMember(ctx, "EMP100", fmt.Sprintf("Member %d", i))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, core.ErrDuplicateKey):
				duplicates.Add(1)
			default:
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 || duplicates.Load() != 19 {
		t.Fatalf("created=%d duplicates=%d, want 1 and 19", created.Load(), duplicates.Load())
	}
	list, _ := repo.ListTeamMembers(ctx)
	if len(list) != 1 {
		t.Fatalf("expected one stored member, have %d", len(list))
	}
}

func TestMembersOrderedByCreationAcrossWholeSeconds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	// A fraction of a second must sort before the next whole second.
	times := []time.Time{
		time.Date(2024, 1, 10, 9, 0, 0, 500_000_000, time.UTC),
		time.Date(2024, 1, 10, 9, 0, 1, 0, time.UTC),
		time.Date(2024, 1, 10, 9, 0, 1, 250_000_000, time.UTC),
	}
	next := 0
	repo.now = func() time.Time {
		ts := times[next]
		next++
		return ts
	}
	// Ids are random, so ordering has to come from created_at.
	for _, emp := range []string{"EMP001", "EMP002", "EMP003"} {
		if _, err := repo.CreateTeamMember(ctx, emp, "Member "+emp); err != nil {
			t.Fatalf("create %s: %v", emp, err)
		}
	}

	list, err := repo.ListTeamMembers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, want := range []string{"EMP001", "EMP002", "EMP003"} {
		if list[i].EmployeeID != want {
			t.Fatalf("position %d = %s, want %s", i, list[i].EmployeeID, want)
		}
		if !list[i].CreatedAt.Equal(times[i]) {
			t.Fatalf("created_at round trip: %v != %v", list[i].CreatedAt, times[i])
		}
	}
}
