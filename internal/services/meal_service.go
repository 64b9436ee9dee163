package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mealtracker/internal/cache"
	"mealtracker/internal/core"
	"mealtracker/internal/log"
	"mealtracker/internal/metrics"
	"mealtracker/internal/store"
)

// EventPublisher announces changes to the sync worker.
type EventPublisher interface {
	PublishMealSync(ctx context.Context, teamMemberID, date string) error
	PublishMemberDeleted(ctx context.Context, teamMemberID string) error
	Close() error
}

// DailySummary is the totals for one date plus the entries behind them.
type DailySummary struct {
	core.Totals
	Meals []core.MealWithMember `json:"meals"`
}

type WeeklySummary struct {
	WeekStart string `json:"weekStart"`
	WeekEnd   string `json:"weekEnd"`
	TotalCost int64  `json:"totalCost"`
}

type Options struct {
	CacheSize int
	// CacheTTL of zero disables summary caching.
	CacheTTL time.Duration
}

// MealService orchestrates meal and member operations across the store and
// the event publisher, and serves cached summaries.
type MealService struct {
	store     store.Store
	publisher EventPublisher

	daily   *cache.Loader[DailySummary]
	weekly  *cache.Loader[WeeklySummary]
	stats   *cache.Loader[core.Stats]
	team    *cache.Loader[core.TeamStats]
	caches  *cache.Manager
	cleanup bool
}

// NewMealService wires the service. publisher may be nil, in which case no
// events are emitted.
func NewMealService(st store.Store, publisher EventPublisher, opts Options) *MealService {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	dailyCache := cache.NewLRUCache[DailySummary](opts.CacheSize, opts.CacheTTL)
	weeklyCache := cache.NewLRUCache[WeeklySummary](opts.CacheSize, opts.CacheTTL)
	statsCache := cache.NewLRUCache[core.Stats](opts.CacheSize, opts.CacheTTL)
	teamCache := cache.NewLRUCache[core.TeamStats](1, opts.CacheTTL)

	s := &MealService{
		store:     st,
		publisher: publisher,
		daily:     cache.NewLoader[DailySummary](dailyCache),
		weekly:    cache.NewLoader[WeeklySummary](weeklyCache),
		stats:     cache.NewLoader[core.Stats](statsCache),
		team:      cache.NewLoader[core.TeamStats](teamCache),
		caches:    cache.NewManager(),
	}
	s.caches.Register(dailyCache)
	s.caches.Register(weeklyCache)
	s.caches.Register(statsCache)
	s.caches.Register(teamCache)
	if opts.CacheTTL > 0 {
		s.caches.StartCleanup(opts.CacheTTL)
		s.cleanup = true
	}
	return s
}

func (s *MealService) logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentMeals)
}

func (s *MealService) memberLogger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentMembers)
}

// RecordMeal sets the member's meal for date, overwriting any earlier choice.
// An empty type clears the selection and is stored as NONE.
func (s *MealService) RecordMeal(ctx context.Context, teamMemberID, date, rawType string) (core.MealEntry, error) {
	teamMemberID = strings.TrimSpace(teamMemberID)
	if teamMemberID == "" {
		return core.MealEntry{}, fmt.Errorf("%w: team member id is required", core.ErrInvalidInput)
	}
	day, err := core.ParseDate(date)
	if err != nil {
		return core.MealEntry{}, err
	}
	mealType, err := core.ParseMealType(rawType)
	if err != nil {
		return core.MealEntry{}, err
	}
	cost, err := core.PriceFor(mealType)
	if err != nil {
		return core.MealEntry{}, err
	}

	entry, err := s.store.UpsertMealEntry(ctx, teamMemberID, core.FormatDate(day), mealType, cost)
	if err != nil {
		return core.MealEntry{}, fmt.Errorf("record meal: %w", err)
	}
	s.invalidate()
	metrics.MealsRecorded.WithLabelValues(string(entry.Type)).Inc()

	s.logger(ctx).InfoContext(ctx, "Meal recorded", log.NewFields().
		WithMeal(entry.TeamMemberID, entry.Date, string(entry.Type), int(entry.Cost)).
		WithOperation(log.OpRecord).
		ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishMealSync(ctx, entry.TeamMemberID, entry.Date); err != nil {
			// The entry is stored; the periodic resync will catch up.
			s.logger(ctx).ErrorContext(ctx, "Failed to publish meal sync",
				log.FieldTeamMemberID, entry.TeamMemberID, log.FieldDate, entry.Date, log.FieldError, err)
		}
	}
	return entry, nil
}

// GetMealEntry returns the stored entry for (teamMemberID, date).
func (s *MealService) GetMealEntry(ctx context.Context, teamMemberID, date string) (core.MealEntry, error) {
	day, err := core.ParseDate(date)
	if err != nil {
		return core.MealEntry{}, err
	}
	return s.store.GetMealEntry(ctx, teamMemberID, core.FormatDate(day))
}

func (s *MealService) ListTeamMembers(ctx context.Context) ([]core.TeamMember, error) {
	members, err := s.store.ListTeamMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	return members, nil
}

func (s *MealService) GetTeamMember(ctx context.Context, id string) (core.TeamMember, error) {
	return s.store.GetTeamMember(ctx, id)
}

func (s *MealService) CreateTeamMember(ctx context.Context, employeeID, name string) (core.TeamMember, error) {
	m, err := s.store.CreateTeamMember(ctx, employeeID, name)
	if err != nil {
		return core.TeamMember{}, err
	}
	s.memberLogger(ctx).InfoContext(ctx, "Team member created",
		log.FieldTeamMemberID, m.ID, log.FieldEmployeeID, m.EmployeeID, log.FieldOperation, log.OpCreate)
	return m, nil
}

func (s *MealService) UpdateTeamMember(ctx context.Context, id, employeeID, name string) (core.TeamMember, error) {
	m, err := s.store.UpdateTeamMember(ctx, id, employeeID, name)
	if err != nil {
		return core.TeamMember{}, err
	}
	// Daily summaries embed the member.
	s.invalidate()
	s.memberLogger(ctx).InfoContext(ctx, "Team member updated",
		log.FieldTeamMemberID, m.ID, log.FieldEmployeeID, m.EmployeeID, log.FieldOperation, log.OpUpdate)
	return m, nil
}

// DeleteTeamMember removes the member with its meals and tells the worker to
// drop the member's ledger rows.
func (s *MealService) DeleteTeamMember(ctx context.Context, id string) error {
	if err := s.store.DeleteTeamMember(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	s.memberLogger(ctx).InfoContext(ctx, "Team member deleted",
		log.FieldTeamMemberID, id, log.FieldOperation, log.OpDelete)

	if s.publisher != nil {
		if err := s.publisher.PublishMemberDeleted(ctx, id); err != nil {
			s.memberLogger(ctx).ErrorContext(ctx, "Failed to publish member deletion",
				log.FieldTeamMemberID, id, log.FieldError, err)
		}
	}
	return nil
}

// DailySummary returns the totals and entries recorded for date.
func (s *MealService) DailySummary(ctx context.Context, date string) (DailySummary, error) {
	day, err := core.ParseDate(date)
	if err != nil {
		return DailySummary{}, err
	}
	date = core.FormatDate(day)
	return s.daily.Get(ctx, "daily:"+date, func(ctx context.Context) (DailySummary, error) {
		meals, err := s.store.GetMealsForDate(ctx, date)
		if err != nil {
			return DailySummary{}, fmt.Errorf("meals for %s: %w", date, err)
		}
		entries := make([]core.MealEntry, len(meals))
		for i, m := range meals {
			entries[i] = m.MealEntry
		}
		if meals == nil {
			meals = []core.MealWithMember{}
		}
		return DailySummary{Totals: core.TotalsFromEntries(entries), Meals: meals}, nil
	})
}

// WeeklySummary totals the Sunday to Saturday week containing reference.
func (s *MealService) WeeklySummary(ctx context.Context, reference string) (WeeklySummary, error) {
	day, err := core.ParseDate(reference)
	if err != nil {
		return WeeklySummary{}, err
	}
	from, to := core.WeekRange(day)
	return s.weekly.Get(ctx, "weekly:"+from, func(ctx context.Context) (WeeklySummary, error) {
		entries, err := s.store.ListMealsInRange(ctx, from, to)
		if err != nil {
			return WeeklySummary{}, fmt.Errorf("meals from %s to %s: %w", from, to, err)
		}
		return WeeklySummary{
			WeekStart: from,
			WeekEnd:   to,
			TotalCost: core.TotalsFromEntries(entries).TotalCost,
		}, nil
	})
}

// MemberSummary returns the lifetime stats of one member.
func (s *MealService) MemberSummary(ctx context.Context, id string) (core.Stats, error) {
	return s.stats.Get(ctx, "stats:"+id, func(ctx context.Context) (core.Stats, error) {
		m, err := s.store.GetTeamMember(ctx, id)
		if err != nil {
			return core.Stats{}, err
		}
		return core.MemberStats(m), nil
	})
}

// TeamSummary returns the stats of every member folded together.
func (s *MealService) TeamSummary(ctx context.Context) (core.TeamStats, error) {
	return s.team.Get(ctx, "team", func(ctx context.Context) (core.TeamStats, error) {
		members, err := s.store.ListTeamMembers(ctx)
		if err != nil {
			return core.TeamStats{}, err
		}
		return core.OverallStats(members), nil
	})
}

// Ping reports whether the store is reachable.
func (s *MealService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *MealService) invalidate() {
	s.daily.Invalidate()
	s.weekly.Invalidate()
	s.stats.Invalidate()
	s.team.Invalidate()
}

// Close stops the cache sweeper and closes the store and publisher.
func (s *MealService) Close() error {
	if s.cleanup {
		s.caches.Stop()
		s.cleanup = false
	}

	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close meal service: %w", err)
	}
	return nil
}
