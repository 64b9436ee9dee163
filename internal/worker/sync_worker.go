// Package worker mirrors stored meal entries to the spreadsheet ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mealtracker/internal/amqp"
	"mealtracker/internal/core"
	"mealtracker/internal/metrics"
	"mealtracker/internal/sheets"
	"mealtracker/internal/store"
)

var _ amqp.Handler = (*SyncWorker)(nil)

// SyncWorker handles synchronization of meal entries from the store to the
// ledger sheet.
type SyncWorker struct {
	store        store.Store
	ledger       sheets.LedgerWriter
	batchSize    int
	lookbackDays int
	now          func() time.Time

	// writeMu serializes ledger writes. The consumer and the periodic
	// resync would otherwise both append a row missing from the index.
	writeMu sync.Mutex
}

func NewSyncWorker(st store.Store, ledger sheets.LedgerWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SyncWorker{
		store:     st,
		ledger:    ledger,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLookbackDays widens ResyncRecent to cover the given number of days
// before today, so edits to past dates whose events were lost still reach
// the ledger. The current week is always covered.
func (w *SyncWorker) SetLookbackDays(days int) {
	if days < 0 {
		days = 0
	}
	w.lookbackDays = days
}

func (w *SyncWorker) upsert(ctx context.Context, rows []sheets.LedgerRow) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.ledger.UpsertRows(ctx, rows)
}

// HandleMealSync writes the current state of one (member, date) entry. An
// entry that no longer exists was removed with its member and is skipped.
func (w *SyncWorker) HandleMealSync(ctx context.Context, msg *amqp.MealSyncMessage) error {
	slog.InfoContext(ctx, "Processing meal sync message",
		"team_member_id", msg.TeamMemberID,
		"date", msg.Date)

	entry, err := w.store.GetMealEntry(ctx, msg.TeamMemberID, msg.Date)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Meal entry gone, skipping sync", "team_member_id", msg.TeamMemberID, "date", msg.Date)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get meal entry from store: %w", err)
	}

	member, err := w.store.GetTeamMember(ctx, msg.TeamMemberID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Team member gone, skipping sync", "team_member_id", msg.TeamMemberID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get team member from store: %w", err)
	}

	if err := w.upsert(ctx, []sheets.LedgerRow{sheets.RowFor(entry, member)}); err != nil {
		return fmt.Errorf("sync meal to ledger: %w", err)
	}
	metrics.LedgerRowsSynced.Inc()

	slog.InfoContext(ctx, "Successfully synced meal entry",
		"id", entry.ID,
		"team_member_id", entry.TeamMemberID,
		"date", entry.Date,
		"meal_type", string(entry.Type))
	return nil
}

func (w *SyncWorker) HandleMemberDeleted(ctx context.Context, msg *amqp.MemberDeletedMessage) error {
	slog.InfoContext(ctx, "Processing member deleted message", "team_member_id", msg.TeamMemberID)
	w.writeMu.Lock()
	err := w.ledger.DeleteMemberRows(ctx, msg.TeamMemberID)
	w.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("delete member rows: %w", err)
	}
	return nil
}

// ResyncRange rewrites every entry dated from..to in batches. It backs up the
// message path in case deliveries were lost.
func (w *SyncWorker) ResyncRange(ctx context.Context, from, to string) (int, error) {
	entries, err := w.store.ListMealsInRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list meals in range: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	members, err := w.store.ListTeamMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list team members: %w", err)
	}
	byID := make(map[string]core.TeamMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	rows := make([]sheets.LedgerRow, 0, len(entries))
	for _, e := range entries {
		m, ok := byID[e.TeamMemberID]
		if !ok {
			continue
		}
		rows = append(rows, sheets.RowFor(e, m))
	}

	synced := 0
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		if err := w.upsert(ctx, rows[start:end]); err != nil {
			return synced, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
		synced += end - start
		metrics.LedgerRowsSynced.Add(float64(end - start))
	}

	slog.InfoContext(ctx, "Resync completed", "from", from, "to", to, "rows", synced)
	return synced, nil
}

// RecentRange returns the dates ResyncRecent covers: the Sunday-start week
// containing today, extended back by the lookback window.
func (w *SyncWorker) RecentRange() (string, string) {
	now := w.now()
	from, to := core.WeekRange(now)
	if w.lookbackDays > 0 {
		if back := core.FormatDate(now.AddDate(0, 0, -w.lookbackDays)); back < from {
			from = back
		}
	}
	return from, to
}

// ResyncRecent resyncs every entry in RecentRange.
func (w *SyncWorker) ResyncRecent(ctx context.Context) error {
	from, to := w.RecentRange()
	_, err := w.ResyncRange(ctx, from, to)
	return err
}

// RunPeriodicResync calls ResyncRecent every interval until ctx is done.
func (w *SyncWorker) RunPeriodicResync(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.ResyncRecent(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic resync failed", "error", err)
			}
		}
	}
}
