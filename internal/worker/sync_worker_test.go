package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mealtracker/internal/amqp"
	"mealtracker/internal/core"
	"mealtracker/internal/sheets"
	"mealtracker/internal/store/memory"
)

type fakeLedger struct {
	mu      sync.Mutex
	rows    map[string]sheets.LedgerRow
	batches int
	deleted []string
	err     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]sheets.LedgerRow)}
}

func (l *fakeLedger) UpsertRows(_ context.Context, rows []sheets.LedgerRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.batches++
	for _, r := range rows {
		l.rows[r.MealID] = r
	}
	return nil
}

func (l *fakeLedger) DeleteMemberRows(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.deleted = append(l.deleted, id)
	for k, r := range l.rows {
		if r.TeamMemberID == id {
			delete(l.rows, k)
		}
	}
	return nil
}

func TestHandleMealSync(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newFakeLedger()
	w := NewSyncWorker(st, ledger, 10)

	m, _ := st.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	e, _ := st.UpsertMealEntry(ctx, m.ID, "2024-01-10", core.MealChicken, 220)

	if err := w.HandleMealSync(ctx, amqp.NewMealSyncMessage(m.ID, "2024-01-10")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	row, ok := ledger.rows[e.ID]
	if !ok || row.EmployeeID != "EMP001" || row.Cost != 220 {
		t.Fatalf("unexpected ledger row: %+v", row)
	}

	// The message carries no state; the latest stored entry is synced.
	_, _ = st.UpsertMealEntry(ctx, m.ID, "2024-01-10", core.MealVeg, 120)
	if err := w.HandleMealSync(ctx, amqp.NewMealSyncMessage(m.ID, "2024-01-10")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := ledger.rows[e.ID]; got.Type != core.MealVeg || len(ledger.rows) != 1 {
		t.Fatalf("update should overwrite the same row: %+v", ledger.rows)
	}
}

func TestHandleMealSyncSkipsMissingEntry(t *testing.T) {
	ledger := newFakeLedger()
	w := NewSyncWorker(memory.New(), ledger, 10)
	if err := w.HandleMealSync(context.Background(), amqp.NewMealSyncMessage("gone", "2024-01-10")); err != nil {
		t.Fatalf("missing entries should be acknowledged, got %v", err)
	}
	if ledger.batches != 0 {
		t.Fatal("nothing should be written for a missing entry")
	}
}

func TestHandleMealSyncLedgerFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newFakeLedger()
	ledger.err = errors.New("quota exceeded")
	w := NewSyncWorker(st, ledger, 10)

	m, _ := st.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	_, _ = st.UpsertMealEntry(ctx, m.ID, "2024-01-10", core.MealVeg, 120)

	if err := w.HandleMealSync(ctx, amqp.NewMealSyncMessage(m.ID, "2024-01-10")); !errors.Is(err, ledger.err) {
		t.Fatalf("expected ledger error for requeue, got %v", err)
	}
}

func TestHandleMemberDeleted(t *testing.T) {
	ledger := newFakeLedger()
	ledger.rows["meal-1"] = sheets.LedgerRow{MealID: "meal-1", TeamMemberID: "m1"}
	ledger.rows["meal-2"] = sheets.LedgerRow{MealID: "meal-2", TeamMemberID: "m2"}
	w := NewSyncWorker(memory.New(), ledger, 10)

	if err := w.HandleMemberDeleted(context.Background(), amqp.NewMemberDeletedMessage("m1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := ledger.rows["meal-1"]; ok || len(ledger.rows) != 1 {
		t.Fatalf("member rows should be removed: %+v", ledger.rows)
	}
}

func TestResyncRangeBatches(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newFakeLedger()
	w := NewSyncWorker(st, ledger, 2)

	a, _ := st.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	b, _ := st.CreateTeamMember(ctx, "EMP002", "Sarah Ali")
	for _, d := range []string{"2024-01-07", "2024-01-08", "2024-01-09"} {
		_, _ = st.UpsertMealEntry(ctx, a.ID, d, core.MealChicken, 220)
	}
	_, _ = st.UpsertMealEntry(ctx, b.ID, "2024-01-13", core.MealVeg, 120)
	_, _ = st.UpsertMealEntry(ctx, b.ID, "2024-01-14", core.MealVeg, 120) // next week

	n, err := w.ResyncRange(ctx, "2024-01-07", "2024-01-13")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if n != 4 || len(ledger.rows) != 4 || ledger.batches != 2 {
		t.Fatalf("synced %d rows in %d batches, ledger has %d", n, ledger.batches, len(ledger.rows))
	}
}

func TestResyncRecentUsesCurrentWeek(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newFakeLedger()
	w := NewSyncWorker(st, ledger, 10)
	w.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }

	m, _ := st.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	_, _ = st.UpsertMealEntry(ctx, m.ID, "2024-01-06", core.MealVeg, 120)
	_, _ = st.UpsertMealEntry(ctx, m.ID, "2024-01-07", core.MealVeg, 120)

	if err := w.ResyncRecent(ctx); err != nil {
		t.Fatalf("resync recent: %v", err)
	}
	if len(ledger.rows) != 1 {
		t.Fatalf("only the current week should be synced, got %d rows", len(ledger.rows))
	}
}

func TestResyncRecentCoversLookback(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := newFakeLedger()
	w := NewSyncWorker(st, ledger, 10)
	w.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }

	tests := []struct {
		days     int
		wantFrom string
	}{
		{0, "2024-01-07"},
		{2, "2024-01-07"}, // inside the current week
		{30, "2023-12-11"},
		{-5, "2024-01-07"},
	}
	for _, tt := range tests {
		w.SetLookbackDays(tt.days)
		if from, to := w.RecentRange(); from != tt.wantFrom || to != "2024-01-13" {
			t.Errorf("lookback %d: range %s..%s, want %s..2024-01-13", tt.days, from, to, tt.wantFrom)
		}
	}

	// An edit to a past date whose event was lost is repaired.
	m, _ := st.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	past, _ := st.UpsertMealEntry(ctx, m.ID, "2023-12-20", core.MealChicken, 220)
	_, _ = st.UpsertMealEntry(ctx, m.ID, "2023-11-01", core.MealVeg, 120)

	w.SetLookbackDays(30)
	if err := w.ResyncRecent(ctx); err != nil {
		t.Fatalf("resync recent: %v", err)
	}
	if _, ok := ledger.rows[past.ID]; !ok || len(ledger.rows) != 1 {
		t.Fatalf("expected only the entry inside the lookback, got %+v", ledger.rows)
	}
}

// overlapLedger fails the test when two writes run at the same time.
type overlapLedger struct {
	active  atomic.Int32
	overlap atomic.Bool
	writes  atomic.Int32
}

func (l *overlapLedger) enter() {
	if l.active.Add(1) > 1 {
		l.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	l.writes.Add(1)
	l.active.Add(-1)
}

func (l *overlapLedger) UpsertRows(context.Context, []sheets.LedgerRow) error {
	l.enter()
	return nil
}

func (l *overlapLedger) DeleteMemberRows(context.Context, string) error {
	l.enter()
	return nil
}

func TestLedgerWritesAreSerialized(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := &overlapLedger{}
	w := NewSyncWorker(st, ledger, 1)

	m, _ := st.CreateTeamMember(ctx, "EMP001", "Ahmed Khan")
	for _, d := range []string{"2024-01-07", "2024-01-08", "2024-01-09"} {
		_, _ = st.UpsertMealEntry(ctx, m.ID, d, core.MealChicken, 220)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = w.HandleMealSync(ctx, amqp.NewMealSyncMessage(m.ID, "2024-01-08"))
		}()
		go func() {
			defer wg.Done()
			_, _ = w.ResyncRange(ctx, "2024-01-07", "2024-01-13")
		}()
		go func() {
			defer wg.Done()
			_ = w.HandleMemberDeleted(ctx, amqp.NewMemberDeletedMessage("other"))
		}()
	}
	wg.Wait()

	if ledger.overlap.Load() {
		t.Fatal("ledger writes overlapped")
	}
	if got := ledger.writes.Load(); got != 5*(1+3+1) {
		t.Fatalf("writes = %d, want %d", got, 5*(1+3+1))
	}
}
